package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/nutria-ai/nutria-go/internal/embedder"
	"github.com/nutria-ai/nutria-go/internal/generator"
	"github.com/nutria-ai/nutria-go/internal/motor"
	"github.com/nutria-ai/nutria-go/internal/packer"
	"github.com/nutria-ai/nutria-go/internal/provider"
	"github.com/nutria-ai/nutria-go/internal/rag"
	"github.com/nutria-ai/nutria-go/internal/server"
	"github.com/nutria-ai/nutria-go/internal/store"
	"github.com/nutria-ai/nutria-go/internal/validator"
)

// engineDeps bundles the wired plan engine with the handles the caller needs
// for readiness probes and shutdown.
type engineDeps struct {
	// pipeline is the fully wired plan engine.
	pipeline *motor.Pipeline
	// pingers are the dependency probes for GET /api/ready.
	pingers []server.Pinger
	// close releases the vector store and archive connections.
	close func()
}

// buildEngine wires embedder → vector store → retriever → packer → model →
// generator → validator → archive into a motor.Pipeline. All tuning comes
// from NUTRIA_* env vars (populated from YAML by config.Load).
func buildEngine(ctx context.Context, log *slog.Logger) (*engineDeps, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "nutria-recetas")

	vectorStore, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		Collection: collection,
		VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", qdrantHost),
		slog.Int("port", qdrantPort),
		slog.String("collection", collection),
	)

	retriever, err := rag.NewRetriever(emb, vectorStore, rag.RetrieverConfig{
		DefaultTopK:     getEnvInt("NUTRIA_CANDIDATES_PER_SLOT", 0),
		OverFetchFactor: getEnvInt("NUTRIA_RETRIEVAL_OVERFETCH", 0),
	})
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "ollama")))

	gen, err := generator.New(chatModel, generator.Config{
		AttemptTimeout:   time.Duration(getEnvInt("NUTRIA_GENERATION_TIMEOUT_SECONDS", 0)) * time.Second,
		MaxContextTokens: getEnvInt("NUTRIA_CONTEXT_TOKEN_BUDGET", 0),
	})
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	val := validator.New(validator.Config{
		CalorieTolerance:     getEnvFloat("NUTRIA_CALORIE_TOLERANCE", 0),
		MacroTolerance:       getEnvFloat("NUTRIA_MACRO_TOLERANCE", 0),
		InterOptionTolerance: getEnvFloat("NUTRIA_INTER_OPTION_TOLERANCE", 0),
	})

	engine, err := validator.NewEngine(gen, val, getEnvInt("NUTRIA_MAX_REPAIR_ATTEMPTS", 0))
	if err != nil {
		vectorStore.Close()
		return nil, fmt.Errorf("failed to create repair engine: %w", err)
	}

	// Open the plan archive. NUTRIA_PLANS_DB overrides the default path
	// (~/.nutria/plans.db). Set to "disabled" to run without persistence.
	var archive motor.Archive
	var planStore *store.SQLiteStore
	dbPath := os.Getenv("NUTRIA_PLANS_DB")
	if dbPath != "disabled" {
		if dbPath == "" {
			dbPath, err = store.DefaultDBPath()
			if err != nil {
				log.Warn("archive: could not resolve default DB path, disabling", slog.Any("error", err))
				dbPath = ""
			}
		}
		if dbPath != "" {
			ps, psErr := store.Open(dbPath)
			if psErr != nil {
				log.Warn("archive: failed to open store, disabling", slog.Any("error", psErr))
			} else {
				planStore = ps
				archive = ps
				log.Info("archive: store opened", slog.String("path", dbPath))
			}
		}
	} else {
		log.Info("archive: disabled via NUTRIA_PLANS_DB=disabled")
	}

	pk := packer.New(packer.Config{
		BudgetTokens: getEnvInt("NUTRIA_CONTEXT_TOKEN_BUDGET", 0),
	})

	pipeline, err := motor.New(retriever, pk, engine, archive, motor.Config{
		CandidatesPerSlot: getEnvInt("NUTRIA_CANDIDATES_PER_SLOT", 0),
	})
	if err != nil {
		vectorStore.Close()
		if planStore != nil {
			planStore.Close()
		}
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	pingers := []server.Pinger{
		server.NewLLMPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "ollama")),
		server.NewDependencyPinger("qdrant", vectorStore),
	}
	if planStore != nil {
		pingers = append(pingers, server.NewDependencyPinger("archive", planStore))
	}

	return &engineDeps{
		pipeline: pipeline,
		pingers:  pingers,
		close: func() {
			vectorStore.Close()
			if planStore != nil {
				planStore.Close()
			}
		},
	}, nil
}

// getEnvOrDefault returns the env var value or a fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or the fallback when unset or
// unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvFloat returns the env var parsed as float64, or the fallback when
// unset or unparsable.
func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
