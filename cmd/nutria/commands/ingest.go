package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nutria-ai/nutria-go/internal/embedder"
	"github.com/nutria-ai/nutria-go/internal/ingestion"
	"github.com/nutria-ai/nutria-go/internal/rag"
)

// NewIngestCmd constructs the `nutria ingest` command, which loads a recipe
// corpus into the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a recipe corpus into the vector store",
		Long: `Load a JSON recipe corpus, embed each recipe, and index it in Qdrant.

The corpus is a JSON array of recipes (name, ingredients, preparation,
macros, dietary_tags, category, economic_tier). Sparse records are accepted:
missing IDs are derived from the recipe name, and missing category or
economic tier are inferred from the ingredients. Re-ingesting the same
corpus updates recipes in place.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: nutria-recetas)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  nutria ingest --source ./recetas.json
  nutria ingest --source https://corpus.example.com/recetas.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if source == "" {
				return fmt.Errorf("ingest: --source is required")
			}

			if err := embedder.ValidateForRAG(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
			log.Info("embedder initialised", slog.String("provider", embBackend))

			qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
			qdrantPort := getEnvInt("QDRANT_PORT", 6334)
			collection := getEnvOrDefault("QDRANT_COLLECTION", "nutria-recetas")

			store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
				Host:       qdrantHost,
				Port:       qdrantPort,
				Collection: collection,
				VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
				APIKey:     os.Getenv("QDRANT_API_KEY"),
				UseTLS:     os.Getenv("QDRANT_TLS") == "true",
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
			}
			defer store.Close()
			log.Info("qdrant store ready", slog.String("host", qdrantHost), slog.Int("port", qdrantPort), slog.String("collection", collection))

			pipeline, err := ingestion.NewPipeline(emb, store, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.String("source", source))

			n, err := pipeline.Ingest(ctx, source, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete", slog.Int("recipes", n))
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Recipe corpus path or URL (JSON array)")

	return cmd
}
