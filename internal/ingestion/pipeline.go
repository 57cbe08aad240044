// Package ingestion implements the recipe corpus ingestion pipeline.
// It loads a JSON recipe file (local path or HTTP URL), fills in missing
// metadata, renders each recipe as Spanish document text, embeds the texts
// in batches, and upserts the results into the vector store.
// This pipeline is invoked by the `nutria ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
	"github.com/nutria-ai/nutria-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// BatchSize is the number of recipes embedded and upserted per batch.
	// Defaults to 32 if zero.
	BatchSize int

	// HTTPTimeout is the timeout for fetching a remote corpus file.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Pipeline orchestrates the load → enrich → embed → upsert flow for a
// recipe corpus.
type Pipeline struct {
	// embedder converts rendered recipe texts into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded recipes.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching remote corpus files.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "nutria-go/1.0 (recipe corpus ingestion)"
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}, nil
}

// Ingest loads a corpus file, enriches sparse records, embeds, and stores
// every recipe. Progress is reported via the optional progress callback.
// Returns the number of recipes ingested.
func (p *Pipeline) Ingest(ctx context.Context, source string, progress func(msg string)) (int, error) {
	if progress == nil {
		progress = func(string) {}
	}

	progress(fmt.Sprintf("loading %s", source))
	data, err := p.load(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("ingestion: load failed for %s: %w", source, err)
	}

	var items []nutrition.RecipeItem
	if err := json.Unmarshal(data, &items); err != nil {
		return 0, fmt.Errorf("ingestion: parse failed for %s: %w", source, err)
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("ingestion: corpus %s contains no recipes", source)
	}

	for i := range items {
		if items[i].Name == "" {
			return 0, fmt.Errorf("ingestion: recipe %d has no name", i)
		}
		enrich(&items[i])
	}
	progress(fmt.Sprintf("parsed %d recipes from %s", len(items), source))

	total := 0
	for start := 0; start < len(items); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(items))
		batch := items[start:end]

		texts := make([]string, len(batch))
		for i, item := range batch {
			texts[i] = renderDocument(item)
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return total, fmt.Errorf("ingestion: embedding failed at recipe %d: %w", start, err)
		}
		if len(embeddings) != len(batch) {
			return total, fmt.Errorf("ingestion: embedder returned %d vectors for %d recipes", len(embeddings), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = embeddings[i]
		}

		if err := p.store.Upsert(ctx, batch); err != nil {
			return total, fmt.Errorf("ingestion: upsert failed at recipe %d: %w", start, err)
		}

		total += len(batch)
		progress(fmt.Sprintf("ingested %d/%d recipes", total, len(items)))
	}

	return total, nil
}

// load reads the corpus from a local path or fetches it over HTTP(S).
func (p *Pipeline) load(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.fetch(ctx, source)
	}
	return os.ReadFile(source)
}

// fetch retrieves the raw content of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// enrich fills in the fields a sparse corpus record may omit: a deterministic
// ID, an inferred category, and an inferred economic tier.
func enrich(item *nutrition.RecipeItem) {
	if item.ID == "" {
		item.ID = recipeID(item.Name)
	}
	inferred := InferMetadata(*item)
	if item.Category == "" {
		item.Category = inferred.Category
	}
	if item.EconomicTier == 0 {
		item.EconomicTier = inferred.EconomicTier
	}
}

// renderDocument renders a recipe as the Spanish text that gets embedded.
// The wording mirrors how retrieval intents are phrased so similarity search
// stays in one register.
func renderDocument(item nutrition.RecipeItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s. Categoría: %s.", item.Name, item.Category)

	if len(item.Ingredients) > 0 {
		parts := make([]string, 0, len(item.Ingredients))
		for _, ing := range item.Ingredients {
			if ing.FreePortion {
				parts = append(parts, ing.Name+" a gusto")
			} else {
				parts = append(parts, fmt.Sprintf("%s %.0f g", ing.Name, ing.Grams))
			}
		}
		fmt.Fprintf(&sb, " Ingredientes: %s.", strings.Join(parts, ", "))
	}
	if item.Preparation != "" {
		fmt.Fprintf(&sb, " Preparación: %s", item.Preparation)
		if !strings.HasSuffix(item.Preparation, ".") {
			sb.WriteString(".")
		}
	}
	if len(item.DietaryTags) > 0 {
		fmt.Fprintf(&sb, " Etiquetas: %s.", strings.Join(item.DietaryTags, ", "))
	}
	fmt.Fprintf(&sb, " Aporta %.0f kcal, %.0f g proteína, %.0f g carbohidratos, %.0f g grasa.",
		item.Macros.Calories, item.Macros.ProteinG, item.Macros.CarbG, item.Macros.FatG)

	return sb.String()
}

// recipeID generates a deterministic UUID-shaped ID from the recipe name, so
// re-ingesting the same corpus updates points in place instead of duplicating
// them.
func recipeID(name string) string {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return fmt.Sprintf("%x-%x-%x-%x-%x", h[0:4], h[4:6], h[6:8], h[8:10], h[10:16])
}
