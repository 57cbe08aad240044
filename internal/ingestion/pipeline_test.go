package ingestion

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
	"github.com/nutria-ai/nutria-go/internal/rag"
)

// fakeEmbedder returns a fixed-size vector per text and records the texts it
// was asked to embed.
type fakeEmbedder struct {
	// texts accumulates every embedded text across calls.
	texts []string
	// err is returned on every call when non-nil.
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.texts = append(f.texts, texts...)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

// fakeStore records upserted recipes.
type fakeStore struct {
	// items accumulates every upserted recipe across calls.
	items []nutrition.RecipeItem
	// batches counts Upsert invocations.
	batches int
	// err is returned on every call when non-nil.
	err error
}

func (f *fakeStore) Upsert(_ context.Context, items []nutrition.RecipeItem) error {
	if f.err != nil {
		return f.err
	}
	f.batches++
	f.items = append(f.items, items...)
	return nil
}

func (f *fakeStore) Query(context.Context, []float32, rag.Filter, int) ([]rag.Scored, error) {
	return nil, nil
}
func (f *fakeStore) Delete(context.Context, []string) error { return nil }
func (f *fakeStore) Close() error                           { return nil }

const corpusJSON = `[
  {
    "name": "Pollo grillado con arroz",
    "ingredients": [
      {"name": "pollo", "grams": 150},
      {"name": "arroz", "grams": 60}
    ],
    "preparation": "Grillar el pollo y hervir el arroz.",
    "macros": {"calories": 700, "protein_g": 45, "carb_g": 60, "fat_g": 20}
  },
  {
    "name": "Avena con banana",
    "ingredients": [
      {"name": "avena", "grams": 40},
      {"name": "banana", "grams": 100}
    ],
    "macros": {"calories": 300, "protein_g": 8, "carb_g": 55, "fat_g": 5},
    "dietary_tags": ["sin_gluten"]
  },
  {
    "name": "Guiso de lentejas",
    "ingredients": [
      {"name": "lenteja", "grams": 80},
      {"name": "zanahoria", "grams": 50}
    ],
    "macros": {"calories": 450, "protein_g": 22, "carb_g": 70, "fat_g": 8}
  }
]`

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recetas.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func Test_Ingest_FromFile(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	store := &fakeStore{}
	p, err := NewPipeline(emb, store, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	n, err := p.Ingest(context.Background(), writeCorpus(t, corpusJSON), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 recipes ingested, got %d", n)
	}
	if len(store.items) != 3 {
		t.Fatalf("want 3 recipes upserted, got %d", len(store.items))
	}

	for _, item := range store.items {
		if item.ID == "" {
			t.Errorf("recipe %q: missing generated ID", item.Name)
		}
		if len(item.Embedding) == 0 {
			t.Errorf("recipe %q: missing embedding", item.Name)
		}
	}

	// Sparse records get their metadata inferred.
	pollo := store.items[0]
	if pollo.Category != nutrition.CategoryProteinMain {
		t.Errorf("pollo category: got %q, want %q", pollo.Category, nutrition.CategoryProteinMain)
	}
	lentejas := store.items[2]
	if lentejas.Category != nutrition.CategoryVegetarian {
		t.Errorf("lentejas category: got %q, want %q", lentejas.Category, nutrition.CategoryVegetarian)
	}
	if lentejas.EconomicTier != nutrition.TierLow {
		t.Errorf("lentejas tier: got %d, want %d", lentejas.EconomicTier, nutrition.TierLow)
	}
}

func Test_Ingest_RenderedTextIsSpanish(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{}
	p, err := NewPipeline(emb, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	if _, err := p.Ingest(context.Background(), writeCorpus(t, corpusJSON), nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if len(emb.texts) != 3 {
		t.Fatalf("want 3 embedded texts, got %d", len(emb.texts))
	}
	first := emb.texts[0]
	for _, want := range []string{"Pollo grillado con arroz", "Ingredientes:", "pollo 150 g", "700 kcal"} {
		if !strings.Contains(first, want) {
			t.Errorf("rendered text missing %q: %s", want, first)
		}
	}
}

func Test_Ingest_Batching(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	p, err := NewPipeline(&fakeEmbedder{}, store, &Config{BatchSize: 2})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	n, err := p.Ingest(context.Background(), writeCorpus(t, corpusJSON), nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 recipes, got %d", n)
	}
	if store.batches != 2 {
		t.Errorf("want 2 upsert batches with batch size 2, got %d", store.batches)
	}
}

func Test_Ingest_FromHTTP(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(corpusJSON))
	}))
	t.Cleanup(srv.Close)

	store := &fakeStore{}
	p, err := NewPipeline(&fakeEmbedder{}, store, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	n, err := p.Ingest(context.Background(), srv.URL+"/recetas.json", nil)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n != 3 {
		t.Errorf("want 3 recipes, got %d", n)
	}
}

func Test_Ingest_InvalidJSON(t *testing.T) {
	t.Parallel()
	p, err := NewPipeline(&fakeEmbedder{}, &fakeStore{}, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	if _, err := p.Ingest(context.Background(), writeCorpus(t, "{not json"), nil); err == nil {
		t.Error("want error for malformed corpus")
	}
}

func Test_Ingest_EmbedderFailureStopsPipeline(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	p, err := NewPipeline(&fakeEmbedder{err: errors.New("backend down")}, store, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	if _, err := p.Ingest(context.Background(), writeCorpus(t, corpusJSON), nil); err == nil {
		t.Error("want error when embedder fails")
	}
	if len(store.items) != 0 {
		t.Errorf("want no upserts after embed failure, got %d", len(store.items))
	}
}

func Test_Ingest_DeterministicIDs(t *testing.T) {
	t.Parallel()
	if recipeID("Pollo grillado") != recipeID("  pollo grillado ") {
		t.Error("want case- and space-insensitive deterministic IDs")
	}
	if recipeID("Pollo grillado") == recipeID("Avena con banana") {
		t.Error("want distinct IDs for distinct recipes")
	}
	id := recipeID("Pollo grillado")
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Errorf("want UUID-shaped ID, got %q", id)
	}
}
