// Package rag defines the retrieval components of the plan engine: vector
// storage of the recipe corpus, query embedding, and constraint-aware
// retrieval. Concrete implementations (Qdrant, etc.) satisfy these
// interfaces so the motor layer never depends on a specific backend.
package rag

import (
	"context"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// Filter restricts a vector search to recipes matching the patient's hard
// constraints. Filtering happens server-side in the store, never by
// post-filtering an unconstrained result.
type Filter struct {
	// Category restricts results to a single recipe category. Empty means any.
	Category nutrition.Category

	// MaxEconomicTier caps the economic tier of returned recipes. Zero means
	// no cap.
	MaxEconomicTier nutrition.EconomicTier

	// RequiredTags lists restriction identifiers every returned recipe must
	// carry in its dietary tag set (e.g. "sin_gluten").
	RequiredTags []string
}

// Scored pairs a recipe with its similarity score from a search.
type Scored struct {
	// Item is the recipe reconstructed from the stored payload.
	Item nutrition.RecipeItem

	// Score is the cosine similarity assigned by the store, possibly adjusted
	// by retriever re-ranking.
	Score float32
}

// VectorStore is the interface for persisting and searching recipe
// embeddings. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of recipes. Each item must carry its
	// pre-computed embedding.
	Upsert(ctx context.Context, items []nutrition.RecipeItem) error

	// Query performs a filtered cosine similarity search and returns the
	// top-k matches ordered by descending score, ties broken by ascending
	// item ID.
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Scored, error)

	// Delete removes recipes by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RetrievalQuery describes one slot's candidate search.
type RetrievalQuery struct {
	// IntentText is the free-text description embedded for similarity search
	// (slot, patient context, desired dish character).
	IntentText string

	// Filter carries the hard constraints applied server-side.
	Filter Filter

	// Preferences lists foods whose presence boosts a candidate's rank.
	Preferences []string

	// Dislikes lists foods whose presence penalizes a candidate's rank.
	Dislikes []string

	// TopK is the number of candidates wanted. Zero uses the retriever
	// default.
	TopK int
}

// Result is the outcome of one retrieval. Partial is set when fewer than the
// requested k candidates survived; callers decide whether that is acceptable.
type Result struct {
	// Items are the ranked candidates, best first, at most TopK of them.
	Items []nutrition.RecipeItem

	// Partial marks an under-supplied result (0 < len(Items) < requested k).
	Partial bool
}

// Retriever is the high-level interface the motors use to fetch slot
// candidates. Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns ranked candidates for the query. It fails with
	// nutrition.ErrInsufficientCandidates when nothing usable is found even
	// after constraint relaxation.
	Retrieve(ctx context.Context, query RetrievalQuery) (Result, error)
}
