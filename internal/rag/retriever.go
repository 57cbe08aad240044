package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// Re-rank adjustments applied on top of the store's similarity score.
// Preferences pull a candidate up, dislikes push it down; the adjustment is
// deliberately small so relevance still dominates.
const (
	preferenceBoost = 0.10
	dislikePenalty  = 0.20
)

// RetrieverConfig holds the tuning knobs of the constraint-aware retriever.
type RetrieverConfig struct {
	// DefaultTopK is the candidate count used when a query passes 0.
	DefaultTopK int

	// OverFetchFactor multiplies the requested k for the raw store query so
	// re-ranking and dedup have slack to work with.
	OverFetchFactor int
}

// ConstraintRetriever implements Retriever by combining an Embedder and a
// VectorStore with preference re-ranking and economic-tier relaxation.
// It is safe for concurrent use.
type ConstraintRetriever struct {
	embedder Embedder
	store    VectorStore
	cfg      RetrieverConfig
}

// NewRetriever constructs a ConstraintRetriever. Zero config fields get
// defaults (k=5, over-fetch ×3).
func NewRetriever(embedder Embedder, store VectorStore, cfg RetrieverConfig) (*ConstraintRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 5
	}
	if cfg.OverFetchFactor <= 0 {
		cfg.OverFetchFactor = 3
	}
	return &ConstraintRetriever{embedder: embedder, store: store, cfg: cfg}, nil
}

// Retrieve embeds the query intent, over-fetches from the store, re-ranks by
// patient preference, dedupes, and truncates to k. When the first pass comes
// up empty or short it relaxes the economic-tier cap one step and retries
// once; zero usable candidates after that is ErrInsufficientCandidates.
// Fewer than k (but more than zero) candidates yield a partial result, not
// an error.
func (r *ConstraintRetriever) Retrieve(ctx context.Context, query RetrievalQuery) (Result, error) {
	k := query.TopK
	if k <= 0 {
		k = r.cfg.DefaultTopK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query.IntentText})
	if err != nil {
		return Result{}, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return Result{}, fmt.Errorf("rag: embedder returned empty result for query")
	}
	vector := embeddings[0]

	items, err := r.search(ctx, vector, query, k)
	if err != nil {
		return Result{}, err
	}

	// Under-supply: relax the tier cap one step and retry once. Required
	// dietary tags are never relaxed.
	if len(items) < k && query.Filter.MaxEconomicTier > 0 && query.Filter.MaxEconomicTier < nutrition.TierHigh {
		relaxed := query
		relaxed.Filter.MaxEconomicTier++
		items, err = r.search(ctx, vector, relaxed, k)
		if err != nil {
			return Result{}, err
		}
	}

	if len(items) == 0 {
		return Result{}, fmt.Errorf("rag: no candidates for %q: %w", query.IntentText, nutrition.ErrInsufficientCandidates)
	}
	return Result{Items: items, Partial: len(items) < k}, nil
}

// search runs one store query with over-fetch, applies re-ranking, dedupes
// by ID keeping the highest-ranked occurrence, and truncates to k.
func (r *ConstraintRetriever) search(ctx context.Context, vector []float32, query RetrievalQuery, k int) ([]nutrition.RecipeItem, error) {
	scored, err := r.store.Query(ctx, vector, query.Filter, k*r.cfg.OverFetchFactor)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	for i := range scored {
		scored[i].Score += rankAdjustment(scored[i].Item, query.Preferences, query.Dislikes)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.ID < scored[j].Item.ID
	})

	seen := make(map[string]bool, len(scored))
	items := make([]nutrition.RecipeItem, 0, k)
	for _, s := range scored {
		if seen[s.Item.ID] {
			continue
		}
		seen[s.Item.ID] = true
		items = append(items, s.Item)
		if len(items) == k {
			break
		}
	}
	return items, nil
}

// rankAdjustment computes the preference/dislike delta for one candidate.
// Matching is a case-insensitive substring check over the recipe name and
// ingredient names.
func rankAdjustment(item nutrition.RecipeItem, preferences, dislikes []string) float32 {
	var delta float32
	for _, p := range preferences {
		if mentions(item, p) {
			delta += preferenceBoost
		}
	}
	for _, d := range dislikes {
		if mentions(item, d) {
			delta -= dislikePenalty
		}
	}
	return delta
}

func mentions(item nutrition.RecipeItem, food string) bool {
	food = strings.ToLower(strings.TrimSpace(food))
	if food == "" {
		return false
	}
	if strings.Contains(strings.ToLower(item.Name), food) {
		return true
	}
	for _, ing := range item.Ingredients {
		if strings.Contains(strings.ToLower(ing.Name), food) {
			return true
		}
	}
	return false
}
