package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/qdrant/go-client/qdrant"

	"github.com/nutria-ai/nutria-go/internal/nutrition"
)

// Payload keys used in the Qdrant collection. The filterable attributes are
// stored as top-level payload fields; the full recipe travels as one JSON
// blob so reconstruction never drifts from the domain type.
const (
	payloadRecipe   = "recipe"
	payloadCategory = "category"
	payloadTier     = "economic_tier"
	payloadTags     = "dietary_tags"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w: %w", nutrition.ErrIndexUnavailable, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert stores or updates a batch of recipes with their pre-computed
// embeddings. Items without an embedding are rejected before any write.
func (s *QdrantStore) Upsert(ctx context.Context, items []nutrition.RecipeItem) error {
	points := make([]*qdrant.PointStruct, 0, len(items))
	for _, item := range items {
		if len(item.Embedding) == 0 {
			return fmt.Errorf("qdrant: item %q has no embedding", item.ID)
		}

		blob, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("qdrant: marshal recipe %q: %w", item.ID, err)
		}

		tags := make([]interface{}, 0, len(item.DietaryTags))
		for _, t := range item.DietaryTags {
			tags = append(tags, t)
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(item.ID),
			Vectors: qdrant.NewVectors(item.Embedding...),
			Payload: qdrant.NewValueMap(map[string]interface{}{
				payloadRecipe:   string(blob),
				payloadCategory: string(item.Category),
				payloadTier:     int64(item.EconomicTier),
				payloadTags:     tags,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w: %w", nutrition.ErrIndexUnavailable, err)
	}

	return nil
}

// buildConditions translates a Filter into Qdrant match conditions. All
// conditions are conjunctive.
func buildConditions(f Filter) []*qdrant.Condition {
	var conds []*qdrant.Condition
	if f.Category != "" {
		conds = append(conds, qdrant.NewMatch(payloadCategory, string(f.Category)))
	}
	if f.MaxEconomicTier > 0 {
		conds = append(conds, qdrant.NewRange(payloadTier, &qdrant.Range{
			Lte: qdrant.PtrOf(float64(f.MaxEconomicTier)),
		}))
	}
	for _, tag := range f.RequiredTags {
		conds = append(conds, qdrant.NewMatch(payloadTags, tag))
	}
	return conds
}

// Query performs a filtered cosine similarity search and returns the top-k
// results. Ties in score are broken by ascending item ID so identical
// queries always produce identical orderings.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Scored, error) {
	limit := uint64(topK)
	query := &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if conds := buildConditions(filter); len(conds) > 0 {
		query.Filter = &qdrant.Filter{Must: conds}
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w: %w", nutrition.ErrIndexUnavailable, err)
	}

	scored := make([]Scored, 0, len(results))
	for _, r := range results {
		p := r.Payload
		if p == nil {
			continue
		}
		blob, ok := p[payloadRecipe]
		if !ok {
			continue
		}

		var item nutrition.RecipeItem
		if err := json.Unmarshal([]byte(blob.GetStringValue()), &item); err != nil {
			return nil, fmt.Errorf("qdrant: decode recipe payload for point %s: %w", r.Id.GetUuid(), err)
		}
		scored = append(scored, Scored{Item: item, Score: r.Score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Item.ID < scored[j].Item.ID
	})

	return scored, nil
}

// Delete removes recipes from the collection by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w: %w", nutrition.ErrIndexUnavailable, err)
	}

	return nil
}

// Ping checks reachability of the Qdrant instance. Used by the readiness
// endpoint.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w: %w", nutrition.ErrIndexUnavailable, err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
