package index

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/goclaw/mnemo/pkg/memory"
	chromem "github.com/philippgille/chromem-go"
)

// ChromemBackend stores vectors in an embedded chromem-go database with
// one collection per scope key.
type ChromemBackend struct {
	mu          sync.Mutex
	db          *chromem.DB
	collections map[memory.ScopeKey]*chromem.Collection
	dims        map[memory.ScopeKey]int
	keys        map[string]memory.ScopeKey
}

var _ VectorBackend = (*ChromemBackend)(nil)

// NewChromemBackend creates an in-memory chromem database.
func NewChromemBackend() *ChromemBackend {
	return &ChromemBackend{
		db:          chromem.NewDB(),
		collections: make(map[memory.ScopeKey]*chromem.Collection),
		dims:        make(map[memory.ScopeKey]int),
		keys:        make(map[string]memory.ScopeKey),
	}
}

// collectionName hashes the key so owner ids with arbitrary characters
// make valid collection names.
func collectionName(key memory.ScopeKey) string {
	sum := sha1.Sum([]byte(key))
	return string(key.Scope()) + "_" + hex.EncodeToString(sum[:8])
}

func (c *ChromemBackend) collectionLocked(key memory.ScopeKey) (*chromem.Collection, error) {
	if col, ok := c.collections[key]; ok {
		return col, nil
	}
	// Vectors are always supplied, so no embedding func is needed.
	col, err := c.db.GetOrCreateCollection(collectionName(key), map[string]string{"scope_key": string(key)}, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection for %s: %w", key, err)
	}
	c.collections[key] = col
	return col, nil
}

// Add inserts or replaces the vector for id under key.
func (c *ChromemBackend) Add(ctx context.Context, key memory.ScopeKey, id string, vec []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.removeLocked(ctx, id); err != nil {
		return err
	}
	if dim, ok := c.dims[key]; ok && dim != len(vec) {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrDimensionMismatch, key, dim, len(vec))
	}
	col, err := c.collectionLocked(key)
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        id,
		Embedding: append([]float32(nil), vec...),
		Metadata:  map[string]string{"scope": string(key.Scope())},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document %s: %w", id, err)
	}
	c.dims[key] = len(vec)
	c.keys[id] = key
	return nil
}

// Remove deletes id from its collection.
func (c *ChromemBackend) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, id)
}

func (c *ChromemBackend) removeLocked(ctx context.Context, id string) error {
	key, ok := c.keys[id]
	if !ok {
		return nil
	}
	col := c.collections[key]
	if col != nil {
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
		if col.Count() == 0 {
			delete(c.dims, key)
		}
	}
	delete(c.keys, id)
	return nil
}

// Search returns up to limit neighbours of vec under key.
func (c *ChromemBackend) Search(ctx context.Context, key memory.ScopeKey, vec []float32, limit int) (map[string]float64, error) {
	c.mu.Lock()
	col := c.collections[key]
	dim, hasDim := c.dims[key]
	c.mu.Unlock()

	if col == nil || !hasDim {
		return map[string]float64{}, nil
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrDimensionMismatch, key, dim, len(vec))
	}
	// chromem rejects nResults larger than the collection.
	n := col.Count()
	if n == 0 {
		return map[string]float64{}, nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	results, err := col.QueryEmbedding(ctx, append([]float32(nil), vec...), limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", key, err)
	}
	out := make(map[string]float64, len(results))
	for _, r := range results {
		out[r.ID] = clampSimilarity(float64(r.Similarity))
	}
	return out, nil
}

// Len returns the number of indexed vectors.
func (c *ChromemBackend) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}
