// Package index holds the lexical and vector indexes that back memory
// retrieval. Both are partitioned by scope key so one owner's corpus never
// influences another owner's scores.
package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/memory"
)

// Index combines a BM25 index with a vector backend. Only active memories
// are kept; upserting anything else removes it.
type Index struct {
	lexical *BM25Index
	vectors VectorBackend
}

var _ memory.Index = (*Index)(nil)

// New creates an Index from explicit parts. A nil backend disables vector
// scoring.
func New(lexical *BM25Index, vectors VectorBackend) *Index {
	if lexical == nil {
		lexical = NewBM25Index(DefaultK1, DefaultB)
	}
	return &Index{lexical: lexical, vectors: vectors}
}

// NewFromConfig builds the index selected by cfg.
func NewFromConfig(cfg config.IndexConfig) (*Index, error) {
	lexical := NewBM25Index(cfg.BM25.K1, cfg.BM25.B)
	switch strings.ToLower(cfg.Vector) {
	case "", "hnsw":
		return New(lexical, NewHNSWBackend(HNSWConfig{M: cfg.HNSW.M, EfSearch: cfg.HNSW.EfSearch})), nil
	case "chromem":
		return New(lexical, NewChromemBackend()), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector)
	}
}

// LexicalScores returns raw BM25 scores under key.
func (i *Index) LexicalScores(_ context.Context, key memory.ScopeKey, query string, limit int) (map[string]float64, error) {
	return i.lexical.Search(key, query, limit), nil
}

// VectorScores returns cosine similarities under key.
func (i *Index) VectorScores(ctx context.Context, key memory.ScopeKey, vector []float32, limit int) (map[string]float64, error) {
	if i.vectors == nil || len(vector) == 0 {
		return map[string]float64{}, nil
	}
	return i.vectors.Search(ctx, key, vector, limit)
}

// Upsert indexes an active memory under its current key, or removes it if
// it is no longer active.
func (i *Index) Upsert(ctx context.Context, m *memory.Memory) error {
	if m.Status != memory.StatusActive {
		return i.Remove(ctx, m.ID)
	}
	key := m.Key()
	i.lexical.Index(key, m.ID, m.Content)
	if i.vectors == nil {
		return nil
	}
	if len(m.Vector) == 0 {
		return i.vectors.Remove(ctx, m.ID)
	}
	if err := i.vectors.Add(ctx, key, m.ID, m.Vector); err != nil {
		return fmt.Errorf("index vector for %s: %w", m.ID, err)
	}
	return nil
}

// Remove drops id from both indexes.
func (i *Index) Remove(ctx context.Context, id string) error {
	i.lexical.Remove(id)
	if i.vectors == nil {
		return nil
	}
	return i.vectors.Remove(ctx, id)
}

// Stats reports index sizes.
func (i *Index) Stats() (documents, vectors int) {
	documents = i.lexical.Len()
	if i.vectors != nil {
		vectors = i.vectors.Len()
	}
	return documents, vectors
}
