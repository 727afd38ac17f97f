package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"
	"github.com/goclaw/mnemo/pkg/memory"
)

// HNSWConfig tunes the graphs.
type HNSWConfig struct {
	M        int
	EfSearch int
}

type hnswPartition struct {
	graph *hnsw.Graph[string]
	dim   int
}

// HNSWBackend keeps one coder/hnsw graph per scope key. The graphs are not
// safe for concurrent use, so a single mutex guards them.
type HNSWBackend struct {
	mu         sync.Mutex
	cfg        HNSWConfig
	partitions map[memory.ScopeKey]*hnswPartition
	keys       map[string]memory.ScopeKey
}

var _ VectorBackend = (*HNSWBackend)(nil)

// NewHNSWBackend creates an empty backend.
func NewHNSWBackend(cfg HNSWConfig) *HNSWBackend {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 64
	}
	return &HNSWBackend{
		cfg:        cfg,
		partitions: make(map[memory.ScopeKey]*hnswPartition),
		keys:       make(map[string]memory.ScopeKey),
	}
}

func (h *HNSWBackend) newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = h.cfg.M
	g.EfSearch = h.cfg.EfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Add inserts or replaces the vector for id under key.
func (h *HNSWBackend) Add(_ context.Context, key memory.ScopeKey, id string, vec []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(id)
	p := h.partitions[key]
	if p == nil {
		p = &hnswPartition{graph: h.newGraph(), dim: len(vec)}
		h.partitions[key] = p
	}
	if len(vec) != p.dim {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrDimensionMismatch, key, p.dim, len(vec))
	}
	p.graph.Add(hnsw.MakeNode(id, append([]float32(nil), vec...)))
	h.keys[id] = key
	return nil
}

// Remove deletes id from its graph.
func (h *HNSWBackend) Remove(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
	return nil
}

func (h *HNSWBackend) removeLocked(id string) {
	key, ok := h.keys[id]
	if !ok {
		return
	}
	delete(h.keys, id)
	p := h.partitions[key]
	if p == nil {
		return
	}
	// Deleting the last node leaves the graph without an entry point, so
	// drop the partition instead.
	if p.graph.Len() <= 1 {
		delete(h.partitions, key)
		return
	}
	p.graph.Delete(id)
}

// Search returns up to limit neighbours of vec under key with their cosine
// similarity.
func (h *HNSWBackend) Search(_ context.Context, key memory.ScopeKey, vec []float32, limit int) (map[string]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := h.partitions[key]
	if p == nil || p.graph.Len() == 0 {
		return map[string]float64{}, nil
	}
	if len(vec) != p.dim {
		return nil, fmt.Errorf("%w: %s expects %d, got %d", ErrDimensionMismatch, key, p.dim, len(vec))
	}
	if limit <= 0 || limit > p.graph.Len() {
		limit = p.graph.Len()
	}

	out := make(map[string]float64, limit)
	for _, n := range p.graph.Search(vec, limit) {
		out[n.Key] = clampSimilarity(memory.Cosine(vec, n.Value))
	}
	return out, nil
}

// Len returns the number of indexed vectors.
func (h *HNSWBackend) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.keys)
}
