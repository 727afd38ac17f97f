package index

import (
	"context"
	"errors"

	"github.com/goclaw/mnemo/pkg/memory"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// vectors already filed under the same key.
var ErrDimensionMismatch = errors.New("index: vector dimension mismatch")

// VectorBackend stores vectors partitioned by scope key and answers nearest
// neighbour queries with cosine similarity in [0,1].
type VectorBackend interface {
	Add(ctx context.Context, key memory.ScopeKey, id string, vec []float32) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, key memory.ScopeKey, vec []float32, limit int) (map[string]float64, error)
	Len() int
}

func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
