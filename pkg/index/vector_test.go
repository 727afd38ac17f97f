package index

import (
	"context"
	"testing"

	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends() map[string]func() VectorBackend {
	return map[string]func() VectorBackend{
		"hnsw":    func() VectorBackend { return NewHNSWBackend(HNSWConfig{}) },
		"chromem": func() VectorBackend { return NewChromemBackend() },
	}
}

func TestVectorBackends(t *testing.T) {
	ctx := context.Background()
	p1 := memory.KeyFor(memory.ScopeProject, "p1")
	p2 := memory.KeyFor(memory.ScopeProject, "p2")

	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			b := newBackend()

			empty, err := b.Search(ctx, p1, []float32{1, 0, 0}, 5)
			require.NoError(t, err)
			assert.Empty(t, empty)

			require.NoError(t, b.Add(ctx, p1, "x", []float32{1, 0, 0}))
			require.NoError(t, b.Add(ctx, p1, "y", []float32{0, 1, 0}))
			require.NoError(t, b.Add(ctx, p1, "xy", []float32{1, 1, 0}))
			require.NoError(t, b.Add(ctx, p2, "other", []float32{1, 0, 0}))
			assert.Equal(t, 4, b.Len())

			scores, err := b.Search(ctx, p1, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			assert.NotContains(t, scores, "other")
			assert.InDelta(t, 1.0, scores["x"], 1e-4)
			assert.InDelta(t, 0.7071, scores["xy"], 1e-3)
			for _, s := range scores {
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 1.0)
			}

			top, err := b.Search(ctx, p1, []float32{1, 0, 0}, 1)
			require.NoError(t, err)
			assert.Len(t, top, 1)
			assert.Contains(t, top, "x")

			_, err = b.Search(ctx, p1, []float32{1, 0}, 1)
			assert.ErrorIs(t, err, ErrDimensionMismatch)
			assert.ErrorIs(t, b.Add(ctx, p1, "bad", []float32{1, 0}), ErrDimensionMismatch)

			require.NoError(t, b.Remove(ctx, "x"))
			scores, err = b.Search(ctx, p1, []float32{1, 0, 0}, 10)
			require.NoError(t, err)
			assert.NotContains(t, scores, "x")
			assert.Equal(t, 3, b.Len())

			require.NoError(t, b.Remove(ctx, "missing"))
		})
	}
}

func TestVectorBackends_RemoveLastThenReuse(t *testing.T) {
	ctx := context.Background()
	key := memory.KeyFor(memory.ScopeSession, "s1")

	for name, newBackend := range backends() {
		t.Run(name, func(t *testing.T) {
			b := newBackend()
			require.NoError(t, b.Add(ctx, key, "only", []float32{1, 0}))
			require.NoError(t, b.Remove(ctx, "only"))

			scores, err := b.Search(ctx, key, []float32{1, 0}, 3)
			require.NoError(t, err)
			assert.Empty(t, scores)

			// The partition forgets its dimension once empty.
			require.NoError(t, b.Add(ctx, key, "wide", []float32{0, 0, 1}))
			scores, err = b.Search(ctx, key, []float32{0, 0, 1}, 3)
			require.NoError(t, err)
			assert.Contains(t, scores, "wide")
		})
	}
}
