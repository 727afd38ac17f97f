package index

import (
	"testing"

	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"drops stop words", "The build is broken", []string{"build", "broken"}},
		{"splits punctuation", "go-redis/v9, badger!", []string{"go", "redis", "v9", "badger"}},
		{"han runes", "内存abc", []string{"内", "存", "abc"}},
		{"empty", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestBM25Index_Search(t *testing.T) {
	key := memory.KeyFor(memory.ScopeProject, "p1")
	idx := NewBM25Index(0, -1)
	idx.Index(key, "a", "deploy the service with docker compose")
	idx.Index(key, "b", "docker docker docker images")
	idx.Index(key, "c", "write unit tests")

	scores := idx.Search(key, "docker", 10)
	require.Len(t, scores, 2)
	assert.Greater(t, scores["b"], scores["a"])
	assert.NotContains(t, scores, "c")

	top := idx.Search(key, "docker", 1)
	assert.Len(t, top, 1)
	assert.Contains(t, top, "b")

	assert.Empty(t, idx.Search(key, "the", 10))
}

func TestBM25Index_PartitionsAreIsolated(t *testing.T) {
	p1 := memory.KeyFor(memory.ScopeProject, "p1")
	p2 := memory.KeyFor(memory.ScopeProject, "p2")
	idx := NewBM25Index(DefaultK1, DefaultB)
	idx.Index(p1, "a", "kubernetes rollout")
	idx.Index(p2, "b", "kubernetes rollout")

	assert.Equal(t, []string{"a"}, keys(idx.Search(p1, "kubernetes", 10)))
	assert.Equal(t, []string{"b"}, keys(idx.Search(p2, "kubernetes", 10)))

	// Adding noise to p2 must not change p1's scores.
	before := idx.Search(p1, "kubernetes", 10)["a"]
	idx.Index(p2, "c", "kubernetes kubernetes cluster")
	assert.Equal(t, before, idx.Search(p1, "kubernetes", 10)["a"])
}

func TestBM25Index_ReindexMovesDocument(t *testing.T) {
	session := memory.KeyFor(memory.ScopeSession, "s1")
	project := memory.KeyFor(memory.ScopeProject, "p1")
	idx := NewBM25Index(DefaultK1, DefaultB)
	idx.Index(session, "a", "sqlite migrations")
	idx.Index(project, "a", "sqlite migrations")

	assert.Empty(t, idx.Search(session, "sqlite", 10))
	assert.Contains(t, idx.Search(project, "sqlite", 10), "a")
	assert.Equal(t, 1, idx.Len())

	idx.Remove("a")
	assert.Empty(t, idx.Search(project, "sqlite", 10))
	assert.Equal(t, 0, idx.Len())
	idx.Remove("missing")
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
