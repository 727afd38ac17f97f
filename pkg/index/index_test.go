package index

import (
	"context"
	"testing"
	"time"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(id, content string, vec []float32) *memory.Memory {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return &memory.Memory{
		ID:             id,
		Content:        content,
		Type:           memory.TypeEpisodic,
		Scope:          memory.ScopeSession,
		Owners:         memory.Owners{SessionID: "s1", ProjectID: "p1", UserID: "u1"},
		Importance:     0.5,
		Status:         memory.StatusActive,
		CreatedAt:      now,
		LastAccessedAt: now,
		Vector:         vec,
	}
}

func TestNewFromConfig(t *testing.T) {
	for _, backend := range []string{"hnsw", "chromem"} {
		idx, err := NewFromConfig(config.IndexConfig{
			Vector: backend,
			BM25:   config.BM25Config{K1: 1.2, B: 0.75},
			HNSW:   config.HNSWConfig{M: 8, EfSearch: 20},
		})
		require.NoError(t, err, backend)
		assert.NotNil(t, idx.vectors)
	}

	_, err := NewFromConfig(config.IndexConfig{Vector: "faiss"})
	assert.Error(t, err)
}

func TestIndex_UpsertFollowsStatusAndKey(t *testing.T) {
	ctx := context.Background()
	idx := New(nil, NewHNSWBackend(HNSWConfig{}))
	session := memory.KeyFor(memory.ScopeSession, "s1")
	project := memory.KeyFor(memory.ScopeProject, "p1")

	m := sample("m1", "postgres connection pool", []float32{1, 0, 0})
	require.NoError(t, idx.Upsert(ctx, m))

	lex, err := idx.LexicalScores(ctx, session, "postgres", 10)
	require.NoError(t, err)
	assert.Contains(t, lex, "m1")
	vec, err := idx.VectorScores(ctx, session, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Contains(t, vec, "m1")

	m.Scope = memory.ScopeProject
	require.NoError(t, idx.Upsert(ctx, m))
	lex, _ = idx.LexicalScores(ctx, session, "postgres", 10)
	assert.Empty(t, lex)
	lex, _ = idx.LexicalScores(ctx, project, "postgres", 10)
	assert.Contains(t, lex, "m1")

	m.Status = memory.StatusArchived
	require.NoError(t, idx.Upsert(ctx, m))
	docs, vectors := idx.Stats()
	assert.Zero(t, docs)
	assert.Zero(t, vectors)
}

func TestIndex_MemoryWithoutVector(t *testing.T) {
	ctx := context.Background()
	idx := New(nil, NewChromemBackend())
	session := memory.KeyFor(memory.ScopeSession, "s1")

	require.NoError(t, idx.Upsert(ctx, sample("m1", "redis lock ttl", nil)))
	vec, err := idx.VectorScores(ctx, session, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, vec)

	vec, err = idx.VectorScores(ctx, session, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, vec)

	lex, err := idx.LexicalScores(ctx, session, "redis", 10)
	require.NoError(t, err)
	assert.Contains(t, lex, "m1")
}

func TestIndex_LexicalOnly(t *testing.T) {
	ctx := context.Background()
	idx := New(NewBM25Index(DefaultK1, DefaultB), nil)
	require.NoError(t, idx.Upsert(ctx, sample("m1", "cobra commands", []float32{1})))
	vec, err := idx.VectorScores(ctx, memory.KeyFor(memory.ScopeSession, "s1"), []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, vec)
	require.NoError(t, idx.Remove(ctx, "m1"))
}
