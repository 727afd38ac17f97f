package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Composite(t *testing.T) {
	p := DefaultParams()

	hybrid := p.Composite(SubScores{Lexical: 0.8, Vector: 0.6, HasVector: true, Strength: 0.5})
	assert.InDelta(t, 0.62, hybrid, 1e-12)

	lexical := p.Composite(SubScores{Lexical: 0.8, Strength: 0.5})
	assert.InDelta(t, 0.68, lexical, 1e-12)
}

func TestNormalizeLexical(t *testing.T) {
	got := normalizeLexical(map[string]float64{"a": 4, "b": 2, "c": 0})
	assert.Equal(t, map[string]float64{"a": 1, "b": 0.5, "c": 0}, got)
	assert.Empty(t, normalizeLexical(nil))
}

func newTestEngine(store *fakeStore, index *fakeIndex, embedder Embedder) *RetrievalEngine {
	e := NewRetrievalEngine(index, store, embedder, NewDecayModel(nil), nil)
	e.now = func() time.Time { return t0 }
	return e
}

func TestRetrievalEngine_Hybrid(t *testing.T) {
	store, index := newFakeStore(), newFakeIndex()
	a := newMemory("a", ScopeSession, "docker compose")
	a.Vector = []float32{1, 0}
	b := newMemory("b", ScopeSession, "docker docker images")
	b.Vector = []float32{0, 1}
	seed(store, index, a, b)

	embedder := &fakeEmbedder{vectors: map[string][]float32{"docker": {1, 0}}}
	e := newTestEngine(store, index, embedder)

	key := KeyFor(ScopeSession, "s1")
	lists, strategy, err := e.Retrieve(context.Background(), "docker", []ScopeKey{key}, DefaultParams(), StrategyAuto, 10)
	require.NoError(t, err)
	assert.Equal(t, StrategyHybrid, strategy)
	require.Len(t, lists, 1)
	require.Len(t, lists[0].Results, 2)

	top := lists[0].Results[0]
	assert.Equal(t, "a", top.Memory.ID)
	assert.True(t, top.Scores.HasVector)
	// lexical 0.5, vector 1, strength 0.5, session weight 1.5
	assert.InDelta(t, (0.3*0.5+0.3*1+0.4*0.5)*1.5, top.Score, 1e-9)

	second := lists[0].Results[1]
	assert.InDelta(t, 1.0, second.Scores.Lexical, 1e-12)
	assert.InDelta(t, 0.0, second.Scores.Vector, 1e-12)
}

func TestRetrievalEngine_DegradesToLexical(t *testing.T) {
	store, index := newFakeStore(), newFakeIndex()
	a := newMemory("a", ScopeProject, "sqlite wal mode")
	a.Vector = []float32{1, 0}
	seed(store, index, a)
	key := KeyFor(ScopeProject, "p1")

	embedders := map[string]Embedder{
		"no provider": nil,
		"unavailable": &fakeEmbedder{err: ErrEmbeddingUnavailable},
		"failing":     &fakeEmbedder{err: errors.New("connection refused")},
	}
	for name, emb := range embedders {
		t.Run(name, func(t *testing.T) {
			e := newTestEngine(store, index, emb)
			lists, strategy, err := e.Retrieve(context.Background(), "sqlite", []ScopeKey{key}, DefaultParams(), StrategyHybrid, 10)
			require.NoError(t, err)
			assert.Equal(t, StrategyLexical, strategy)
			require.Len(t, lists[0].Results, 1)
			r := lists[0].Results[0]
			assert.False(t, r.Scores.HasVector)
			assert.InDelta(t, 0.6*1+0.4*0.5, r.Score, 1e-9)
		})
	}
}

func TestRetrievalEngine_ExcludesInactive(t *testing.T) {
	store, index := newFakeStore(), newFakeIndex()
	seed(store, index, newMemory("a", ScopeUser, "vim bindings"), newMemory("b", ScopeUser, "vim plugins"))
	// The index still holds b, but the record is archived.
	_, err := store.UpdateMemory(context.Background(), "b", func(m *Memory) error { return Transit(m, StatusArchived) })
	require.NoError(t, err)

	e := newTestEngine(store, index, nil)
	lists, _, err := e.Retrieve(context.Background(), "vim", []ScopeKey{KeyFor(ScopeUser, "u1")}, DefaultParams(), StrategyAuto, 10)
	require.NoError(t, err)
	require.Len(t, lists[0].Results, 1)
	assert.Equal(t, "a", lists[0].Results[0].Memory.ID)
}

func TestRetrievalEngine_TieBreaksOnRecencyThenID(t *testing.T) {
	store, index := newFakeStore(), newFakeIndex()
	older := newMemory("a", ScopeSession, "retry policy")
	newer := newMemory("z", ScopeSession, "retry policy")
	newer.LastAccessedAt = t0.Add(-time.Minute)
	older.LastAccessedAt = t0.Add(-2 * time.Minute)
	newer.Importance, older.Importance = 0, 0
	same := newMemory("m", ScopeSession, "retry policy")
	same.LastAccessedAt = newer.LastAccessedAt
	same.Importance = 0
	seed(store, index, older, newer, same)

	e := newTestEngine(store, index, nil)
	lists, _, err := e.Retrieve(context.Background(), "retry", []ScopeKey{KeyFor(ScopeSession, "s1")}, DefaultParams(), StrategyLexical, 10)
	require.NoError(t, err)

	var ids []string
	for _, r := range lists[0].Results {
		ids = append(ids, r.Memory.ID)
	}
	assert.Equal(t, []string{"m", "z", "a"}, ids)
}

func TestRetrievalEngine_IndexFailure(t *testing.T) {
	store, index := newFakeStore(), newFakeIndex()
	seed(store, index, newMemory("a", ScopeSession, "make targets"))
	bad := KeyFor(ScopeProject, "p1")
	index.failKeys[bad] = errors.New("index offline")

	e := newTestEngine(store, index, nil)
	_, _, err := e.Retrieve(context.Background(), "make", []ScopeKey{KeyFor(ScopeSession, "s1"), bad}, DefaultParams(), StrategyAuto, 10)
	var iu *IndexUnavailableError
	require.ErrorAs(t, err, &iu)
	assert.Equal(t, bad, iu.Key)
}

func TestRetrievalEngine_FusedReturnsBothLists(t *testing.T) {
	store, index := newFakeStore(), newFakeIndex()
	a := newMemory("a", ScopeSession, "grpc health")
	a.Vector = []float32{1, 0}
	seed(store, index, a)
	embedder := &fakeEmbedder{vectors: map[string][]float32{"grpc": {1, 0}}}

	e := newTestEngine(store, index, embedder)
	lists, strategy, err := e.Retrieve(context.Background(), "grpc", []ScopeKey{KeyFor(ScopeSession, "s1")}, DefaultParams(), StrategyFused, 5)
	require.NoError(t, err)
	assert.Equal(t, StrategyFused, strategy)
	require.Len(t, lists, 2)
	assert.Equal(t, StrategyHybrid, lists[0].Strategy)
	assert.Equal(t, StrategyLexical, lists[1].Strategy)
}

func TestRetrievalEngine_Limit(t *testing.T) {
	store, index := newFakeStore(), newFakeIndex()
	for _, id := range []string{"a", "b", "c", "d"} {
		seed(store, index, newMemory(id, ScopeSession, "lint"))
	}
	e := newTestEngine(store, index, nil)
	lists, _, err := e.Retrieve(context.Background(), "lint", []ScopeKey{KeyFor(ScopeSession, "s1")}, DefaultParams(), StrategyAuto, 2)
	require.NoError(t, err)
	assert.Len(t, lists[0].Results, 2)
}
