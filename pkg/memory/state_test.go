package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(p *Params)
		key    string
	}{
		{"retrieval sum", func(p *Params) { p.Retrieval.Strength = 0.5 }, "retrieval_weights"},
		{"negative weight", func(p *Params) { p.Retrieval = RetrievalWeights{Lexical: -0.1, Vector: 0.7, Strength: 0.4} }, "retrieval_weights"},
		{"lexical sum", func(p *Params) { p.Lexical.Lexical = 0.9 }, "lexical_weights"},
		{"missing scope", func(p *Params) { delete(p.Scopes, ScopeUser) }, "scope_weights"},
		{"zero scope", func(p *Params) { p.Scopes[ScopeSession] = 0 }, "scope_weights"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			var ce *ConfigurationError
			require.ErrorAs(t, p.Validate(), &ce)
			assert.Equal(t, tt.key, ce.Key)
		})
	}
}

func TestRetrievalWeights_Normalize(t *testing.T) {
	w := RetrievalWeights{Lexical: 1, Vector: 1, Strength: 2}.Normalize()
	assert.InDelta(t, 1.0, w.Sum(), 1e-12)
	assert.InDelta(t, 0.5, w.Strength, 1e-12)
}

func TestEvolutionState_NextBoundsHistory(t *testing.T) {
	s := DefaultState()
	for i := 0; i < 5; i++ {
		s = s.next(DefaultParams(), "", "test", t0, 3)
	}
	assert.Equal(t, uint64(5), s.Version)
	require.Len(t, s.History, 3)
	assert.Equal(t, uint64(4), s.History[0].Version)
	assert.Equal(t, uint64(2), s.History[2].Version)
}

func TestStateStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ss := NewStateStore(store, nil)
	require.NoError(t, ss.Load(ctx))
	assert.Equal(t, uint64(0), ss.Snapshot().Version)

	next := ss.Snapshot().next(DefaultParams(), "c1", "test", t0, 10)
	require.NoError(t, ss.CompareAndSwap(ctx, 0, next))
	assert.Equal(t, uint64(1), ss.Snapshot().Version)
	assert.Equal(t, "c1", store.state.LogCursor)

	// A stale writer loses.
	stale := DefaultState().next(DefaultParams(), "c2", "test", t0, 10)
	assert.ErrorIs(t, ss.CompareAndSwap(ctx, 0, stale), ErrStateConflict)

	var iv *InvariantViolation
	skip := &EvolutionState{Params: DefaultParams(), Version: 5}
	assert.ErrorAs(t, ss.CompareAndSwap(ctx, 1, skip), &iv)

	bad := ss.Snapshot().next(Params{}, "", "test", t0, 10)
	var ce *ConfigurationError
	assert.ErrorAs(t, ss.CompareAndSwap(ctx, 1, bad), &ce)
	assert.Equal(t, uint64(1), ss.Snapshot().Version)
}

func TestStateStore_ConflictWithOtherProcess(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	a := NewStateStore(store, nil)
	b := NewStateStore(store, nil)

	require.NoError(t, a.CompareAndSwap(ctx, 0, a.Snapshot().next(DefaultParams(), "", "a", t0, 10)))

	// b never reloaded, so its snapshot is stale and the store refuses.
	err := b.CompareAndSwap(ctx, 0, b.Snapshot().next(DefaultParams(), "", "b", t0, 10))
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, uint64(0), b.Snapshot().Version)

	require.NoError(t, b.Load(ctx))
	assert.Equal(t, uint64(1), b.Snapshot().Version)
}

func TestStateStore_LoadMalformedFallsBack(t *testing.T) {
	store := newFakeStore()
	bad := DefaultParams()
	bad.Retrieval.Lexical = 5
	store.state = &EvolutionState{Params: bad, Version: 7, LogCursor: "cur"}

	ss := NewStateStore(store, nil)
	require.NoError(t, ss.Load(context.Background()))
	snap := ss.Snapshot()
	assert.Equal(t, uint64(7), snap.Version)
	assert.Equal(t, "cur", snap.LogCursor)
	assert.Equal(t, DefaultParams(), snap.Params)
}
