package memory

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const weightTolerance = 1e-6

// RetrievalWeights weights the hybrid composite score. The three weights
// sum to 1.
type RetrievalWeights struct {
	Lexical  float64 `json:"lexical"`
	Vector   float64 `json:"vector"`
	Strength float64 `json:"strength"`
}

// Sum returns the total weight.
func (w RetrievalWeights) Sum() float64 {
	return w.Lexical + w.Vector + w.Strength
}

// Normalize rescales the weights to sum to 1.
func (w RetrievalWeights) Normalize() RetrievalWeights {
	s := w.Sum()
	if s <= 0 {
		return w
	}
	return RetrievalWeights{Lexical: w.Lexical / s, Vector: w.Vector / s, Strength: w.Strength / s}
}

// LexicalWeights weights the lexical-only composite score.
type LexicalWeights struct {
	Lexical  float64 `json:"lexical"`
	Strength float64 `json:"strength"`
}

// Params is one complete set of tunable ranking parameters.
type Params struct {
	Retrieval RetrievalWeights  `json:"retrieval_weights"`
	Lexical   LexicalWeights    `json:"lexical_weights"`
	Scopes    map[Scope]float64 `json:"scope_weights"`
}

// DefaultParams returns the compiled-in ranking parameters.
func DefaultParams() Params {
	return Params{
		Retrieval: RetrievalWeights{Lexical: 0.3, Vector: 0.3, Strength: 0.4},
		Lexical:   LexicalWeights{Lexical: 0.6, Strength: 0.4},
		Scopes: map[Scope]float64{
			ScopeSession: 1.5,
			ScopeProject: 1.0,
			ScopeUser:    0.7,
		},
	}
}

// ScopeWeight returns the multiplier for s, 1 when unset.
func (p Params) ScopeWeight(s Scope) float64 {
	if w, ok := p.Scopes[s]; ok {
		return w
	}
	return 1
}

func (p Params) clone() Params {
	c := p
	c.Scopes = make(map[Scope]float64, len(p.Scopes))
	for s, w := range p.Scopes {
		c.Scopes[s] = w
	}
	return c
}

// Validate checks sums and signs. It does not apply evolution bounds.
func (p Params) Validate() error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	r := p.Retrieval
	if !finite(r.Lexical) || !finite(r.Vector) || !finite(r.Strength) || r.Lexical < 0 || r.Vector < 0 || r.Strength < 0 {
		return &ConfigurationError{Key: "retrieval_weights", Reason: fmt.Sprintf("invalid weights %+v", r)}
	}
	if math.Abs(r.Sum()-1) > weightTolerance {
		return &ConfigurationError{Key: "retrieval_weights", Reason: fmt.Sprintf("sum %v, want 1", r.Sum())}
	}
	l := p.Lexical
	if !finite(l.Lexical) || !finite(l.Strength) || l.Lexical < 0 || l.Strength < 0 ||
		math.Abs(l.Lexical+l.Strength-1) > weightTolerance {
		return &ConfigurationError{Key: "lexical_weights", Reason: fmt.Sprintf("invalid weights %+v", l)}
	}
	for _, s := range Scopes {
		w, ok := p.Scopes[s]
		if !ok || !finite(w) || w <= 0 {
			return &ConfigurationError{Key: "scope_weights", Reason: fmt.Sprintf("%s weight %v must be > 0", s, w)}
		}
	}
	return nil
}

// HistoryEntry is a superseded parameter set.
type HistoryEntry struct {
	Version   uint64    `json:"version"`
	Params    Params    `json:"params"`
	UpdatedAt time.Time `json:"updated_at"`
	Reason    string    `json:"reason,omitempty"`
}

// EvolutionState is an immutable, versioned snapshot of the ranking
// parameters. A new value replaces the old one on every commit.
type EvolutionState struct {
	Params    Params    `json:"params"`
	Version   uint64    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`

	// LogCursor is the id of the last retrieval log entry consumed by the
	// evolution loop.
	LogCursor string `json:"log_cursor,omitempty"`

	// History holds prior parameter sets, newest first.
	History []HistoryEntry `json:"history,omitempty"`
}

// DefaultState returns version 0 with default parameters.
func DefaultState() *EvolutionState {
	return &EvolutionState{Params: DefaultParams()}
}

// next builds the successor of s carrying params, pushing s onto the
// bounded history.
func (s *EvolutionState) next(params Params, cursor, reason string, now time.Time, historySize int) *EvolutionState {
	hist := make([]HistoryEntry, 0, historySize)
	hist = append(hist, HistoryEntry{Version: s.Version, Params: s.Params.clone(), UpdatedAt: s.UpdatedAt, Reason: reason})
	for _, h := range s.History {
		if len(hist) >= historySize {
			break
		}
		hist = append(hist, h)
	}
	return &EvolutionState{
		Params:    params.clone(),
		Version:   s.Version + 1,
		UpdatedAt: now,
		LogCursor: cursor,
		History:   hist,
	}
}

// advance builds a successor of s that only moves the log cursor. History
// is kept as is so Rollback still restores the last parameter change.
func (s *EvolutionState) advance(cursor string, now time.Time) *EvolutionState {
	next := *s
	next.Params = s.Params.clone()
	next.Version = s.Version + 1
	next.UpdatedAt = now
	next.LogCursor = cursor
	return &next
}

// StateStore holds the live EvolutionState snapshot and persists commits.
// Readers get an immutable snapshot; CompareAndSwap is the only write path.
type StateStore struct {
	store   Store
	logger  hubLogger
	current atomic.Pointer[EvolutionState]
	mu      sync.Mutex
}

// NewStateStore creates a state store backed by store.
func NewStateStore(store Store, logger hubLogger) *StateStore {
	if logger == nil {
		logger = nopLogger{}
	}
	s := &StateStore{store: store, logger: logger}
	s.current.Store(DefaultState())
	return s
}

// Load reads the persisted state. A malformed row is logged and replaced by
// defaults in memory; the row itself is left for the next commit to fix.
func (s *StateStore) Load(ctx context.Context) error {
	st, err := s.store.LoadState(ctx)
	if err != nil {
		return fmt.Errorf("load evolution state: %w", err)
	}
	if st == nil {
		return nil
	}
	if err := st.Params.Validate(); err != nil {
		s.logger.Error("Persisted evolution state is malformed, using defaults",
			"version", st.Version, "error", err)
		fallback := DefaultState()
		fallback.Version = st.Version
		fallback.LogCursor = st.LogCursor
		fallback.History = st.History
		s.current.Store(fallback)
		return nil
	}
	s.current.Store(st)
	return nil
}

// Snapshot returns the current state. Callers must not modify it.
func (s *StateStore) Snapshot() *EvolutionState {
	return s.current.Load()
}

// CompareAndSwap persists next if the live version equals expected and
// then publishes it. next.Version must be expected+1.
func (s *StateStore) CompareAndSwap(ctx context.Context, expected uint64, next *EvolutionState) error {
	if next == nil || next.Version != expected+1 {
		return &InvariantViolation{Invariant: "state version increments by one", Detail: fmt.Sprintf("expected %d", expected)}
	}
	if err := next.Params.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.current.Load(); cur.Version != expected {
		return fmt.Errorf("%w: have %d, expected %d", ErrStateConflict, cur.Version, expected)
	}
	if err := s.store.SwapState(ctx, expected, next); err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}
