package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore is an in-memory Store with per-id failure injection.
type fakeStore struct {
	mu       sync.Mutex
	memories map[string]*Memory
	logs     map[string]*RetrievalLogEntry
	queue    map[string]*QueueItem
	state    *EvolutionState

	failUpdate map[string]error
	failAppend error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memories:   make(map[string]*Memory),
		logs:       make(map[string]*RetrievalLogEntry),
		queue:      make(map[string]*QueueItem),
		failUpdate: make(map[string]error),
	}
}

func (s *fakeStore) PutMemory(_ context.Context, m *Memory) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[m.ID] = m.Clone()
	return nil
}

func (s *fakeStore) GetMemory(_ context.Context, id string) (*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *fakeStore) UpdateMemory(_ context.Context, id string, fn func(*Memory) error) (*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpdate[id]; err != nil {
		return nil, err
	}
	m, ok := s.memories[id]
	if !ok {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	next := m.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	s.memories[id] = next
	return next.Clone(), nil
}

func (s *fakeStore) ListMemories(_ context.Context, f Filter) ([]*Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Memory
	for _, m := range s.memories {
		if f.Match(m) {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) AppendLog(_ context.Context, e *RetrievalLogEntry) error {
	if s.failAppend != nil {
		return s.failAppend
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.logs[e.ID] = &c
	return nil
}

func (s *fakeStore) GetLog(_ context.Context, id string) (*RetrievalLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.logs[id]
	if !ok {
		return nil, fmt.Errorf("log %s: %w", id, ErrNotFound)
	}
	c := *e
	return &c, nil
}

func (s *fakeStore) UpdateLog(_ context.Context, id string, fn func(*RetrievalLogEntry) error) (*RetrievalLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.logs[id]
	if !ok {
		return nil, fmt.Errorf("log %s: %w", id, ErrNotFound)
	}
	c := *e
	if err := fn(&c); err != nil {
		return nil, err
	}
	s.logs[id] = &c
	out := c
	return &out, nil
}

func (s *fakeStore) ListLog(_ context.Context, after string, limit int) ([]*RetrievalLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*RetrievalLogEntry
	for id, e := range s.logs {
		if id > after {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) LoadState(context.Context) (*EvolutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *fakeStore) SwapState(_ context.Context, expected uint64, next *EvolutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var have uint64
	if s.state != nil {
		have = s.state.Version
	}
	if have != expected {
		return fmt.Errorf("%w: stored %d, expected %d", ErrStateConflict, have, expected)
	}
	s.state = next
	return nil
}

func (s *fakeStore) PutQueueItem(_ context.Context, item *QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *item
	s.queue[item.ID] = &c
	return nil
}

func (s *fakeStore) ListQueue(_ context.Context, status QueueStatus, limit int) ([]*QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*QueueItem
	for _, item := range s.queue {
		if status == "" || item.Status == status {
			c := *item
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

// fakeIndex scores by query token overlap and cosine similarity over the
// memories it was given.
type fakeIndex struct {
	mu       sync.Mutex
	docs     map[string]*Memory
	failKeys map[ScopeKey]error
	// failUpsert makes every Upsert of an active memory fail; failIDs only
	// the listed ids.
	failUpsert error
	failIDs    map[string]error
	// dims, when set, rejects vectors of any other length.
	dims int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		docs:     make(map[string]*Memory),
		failKeys: make(map[ScopeKey]error),
		failIDs:  make(map[string]error),
	}
}

func (x *fakeIndex) LexicalScores(_ context.Context, key ScopeKey, query string, limit int) (map[string]float64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.failKeys[key]; err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))
	out := make(map[string]float64)
	for id, m := range x.docs {
		if m.Key() != key {
			continue
		}
		content := strings.Fields(strings.ToLower(m.Content))
		score := 0.0
		for _, t := range terms {
			for _, c := range content {
				if c == t {
					score++
				}
			}
		}
		if score > 0 {
			out[id] = score
		}
	}
	return out, nil
}

func (x *fakeIndex) VectorScores(_ context.Context, key ScopeKey, vec []float32, limit int) (map[string]float64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.failKeys[key]; err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for id, m := range x.docs {
		if m.Key() == key && len(m.Vector) == len(vec) {
			out[id] = Cosine(vec, m.Vector)
		}
	}
	return out, nil
}

func (x *fakeIndex) Upsert(_ context.Context, m *Memory) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if m.Status != StatusActive {
		delete(x.docs, m.ID)
		return nil
	}
	if x.failUpsert != nil {
		return x.failUpsert
	}
	if err := x.failIDs[m.ID]; err != nil {
		return err
	}
	if x.dims > 0 && len(m.Vector) > 0 && len(m.Vector) != x.dims {
		return fmt.Errorf("vector dimension mismatch: expects %d, got %d", x.dims, len(m.Vector))
	}
	x.docs[m.ID] = m.Clone()
	return nil
}

func (x *fakeIndex) Remove(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, id)
	return nil
}

func (x *fakeIndex) has(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.docs[id]
	return ok
}

// fakeEmbedder returns a fixed vector per exact text, or err.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return nil, errors.Join(ErrEmbeddingUnavailable, fmt.Errorf("no vector for %q", text))
}

type fakeGate struct {
	mu       sync.Mutex
	acquired int
	err      error
}

func (g *fakeGate) Acquire(context.Context) (func(), error) {
	if g.err != nil {
		return nil, g.err
	}
	g.mu.Lock()
	g.acquired++
	g.mu.Unlock()
	return func() {}, nil
}

func newMemory(id string, scope Scope, content string) *Memory {
	return &Memory{
		ID:             id,
		Content:        content,
		Type:           TypeEpisodic,
		Scope:          scope,
		Owners:         Owners{SessionID: "s1", ProjectID: "p1", UserID: "u1"},
		Importance:     0.5,
		Status:         StatusActive,
		CreatedAt:      t0,
		LastAccessedAt: t0,
	}
}

func seed(s *fakeStore, x *fakeIndex, ms ...*Memory) {
	for _, m := range ms {
		if err := s.PutMemory(context.Background(), m); err != nil {
			panic(err)
		}
		_ = x.Upsert(context.Background(), m)
	}
}
