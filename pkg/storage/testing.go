package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite runs the memory.Store contract against an implementation.
type StoreTestSuite struct {
	NewStore func(t *testing.T) memory.Store
}

// RunAllTests runs every contract test.
func (s *StoreTestSuite) RunAllTests(t *testing.T) {
	t.Run("MemoryCRUD", s.TestMemoryCRUD)
	t.Run("RejectsInvalidMemory", s.TestRejectsInvalidMemory)
	t.Run("UpdateMemory", s.TestUpdateMemory)
	t.Run("ListMemoriesFilterAndPaging", s.TestListMemoriesFilterAndPaging)
	t.Run("RetrievalLog", s.TestRetrievalLog)
	t.Run("StateCompareAndSwap", s.TestStateCompareAndSwap)
	t.Run("Queue", s.TestQueue)
	t.Run("ConcurrentUpdates", s.TestConcurrentUpdates)
}

// SampleMemory returns a valid session-scope memory.
func SampleMemory(id string, created time.Time) *memory.Memory {
	return &memory.Memory{
		ID:             id,
		Content:        "content of " + id,
		Type:           memory.TypeEpisodic,
		Scope:          memory.ScopeSession,
		Owners:         memory.Owners{SessionID: "s1", ProjectID: "p1", UserID: "u1"},
		Importance:     0.5,
		CreatedAt:      created,
		LastAccessedAt: created,
		Status:         memory.StatusActive,
		Vector:         []float32{0.1, 0.2, 0.3},
		Metadata:       memory.Metadata{Source: "test"},
	}
}

func (s *StoreTestSuite) TestMemoryCRUD(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	m := SampleMemory("m-1", now)
	m.Tags = []string{"go", "storage"}
	m.Metadata.Extra = map[string]string{"k": "v"}
	require.NoError(t, store.PutMemory(ctx, m))

	got, err := store.GetMemory(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Tags, got.Tags)
	assert.Equal(t, m.Vector, got.Vector)
	assert.Equal(t, "v", got.Metadata.Extra["k"])
	assert.True(t, m.CreatedAt.Equal(got.CreatedAt))

	_, err = store.GetMemory(ctx, "missing")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func (s *StoreTestSuite) TestRejectsInvalidMemory(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	bad := SampleMemory("m-bad", time.Now())
	bad.Type = "dream"
	assert.ErrorIs(t, store.PutMemory(ctx, bad), memory.ErrInvalidMemory)

	bad = SampleMemory("m-bad", time.Now())
	bad.Importance = 1.5
	assert.ErrorIs(t, store.PutMemory(ctx, bad), memory.ErrInvalidMemory)

	_, err := store.GetMemory(ctx, "m-bad")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func (s *StoreTestSuite) TestUpdateMemory(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.PutMemory(ctx, SampleMemory("m-1", time.Now())))

	updated, err := store.UpdateMemory(ctx, "m-1", func(m *memory.Memory) error {
		m.AccessCount++
		m.AddTags("touched")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.AccessCount)

	got, err := store.GetMemory(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)
	assert.True(t, got.HasTag("touched"))

	boom := errors.New("boom")
	_, err = store.UpdateMemory(ctx, "m-1", func(m *memory.Memory) error {
		m.AccessCount = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)
	got, err = store.GetMemory(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.AccessCount)

	_, err = store.UpdateMemory(ctx, "m-1", func(m *memory.Memory) error {
		m.Importance = -1
		return nil
	})
	assert.ErrorIs(t, err, memory.ErrInvalidMemory)

	_, err = store.UpdateMemory(ctx, "missing", func(*memory.Memory) error { return nil })
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func (s *StoreTestSuite) TestListMemoriesFilterAndPaging(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 5; i++ {
		m := SampleMemory(fmt.Sprintf("m-%d", i), base.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			m.Status = memory.StatusArchived
		}
		if i == 4 {
			m.Scope = memory.ScopeProject
			m.Tags = []string{"keep"}
		}
		require.NoError(t, store.PutMemory(ctx, m))
	}

	all, err := store.ListMemories(ctx, memory.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "m-0", all[0].ID)
	assert.Equal(t, "m-4", all[4].ID)

	active, err := store.ListMemories(ctx, memory.Filter{Status: memory.StatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 3)

	project, err := store.ListMemories(ctx, memory.Filter{Scope: memory.ScopeProject, Owner: "p1"})
	require.NoError(t, err)
	require.Len(t, project, 1)
	assert.Equal(t, "m-4", project[0].ID)

	tagged, err := store.ListMemories(ctx, memory.Filter{Tag: "keep"})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	page, err := store.ListMemories(ctx, memory.Filter{Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m-1", page[0].ID)
	assert.Equal(t, "m-2", page[1].ID)

	empty, err := store.ListMemories(ctx, memory.Filter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func (s *StoreTestSuite) TestRetrievalLog(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		e := &memory.RetrievalLogEntry{
			ID:        memory.NewLogID(),
			CreatedAt: time.Now(),
			Scopes:    []memory.Scope{memory.ScopeSession},
			Strategy:  memory.StrategyHybrid,
			Count:     i,
		}
		require.NoError(t, store.AppendLog(ctx, e))
		ids = append(ids, e.ID)
		time.Sleep(2 * time.Millisecond)
	}

	dup := &memory.RetrievalLogEntry{ID: ids[0], CreatedAt: time.Now()}
	assert.Error(t, store.AppendLog(ctx, dup))

	all, err := store.ListLog(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := range all {
		assert.Equal(t, ids[i], all[i].ID)
	}

	after, err := store.ListLog(ctx, ids[1], 0)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, ids[2], after[0].ID)

	limited, err := store.ListLog(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	useful := true
	now := time.Now()
	_, err = store.UpdateLog(ctx, ids[0], func(e *memory.RetrievalLogEntry) error {
		e.Useful = &useful
		e.FeedbackAt = &now
		return nil
	})
	require.NoError(t, err)
	got, err := store.GetLog(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, got.Useful)
	assert.True(t, *got.Useful)
	assert.True(t, got.HasFeedback())

	_, err = store.GetLog(ctx, "missing")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func (s *StoreTestSuite) TestStateCompareAndSwap(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	st, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)

	first := memory.DefaultState()
	first.Version = 1
	first.LogCursor = "cursor-1"
	require.NoError(t, store.SwapState(ctx, 0, first))

	err = store.SwapState(ctx, 0, first)
	assert.ErrorIs(t, err, memory.ErrStateConflict)

	second := memory.DefaultState()
	second.Version = 2
	second.Params.Retrieval.Lexical = 0.25
	second.Params.Retrieval.Vector = 0.35
	require.NoError(t, store.SwapState(ctx, 1, second))

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, uint64(2), loaded.Version)
	assert.InDelta(t, 0.35, loaded.Params.Retrieval.Vector, 1e-12)
	assert.InDelta(t, 1.5, loaded.Params.ScopeWeight(memory.ScopeSession), 1e-12)
}

func (s *StoreTestSuite) TestQueue(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	var items []*memory.QueueItem
	for i := 0; i < 3; i++ {
		item := &memory.QueueItem{
			ID:        memory.NewLogID(),
			MemoryID:  fmt.Sprintf("m-%d", i),
			Reason:    memory.ReasonStale,
			Priority:  1,
			Status:    memory.QueuePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, store.PutQueueItem(ctx, item))
		items = append(items, item)
		time.Sleep(2 * time.Millisecond)
	}

	pending, err := store.ListQueue(ctx, memory.QueuePending, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, items[0].ID, pending[0].ID)

	items[1].Status = memory.QueueDone
	items[1].Action = memory.ActionArchived
	require.NoError(t, store.PutQueueItem(ctx, items[1]))

	pending, err = store.ListQueue(ctx, memory.QueuePending, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	done, err := store.ListQueue(ctx, memory.QueueDone, 0)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, memory.ActionArchived, done[0].Action)

	limited, err := store.ListQueue(ctx, memory.QueuePending, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	bad := &memory.QueueItem{ID: "q", MemoryID: "m", Status: "unknown"}
	assert.ErrorIs(t, store.PutQueueItem(ctx, bad), memory.ErrInvalidMemory)
}

func (s *StoreTestSuite) TestConcurrentUpdates(t *testing.T) {
	store := s.NewStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.PutMemory(ctx, SampleMemory("m-1", time.Now())))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.UpdateMemory(ctx, "m-1", func(m *memory.Memory) error {
				m.AccessCount++
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	got, err := store.GetMemory(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, succeeded, got.AccessCount)
	assert.Positive(t, succeeded)
}
