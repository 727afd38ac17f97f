package badger

import (
	"context"
	"testing"
	"time"

	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/goclaw/mnemo/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStoreSuite(t *testing.T) {
	suite := &storage.StoreTestSuite{
		NewStore: func(t *testing.T) memory.Store {
			s, err := New(&Config{Path: t.TempDir(), ValueLogFileSize: 1 << 20}, nil)
			require.NoError(t, err)
			return s
		},
	}
	suite.RunAllTests(t)
}

func TestBadgerStoreSuite_InMemory(t *testing.T) {
	suite := &storage.StoreTestSuite{
		NewStore: func(t *testing.T) memory.Store {
			s, err := New(&Config{InMemory: true}, nil)
			require.NoError(t, err)
			return s
		},
	}
	suite.RunAllTests(t)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(&Config{Path: dir, SyncWrites: true, ValueLogFileSize: 1 << 20}, nil)
	require.NoError(t, err)
	require.NoError(t, s.PutMemory(ctx, storage.SampleMemory("m-1", time.Now())))
	st := memory.DefaultState()
	st.Version = 1
	require.NoError(t, s.SwapState(ctx, 0, st))
	require.NoError(t, s.Close())

	s, err = New(&Config{Path: dir, ValueLogFileSize: 1 << 20}, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetMemory(ctx, "m-1")
	require.NoError(t, err)
	assert.Equal(t, "content of m-1", got.Content)

	loaded, err := s.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.Version)
}

func TestBadgerStore_OpenFailure(t *testing.T) {
	_, err := New(&Config{Path: "/dev/null/not-a-dir"}, nil)
	var unavailable *storage.StorageUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

type recordingLogger struct {
	warnings int
}

func (r *recordingLogger) Debug(string, ...any) {}
func (r *recordingLogger) Info(string, ...any)  {}
func (r *recordingLogger) Warn(string, ...any)  { r.warnings++ }
func (r *recordingLogger) Error(string, ...any) {}

func TestBadgerLogger_Adapter(t *testing.T) {
	rec := &recordingLogger{}
	bl := badgerLogger{rec}
	bl.Warningf("value log %s\n", "rotated")
	bl.Infof("ignored")
	assert.Equal(t, 1, rec.warnings)
}
