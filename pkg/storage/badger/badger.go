// Package badger provides a Badger-backed memory.Store.
package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/goclaw/mnemo/pkg/storage"
)

// Config holds configuration for Store.
type Config struct {
	Path             string
	InMemory         bool
	SyncWrites       bool
	ValueLogFileSize int64
}

// Logger is the subset of the application logger Badger writes to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// maxTxnRetries bounds retries of read-modify-write transactions that lose
// an optimistic conflict.
const maxTxnRetries = 5

// Store implements memory.Store on Badger.
type Store struct {
	db       *badger.DB
	inMemory bool
}

var _ memory.Store = (*Store)(nil)

// New opens a Badger store. log may be nil.
func New(cfg *Config, log Logger) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = cfg.SyncWrites
		if cfg.ValueLogFileSize > 0 {
			opts.ValueLogFileSize = cfg.ValueLogFileSize
		}
	}
	opts.NumVersionsToKeep = 1
	opts.Logger = nil
	if log != nil {
		opts.Logger = badgerLogger{log}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	return &Store{db: db, inMemory: cfg.InMemory}, nil
}

// Key layout:
//
//	mem:{id}                 memory record
//	log:{ulid}               retrieval log entry
//	queue:{ulid}             consolidation queue item
//	qidx:{status}:{ulid}     queue status index
//	state                    evolution state
func memoryKey(id string) []byte { return []byte("mem:" + id) }
func logKey(id string) []byte    { return []byte("log:" + id) }
func queueKey(id string) []byte  { return []byte("queue:" + id) }
func queueIndexKey(status memory.QueueStatus, id string) []byte {
	return []byte(fmt.Sprintf("qidx:%s:%s", status, id))
}

var stateKey = []byte("state")

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return storage.Decode(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := storage.Encode(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

// update runs fn in a read-write transaction, retrying on conflict.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxTxnRetries; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// PutMemory validates and writes a memory record.
func (s *Store) PutMemory(ctx context.Context, m *memory.Memory) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, memoryKey(m.ID), m)
	})
}

// GetMemory returns a memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	var m memory.Memory
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, memoryKey(id), &m)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.NotFound("memory", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMemory applies fn to the stored record inside one transaction.
func (s *Store) UpdateMemory(ctx context.Context, id string, fn func(*memory.Memory) error) (*memory.Memory, error) {
	var out *memory.Memory
	err := s.update(ctx, func(txn *badger.Txn) error {
		var m memory.Memory
		if err := getJSON(txn, memoryKey(id), &m); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.NotFound("memory", id)
			}
			return err
		}
		if err := fn(&m); err != nil {
			return err
		}
		if err := m.Validate(); err != nil {
			return err
		}
		out = &m
		return setJSON(txn, memoryKey(id), &m)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMemories scans all memory records and applies filter.
func (s *Store) ListMemories(ctx context.Context, filter memory.Filter) ([]*memory.Memory, error) {
	var out []*memory.Memory
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("mem:")
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var m memory.Memory
			if err := it.Item().Value(func(val []byte) error {
				return storage.Decode(val, &m)
			}); err != nil {
				return err
			}
			if filter.Match(&m) {
				out = append(out, &m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.Page(out, filter), nil
}

// AppendLog writes a new retrieval log entry.
func (s *Store) AppendLog(ctx context.Context, entry *memory.RetrievalLogEntry) error {
	if err := storage.ValidateLogEntry(entry); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if _, err := txn.Get(logKey(entry.ID)); err == nil {
			return fmt.Errorf("%w: log entry %s already exists", memory.ErrInvalidMemory, entry.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, logKey(entry.ID), entry)
	})
}

// GetLog returns a retrieval log entry.
func (s *Store) GetLog(ctx context.Context, id string) (*memory.RetrievalLogEntry, error) {
	var e memory.RetrievalLogEntry
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, logKey(id), &e)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.NotFound("retrieval log entry", id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateLog applies fn to a log entry inside one transaction.
func (s *Store) UpdateLog(ctx context.Context, id string, fn func(*memory.RetrievalLogEntry) error) (*memory.RetrievalLogEntry, error) {
	var out *memory.RetrievalLogEntry
	err := s.update(ctx, func(txn *badger.Txn) error {
		var e memory.RetrievalLogEntry
		if err := getJSON(txn, logKey(id), &e); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.NotFound("retrieval log entry", id)
			}
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
		out = &e
		return setJSON(txn, logKey(id), &e)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListLog returns entries after the given id, oldest first. Badger
// iterates keys in byte order, which for ULIDs is creation order.
func (s *Store) ListLog(ctx context.Context, after string, limit int) ([]*memory.RetrievalLogEntry, error) {
	var out []*memory.RetrievalLogEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("log:")
		it := txn.NewIterator(opts)
		defer it.Close()

		start := opts.Prefix
		if after != "" {
			start = logKey(after)
		}
		for it.Seek(start); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			id := strings.TrimPrefix(string(it.Item().Key()), "log:")
			if after != "" && id <= after {
				continue
			}
			var e memory.RetrievalLogEntry
			if err := it.Item().Value(func(val []byte) error {
				return storage.Decode(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, &e)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// LoadState returns the persisted evolution state, or nil.
func (s *Store) LoadState(ctx context.Context) (*memory.EvolutionState, error) {
	var st memory.EvolutionState
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, stateKey, &st)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// SwapState replaces the state if the stored version equals expected.
func (s *Store) SwapState(ctx context.Context, expected uint64, next *memory.EvolutionState) error {
	return s.update(ctx, func(txn *badger.Txn) error {
		var cur memory.EvolutionState
		err := getJSON(txn, stateKey, &cur)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			cur.Version = 0
		case err != nil:
			return err
		}
		if cur.Version != expected {
			return fmt.Errorf("%w: stored %d, expected %d", memory.ErrStateConflict, cur.Version, expected)
		}
		return setJSON(txn, stateKey, next)
	})
}

// PutQueueItem writes a queue item and moves its status index entry.
func (s *Store) PutQueueItem(ctx context.Context, item *memory.QueueItem) error {
	if err := storage.ValidateQueueItem(item); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		var prev memory.QueueItem
		err := getJSON(txn, queueKey(item.ID), &prev)
		switch {
		case err == nil:
			if prev.Status != item.Status {
				if err := txn.Delete(queueIndexKey(prev.Status, item.ID)); err != nil {
					return err
				}
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := setJSON(txn, queueKey(item.ID), item); err != nil {
			return err
		}
		return txn.Set(queueIndexKey(item.Status, item.ID), nil)
	})
}

// ListQueue returns items with status, oldest first.
func (s *Store) ListQueue(ctx context.Context, status memory.QueueStatus, limit int) ([]*memory.QueueItem, error) {
	var out []*memory.QueueItem
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("qidx:%s:", status))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			id := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			var item memory.QueueItem
			if err := getJSON(txn, queueKey(id), &item); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			out = append(out, &item)
			if limit > 0 && len(out) >= limit {
				return nil
			}
		}
		return nil
	})
	return out, err
}

// Close runs one value log GC round and closes the database.
func (s *Store) Close() error {
	if !s.inMemory {
		// ErrNoRewrite only means there was nothing to collect.
		_ = s.db.RunValueLogGC(0.5)
	}
	return s.db.Close()
}

// badgerLogger adapts the application logger to badger.Logger.
type badgerLogger struct {
	l Logger
}

func (b badgerLogger) Errorf(format string, args ...any) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Warningf(format string, args ...any) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Infof(format string, args ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (b badgerLogger) Debugf(format string, args ...any) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}
