// Package sqlite provides a SQLite-backed memory.Store using the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/goclaw/mnemo/pkg/storage"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Config holds configuration for Store.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store implements memory.Store on SQLite. Records are stored as JSON with
// the filterable columns broken out. A single connection serialises
// writers, so read-modify-write calls run in plain transactions.
type Store struct {
	db   *sql.DB
	path string
}

var _ memory.Store = (*Store)(nil)

// Open opens or creates the database at cfg.Path and applies migrations.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	path := cfg.Path
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &storage.StorageUnavailableError{Cause: fmt.Errorf("create db dir: %w", err)}
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.configurePragmas(ctx, cfg.BusyTimeout); err != nil {
		db.Close()
		return nil, &storage.StorageUnavailableError{Cause: err}
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, busy time.Duration) error {
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busy.Milliseconds()),
	}
	if s.path != MemoryPath {
		pragmas = append([]string{"PRAGMA journal_mode=WAL"}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func writeMemory(ctx context.Context, ex execer, m *memory.Memory) error {
	data, err := storage.Encode(m)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO memories (id, scope, owner, memory_type, status, created_at, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			owner = excluded.owner,
			memory_type = excluded.memory_type,
			status = excluded.status,
			data = excluded.data`,
		m.ID, string(m.Scope), m.Owners.For(m.Scope), string(m.Type), string(m.Status), m.CreatedAt.UnixNano(), string(data))
	return err
}

func readMemory(ctx context.Context, ex execer, id string) (*memory.Memory, error) {
	var data string
	err := ex.QueryRowContext(ctx, "SELECT data FROM memories WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("memory", id)
	}
	if err != nil {
		return nil, err
	}
	var m memory.Memory
	if err := storage.Decode([]byte(data), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PutMemory validates and writes a memory record.
func (s *Store) PutMemory(ctx context.Context, m *memory.Memory) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return writeMemory(ctx, s.db, m)
}

// GetMemory returns a memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (*memory.Memory, error) {
	return readMemory(ctx, s.db, id)
}

// UpdateMemory applies fn to the stored record inside one transaction.
func (s *Store) UpdateMemory(ctx context.Context, id string, fn func(*memory.Memory) error) (*memory.Memory, error) {
	var out *memory.Memory
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		m, err := readMemory(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(m); err != nil {
			return err
		}
		if err := m.Validate(); err != nil {
			return err
		}
		out = m
		return writeMemory(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMemories narrows by the indexed columns in SQL and applies the rest
// of the filter in Go.
func (s *Store) ListMemories(ctx context.Context, filter memory.Filter) ([]*memory.Memory, error) {
	var (
		where []string
		args  []any
	)
	if filter.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(filter.Scope))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Type != "" {
		where = append(where, "memory_type = ?")
		args = append(args, string(filter.Type))
	}
	query := "SELECT data FROM memories"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.Memory
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m memory.Memory
		if err := storage.Decode([]byte(data), &m); err != nil {
			return nil, err
		}
		if filter.Match(&m) {
			out = append(out, &m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return storage.Page(out, filter), nil
}

// AppendLog writes a new retrieval log entry.
func (s *Store) AppendLog(ctx context.Context, entry *memory.RetrievalLogEntry) error {
	if err := storage.ValidateLogEntry(entry); err != nil {
		return err
	}
	data, err := storage.Encode(entry)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO retrieval_log (id, created_at, data) VALUES (?, ?, ?)",
		entry.ID, entry.CreatedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("append retrieval log %s: %w", entry.ID, err)
	}
	return nil
}

func readLog(ctx context.Context, ex execer, id string) (*memory.RetrievalLogEntry, error) {
	var data string
	err := ex.QueryRowContext(ctx, "SELECT data FROM retrieval_log WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("retrieval log entry", id)
	}
	if err != nil {
		return nil, err
	}
	var e memory.RetrievalLogEntry
	if err := storage.Decode([]byte(data), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetLog returns a retrieval log entry.
func (s *Store) GetLog(ctx context.Context, id string) (*memory.RetrievalLogEntry, error) {
	return readLog(ctx, s.db, id)
}

// UpdateLog applies fn to a log entry inside one transaction.
func (s *Store) UpdateLog(ctx context.Context, id string, fn func(*memory.RetrievalLogEntry) error) (*memory.RetrievalLogEntry, error) {
	var out *memory.RetrievalLogEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		e, err := readLog(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		data, err := storage.Encode(e)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE retrieval_log SET data = ? WHERE id = ?", string(data), id); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListLog returns entries after the given id, oldest first.
func (s *Store) ListLog(ctx context.Context, after string, limit int) ([]*memory.RetrievalLogEntry, error) {
	query := "SELECT data FROM retrieval_log WHERE id > ? ORDER BY id"
	args := []any{after}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.RetrievalLogEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e memory.RetrievalLogEntry
		if err := storage.Decode([]byte(data), &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// LoadState returns the persisted evolution state, or nil.
func (s *Store) LoadState(ctx context.Context) (*memory.EvolutionState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM evolution_state WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st memory.EvolutionState
	if err := storage.Decode([]byte(data), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SwapState replaces the state row if its version equals expected.
func (s *Store) SwapState(ctx context.Context, expected uint64, next *memory.EvolutionState) error {
	data, err := storage.Encode(next)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var cur uint64
		err := tx.QueryRowContext(ctx, "SELECT version FROM evolution_state WHERE id = 1").Scan(&cur)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			cur = 0
		case err != nil:
			return err
		}
		if cur != expected {
			return fmt.Errorf("%w: stored %d, expected %d", memory.ErrStateConflict, cur, expected)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO evolution_state (id, version, data) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET version = excluded.version, data = excluded.data`,
			next.Version, string(data))
		return err
	})
}

// PutQueueItem writes or replaces a queue item.
func (s *Store) PutQueueItem(ctx context.Context, item *memory.QueueItem) error {
	if err := storage.ValidateQueueItem(item); err != nil {
		return err
	}
	data, err := storage.Encode(item)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO consolidation_queue (id, memory_id, status, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, data = excluded.data`,
		item.ID, item.MemoryID, string(item.Status), string(data))
	return err
}

// ListQueue returns items with status, oldest first.
func (s *Store) ListQueue(ctx context.Context, status memory.QueueStatus, limit int) ([]*memory.QueueItem, error) {
	query := "SELECT data FROM consolidation_queue WHERE status = ? ORDER BY id"
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.QueueItem
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var item memory.QueueItem
		if err := storage.Decode([]byte(data), &item); err != nil {
			return nil, err
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
