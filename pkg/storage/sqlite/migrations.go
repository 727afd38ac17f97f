package sqlite

import (
	"context"
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: memory records",
		SQL: `
CREATE TABLE memories (
    id          TEXT PRIMARY KEY,
    scope       TEXT NOT NULL CHECK (scope IN ('session', 'project', 'user')),
    owner       TEXT NOT NULL,
    memory_type TEXT NOT NULL CHECK (memory_type IN ('working', 'episodic', 'semantic', 'procedural')),
    status      TEXT NOT NULL CHECK (status IN ('active', 'archived', 'forgotten')),
    created_at  INTEGER NOT NULL,
    data        TEXT NOT NULL
);

CREATE INDEX idx_memories_scope_owner ON memories(scope, owner);
CREATE INDEX idx_memories_status      ON memories(status);
`,
	},
	{
		Version:     2,
		Description: "retrieval_log: append-only query log",
		SQL: `
CREATE TABLE retrieval_log (
    id         TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL,
    data       TEXT NOT NULL
);
`,
	},
	{
		Version:     3,
		Description: "evolution_state: single versioned row",
		SQL: `
CREATE TABLE evolution_state (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL,
    data    TEXT NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "consolidation_queue: pending and finished work items",
		SQL: `
CREATE TABLE consolidation_queue (
    id        TEXT PRIMARY KEY,
    memory_id TEXT NOT NULL,
    status    TEXT NOT NULL CHECK (status IN ('pending', 'done', 'failed')),
    data      TEXT NOT NULL
);

CREATE INDEX idx_queue_status ON consolidation_queue(status, id);
`,
	},
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
