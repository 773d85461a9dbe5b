// Package sqlite provides a ports.ResponseStore backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/keystone/pkg/ports"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store implements ports.ResponseStore on a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	store, err := Connect(path)
	if err != nil {
		return nil, err
	}
	if _, err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Connect opens the database at path without touching its schema.
func Connect(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Store{db: db, now: time.Now}, nil
}

// Migrate applies embedded migrations that have not run yet and returns their names.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	const ddl = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  name TEXT PRIMARY KEY,
  applied_at INTEGER NOT NULL
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	var applied []string
	for _, name := range names {
		base := strings.TrimPrefix(name, "migrations/")
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, base).Scan(&count); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", base, err)
		}
		if count > 0 {
			continue
		}
		body, err := migrationFS.ReadFile(name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", base, err)
		}
		if err := s.apply(ctx, base, string(body)); err != nil {
			return applied, err
		}
		applied = append(applied, base)
	}
	return applied, nil
}

func (s *Store) apply(ctx context.Context, name, body string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, s.now().UnixNano()); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	return tx.Commit()
}

// Write inserts one row for key.
func (s *Store) Write(ctx context.Context, key string, value json.RawMessage) (ports.LogEntry, error) {
	now := s.now().UTC()
	entry := ports.LogEntry{
		ID:        uuid.NewString(),
		Key:       key,
		Value:     append(json.RawMessage(nil), value...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	const stmt = `
INSERT INTO response_logs (id, key, value, created_at, updated_at)
VALUES (?, ?, ?, ?, ?);
`
	_, err := s.db.ExecContext(ctx, stmt,
		entry.ID,
		entry.Key,
		string(entry.Value),
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return ports.LogEntry{}, fmt.Errorf("insert response log: %w", err)
	}
	return entry, nil
}

// Read returns the rows for key, newest first.
func (s *Store) Read(ctx context.Context, key string) ([]ports.LogEntry, error) {
	const query = `
SELECT id, key, value, created_at, updated_at
FROM response_logs
WHERE key = ?
ORDER BY created_at DESC, rowid DESC;
`
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("query response logs: %w", err)
	}
	defer rows.Close()

	entries := make([]ports.LogEntry, 0)
	for rows.Next() {
		var (
			entry            ports.LogEntry
			value            string
			created, updated int64
		)
		if err := rows.Scan(&entry.ID, &entry.Key, &value, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan response log: %w", err)
		}
		entry.Value = json.RawMessage(value)
		entry.CreatedAt = time.Unix(0, created).UTC()
		entry.UpdatedAt = time.Unix(0, updated).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate response logs: %w", err)
	}
	return entries, nil
}

// Delete removes every row for key.
func (s *Store) Delete(ctx context.Context, key string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM response_logs WHERE key = ?`, key)
	if err != nil {
		return 0, fmt.Errorf("delete response logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete response logs: %w", err)
	}
	return int(n), nil
}

// Keys returns distinct keys, most recently written first.
func (s *Store) Keys(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	const query = `
SELECT key FROM response_logs
GROUP BY key
ORDER BY MAX(created_at) DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
