package kv

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Sqlite is a Store backed by a local SQLite database. It implements
// ConditionalStore: INSERT OR IGNORE gives an atomic create-if-absent.
type Sqlite struct {
	db *sql.DB
}

// NewSqlite opens (or creates) a SQLite-backed store at path. Pass ":memory:"
// for an in-memory store (useful for tests).
func NewSqlite(path string) (*Sqlite, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Sqlite{db: db}, nil
}

// Close closes the underlying database.
func (s *Sqlite) Close() error {
	return s.db.Close()
}

// Get retrieves a value by key.
func (s *Sqlite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores a key-value pair, overwriting any existing value.
func (s *Sqlite) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv_entries (key, value) VALUES (?, ?)`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// PutIfAbsent stores the pair only if the key does not already exist.
func (s *Sqlite) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_entries (key, value) VALUES (?, ?)`,
		key, value,
	)
	if err != nil {
		return false, fmt.Errorf("put if absent %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put if absent %q: %w", key, err)
	}
	return n > 0, nil
}

// List returns up to limit keys with the given prefix, strictly after cursor.
func (s *Sqlite) List(ctx context.Context, prefix, cursor string, limit int) ([]string, string, error) {
	// The cursor is exclusive; an empty cursor starts at the prefix itself.
	cmp := ">"
	lower := cursor
	if cursor == "" || cursor < prefix {
		cmp = ">="
		lower = prefix
	}
	query := `SELECT key FROM kv_entries WHERE key ` + cmp + ` ? ORDER BY key LIMIT ?`
	args := []any{lower, limit}
	if upper := prefixUpperBound(prefix); upper != "" {
		query = `SELECT key FROM kv_entries WHERE key ` + cmp + ` ? AND key < ? ORDER BY key LIMIT ?`
		args = []any{lower, upper, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, "", fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("list %q: %w", prefix, err)
	}

	next := ""
	if len(keys) == limit && limit > 0 {
		next = keys[len(keys)-1]
	}
	return keys, next, nil
}
