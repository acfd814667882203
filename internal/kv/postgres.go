package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a Store backed by a Postgres table. It implements
// ConditionalStore: ON CONFLICT DO NOTHING gives an atomic create-if-absent,
// so first-write-wins races are resolved by the database even when multiple
// server processes share it.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and ensures the backing table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS kv_entries (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL
	)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Get retrieves a value by key.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM kv_entries WHERE key = $1`, key,
	).Scan(&value)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores a key-value pair, overwriting any existing value.
func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// PutIfAbsent stores the pair only if the key does not already exist.
func (p *Postgres) PutIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO NOTHING`,
		key, value,
	)
	if err != nil {
		return false, fmt.Errorf("put if absent %q: %w", key, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns up to limit keys with the given prefix, strictly after cursor.
func (p *Postgres) List(ctx context.Context, prefix, cursor string, limit int) ([]string, string, error) {
	cmp := ">"
	lower := cursor
	if cursor == "" || cursor < prefix {
		cmp = ">="
		lower = prefix
	}
	query := `SELECT key FROM kv_entries WHERE key ` + cmp + ` $1 ORDER BY key LIMIT $2`
	args := []any{lower, limit}
	if upper := prefixUpperBound(prefix); upper != "" {
		query = `SELECT key FROM kv_entries WHERE key ` + cmp + ` $1 AND key < $3 ORDER BY key LIMIT $2`
		args = []any{lower, limit, upper}
	}

	rows, err := p.pool.Query(ctx, query, args...)
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
