package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// DefaultPostgresTable is the table used when none is configured.
const DefaultPostgresTable = "logpipe_cache"

// PostgresCache stores entries in a Postgres table so several hosts can share
// rate windows and deduplication signatures.
type PostgresCache struct {
	db    *sql.DB
	table string
	now   func() time.Time

	selectQuery string
	existsQuery string
	upsertQuery string
	deleteQuery string
}

// NewPostgresCache wraps an open database handle.
func NewPostgresCache(db *sql.DB, table string) *PostgresCache {
	if table == "" {
		table = DefaultPostgresTable
	}
	t := pq.QuoteIdentifier(table)
	return &PostgresCache{
		db:    db,
		table: table,
		now:   time.Now,
		selectQuery: fmt.Sprintf(
			`SELECT value FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`, t),
		existsQuery: fmt.Sprintf(
			`SELECT EXISTS (SELECT 1 FROM %s WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2))`, t),
		upsertQuery: fmt.Sprintf(
			`INSERT INTO %s (key, value, expires_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, t),
		deleteQuery: fmt.Sprintf(
			`DELETE FROM %s WHERE expires_at IS NOT NULL AND expires_at <= $1`, t),
	}
}

// OpenPostgres opens and pings a Postgres connection using the lib/pq driver.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return conn, nil
}

// EnsureSchema creates the cache table if it does not exist.
func (c *PostgresCache) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		value BYTEA NOT NULL,
		expires_at TIMESTAMPTZ NULL
	)`, pq.QuoteIdentifier(c.table))
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create cache table: %w", err)
	}
	return nil
}

func (c *PostgresCache) Has(ctx context.Context, key string) bool {
	var exists bool
	if err := c.db.QueryRowContext(ctx, c.existsQuery, key, c.now()).Scan(&exists); err != nil {
		slog.Debug("Postgres cache lookup failed", "key", key, "error", err)
		return false
	}
	return exists
}

func (c *PostgresCache) Get(ctx context.Context, key string, def []byte) []byte {
	var value []byte
	err := c.db.QueryRowContext(ctx, c.selectQuery, key, c.now()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return def
	}
	if err != nil {
		slog.Debug("Postgres cache read failed", "key", key, "error", err)
		return def
	}
	return value
}

func (c *PostgresCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	var exp sql.NullTime
	if t := expiresAt(c.now(), ttl); t != nil {
		exp = sql.NullTime{Time: *t, Valid: true}
	}
	if _, err := c.db.ExecContext(ctx, c.upsertQuery, key, value, exp); err != nil {
		slog.Debug("Postgres cache write failed", "key", key, "error", err)
		return false
	}
	return true
}

// CollectGarbage deletes expired rows in a single statement.
func (c *PostgresCache) CollectGarbage(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, c.deleteQuery, c.now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache rows: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}
