package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/jperaza/planwave/pkg/schema"
)

// LibSQLCache implements Cache on libSQL (embedded SQLite fork), so cached
// tool results survive process restarts. Results are stored as JSON; a
// value that does not round-trip through JSON is reported as a miss.
type LibSQLCache struct {
	db  *sql.DB
	ttl time.Duration // 0 = entries never expire
}

// NewLibSQLCache opens a libSQL database at the given path and ensures the
// cache table exists. The path should be a file URI, e.g. "file:/path/db.db".
// A non-zero ttl makes Get ignore (and Prune delete) older entries.
func NewLibSQLCache(dbPath string, ttl time.Duration) (*LibSQLCache, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some PRAGMAs return rows so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS plan_cache (
		key TEXT PRIMARY KEY,
		tool_name TEXT NOT NULL,
		args TEXT NOT NULL,
		result TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create plan_cache: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_plan_cache_created ON plan_cache (created_at)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create plan_cache index: %w", err)
	}

	return &LibSQLCache{db: db, ttl: ttl}, nil
}

// Close closes the database.
func (c *LibSQLCache) Close() error { return c.db.Close() }

func (c *LibSQLCache) Get(ctx context.Context, toolName string, args map[string]any) (any, bool, error) {
	var (
		resultJSON string
		createdAt  time.Time
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT result, created_at FROM plan_cache WHERE key = ?`, Key(toolName, args),
	).Scan(&resultJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, schema.NewErrorf(schema.ErrCodeCache, "cache get: %s", err.Error()).WithCause(err)
	}

	if c.ttl > 0 && time.Since(createdAt) > c.ttl {
		return nil, false, nil
	}

	var result any
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return nil, false, schema.NewErrorf(schema.ErrCodeCache, "cache decode: %s", err.Error()).WithCause(err)
	}
	return result, true, nil
}

func (c *LibSQLCache) Set(ctx context.Context, toolName string, args map[string]any, result any) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCache, "cache encode args: %s", err.Error()).WithCause(err)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCache, "cache encode result: %s", err.Error()).WithCause(err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO plan_cache (key, tool_name, args, result, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET result=excluded.result, created_at=excluded.created_at`,
		Key(toolName, args), toolName, string(argsJSON), string(resultJSON), time.Now().UTC(),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeCache, "cache set: %s", err.Error()).WithCause(err)
	}
	return nil
}

// Prune deletes entries older than the TTL. No-op when no TTL is set.
func (c *LibSQLCache) Prune(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM plan_cache WHERE created_at < ?`, time.Now().UTC().Add(-c.ttl),
	)
	if err != nil {
		return 0, schema.NewErrorf(schema.ErrCodeCache, "cache prune: %s", err.Error()).WithCause(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

var _ Cache = (*LibSQLCache)(nil)
