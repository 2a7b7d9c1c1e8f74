package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLiteFileName is the index database written into the output directory.
const SQLiteFileName = "catalog.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	enumerated  INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	unsupported INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	finished_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS assets (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	path       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	digest     TEXT NOT NULL,
	artifacts  TEXT NOT NULL,
	run_id     TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS assets_kind ON assets(kind);
`

// SQLiteIndex upserts every item of a batch into catalog.db inside the
// output directory. One connection pool is kept per database file.
type SQLiteIndex struct {
	PoolSize int

	mu    sync.Mutex
	pools map[string]*sqlitex.Pool
}

// NewSQLiteIndex returns an index sink with a small pool per database.
func NewSQLiteIndex() *SQLiteIndex {
	return &SQLiteIndex{PoolSize: 2}
}

// Write implements Sink. The whole batch lands in one immediate transaction.
func (s *SQLiteIndex) Write(ctx context.Context, batch Batch, outputDir string) (err error) {
	pool, err := s.pool(outputDir)
	if err != nil {
		return err
	}
	conn, err := pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sink: sqlite take: %w", err)
	}
	defer pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("sink: sqlite begin: %w", err)
	}
	defer endTransaction(&err)

	finished := batch.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	stamp := finished.UTC().Format(time.RFC3339Nano)
	err = sqlitex.Execute(conn, `INSERT INTO runs
		(run_id, scope, enumerated, skipped, unsupported, failed, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			scope = excluded.scope,
			enumerated = excluded.enumerated,
			skipped = excluded.skipped,
			unsupported = excluded.unsupported,
			failed = excluded.failed,
			finished_at = excluded.finished_at`, &sqlitex.ExecOptions{
		Args: []any{batch.RunID, batch.Scope, batch.Enumerated, batch.Skipped, batch.Unsupported, batch.Failed, stamp},
	})
	if err != nil {
		return fmt.Errorf("sink: sqlite insert run: %w", err)
	}
	for _, item := range batch.Items {
		artifacts := item.Artifacts
		if artifacts == nil {
			artifacts = []string{}
		}
		encoded, marshalErr := json.Marshal(artifacts)
		if marshalErr != nil {
			err = fmt.Errorf("sink: encode artifacts for %s: %w", item.ID, marshalErr)
			return err
		}
		err = sqlitex.Execute(conn, `INSERT INTO assets
			(id, name, path, kind, digest, artifacts, run_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				path = excluded.path,
				kind = excluded.kind,
				digest = excluded.digest,
				artifacts = excluded.artifacts,
				run_id = excluded.run_id,
				updated_at = excluded.updated_at`, &sqlitex.ExecOptions{
			Args: []any{item.ID, item.Name, item.Path, string(item.Kind), item.Digest, string(encoded), batch.RunID, stamp},
		})
		if err != nil {
			return fmt.Errorf("sink: sqlite upsert %s: %w", item.ID, err)
		}
	}
	return nil
}

// Close releases every open pool.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for path, pool := range s.pools {
		if err := pool.Close(); err != nil && first == nil {
			first = fmt.Errorf("sink: close %s: %w", path, err)
		}
		delete(s.pools, path)
	}
	return first
}

func (s *SQLiteIndex) pool(outputDir string) (*sqlitex.Pool, error) {
	path := filepath.Join(outputDir, SQLiteFileName)
	s.mu.Lock()
	defer s.mu.Unlock()
	if pool, ok := s.pools[path]; ok {
		return pool, nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", outputDir, err)
	}
	size := s.PoolSize
	if size <= 0 {
		size = 2
	}
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize: size,
		PrepareConn: func(conn *sqlite.Conn) error {
			if err := sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout = 5000", nil); err != nil {
				return err
			}
			return sqlitex.ExecuteScript(conn, sqliteSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}
	if s.pools == nil {
		s.pools = make(map[string]*sqlitex.Pool)
	}
	s.pools[path] = pool
	return pool, nil
}
