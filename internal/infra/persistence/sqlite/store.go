// Package sqlite provides a SQLite-backed record store. Records live in the
// in-memory store; every committed mutation snapshots the full state into a
// single state table, one row per bucket.
package sqlite

import (
	"calendarcore/internal/infra/persistence/memory"
	"calendarcore/pkg/domain"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var (
	_ domain.Store       = (*Store)(nil)
	_ domain.IDAllocator = (*Store)(nil)
)

// Store persists the in-memory state to SQLite.
type Store struct {
	*memory.Store
	db      *sql.DB
	path    string
	written map[string]bool
}

// NewStore opens (creating if needed) the database at path and hydrates the
// store from any existing snapshot.
func NewStore(ctx context.Context, path string, registry domain.Registry) (*Store, error) {
	if path == "" {
		path = "calendarcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps snapshot writes ordered
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{db: db, path: path, written: make(map[string]bool)}
	s.Store = memory.NewStore(memory.WithRegistry(registry))
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.SetCommitHook(s.persist)
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	buckets := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		buckets[bucket] = payload
		s.written[bucket] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	snapshot, err := memory.SnapshotFromBuckets(buckets)
	if err != nil {
		return err
	}
	return s.ImportState(snapshot)
}

// persist writes snapshot in one transaction. Buckets of kinds that no
// longer hold records are rewritten empty.
func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) (retErr error) {
	buckets, err := snapshot.Buckets()
	if err != nil {
		return err
	}
	for name := range s.written {
		if _, ok := buckets[name]; !ok {
			buckets[name] = []byte("[]")
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for name, data := range buckets {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, name, data); err != nil {
			return fmt.Errorf("upsert %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for name := range buckets {
		s.written[name] = true
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
