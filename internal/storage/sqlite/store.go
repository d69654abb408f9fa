// Package sqlite is the production storage engine: a single SQLite
// file accessed through the pure-Go ncruces/go-sqlite3 driver (no cgo),
// with an FTS5 index kept in sync via triggers. Dependency cycle
// detection is not done here — AdjacencyForKind returns the raw edge
// map in one round trip and the Dependency Service DFSes it in memory.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/dotwork/issuegraph/internal/storage"
)

// Store is a storage.Store backed by a *sql.DB or a single *sql.Tx. The
// same type backs both so repository code never has to branch on
// whether it is running inside a transaction.
type Store struct {
	db  *sql.DB
	tx  *sql.Tx
	ctx context.Context
}

// querier is the subset of *sql.DB / *sql.Tx every repository uses.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Open creates or opens a SQLite database at path and applies the
// schema. readOnly controls whether the connection string enables
// SQLite's mode=ro.
func Open(ctx context.Context, path string, readOnly bool) (*Store, error) {
	conn := storage.SQLiteConnString(path, readOnly)
	db, err := sql.Open("sqlite3", conn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite write concurrency is serialized regardless; avoid pool contention.

	s := &Store{db: db, ctx: ctx}
	if !readOnly {
		if err := s.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion)
		return err
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != currentSchemaVersion {
		return fmt.Errorf("schema version %d does not match expected %d; no migration path registered", version, currentSchemaVersion)
	}
	return nil
}

func (s *Store) Issues() storage.IssueRepository           { return issueRepo{s} }
func (s *Store) Dependencies() storage.DependencyRepository { return depRepo{s} }
func (s *Store) Comments() storage.CommentRepository       { return commentRepo{s} }
func (s *Store) Projects() storage.ProjectRepository       { return projectRepo{s} }
func (s *Store) Audit() storage.AuditRepository             { return auditRepo{s} }
func (s *Store) Config() storage.ConfigRepository           { return configRepo{s} }

// BeginTx starts a transaction. The returned Tx wraps a *sql.Tx in a
// Store so repository code is identical in and out of a transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	if s.tx != nil {
		return nil, fmt.Errorf("nested transactions are not supported")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &txStore{Store: &Store{db: s.db, tx: tx, ctx: ctx}}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type txStore struct {
	*Store
	done bool
}

func (t *txStore) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Commit()
}

func (t *txStore) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// Close on a Tx is a safe no-op; callers must Commit or Rollback.
func (t *txStore) Close() error { return nil }
