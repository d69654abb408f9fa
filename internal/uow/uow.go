// Package uow implements the Unit of Work: a transactional scope that
// lazily caches one repository handle per entity and guarantees the
// underlying session is committed, rolled back, or closed exactly
// once.
package uow

import (
	"context"
	"fmt"

	"github.com/dotwork/issuegraph/internal/debug"
	"github.com/dotwork/issuegraph/internal/storage"
)

// UnitOfWork binds a storage.Store (itself either the root store or a
// single transaction) and caches the repository accessors it hands
// out. Service code is written against a *UnitOfWork the same way
// whether it is running inside Run's transaction or against the
// top-level store.
type UnitOfWork struct {
	store storage.Store

	issues       storage.IssueRepository
	dependencies storage.DependencyRepository
	comments     storage.CommentRepository
	projects     storage.ProjectRepository
	audit        storage.AuditRepository
	config       storage.ConfigRepository

	closed bool
}

// New wraps store in a UnitOfWork that does not own a transaction;
// callers that need transactional isolation use Run instead.
func New(store storage.Store) *UnitOfWork {
	return &UnitOfWork{store: store}
}

func (u *UnitOfWork) Issues() storage.IssueRepository {
	if u.issues == nil {
		u.issues = u.store.Issues()
	}
	return u.issues
}

func (u *UnitOfWork) Dependencies() storage.DependencyRepository {
	if u.dependencies == nil {
		u.dependencies = u.store.Dependencies()
	}
	return u.dependencies
}

func (u *UnitOfWork) Comments() storage.CommentRepository {
	if u.comments == nil {
		u.comments = u.store.Comments()
	}
	return u.comments
}

func (u *UnitOfWork) Projects() storage.ProjectRepository {
	if u.projects == nil {
		u.projects = u.store.Projects()
	}
	return u.projects
}

func (u *UnitOfWork) Audit() storage.AuditRepository {
	if u.audit == nil {
		u.audit = u.store.Audit()
	}
	return u.audit
}

func (u *UnitOfWork) Config() storage.ConfigRepository {
	if u.config == nil {
		u.config = u.store.Config()
	}
	return u.config
}

// Session exposes the underlying store for callers that need to reach
// it directly rather than through the cached repository accessors.
func (u *UnitOfWork) Session() storage.Store { return u.store }

// Commit delegates to the underlying transaction. Calling Commit on a
// UnitOfWork not backed by a Tx is a programmer error.
func (u *UnitOfWork) Commit() error {
	tx, ok := u.store.(storage.Tx)
	if !ok {
		return fmt.Errorf("uow: Commit called on a non-transactional unit of work")
	}
	return tx.Commit()
}

// Rollback delegates to the underlying transaction.
func (u *UnitOfWork) Rollback() error {
	tx, ok := u.store.(storage.Tx)
	if !ok {
		return fmt.Errorf("uow: Rollback called on a non-transactional unit of work")
	}
	return tx.Rollback()
}

// Close releases the session and clears the repository cache. It is
// idempotent and logs rather than raises on failure, per the resource
// model's "scoped acquisition with guaranteed release" contract.
func (u *UnitOfWork) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.issues, u.dependencies, u.comments, u.projects, u.audit, u.config = nil, nil, nil, nil, nil, nil

	if err := u.store.Close(); err != nil {
		debug.Logf("uow: close failed: %v\n", err)
		return nil
	}
	return nil
}

// Run opens a transaction-scoped UnitOfWork, invokes fn, then commits
// on success or rolls back on error or panic, always closing
// afterward. This is the one supported pattern for scoped acquisition.
func Run(ctx context.Context, store storage.Store, fn func(*UnitOfWork) error) error {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	u := New(tx)
	defer func() {
		if p := recover(); p != nil {
			if rbErr := u.Rollback(); rbErr != nil {
				debug.Logf("uow: rollback after panic failed: %v\n", rbErr)
			}
			_ = u.Close()
			panic(p)
		}
		_ = u.Close()
	}()

	if err := fn(u); err != nil {
		if rbErr := u.Rollback(); rbErr != nil {
			debug.Logf("uow: rollback after error failed: %v\n", rbErr)
		}
		return err
	}
	if err := u.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
