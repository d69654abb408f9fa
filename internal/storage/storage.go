// Package storage defines the backend-agnostic contracts every storage
// engine (sqlite, ephemeral) implements, plus the SQLite connection
// string helper shared by both the production engine and its read-only
// tooling.
package storage

import (
	"context"

	"github.com/dotwork/issuegraph/internal/types"
)

// IssueRepository is the CRUD and query surface for issues.
type IssueRepository interface {
	Get(ctx context.Context, id types.ID) (*types.Issue, error)
	Exists(ctx context.Context, id types.ID) (bool, error)
	Save(ctx context.Context, issue *types.Issue) error
	Delete(ctx context.Context, id types.ID) error
	List(ctx context.Context, filter types.IssueFilter, opts types.ListOptions) ([]*types.Issue, error)
	Search(ctx context.Context, query string, filter types.IssueFilter, opts types.ListOptions) ([]*types.Issue, error)
	EpicCounts(ctx context.Context, epicID types.ID) (types.EpicCounts, error)
	ListLabels(ctx context.Context, projectID *types.ID) ([]types.LabelCount, error)
}

// DependencyRepository manages the typed edges between issues.
type DependencyRepository interface {
	Add(ctx context.Context, dep *types.Dependency) error
	Remove(ctx context.Context, fromID, toID types.ID, kind types.DependencyKind) error
	ListFor(ctx context.Context, issueID types.ID) ([]*types.Dependency, error)
	// AdjacencyForKind returns the full from->[]to edge map for a
	// single dependency kind in one round trip, for in-memory cycle
	// detection and traversal (never a per-level/per-node query).
	AdjacencyForKind(ctx context.Context, kind types.DependencyKind) (map[types.ID][]types.ID, error)
	ReadyQueue(ctx context.Context, projectID *types.ID, opts types.ListOptions) ([]*types.Issue, error)
}

// CommentRepository stores append-only notes on issues.
type CommentRepository interface {
	Add(ctx context.Context, comment *types.Comment) error
	ListFor(ctx context.Context, issueID types.ID) ([]*types.Comment, error)
}

// ProjectRepository manages the project namespace issues attach to.
type ProjectRepository interface {
	Get(ctx context.Context, id types.ID) (*types.Project, error)
	GetByName(ctx context.Context, name string) (*types.Project, error)
	Save(ctx context.Context, project *types.Project) error
	Delete(ctx context.Context, id types.ID) error
	List(ctx context.Context) ([]*types.Project, error)
	HasIssues(ctx context.Context, id types.ID) (bool, error)
}

// AuditRepository appends and reads the audit trail.
type AuditRepository interface {
	Append(ctx context.Context, entry *types.AuditEntry) error
	ListFor(ctx context.Context, entityID string, opts types.ListOptions) ([]*types.AuditEntry, error)
}

// ConfigRepository stores small typed key/value settings (e.g. the
// issue id prefix) inside the same store.
type ConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Store is the full storage engine contract. A Store is also the
// handle a Unit of Work acquires repositories from; BeginTx starts a
// scoped transaction that is itself a Store, so service code written
// against Store works identically inside or outside a transaction.
type Store interface {
	Issues() IssueRepository
	Dependencies() DependencyRepository
	Comments() CommentRepository
	Projects() ProjectRepository
	Audit() AuditRepository
	Config() ConfigRepository

	// BeginTx starts a transaction scope. Callers must Commit or
	// Rollback the returned Tx; Close is a no-op once one of those has
	// run and safe to defer unconditionally.
	BeginTx(ctx context.Context) (Tx, error)

	Close() error
}

// Tx is a Store bound to a single transaction.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}
