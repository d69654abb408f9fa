// Package issuegraph is the public facade over the storage and service
// layers: one call opens a database and wires every service (issues,
// dependencies, epics, labels, projects, bulk operations, search) onto
// it, the same way the teacher's top-level package wired a single
// Storage handle onto its command surface.
package issuegraph

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/dotwork/issuegraph/internal/audit"
	"github.com/dotwork/issuegraph/internal/service"
	"github.com/dotwork/issuegraph/internal/storage"
	"github.com/dotwork/issuegraph/internal/storage/memory"
	"github.com/dotwork/issuegraph/internal/storage/sqlite"
	"github.com/dotwork/issuegraph/internal/types"
	"github.com/dotwork/issuegraph/internal/uow"
)

// Type and constant aliases so callers never have to import
// internal/types directly.
type (
	ID             = types.ID
	Issue          = types.Issue
	Status         = types.Status
	Priority       = types.Priority
	IssueType      = types.IssueType
	DependencyKind = types.DependencyKind
	Project        = types.Project
	Dependency     = types.Dependency
	Comment        = types.Comment
	IssueFilter    = types.IssueFilter
	ListOptions    = types.ListOptions
	ScopeFilter    = types.ScopeFilter
)

const (
	StatusProposed   = types.StatusProposed
	StatusInProgress = types.StatusInProgress
	StatusBlocked    = types.StatusBlocked
	StatusCompleted  = types.StatusCompleted
	StatusClosed     = types.StatusClosed

	TypeTask    = types.TypeTask
	TypeBug     = types.TypeBug
	TypeFeature = types.TypeFeature
	TypeEpic    = types.TypeEpic
	TypeStory   = types.TypeStory

	DepBlocks         = types.DepBlocks
	DepDependsOn      = types.DepDependsOn
	DepRelatedTo      = types.DepRelatedTo
	DepDiscoveredFrom = types.DepDiscoveredFrom
)

// Store is the backend-agnostic persistence contract; the stores that
// OpenSQLite and OpenMemory wire into an App both satisfy it.
type Store = storage.Store

// App wires one Store to every service in the core. It is the single
// object a CLI or embedding program needs to hold.
type App struct {
	Store storage.Store
	Audit *audit.Log

	Issues       *service.IssueService
	Dependencies *service.DependencyService
	Epics        *service.EpicService
	Labels       *service.LabelService
	Projects     *service.ProjectService
	Bulk         *service.BulkService
	Search       *service.SearchService
	Scope        *service.ScopeCache

	watcher *fsnotify.Watcher
}

// OpenSQLite opens (creating if necessary) a SQLite-backed App at
// path. auditSink may be nil to disable the mirrored audit stream.
func OpenSQLite(ctx context.Context, path string, auditSink io.Writer) (*App, error) {
	store, err := sqlite.Open(ctx, path, false)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	app := newApp(store, auditSink)
	if err := app.watchDir(filepath.Dir(path)); err != nil {
		// A missing watcher degrades to "cache expires on its own TTL
		// instead of immediately" rather than failing Open outright.
		app.watcher = nil
	}
	return app, nil
}

// OpenMemory builds an App over the ephemeral in-memory backend, for
// tests and short-lived tooling that never touches disk.
func OpenMemory() *App {
	return newApp(memory.New(), nil)
}

func newApp(store storage.Store, auditSink io.Writer) *App {
	u := uow.New(store)
	auditLog := audit.New(store.Audit(), auditSink)
	scope := service.NewScopeCache(store)
	return &App{
		Store:        store,
		Audit:        auditLog,
		Issues:       service.NewIssueService(u, auditLog),
		Dependencies: service.NewDependencyService(u, auditLog),
		Epics:        service.NewEpicService(u),
		Labels:       service.NewLabelService(u),
		Projects:     service.NewProjectService(u, auditLog),
		Bulk:         service.NewBulkService(store, auditLog),
		Search:       service.NewSearchService(store, scope),
		Scope:        scope,
	}
}

// watchDir starts an fsnotify watch on the database file's directory
// so a long-lived process notices an external tool swapping the file
// out from under it and invalidates the scope cache immediately
// instead of waiting out its TTL.
func (a *App) watchDir(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	a.watcher = w
	go func() {
		for event := range w.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				a.Scope.Invalidate()
			}
		}
	}()
	return nil
}

// Close releases the watcher (if any) and the underlying store.
func (a *App) Close() error {
	if a.watcher != nil {
		_ = a.watcher.Close()
	}
	return a.Store.Close()
}
