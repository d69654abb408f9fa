package service

import (
	"context"
	"fmt"
	"time"

	"github.com/dotwork/issuegraph/internal/audit"
	"github.com/dotwork/issuegraph/internal/idgen"
	"github.com/dotwork/issuegraph/internal/types"
	"github.com/dotwork/issuegraph/internal/uow"
)

// EpicService reports epic progress without ever materializing every
// child issue (spec §4.8).
type EpicService struct {
	u *uow.UnitOfWork
}

func NewEpicService(u *uow.UnitOfWork) *EpicService { return &EpicService{u: u} }

// Counts returns the open/closed/total breakdown for an epic via a
// single GROUP BY, never a full scan of its issues.
func (s *EpicService) Counts(ctx context.Context, epicID types.ID) (types.EpicCounts, error) {
	if _, err := s.u.Issues().Get(ctx, epicID); err != nil {
		return types.EpicCounts{}, fmt.Errorf("resolve epic %s: %w", epicID, err)
	}
	counts, err := s.u.Issues().EpicCounts(ctx, epicID)
	if err != nil {
		return types.EpicCounts{}, fmt.Errorf("epic counts: %w", err)
	}
	return counts, nil
}

// ListIssues lists the issues attached to an epic, clamped to
// SAFE_LIMIT by ListOptions.Normalize.
func (s *EpicService) ListIssues(ctx context.Context, epicID types.ID, opts types.ListOptions) ([]*types.Issue, error) {
	filter := types.IssueFilter{EpicID: &epicID}
	issues, err := s.u.Issues().List(ctx, filter, opts.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list issues for epic %s: %w", epicID, err)
	}
	return issues, nil
}

// LabelService exposes the label namespace, which has no table of its
// own — "all labels" is a DISTINCT-with-counts query.
type LabelService struct {
	u *uow.UnitOfWork
}

func NewLabelService(u *uow.UnitOfWork) *LabelService { return &LabelService{u: u} }

// All returns every label in use, optionally scoped to a project, with
// usage counts.
func (s *LabelService) All(ctx context.Context, projectID *types.ID) ([]types.LabelCount, error) {
	counts, err := s.u.Issues().ListLabels(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	return counts, nil
}

// ProjectService enforces the unique-by-name and cascade-delete
// invariants over the project namespace (spec §4.8).
type ProjectService struct {
	u     *uow.UnitOfWork
	audit *audit.Log
}

func NewProjectService(u *uow.UnitOfWork, auditLog *audit.Log) *ProjectService {
	return &ProjectService{u: u, audit: auditLog}
}

// Create rejects a duplicate project name before the repository's own
// unique-constraint mapping would (cheaper, and a cleaner error).
func (s *ProjectService) Create(ctx context.Context, name, description, owner, user string) (*types.Project, error) {
	if _, err := s.u.Projects().GetByName(ctx, name); err == nil {
		return nil, types.NewValidationError("name", "a project with this name already exists")
	}
	id, err := idgen.Generate(ctx, "proj", alwaysUnusedProject(s.u))
	if err != nil {
		return nil, fmt.Errorf("allocate project id: %w", err)
	}
	project := &types.Project{ID: id, Name: name, Description: description, Owner: owner, CreatedAt: time.Now()}
	if err := s.u.Projects().Save(ctx, project); err != nil {
		return nil, fmt.Errorf("save project: %w", err)
	}
	if s.audit != nil && user != "" {
		_ = s.audit.Record(ctx, types.ActionCreate, "project", id.String(), user, "created "+name)
	}
	return project, nil
}

func alwaysUnusedProject(u *uow.UnitOfWork) idgen.Exists {
	return func(ctx context.Context, id types.ID) (bool, error) {
		_, err := u.Projects().Get(ctx, id)
		if err == nil {
			return true, nil
		}
		return false, nil
	}
}

// Delete refuses to remove a project that still has issues attached
// unless cascade is set. Cascade here means "accept responsibility for
// the orphaned issues at the caller's layer" — this service does not
// delete issues itself. What becomes of them depends on the store: the
// SQLite schema's ON DELETE CASCADE removes them with the project, while
// the in-memory store leaves them in place.
func (s *ProjectService) Delete(ctx context.Context, id types.ID, cascade bool, user string) error {
	hasIssues, err := s.u.Projects().HasIssues(ctx, id)
	if err != nil {
		return fmt.Errorf("check issues for project %s: %w", id, err)
	}
	if hasIssues && !cascade {
		return types.NewValidationError("cascade", "project has issues attached; set cascade=true to delete anyway")
	}
	if err := s.u.Projects().Delete(ctx, id); err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if s.audit != nil && user != "" {
		_ = s.audit.Record(ctx, types.ActionDelete, "project", id.String(), user, "deleted")
	}
	return nil
}

func (s *ProjectService) List(ctx context.Context) ([]*types.Project, error) {
	projects, err := s.u.Projects().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}
