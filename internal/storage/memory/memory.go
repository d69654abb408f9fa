// Package memory implements storage.Store entirely with in-process
// data structures. It backs the unit tests that exercise the service
// layer without paying for a SQLite round trip, and gives contributors
// a fast storage engine to develop against before touching SQL.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dotwork/issuegraph/internal/storage"
	"github.com/dotwork/issuegraph/internal/types"
)

// Store is an in-memory storage.Store. All state lives behind a single
// RWMutex; BeginTx returns a snapshot-isolated copy that commits by
// replacing the parent's state wholesale.
type Store struct {
	mu           *sync.RWMutex
	issues       map[types.ID]*types.Issue
	deps         []*types.Dependency
	comments     map[types.ID][]*types.Comment
	projects     map[types.ID]*types.Project
	projectNames map[string]types.ID
	audit        []*types.AuditEntry
	config       map[string]string
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		mu:           &sync.RWMutex{},
		issues:       make(map[types.ID]*types.Issue),
		comments:     make(map[types.ID][]*types.Comment),
		projects:     make(map[types.ID]*types.Project),
		projectNames: make(map[string]types.ID),
		config:       make(map[string]string),
	}
}

func (s *Store) Issues() storage.IssueRepository           { return issueRepo{s} }
func (s *Store) Dependencies() storage.DependencyRepository { return depRepo{s} }
func (s *Store) Comments() storage.CommentRepository        { return commentRepo{s} }
func (s *Store) Projects() storage.ProjectRepository        { return projectRepo{s} }
func (s *Store) Audit() storage.AuditRepository              { return auditRepo{s} }
func (s *Store) Config() storage.ConfigRepository            { return configRepo{s} }

func (s *Store) Close() error { return nil }

// clone deep-copies the store's state for transaction isolation.
func (s *Store) clone() *Store {
	c := New()
	for id, iss := range s.issues {
		c.issues[id] = iss.Clone()
	}
	c.deps = append([]*types.Dependency(nil), s.deps...)
	for id, cs := range s.comments {
		c.comments[id] = append([]*types.Comment(nil), cs...)
	}
	for id, p := range s.projects {
		pc := *p
		c.projects[id] = &pc
	}
	for n, id := range s.projectNames {
		c.projectNames[n] = id
	}
	c.audit = append([]*types.AuditEntry(nil), s.audit...)
	for k, v := range s.config {
		c.config[k] = v
	}
	return c
}

// tx is a transaction scope: a private clone of the store's state that
// commits by swapping into the parent under its lock.
type tx struct {
	*Store
	parent *Store
	done   bool
}

func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	s.mu.Lock()
	snap := s.clone()
	s.mu.Unlock()
	snap.mu = &sync.RWMutex{}
	return &tx{Store: snap, parent: s}, nil
}

func (t *tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	t.parent.issues = t.Store.issues
	t.parent.deps = t.Store.deps
	t.parent.comments = t.Store.comments
	t.parent.projects = t.Store.projects
	t.parent.projectNames = t.Store.projectNames
	t.parent.audit = t.Store.audit
	t.parent.config = t.Store.config
	return nil
}

func (t *tx) Rollback() error {
	t.done = true
	return nil
}

type issueRepo struct{ s *Store }

func (r issueRepo) Get(ctx context.Context, id types.ID) (*types.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	iss, ok := r.s.issues[id]
	if !ok {
		return nil, types.NewNotFoundError("issue", id.String())
	}
	return iss.Clone(), nil
}

func (r issueRepo) Exists(ctx context.Context, id types.ID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.issues[id]
	return ok, nil
}

func (r issueRepo) Save(ctx context.Context, issue *types.Issue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.issues[issue.ID] = issue.Clone()
	return nil
}

func (r issueRepo) Delete(ctx context.Context, id types.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.issues[id]; !ok {
		return types.NewNotFoundError("issue", id.String())
	}
	delete(r.s.issues, id)
	delete(r.s.comments, id)
	kept := r.s.deps[:0:0]
	for _, d := range r.s.deps {
		if d.FromIssueID != id && d.ToIssueID != id {
			kept = append(kept, d)
		}
	}
	r.s.deps = kept
	return nil
}

func matchesFilter(iss *types.Issue, f types.IssueFilter) bool {
	if f.ProjectID != nil && iss.ProjectID != *f.ProjectID {
		return false
	}
	if f.Status != nil && iss.Status != *f.Status {
		return false
	}
	if f.Priority != nil && iss.Priority != *f.Priority {
		return false
	}
	if f.Type != nil && iss.Type != *f.Type {
		return false
	}
	if f.EpicID != nil && iss.EpicID != *f.EpicID {
		return false
	}
	if f.Assignee != nil && !iss.HasAssignee(*f.Assignee) {
		return false
	}
	if f.Label != nil && !iss.HasLabel(*f.Label) {
		return false
	}
	return true
}

func sortIssues(issues []*types.Issue, sortPolicy types.SortPolicy) {
	ascending := func(i, j int) bool {
		a, b := issues[i], issues[j]
		switch sortPolicy.Field {
		case types.SortUpdatedAt:
			return a.UpdatedAt.Before(b.UpdatedAt)
		case types.SortPriority:
			return a.Priority < b.Priority
		case types.SortStatus:
			return a.Status < b.Status
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	if sortPolicy.Direction == types.SortDesc {
		sort.SliceStable(issues, func(i, j int) bool { return ascending(j, i) })
		return
	}
	sort.SliceStable(issues, ascending)
}

func (r issueRepo) List(ctx context.Context, filter types.IssueFilter, opts types.ListOptions) ([]*types.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	opts = opts.Normalize()

	var out []*types.Issue
	for _, iss := range r.s.issues {
		if matchesFilter(iss, filter) {
			out = append(out, iss.Clone())
		}
	}
	sortIssues(out, opts.Sort)
	return paginate(out, opts), nil
}

func paginate(issues []*types.Issue, opts types.ListOptions) []*types.Issue {
	if opts.Offset >= len(issues) {
		return nil
	}
	end := opts.Offset + opts.Limit
	if end > len(issues) {
		end = len(issues)
	}
	return issues[opts.Offset:end]
}

func (r issueRepo) Search(ctx context.Context, query string, filter types.IssueFilter, opts types.ListOptions) ([]*types.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	opts = opts.Normalize()
	q := strings.ToLower(strings.TrimSpace(query))

	var out []*types.Issue
	for _, iss := range r.s.issues {
		if !matchesFilter(iss, filter) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(iss.SearchText()), q) {
			continue
		}
		out = append(out, iss.Clone())
	}
	sortIssues(out, opts.Sort)
	return paginate(out, opts), nil
}

func (r issueRepo) EpicCounts(ctx context.Context, epicID types.ID) (types.EpicCounts, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var c types.EpicCounts
	for _, iss := range r.s.issues {
		if iss.EpicID != epicID {
			continue
		}
		c.Total++
		if iss.Status.Terminal() {
			c.Closed++
		} else {
			c.Open++
		}
	}
	return c, nil
}

func (r issueRepo) ListLabels(ctx context.Context, projectID *types.ID) ([]types.LabelCount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[string]int)
	for _, iss := range r.s.issues {
		if projectID != nil && iss.ProjectID != *projectID {
			continue
		}
		for _, l := range iss.Labels {
			counts[l]++
		}
	}
	out := make([]types.LabelCount, 0, len(counts))
	for l, c := range counts {
		out = append(out, types.LabelCount{Label: l, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

type depRepo struct{ s *Store }

func (r depRepo) Add(ctx context.Context, dep *types.Dependency) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, d := range r.s.deps {
		if d.FromIssueID == dep.FromIssueID && d.ToIssueID == dep.ToIssueID && d.Kind == dep.Kind {
			return nil // an existing edge is left as it is, like the SQLite store's ON CONFLICT DO NOTHING
		}
	}
	cp := *dep
	r.s.deps = append(r.s.deps, &cp)
	return nil
}

func (r depRepo) Remove(ctx context.Context, fromID, toID types.ID, kind types.DependencyKind) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.deps[:0:0]
	for _, d := range r.s.deps {
		if d.FromIssueID == fromID && d.ToIssueID == toID && d.Kind == kind {
			continue
		}
		kept = append(kept, d)
	}
	r.s.deps = kept
	return nil
}

func (r depRepo) ListFor(ctx context.Context, issueID types.ID) ([]*types.Dependency, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*types.Dependency
	for _, d := range r.s.deps {
		if d.FromIssueID == issueID || d.ToIssueID == issueID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r depRepo) AdjacencyForKind(ctx context.Context, kind types.DependencyKind) (map[types.ID][]types.ID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	adj := make(map[types.ID][]types.ID)
	for _, d := range r.s.deps {
		if d.Kind == kind {
			adj[d.FromIssueID] = append(adj[d.FromIssueID], d.ToIssueID)
		}
	}
	return adj, nil
}

func (r depRepo) ReadyQueue(ctx context.Context, projectID *types.ID, opts types.ListOptions) ([]*types.Issue, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	opts = opts.Normalize()

	blockedBy := make(map[types.ID]int)
	for _, d := range r.s.deps {
		switch d.Kind {
		case types.DepBlocks:
			if blocker, ok := r.s.issues[d.FromIssueID]; ok && !blocker.Status.Terminal() {
				blockedBy[d.ToIssueID]++
			}
		case types.DepDependsOn:
			if target, ok := r.s.issues[d.ToIssueID]; ok && !target.Status.Terminal() {
				blockedBy[d.FromIssueID]++
			}
		}
	}

	var out []*types.Issue
	for id, iss := range r.s.issues {
		if projectID != nil && iss.ProjectID != *projectID {
			continue
		}
		if iss.Status.Terminal() || iss.Status == types.StatusBlocked {
			continue
		}
		if blockedBy[id] > 0 {
			continue
		}
		out = append(out, iss.Clone())
	}
	sortIssues(out, types.SortPolicy{Field: types.SortCreatedAt, Direction: types.SortAsc})
	sortIssues(out, types.SortPolicy{Field: types.SortPriority, Direction: types.SortAsc})
	return paginate(out, opts), nil
}

type commentRepo struct{ s *Store }

func (r commentRepo) Add(ctx context.Context, c *types.Comment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	r.s.comments[c.IssueID] = append(r.s.comments[c.IssueID], &cp)
	return nil
}

func (r commentRepo) ListFor(ctx context.Context, issueID types.ID) ([]*types.Comment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return append([]*types.Comment(nil), r.s.comments[issueID]...), nil
}

type projectRepo struct{ s *Store }

func (r projectRepo) Get(ctx context.Context, id types.ID) (*types.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, types.NewNotFoundError("project", id.String())
	}
	cp := *p
	return &cp, nil
}

func (r projectRepo) GetByName(ctx context.Context, name string) (*types.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.projectNames[name]
	if !ok {
		return nil, types.NewNotFoundError("project", name)
	}
	cp := *r.s.projects[id]
	return &cp, nil
}

func (r projectRepo) Save(ctx context.Context, p *types.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *p
	r.s.projects[p.ID] = &cp
	r.s.projectNames[p.Name] = p.ID
	return nil
}

func (r projectRepo) Delete(ctx context.Context, id types.ID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.projects[id]
	if !ok {
		return types.NewNotFoundError("project", id.String())
	}
	delete(r.s.projects, id)
	delete(r.s.projectNames, p.Name)
	return nil
}

func (r projectRepo) List(ctx context.Context) ([]*types.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*types.Project, 0, len(r.s.projects))
	for _, p := range r.s.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r projectRepo) HasIssues(ctx context.Context, id types.ID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, iss := range r.s.issues {
		if iss.ProjectID == id {
			return true, nil
		}
	}
	return false, nil
}

type auditRepo struct{ s *Store }

func (r auditRepo) Append(ctx context.Context, e *types.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.audit = append(r.s.audit, &cp)
	return nil
}

func (r auditRepo) ListFor(ctx context.Context, entityID string, opts types.ListOptions) ([]*types.AuditEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	opts = opts.Normalize()
	var out []*types.AuditEntry
	for _, e := range r.s.audit {
		if e.EntityID == entityID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if opts.Offset < len(out) {
		end := opts.Offset + opts.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[opts.Offset:end]
	} else {
		out = nil
	}
	return out, nil
}

type configRepo struct{ s *Store }

func (r configRepo) Get(ctx context.Context, key string) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.config[key], nil
}

func (r configRepo) Set(ctx context.Context, key, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.config[key] = value
	return nil
}
