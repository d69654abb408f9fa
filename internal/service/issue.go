// Package service implements the domain-level operations layered over
// the repositories: status transitions, label/epic reassignment, merge
// semantics, duplicate detection, and atomic bulk operations. Every
// service is constructed from a *uow.UnitOfWork and does all its work
// through that UnitOfWork's repositories — never by reaching around it
// into a repository directly.
package service

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dotwork/issuegraph/internal/audit"
	"github.com/dotwork/issuegraph/internal/idgen"
	"github.com/dotwork/issuegraph/internal/types"
	"github.com/dotwork/issuegraph/internal/uow"
)

// IssueService implements the create/update/transition/merge surface
// of spec §4.6 over a single UnitOfWork.
type IssueService struct {
	u     *uow.UnitOfWork
	audit *audit.Log
}

// NewIssueService builds an IssueService. auditLog may be nil to
// disable audit emission (e.g. read-only tooling).
func NewIssueService(u *uow.UnitOfWork, auditLog *audit.Log) *IssueService {
	return &IssueService{u: u, audit: auditLog}
}

// CreateIssueInput carries the fields a caller may set on creation;
// zero values are left at their Issue defaults.
type CreateIssueInput struct {
	ProjectID          types.ID
	Title              string
	Description        string
	DesignNotes        string
	AcceptanceCriteria string
	Priority           types.Priority
	Type               types.IssueType
	EpicID             types.ID
	Labels             []string
	Assignees          []string
	SourceURL          string
	References         []string
	User               string
}

func (s *IssueService) record(ctx context.Context, action types.AuditAction, entityID, user, details string) {
	if s.audit == nil || user == "" {
		return
	}
	_ = s.audit.Record(ctx, action, "issue", entityID, user, details)
}

// CreateIssue validates input, allocates an id, persists the issue,
// and emits a create audit entry when a user is supplied.
func (s *IssueService) CreateIssue(ctx context.Context, in CreateIssueInput) (*types.Issue, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, types.NewValidationError("title", "required")
	}
	if in.Type == "" {
		in.Type = types.TypeTask
	}
	if !in.Type.IsValid() {
		return nil, types.NewValidationError("type", "unknown type "+string(in.Type))
	}
	if in.EpicID != "" {
		epic, err := s.u.Issues().Get(ctx, in.EpicID)
		if err != nil {
			return nil, fmt.Errorf("resolve epic_id: %w", err)
		}
		if epic.Type != types.TypeEpic {
			return nil, types.NewValidationError("epic_id", "does not refer to an epic")
		}
	}
	if in.ProjectID != "" {
		if _, err := s.u.Projects().Get(ctx, in.ProjectID); err != nil {
			return nil, fmt.Errorf("resolve project_id: %w", err)
		}
	}

	prefix := "issue"
	if in.Type == types.TypeEpic {
		prefix = "epic"
	}
	id, err := idgen.Generate(ctx, prefix, s.u.Issues().Exists)
	if err != nil {
		return nil, fmt.Errorf("allocate issue id: %w", err)
	}

	now := time.Now()
	issue := &types.Issue{
		ID:                 id,
		ProjectID:          in.ProjectID,
		Title:              in.Title,
		Description:        in.Description,
		DesignNotes:        in.DesignNotes,
		AcceptanceCriteria: in.AcceptanceCriteria,
		Status:             types.StatusProposed,
		Priority:           in.Priority,
		Type:               in.Type,
		Assignees:          dedupStrings(in.Assignees),
		Labels:             dedupStrings(in.Labels),
		EpicID:             in.EpicID,
		SourceURL:          in.SourceURL,
		References:         in.References,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	issue.ContentHash = issue.ComputeContentHash()

	if err := issue.Validate(); err != nil {
		return nil, err
	}
	if err := s.u.Issues().Save(ctx, issue); err != nil {
		return nil, fmt.Errorf("save issue: %w", err)
	}
	s.record(ctx, types.ActionCreate, id.String(), in.User, "created")
	return issue, nil
}

// IssueChanges is a sparse set of field updates for UpdateIssue; nil
// pointers/slices leave the corresponding field untouched.
type IssueChanges struct {
	Title              *string
	Description        *string
	DesignNotes        *string
	AcceptanceCriteria *string
	Priority           *types.Priority
	BlockedReason      *string
	SourceURL          *string
	References         []string
	Status             *types.Status
	User               string
}

// UpdateIssue merges changes into the stored issue, checks invariants,
// and bumps updated_at — unless the resulting content is byte-for-byte
// identical, in which case the update is a no-op (no bump, no audit).
// A Status change routes through Transition instead of being applied
// directly, so the state machine is never bypassed.
func (s *IssueService) UpdateIssue(ctx context.Context, id types.ID, changes IssueChanges) (*types.Issue, error) {
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	updated := issue.Clone()
	if changes.Title != nil {
		updated.Title = *changes.Title
	}
	if changes.Description != nil {
		updated.Description = *changes.Description
	}
	if changes.DesignNotes != nil {
		updated.DesignNotes = *changes.DesignNotes
	}
	if changes.AcceptanceCriteria != nil {
		updated.AcceptanceCriteria = *changes.AcceptanceCriteria
	}
	if changes.Priority != nil {
		updated.Priority = *changes.Priority
	}
	if changes.BlockedReason != nil {
		updated.BlockedReason = *changes.BlockedReason
	}
	if changes.SourceURL != nil {
		updated.SourceURL = *changes.SourceURL
	}
	if changes.References != nil {
		updated.References = changes.References
	}

	if changes.Status != nil && *changes.Status != updated.Status {
		return s.Transition(ctx, id, *changes.Status, changes.User)
	}

	newHash := updated.ComputeContentHash()
	if newHash == issue.ContentHash && updated.Priority == issue.Priority &&
		updated.DesignNotes == issue.DesignNotes && updated.AcceptanceCriteria == issue.AcceptanceCriteria &&
		updated.BlockedReason == issue.BlockedReason && updated.SourceURL == issue.SourceURL &&
		slices.Equal(updated.References, issue.References) {
		return issue, nil
	}
	updated.ContentHash = newHash
	updated.UpdatedAt = time.Now()

	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.u.Issues().Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("save issue: %w", err)
	}
	s.record(ctx, types.ActionUpdate, id.String(), changes.User, "updated")
	return updated, nil
}

// Transition enforces the status state machine (spec §4.6): entering
// completed/closed sets closed_at, leaving them clears it.
func (s *IssueService) Transition(ctx context.Context, id types.ID, next types.Status, user string) (*types.Issue, error) {
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	if !next.IsValid() {
		return nil, types.NewValidationError("status", "unknown status "+string(next))
	}
	if !issue.Status.CanTransition(next) {
		return nil, &types.InvalidTransitionError{From: issue.Status, To: next}
	}

	updated := issue.Clone()
	updated.Status = next
	now := time.Now()
	if next.Terminal() {
		updated.ClosedAt = &now
	} else {
		updated.ClosedAt = nil
	}
	if next != types.StatusBlocked {
		updated.BlockedReason = ""
	}
	updated.UpdatedAt = now
	updated.ContentHash = updated.ComputeContentHash()

	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.u.Issues().Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("save issue: %w", err)
	}
	s.record(ctx, types.ActionTransition, id.String(), user, fmt.Sprintf("%s -> %s", issue.Status, next))
	return updated, nil
}

// AddLabel is idempotent: adding a label already present is a no-op.
func (s *IssueService) AddLabel(ctx context.Context, id types.ID, label, user string) (*types.Issue, error) {
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	if issue.HasLabel(label) {
		return issue, nil
	}
	updated := issue.Clone()
	updated.Labels = append(updated.Labels, label)
	return s.saveLabelChange(ctx, issue, updated, types.ActionLabelAdd, user)
}

// RemoveLabel is idempotent: removing an absent label is a no-op.
func (s *IssueService) RemoveLabel(ctx context.Context, id types.ID, label, user string) (*types.Issue, error) {
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	if !issue.HasLabel(label) {
		return issue, nil
	}
	updated := issue.Clone()
	var kept []string
	for _, l := range updated.Labels {
		if l != label {
			kept = append(kept, l)
		}
	}
	updated.Labels = kept
	return s.saveLabelChange(ctx, issue, updated, types.ActionLabelRemove, user)
}

// SetLabels replaces the full label set, preserving insertion order
// and dropping duplicates (spec scenario 3).
func (s *IssueService) SetLabels(ctx context.Context, id types.ID, labels []string, user string) (*types.Issue, error) {
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	updated := issue.Clone()
	updated.Labels = dedupStrings(labels)
	return s.saveLabelChange(ctx, issue, updated, types.ActionLabelAdd, user)
}

func (s *IssueService) saveLabelChange(ctx context.Context, before, after *types.Issue, action types.AuditAction, user string) (*types.Issue, error) {
	after.UpdatedAt = time.Now()
	after.ContentHash = after.ComputeContentHash()
	if err := after.Validate(); err != nil {
		return nil, err
	}
	if err := s.u.Issues().Save(ctx, after); err != nil {
		return nil, fmt.Errorf("save issue: %w", err)
	}
	s.record(ctx, action, after.ID.String(), user, strings.Join(after.Labels, ","))
	return after, nil
}

// Assign is idempotent.
func (s *IssueService) Assign(ctx context.Context, id types.ID, assignee, user string) (*types.Issue, error) {
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	if issue.HasAssignee(assignee) {
		return issue, nil
	}
	updated := issue.Clone()
	updated.Assignees = append(updated.Assignees, assignee)
	return s.saveAssigneeChange(ctx, updated, user)
}

// Unassign is idempotent.
func (s *IssueService) Unassign(ctx context.Context, id types.ID, assignee, user string) (*types.Issue, error) {
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	if !issue.HasAssignee(assignee) {
		return issue, nil
	}
	updated := issue.Clone()
	var kept []string
	for _, a := range updated.Assignees {
		if a != assignee {
			kept = append(kept, a)
		}
	}
	updated.Assignees = kept
	return s.saveAssigneeChange(ctx, updated, user)
}

func (s *IssueService) saveAssigneeChange(ctx context.Context, updated *types.Issue, user string) (*types.Issue, error) {
	updated.UpdatedAt = time.Now()
	updated.ContentHash = updated.ComputeContentHash()
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.u.Issues().Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("save issue: %w", err)
	}
	s.record(ctx, types.ActionAssign, updated.ID.String(), user, strings.Join(updated.Assignees, ","))
	return updated, nil
}

// AssignToEpic validates that epicID refers to an epic before reassigning.
func (s *IssueService) AssignToEpic(ctx context.Context, id, epicID types.ID, user string) (*types.Issue, error) {
	epic, err := s.u.Issues().Get(ctx, epicID)
	if err != nil {
		return nil, fmt.Errorf("resolve epic_id: %w", err)
	}
	if epic.Type != types.TypeEpic {
		return nil, types.NewValidationError("epic_id", "does not refer to an epic")
	}
	issue, err := s.u.Issues().Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", id, err)
	}
	updated := issue.Clone()
	updated.EpicID = epicID
	updated.UpdatedAt = time.Now()
	updated.ContentHash = updated.ComputeContentHash()
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	if err := s.u.Issues().Save(ctx, updated); err != nil {
		return nil, fmt.Errorf("save issue: %w", err)
	}
	s.record(ctx, types.ActionUpdate, id.String(), user, "assigned to epic "+epicID.String())
	return updated, nil
}

// MergeDisposition and DispositionClose/DispositionDelete are declared
// in the types package; merge_issues decomposes into the five steps
// spec §4.6 lists, applied in order through one UnitOfWork. They either
// all land or none do only when that UnitOfWork wraps a transaction (as
// inside uow.Run); over a non-transactional UnitOfWork a failure leaves
// the earlier steps applied.
func (s *IssueService) MergeIssues(ctx context.Context, sourceID, targetID types.ID, disposition types.MergeDisposition, user string) (*types.Issue, error) {
	if sourceID == targetID {
		return nil, types.NewValidationError("target_id", "cannot merge an issue into itself")
	}
	source, err := s.u.Issues().Get(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("get source issue %s: %w", sourceID, err)
	}
	target, err := s.u.Issues().Get(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("get target issue %s: %w", targetID, err)
	}

	merged := target.Clone()
	// Step 1: union labels, target's order first, then new labels from source.
	merged.Labels = unionPreservingOrder(target.Labels, source.Labels)

	// Step 2: concatenate descriptions with a delimiter identifying the source.
	if strings.TrimSpace(source.Description) != "" {
		marker := fmt.Sprintf("\n\n--- merged from %s ---\n", sourceID)
		merged.Description = target.Description + marker + source.Description
	}

	// Step 3: remap dependencies touching source onto target, dropping
	// self-loops and duplicates.
	if err := s.remapDependencies(ctx, sourceID, targetID); err != nil {
		return nil, fmt.Errorf("remap dependencies: %w", err)
	}

	// Step 4: copy comments from source to target, preserving created_at,
	// prefixing bodies with a merge marker.
	if err := s.copyComments(ctx, sourceID, targetID, merged.ID); err != nil {
		return nil, fmt.Errorf("copy comments: %w", err)
	}

	merged.UpdatedAt = time.Now()
	merged.ContentHash = merged.ComputeContentHash()
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if err := s.u.Issues().Save(ctx, merged); err != nil {
		return nil, fmt.Errorf("save merged target: %w", err)
	}

	// Step 5: disposition of the source.
	switch disposition {
	case types.DispositionClose:
		closedAt := time.Now()
		closedSource := source.Clone()
		closedSource.Status = types.StatusClosed
		closedSource.BlockedReason = "merged into " + targetID.String()
		closedSource.ClosedAt = &closedAt
		closedSource.UpdatedAt = closedAt
		closedSource.ContentHash = closedSource.ComputeContentHash()
		if err := closedSource.Validate(); err != nil {
			return nil, err
		}
		if err := s.u.Issues().Save(ctx, closedSource); err != nil {
			return nil, fmt.Errorf("close source: %w", err)
		}
	case types.DispositionDelete:
		if err := s.u.Issues().Delete(ctx, sourceID); err != nil {
			return nil, fmt.Errorf("delete source: %w", err)
		}
	default:
		return nil, types.NewValidationError("disposition", "unknown disposition "+string(disposition))
	}

	s.record(ctx, types.ActionMerge, sourceID.String(), user, "merged into "+targetID.String())
	s.record(ctx, types.ActionMerge, targetID.String(), user, "merge target of "+sourceID.String())
	return merged, nil
}

func (s *IssueService) remapDependencies(ctx context.Context, sourceID, targetID types.ID) error {
	deps, err := s.u.Dependencies().ListFor(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, d := range deps {
		from, to := d.FromIssueID, d.ToIssueID
		if from == sourceID {
			from = targetID
		}
		if to == sourceID {
			to = targetID
		}
		if err := s.u.Dependencies().Remove(ctx, d.FromIssueID, d.ToIssueID, d.Kind); err != nil {
			return err
		}
		if from == to {
			continue // would become a self-loop
		}
		adjacency, err := s.u.Dependencies().AdjacencyForKind(ctx, d.Kind)
		if err != nil {
			return err
		}
		if reachable(adjacency, to, from) {
			continue // would close a cycle within this kind; drop it
		}
		remapped := &types.Dependency{FromIssueID: from, ToIssueID: to, Kind: d.Kind, CreatedAt: d.CreatedAt, CreatedBy: d.CreatedBy}
		if err := s.u.Dependencies().Add(ctx, remapped); err != nil {
			var cycleErr *types.CycleError
			if asCycleError(err, &cycleErr) {
				continue // would create a cycle with an already-remapped edge; drop it
			}
			if isDuplicateEdge(err) {
				continue // duplicate of an edge remapping already produced
			}
			return err
		}
	}
	return nil
}

func (s *IssueService) copyComments(ctx context.Context, sourceID, targetID, mergedID types.ID) error {
	comments, err := s.u.Comments().ListFor(ctx, sourceID)
	if err != nil {
		return err
	}
	for _, c := range comments {
		id, err := idgen.Generate(ctx, "comment", alwaysUnusedComment)
		if err != nil {
			return fmt.Errorf("allocate comment id: %w", err)
		}
		copied := &types.Comment{
			ID:        id,
			IssueID:   targetID,
			Author:    c.Author,
			Body:      fmt.Sprintf("[merged from %s] %s", sourceID, c.Body),
			CreatedAt: c.CreatedAt,
		}
		if err := s.u.Comments().Add(ctx, copied); err != nil {
			return err
		}
	}
	return nil
}

func alwaysUnusedComment(context.Context, types.ID) (bool, error) { return false, nil }

func asCycleError(err error, target **types.CycleError) bool {
	for err != nil {
		if ce, ok := err.(*types.CycleError); ok {
			*target = ce
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func isDuplicateEdge(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

// FindDuplicates returns ranked candidates similar to a proposed
// issue, scored by normalized title trigram overlap plus label
// overlap. Purely advisory; never mutates state.
func (s *IssueService) FindDuplicates(ctx context.Context, candidate *types.Issue, limit int) ([]types.DuplicateCandidate, error) {
	pool, err := s.u.Issues().List(ctx, types.IssueFilter{}, types.ListOptions{Limit: types.MaxListLimit})
	if err != nil {
		return nil, fmt.Errorf("list issues for duplicate scan: %w", err)
	}
	candidateTrigrams := trigramSet(candidate.Title)

	var scored []types.DuplicateCandidate
	for _, existing := range pool {
		if existing.ID == candidate.ID {
			continue
		}
		score := similarityScore(candidateTrigrams, trigramSet(existing.Title), candidate.Labels, existing.Labels)
		if score > 0 {
			scored = append(scored, types.DuplicateCandidate{Issue: existing, Similarity: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func similarityScore(aTri, bTri map[string]bool, aLabels, bLabels []string) float64 {
	jaccard := jaccardIndex(aTri, bTri)
	cosine := cosineIndex(aTri, bTri)
	labelOverlap := jaccardIndex(toSet(aLabels), toSet(bLabels))
	return (jaccard+cosine)/2*0.85 + labelOverlap*0.15
}

func trigramSet(title string) map[string]bool {
	normalized := strings.ToLower(strings.Join(strings.Fields(title), " "))
	set := make(map[string]bool)
	if len(normalized) < 3 {
		if normalized != "" {
			set[normalized] = true
		}
		return set
	}
	for i := 0; i+3 <= len(normalized); i++ {
		set[normalized[i:i+3]] = true
	}
	return set
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func jaccardIndex(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection, union := 0, len(a)
	for k := range b {
		if a[k] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func cosineIndex(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range b {
		if a[k] {
			intersection++
		}
	}
	denom := math.Sqrt(float64(len(a))) * math.Sqrt(float64(len(b)))
	if denom == 0 {
		return 0
	}
	return float64(intersection) / denom
}

func dedupStrings(items []string) []string {
	if items == nil {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func unionPreservingOrder(base, additional []string) []string {
	out := dedupStrings(base)
	seen := toSet(out)
	for _, item := range additional {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
