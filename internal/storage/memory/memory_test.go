package memory

import (
	"context"
	"testing"
	"time"

	"github.com/dotwork/issuegraph/internal/types"
)

func newIssue(id, title string) *types.Issue {
	now := time.Now()
	return &types.Issue{
		ID:        types.ID(id),
		Title:     title,
		Status:    types.StatusProposed,
		Priority:  types.PriorityMedium,
		Type:      types.TypeTask,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSaveAndGetIssue(t *testing.T) {
	s := New()
	ctx := context.Background()
	iss := newIssue("iss-a@00000000", "first")

	if err := s.Issues().Save(ctx, iss); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := s.Issues().Get(ctx, iss.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "first" {
		t.Errorf("got %q", got.Title)
	}

	got.Title = "mutated"
	again, _ := s.Issues().Get(ctx, iss.ID)
	if again.Title != "first" {
		t.Error("Get should return a copy, not a shared pointer")
	}
}

func TestGetMissingIssueReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Issues().Get(context.Background(), types.ID("iss-missing@00000000"))
	if err == nil {
		t.Fatal("expected an error for a missing issue")
	}
}

func TestDeleteIssueRemovesDependencies(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, b := newIssue("iss-a@00000000", "a"), newIssue("iss-b@00000000", "b")
	s.Issues().Save(ctx, a)
	s.Issues().Save(ctx, b)
	s.Dependencies().Add(ctx, &types.Dependency{FromIssueID: a.ID, ToIssueID: b.ID, Kind: types.DepBlocks})

	if err := s.Issues().Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	deps, _ := s.Dependencies().ListFor(ctx, b.ID)
	if len(deps) != 0 {
		t.Errorf("expected dependencies referencing the deleted issue to be gone, got %d", len(deps))
	}
}

func TestListFiltersByStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	open := newIssue("iss-a@00000000", "open")
	closedAt := time.Now()
	closed := newIssue("iss-b@00000000", "closed")
	closed.Status = types.StatusClosed
	closed.ClosedAt = &closedAt

	s.Issues().Save(ctx, open)
	s.Issues().Save(ctx, closed)

	status := types.StatusClosed
	got, err := s.Issues().List(ctx, types.IssueFilter{Status: &status}, types.ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != closed.ID {
		t.Errorf("got %v", got)
	}
}

func TestReadyQueueExcludesBlockedIssues(t *testing.T) {
	s := New()
	ctx := context.Background()
	blocker := newIssue("iss-a@00000000", "blocker")
	blocked := newIssue("iss-b@00000000", "blocked")
	free := newIssue("iss-c@00000000", "free")

	s.Issues().Save(ctx, blocker)
	s.Issues().Save(ctx, blocked)
	s.Issues().Save(ctx, free)
	s.Dependencies().Add(ctx, &types.Dependency{FromIssueID: blocker.ID, ToIssueID: blocked.ID, Kind: types.DepBlocks})

	queue, err := s.Dependencies().ReadyQueue(ctx, nil, types.ListOptions{})
	if err != nil {
		t.Fatalf("ReadyQueue failed: %v", err)
	}
	ids := map[types.ID]bool{}
	for _, iss := range queue {
		ids[iss.ID] = true
	}
	if !ids[blocker.ID] || !ids[free.ID] {
		t.Error("expected both the blocker and the unrelated issue in the ready queue")
	}
	if ids[blocked.ID] {
		t.Error("blocked issue should not be in the ready queue")
	}
}

func TestTransactionRollbackDiscardsChanges(t *testing.T) {
	s := New()
	ctx := context.Background()
	txn, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := txn.Issues().Save(ctx, newIssue("iss-a@00000000", "in tx")); err != nil {
		t.Fatalf("Save in tx failed: %v", err)
	}
	if err := txn.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	if _, err := s.Issues().Get(ctx, types.ID("iss-a@00000000")); err == nil {
		t.Error("expected the rolled-back issue to be absent from the parent store")
	}
}

func TestTransactionCommitAppliesChanges(t *testing.T) {
	s := New()
	ctx := context.Background()
	txn, err := s.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	if err := txn.Issues().Save(ctx, newIssue("iss-a@00000000", "in tx")); err != nil {
		t.Fatalf("Save in tx failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := s.Issues().Get(ctx, types.ID("iss-a@00000000")); err != nil {
		t.Errorf("expected the committed issue to be visible on the parent store: %v", err)
	}
}

func TestConfigGetSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Config().Set(ctx, "issue_prefix", "iss"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := s.Config().Get(ctx, "issue_prefix")
	if err != nil || v != "iss" {
		t.Errorf("got %q, %v", v, err)
	}
}
