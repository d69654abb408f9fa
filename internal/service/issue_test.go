package service

import (
	"context"
	"errors"
	"testing"

	"github.com/dotwork/issuegraph/internal/storage/memory"
	"github.com/dotwork/issuegraph/internal/types"
	"github.com/dotwork/issuegraph/internal/uow"
)

func newTestIssueService(t *testing.T) (*IssueService, *uow.UnitOfWork) {
	t.Helper()
	u := uow.New(memory.New())
	return NewIssueService(u, nil), u
}

func TestCreateIssueAssignsIDAndDefaults(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	issue, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "fix the thing"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if issue.ID == "" {
		t.Error("expected an id to be assigned")
	}
	if issue.Status != types.StatusProposed {
		t.Errorf("got status %v, want proposed", issue.Status)
	}
	if issue.Type != types.TypeTask {
		t.Errorf("got type %v, want task default", issue.Type)
	}
}

func TestCreateIssueRejectsEmptyTitle(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	if _, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "   "}); err == nil {
		t.Fatal("expected an error for an empty title")
	}
}

func TestCreateIssueRejectsEpicIDThatIsNotAnEpic(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	notAnEpic, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "a task"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	_, err = svc.CreateIssue(ctx, CreateIssueInput{Title: "child", EpicID: notAnEpic.ID})
	if err == nil {
		t.Fatal("expected an error assigning a non-epic as epic_id")
	}
}

func TestUpdateIssueIsNoOpWhenContentUnchanged(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	issue, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	sameTitle := issue.Title
	updated, err := svc.UpdateIssue(ctx, issue.ID, IssueChanges{Title: &sameTitle})
	if err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	if !updated.UpdatedAt.Equal(issue.UpdatedAt) {
		t.Error("expected updated_at to be unchanged for a no-op update")
	}
}

func TestUpdateIssueBumpsUpdatedAtOnRealChange(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	issue, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "t"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	newTitle := "a different title"
	updated, err := svc.UpdateIssue(ctx, issue.ID, IssueChanges{Title: &newTitle})
	if err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	if updated.Title != newTitle {
		t.Errorf("got title %q, want %q", updated.Title, newTitle)
	}
	if !updated.UpdatedAt.After(issue.UpdatedAt) && !updated.UpdatedAt.Equal(issue.UpdatedAt) {
		t.Error("expected updated_at to advance")
	}
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	issue, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "t"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	// proposed -> completed is not a direct legal transition.
	_, err = svc.Transition(ctx, issue.ID, types.StatusCompleted, "")
	if err == nil {
		t.Fatal("expected an invalid-transition error")
	}
	var transErr *types.InvalidTransitionError
	if !errors.As(err, &transErr) {
		t.Errorf("expected *types.InvalidTransitionError, got %T", err)
	}

	closed, err := svc.Transition(ctx, issue.ID, types.StatusClosed, "")
	if err != nil {
		t.Fatalf("Transition to closed failed: %v", err)
	}
	if closed.ClosedAt == nil {
		t.Error("expected closed_at to be set")
	}

	reopened, err := svc.Transition(ctx, issue.ID, types.StatusProposed, "")
	if err != nil {
		t.Fatalf("Transition to proposed failed: %v", err)
	}
	if reopened.ClosedAt != nil {
		t.Error("expected closed_at to be cleared on leaving a terminal status")
	}
}

func TestAddLabelIsIdempotent(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	issue, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "t", Labels: []string{"bug"}})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	again, err := svc.AddLabel(ctx, issue.ID, "bug", "")
	if err != nil {
		t.Fatalf("AddLabel failed: %v", err)
	}
	if len(again.Labels) != 1 {
		t.Errorf("got labels %v, want exactly one", again.Labels)
	}
}

func TestSetLabelsDeduplicates(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	issue, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "t"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	updated, err := svc.SetLabels(ctx, issue.ID, []string{"a", "b", "a"}, "")
	if err != nil {
		t.Fatalf("SetLabels failed: %v", err)
	}
	if len(updated.Labels) != 2 {
		t.Errorf("got labels %v, want 2 unique entries", updated.Labels)
	}
}

func TestMergeIssuesUnionsLabelsAndClosesSource(t *testing.T) {
	svc, u := newTestIssueService(t)
	ctx := context.Background()

	source, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "dup", Description: "source desc", Labels: []string{"a", "shared"}})
	if err != nil {
		t.Fatalf("CreateIssue source failed: %v", err)
	}
	target, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "keep", Description: "target desc", Labels: []string{"b", "shared"}})
	if err != nil {
		t.Fatalf("CreateIssue target failed: %v", err)
	}

	if err := u.Comments().Add(ctx, &types.Comment{ID: types.ID("comment-00000000aaaa@00000000"), IssueID: source.ID, Author: "x", Body: "hello"}); err != nil {
		t.Fatalf("seed comment failed: %v", err)
	}

	merged, err := svc.MergeIssues(ctx, source.ID, target.ID, types.DispositionClose, "carol")
	if err != nil {
		t.Fatalf("MergeIssues failed: %v", err)
	}
	wantLabels := map[string]bool{"a": true, "b": true, "shared": true}
	if len(merged.Labels) != len(wantLabels) {
		t.Errorf("got labels %v, want union of %v", merged.Labels, wantLabels)
	}

	closedSource, err := u.Issues().Get(ctx, source.ID)
	if err != nil {
		t.Fatalf("get source failed: %v", err)
	}
	if closedSource.Status != types.StatusClosed {
		t.Errorf("got source status %v, want closed", closedSource.Status)
	}

	comments, err := u.Comments().ListFor(ctx, target.ID)
	if err != nil {
		t.Fatalf("ListFor target comments failed: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("got %d comments on target, want 1", len(comments))
	}
}

func TestFindDuplicatesRanksByTitleSimilarity(t *testing.T) {
	svc, _ := newTestIssueService(t)
	ctx := context.Background()

	_, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "fix login crash on startup"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	unrelated, err := svc.CreateIssue(ctx, CreateIssueInput{Title: "update the favicon"})
	if err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	candidates, err := svc.FindDuplicates(ctx, &types.Issue{Title: "login crashes at startup"}, 5)
	if err != nil {
		t.Fatalf("FindDuplicates failed: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected at least one candidate")
	}
	if candidates[0].Issue.ID == unrelated.ID {
		t.Error("expected the similar title to rank above the unrelated one")
	}
}
