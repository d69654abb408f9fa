package service

import (
	"context"
	"testing"

	"github.com/dotwork/issuegraph/internal/storage/memory"
	"github.com/dotwork/issuegraph/internal/types"
	"github.com/dotwork/issuegraph/internal/uow"
)

func TestEpicCountsReportsOpenAndClosedChildren(t *testing.T) {
	u := uow.New(memory.New())
	issues := NewIssueService(u, nil)
	epics := NewEpicService(u)
	ctx := context.Background()

	epic, err := issues.CreateIssue(ctx, CreateIssueInput{Title: "epic", Type: types.TypeEpic})
	if err != nil {
		t.Fatalf("CreateIssue epic failed: %v", err)
	}
	child, err := issues.CreateIssue(ctx, CreateIssueInput{Title: "child", EpicID: epic.ID})
	if err != nil {
		t.Fatalf("CreateIssue child failed: %v", err)
	}
	if _, err := issues.Transition(ctx, child.ID, types.StatusClosed, ""); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if _, err := issues.CreateIssue(ctx, CreateIssueInput{Title: "open child", EpicID: epic.ID}); err != nil {
		t.Fatalf("CreateIssue open child failed: %v", err)
	}

	counts, err := epics.Counts(ctx, epic.ID)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	if counts.Total != 2 || counts.Closed != 1 || counts.Open != 1 {
		t.Errorf("got %+v, want total=2 closed=1 open=1", counts)
	}
}

func TestLabelServiceAllReturnsUsageCounts(t *testing.T) {
	u := uow.New(memory.New())
	issues := NewIssueService(u, nil)
	labels := NewLabelService(u)
	ctx := context.Background()

	if _, err := issues.CreateIssue(ctx, CreateIssueInput{Title: "a", Labels: []string{"bug"}}); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if _, err := issues.CreateIssue(ctx, CreateIssueInput{Title: "b", Labels: []string{"bug", "urgent"}}); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	counts, err := labels.All(ctx, nil)
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	found := make(map[string]int)
	for _, c := range counts {
		found[c.Label] = c.Count
	}
	if found["bug"] != 2 {
		t.Errorf("got bug count %d, want 2", found["bug"])
	}
	if found["urgent"] != 1 {
		t.Errorf("got urgent count %d, want 1", found["urgent"])
	}
}

func TestProjectServiceRejectsDuplicateName(t *testing.T) {
	u := uow.New(memory.New())
	projects := NewProjectService(u, nil)
	ctx := context.Background()

	if _, err := projects.Create(ctx, "widgets", "", "", ""); err != nil {
		t.Fatalf("first Create failed: %v", err)
	}
	if _, err := projects.Create(ctx, "widgets", "", "", ""); err == nil {
		t.Fatal("expected a duplicate-name error")
	}
}

func TestProjectServiceDeleteRefusedWithoutCascade(t *testing.T) {
	u := uow.New(memory.New())
	projects := NewProjectService(u, nil)
	issues := NewIssueService(u, nil)
	ctx := context.Background()

	project, err := projects.Create(ctx, "widgets", "", "", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := issues.CreateIssue(ctx, CreateIssueInput{Title: "t", ProjectID: project.ID}); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	if err := projects.Delete(ctx, project.ID, false, ""); err == nil {
		t.Fatal("expected delete to be refused while issues reference the project")
	}
	if err := projects.Delete(ctx, project.ID, true, ""); err != nil {
		t.Fatalf("expected cascade=true delete to succeed: %v", err)
	}
}
