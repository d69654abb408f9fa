package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dotwork/issuegraph/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "issuegraph.db")
	store, err := Open(context.Background(), path, false)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testIssue(id string) *types.Issue {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Issue{
		ID: types.ID(id), Title: "test issue", Description: "desc", Status: types.StatusProposed,
		Priority: types.PriorityMedium, Type: types.TypeTask, Labels: []string{"a", "b"},
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestOpenAppliesSchemaOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "issuegraph.db")
	ctx := context.Background()

	store, err := Open(ctx, path, false)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(ctx, path, false)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = reopened.Close() }()
}

func TestIssueSaveGetRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	issue := testIssue("issue-abc123@00000000")

	if err := store.Issues().Save(ctx, issue); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.Issues().Get(ctx, issue.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != issue.Title || len(got.Labels) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestIssueGetMissingReturnsNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.Issues().Get(ctx, types.ID("issue-missing0@00000000"))
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestIssueSaveUpsertReplacesLabels(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	issue := testIssue("issue-abc124@00000000")

	if err := store.Issues().Save(ctx, issue); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	issue.Labels = []string{"c"}
	if err := store.Issues().Save(ctx, issue); err != nil {
		t.Fatalf("upsert Save failed: %v", err)
	}
	got, err := store.Issues().Get(ctx, issue.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "c" {
		t.Errorf("got labels %v, want [c]", got.Labels)
	}
}

func TestIssueSearchMatchesFTSIndex(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	issue := testIssue("issue-abc125@00000000")
	issue.Title = "the quick brown fox"

	if err := store.Issues().Save(ctx, issue); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	results, err := store.Issues().Search(ctx, "quick", types.IssueFilter{}, types.ListOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != issue.ID {
		t.Errorf("got %v results, want the saved issue", results)
	}
}

func TestIssueSearchReflectsDeleteViaFTSTrigger(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	issue := testIssue("issue-abc126@00000000")
	issue.Title = "disappearing issue"

	if err := store.Issues().Save(ctx, issue); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Issues().Delete(ctx, issue.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	results, err := store.Issues().Search(ctx, "disappearing", types.IssueFilter{}, types.ListOptions{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results after delete, want 0 (FTS trigger should have removed the row)", len(results))
	}
}

func TestDependencyAddAndAdjacency(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a, b := testIssue("issue-a00000@00000000"), testIssue("issue-b00000@00000000")
	if err := store.Issues().Save(ctx, a); err != nil {
		t.Fatalf("Save a failed: %v", err)
	}
	if err := store.Issues().Save(ctx, b); err != nil {
		t.Fatalf("Save b failed: %v", err)
	}

	dep := &types.Dependency{FromIssueID: a.ID, ToIssueID: b.ID, Kind: types.DepBlocks, CreatedAt: time.Now()}
	if err := store.Dependencies().Add(ctx, dep); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	adjacency, err := store.Dependencies().AdjacencyForKind(ctx, types.DepBlocks)
	if err != nil {
		t.Fatalf("AdjacencyForKind failed: %v", err)
	}
	if len(adjacency[a.ID]) != 1 || adjacency[a.ID][0] != b.ID {
		t.Errorf("got adjacency %v", adjacency)
	}
}

func TestDependencyAddIsIdempotentOnConflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a, b := testIssue("issue-a00001@00000000"), testIssue("issue-b00001@00000000")
	if err := store.Issues().Save(ctx, a); err != nil {
		t.Fatalf("Save a failed: %v", err)
	}
	if err := store.Issues().Save(ctx, b); err != nil {
		t.Fatalf("Save b failed: %v", err)
	}
	dep := &types.Dependency{FromIssueID: a.ID, ToIssueID: b.ID, Kind: types.DepBlocks, CreatedAt: time.Now()}
	if err := store.Dependencies().Add(ctx, dep); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := store.Dependencies().Add(ctx, dep); err != nil {
		t.Fatalf("duplicate Add should be a silent no-op, got: %v", err)
	}
}

func TestReadyQueueExcludesNonTerminalBlockers(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	blocker, blocked := testIssue("issue-blk0000@00000000"), testIssue("issue-blk0001@00000000")
	if err := store.Issues().Save(ctx, blocker); err != nil {
		t.Fatalf("Save blocker failed: %v", err)
	}
	if err := store.Issues().Save(ctx, blocked); err != nil {
		t.Fatalf("Save blocked failed: %v", err)
	}
	dep := &types.Dependency{FromIssueID: blocker.ID, ToIssueID: blocked.ID, Kind: types.DepBlocks, CreatedAt: time.Now()}
	if err := store.Dependencies().Add(ctx, dep); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	queue, err := store.Dependencies().ReadyQueue(ctx, nil, types.ListOptions{})
	if err != nil {
		t.Fatalf("ReadyQueue failed: %v", err)
	}
	for _, iss := range queue {
		if iss.ID == blocked.ID {
			t.Error("expected the blocked issue to be excluded")
		}
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx failed: %v", err)
	}
	issue := testIssue("issue-txn0000@00000000")
	if err := tx.Issues().Save(ctx, issue); err != nil {
		t.Fatalf("Save inside tx failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	_, err = store.Issues().Get(ctx, issue.ID)
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected the issue to be rolled back, got %v", err)
	}
}

func TestProjectUniqueNameConflict(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p1 := &types.Project{ID: types.ID("proj-aaaaaa@00000000"), Name: "widgets", CreatedAt: time.Now()}
	p2 := &types.Project{ID: types.ID("proj-bbbbbb@00000000"), Name: "widgets", CreatedAt: time.Now()}
	if err := store.Projects().Save(ctx, p1); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Projects().Save(ctx, p2); !errors.Is(err, types.ErrDuplicateID) {
		t.Errorf("got %v, want ErrDuplicateID for a duplicate project name", err)
	}
}
