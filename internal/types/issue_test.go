package types

import (
	"testing"
	"time"
)

func TestIssueClone(t *testing.T) {
	closed := time.Now()
	orig := &Issue{
		ID:         "iss-a@00000000",
		Title:      "fix it",
		Assignees:  []string{"alice"},
		Labels:     []string{"bug", "urgent"},
		References: []string{"https://example.com"},
		ClosedAt:   &closed,
	}
	clone := orig.Clone()

	clone.Labels[0] = "mutated"
	clone.Assignees = append(clone.Assignees, "bob")
	*clone.ClosedAt = closed.Add(1)

	if orig.Labels[0] != "bug" {
		t.Error("clone mutation leaked into original labels")
	}
	if len(orig.Assignees) != 1 {
		t.Error("clone append leaked into original assignees")
	}
	if orig.ClosedAt.Equal(*clone.ClosedAt) {
		t.Error("clone ClosedAt shares the original's pointer")
	}
}

func TestIssueHasLabelAndAssignee(t *testing.T) {
	i := &Issue{Labels: []string{"bug"}, Assignees: []string{"alice"}}
	if !i.HasLabel("bug") || i.HasLabel("feature") {
		t.Error("HasLabel mismatch")
	}
	if !i.HasAssignee("alice") || i.HasAssignee("bob") {
		t.Error("HasAssignee mismatch")
	}
}

func TestComputeContentHashStable(t *testing.T) {
	i := &Issue{Title: "t", Description: "d", Labels: []string{"a", "b"}}
	h1 := i.ComputeContentHash()
	h2 := i.ComputeContentHash()
	if h1 != h2 {
		t.Error("hash should be deterministic for the same content")
	}

	j := i.Clone()
	j.Description = "changed"
	if j.ComputeContentHash() == h1 {
		t.Error("hash should change when description changes")
	}
}

func TestIssueSearchText(t *testing.T) {
	i := &Issue{Title: "t", Description: "d", Labels: []string{"a", "b"}}
	want := "t d a b"
	if got := i.SearchText(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
