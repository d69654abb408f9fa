package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/dotwork/issuegraph/internal/storage/memory"
	"github.com/dotwork/issuegraph/internal/types"
)

func TestRecordAppendsToRepository(t *testing.T) {
	store := memory.New()
	log := New(store.Audit(), nil)
	ctx := context.Background()

	if err := log.Record(ctx, types.ActionCreate, "issue", "iss-a@00000000", "alice", "created"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := log.ListFor(ctx, "iss-a@00000000", types.ListOptions{})
	if err != nil {
		t.Fatalf("ListFor failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != types.ActionCreate {
		t.Errorf("got %v", entries)
	}
}

func TestRecordMirrorsToSink(t *testing.T) {
	store := memory.New()
	var buf bytes.Buffer
	log := New(store.Audit(), &buf)
	ctx := context.Background()

	if err := log.Record(ctx, types.ActionTransition, "issue", "iss-a@00000000", "bob", "proposed->closed"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	var entry types.AuditEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("sink line is not valid JSON: %v", err)
	}
	if entry.User != "bob" || entry.Action != types.ActionTransition {
		t.Errorf("got %+v", entry)
	}
}
