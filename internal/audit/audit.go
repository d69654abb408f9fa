// Package audit records the append-only trail of significant
// mutations. The canonical copy lives in the store's AuditRepository;
// an optional io.Writer sink mirrors each entry as a newline-delimited
// JSON stream, typically a lumberjack-rotated file, for external
// tailing without touching the database.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dotwork/issuegraph/internal/idgen"
	"github.com/dotwork/issuegraph/internal/storage"
	"github.com/dotwork/issuegraph/internal/types"
)

// Log appends AuditEntry records to a repository and, optionally,
// mirrors them to a rotated JSONL sink.
type Log struct {
	repo storage.AuditRepository
	sink io.Writer
}

// New builds a Log over repo. sink may be nil to disable file mirroring.
func New(repo storage.AuditRepository, sink io.Writer) *Log {
	return &Log{repo: repo, sink: sink}
}

// alwaysUnused never reports a collision; audit ids are write-once and
// never looked up by id, so the Identifier Service's collision retry
// has nothing to check against here.
func alwaysUnused(context.Context, types.ID) (bool, error) { return false, nil }

// Record appends one entry. user may be empty; per spec §4.6, an audit
// entry is only emitted when a user is supplied, so callers skip
// Record entirely rather than pass an empty user.
func (l *Log) Record(ctx context.Context, action types.AuditAction, entityType, entityID, user, details string) error {
	id, err := idgen.Generate(ctx, "audit", alwaysUnused)
	if err != nil {
		return fmt.Errorf("generate audit id: %w", err)
	}
	entry := &types.AuditEntry{
		ID:         id,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		User:       user,
		Timestamp:  time.Now(),
		Details:    details,
	}
	if err := l.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if l.sink != nil {
		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshal audit entry: %w", err)
		}
		if _, err := l.sink.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write audit sink: %w", err)
		}
	}
	return nil
}

// ListFor returns the audit trail for one entity, newest first.
func (l *Log) ListFor(ctx context.Context, entityID string, opts types.ListOptions) ([]*types.AuditEntry, error) {
	return l.repo.ListFor(ctx, entityID, opts)
}
