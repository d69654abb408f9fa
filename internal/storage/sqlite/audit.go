package sqlite

import (
	"context"

	"github.com/dotwork/issuegraph/internal/types"
)

type auditRepo struct{ s *Store }

func (r auditRepo) Append(ctx context.Context, entry *types.AuditEntry) error {
	_, err := r.s.q().ExecContext(ctx, `
		INSERT INTO audit_entries (id, action, entity_type, entity_id, username, ts, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.User, entry.Timestamp, entry.Details)
	return wrapDBErrorf(err, "append audit entry for %s", entry.EntityID)
}

func (r auditRepo) ListFor(ctx context.Context, entityID string, opts types.ListOptions) ([]*types.AuditEntry, error) {
	opts = opts.Normalize()
	rows, err := r.s.q().QueryContext(ctx, `
		SELECT id, action, entity_type, entity_id, username, ts, details
		FROM audit_entries WHERE entity_id = ? ORDER BY ts DESC LIMIT ? OFFSET ?
	`, entityID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, wrapDBErrorf(err, "list audit entries for %s", entityID)
	}
	defer func() { _ = rows.Close() }()

	var entries []*types.AuditEntry
	for rows.Next() {
		var e types.AuditEntry
		var ts string
		if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &e.EntityID, &e.User, &ts, &e.Details); err != nil {
			return nil, wrapDBError("scan audit entry", err)
		}
		e.Timestamp = parseTimeString(ts)
		entries = append(entries, &e)
	}
	return entries, wrapDBError("iterate audit entries", rows.Err())
}
