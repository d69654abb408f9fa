package sqlite

import (
	"context"
	"fmt"

	"github.com/dotwork/issuegraph/internal/types"
)

type depRepo struct{ s *Store }

// Add inserts a dependency edge. Cycle detection happens one layer up,
// in the Dependency Service: it fetches the full same-kind adjacency
// map with AdjacencyForKind (one round trip) and runs an in-memory DFS,
// rather than repeating a per-edge SQL check here.
func (r depRepo) Add(ctx context.Context, dep *types.Dependency) error {
	_, err := r.s.q().ExecContext(ctx, `
		INSERT INTO dependencies (from_issue_id, to_issue_id, kind, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (from_issue_id, to_issue_id, kind) DO NOTHING
	`, dep.FromIssueID, dep.ToIssueID, dep.Kind, dep.CreatedAt, dep.CreatedBy)
	return wrapDBErrorf(err, "add dependency %s -> %s", dep.FromIssueID, dep.ToIssueID)
}

func (r depRepo) Remove(ctx context.Context, fromID, toID types.ID, kind types.DependencyKind) error {
	res, err := r.s.q().ExecContext(ctx, `
		DELETE FROM dependencies WHERE from_issue_id = ? AND to_issue_id = ? AND kind = ?
	`, fromID, toID, kind)
	if err != nil {
		return wrapDBErrorf(err, "remove dependency %s -> %s", fromID, toID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErrorf(err, "remove dependency %s -> %s", fromID, toID)
	}
	if n == 0 {
		return fmt.Errorf("remove dependency %s -> %s: %w", fromID, toID, types.ErrNotFound)
	}
	return nil
}

func (r depRepo) ListFor(ctx context.Context, issueID types.ID) ([]*types.Dependency, error) {
	rows, err := r.s.q().QueryContext(ctx, `
		SELECT from_issue_id, to_issue_id, kind, created_at, created_by
		FROM dependencies WHERE from_issue_id = ? OR to_issue_id = ?
	`, issueID, issueID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list dependencies for %s", issueID)
	}
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		var createdAt string
		if err := rows.Scan(&d.FromIssueID, &d.ToIssueID, &d.Kind, &createdAt, &d.CreatedBy); err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		d.CreatedAt = parseTimeString(createdAt)
		deps = append(deps, &d)
	}
	return deps, wrapDBError("iterate dependencies", rows.Err())
}

// AdjacencyForKind fetches the full from->[]to edge map for one
// dependency kind in a single query, for in-memory traversal (tree
// listing, whole-graph cycle scans) rather than per-node round trips.
func (r depRepo) AdjacencyForKind(ctx context.Context, kind types.DependencyKind) (map[types.ID][]types.ID, error) {
	rows, err := r.s.q().QueryContext(ctx,
		`SELECT from_issue_id, to_issue_id FROM dependencies WHERE kind = ?`, kind)
	if err != nil {
		return nil, wrapDBErrorf(err, "load adjacency for %s", kind)
	}
	defer func() { _ = rows.Close() }()

	adjacency := make(map[types.ID][]types.ID)
	for rows.Next() {
		var from, to types.ID
		if err := rows.Scan(&from, &to); err != nil {
			return nil, wrapDBError("scan adjacency row", err)
		}
		adjacency[from] = append(adjacency[from], to)
	}
	return adjacency, wrapDBError("iterate adjacency rows", rows.Err())
}

// ReadyQueue returns proposed/in-progress issues with no incoming
// blocks edge from a non-terminal issue and no depends_on edge to a
// non-terminal issue, ordered by priority then age.
func (r depRepo) ReadyQueue(ctx context.Context, projectID *types.ID, opts types.ListOptions) ([]*types.Issue, error) {
	opts = opts.Normalize()
	query := issueSelectColumns + ` FROM issues i
		WHERE i.status IN ('proposed', 'in_progress')
		AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN issues blocker ON blocker.id = d.from_issue_id
			WHERE d.to_issue_id = i.id
			AND d.kind = 'blocks'
			AND blocker.status NOT IN ('completed', 'closed')
		)
		AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN issues target ON target.id = d.to_issue_id
			WHERE d.from_issue_id = i.id
			AND d.kind = 'depends_on'
			AND target.status NOT IN ('completed', 'closed')
		)`
	var args []any
	if projectID != nil {
		query += ` AND i.project_id = ?`
		args = append(args, *projectID)
	}
	query += ` ORDER BY i.priority ASC, i.created_at ASC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("ready queue", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, wrapDBError("scan ready issue", err)
		}
		issues = append(issues, issue)
	}
	return issues, wrapDBError("iterate ready queue", rows.Err())
}
