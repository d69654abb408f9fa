package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dotwork/issuegraph/internal/types"
)

type issueRepo struct{ s *Store }

func (r issueRepo) Get(ctx context.Context, id types.ID) (*types.Issue, error) {
	row := r.s.q().QueryRowContext(ctx, issueSelectColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, wrapDBError("get issue", err)
	}
	labels, err := r.labelsFor(ctx, id)
	if err != nil {
		return nil, wrapDBErrorf(err, "load labels for %s", id)
	}
	issue.Labels = labels
	return issue, nil
}

func (r issueRepo) Exists(ctx context.Context, id types.ID) (bool, error) {
	var n int
	err := r.s.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, wrapDBError("check issue existence", err)
	}
	return n > 0, nil
}

func (r issueRepo) Save(ctx context.Context, issue *types.Issue) error {
	refs := formatJSONStringArray(issue.References)
	assignees := formatJSONStringArray(issue.Assignees)
	var closedAt any
	if issue.ClosedAt != nil {
		closedAt = *issue.ClosedAt
	}

	_, err := r.s.q().ExecContext(ctx, `
		INSERT INTO issues (
			id, project_id, title, description, design_notes, acceptance_criteria,
			status, priority, issue_type, assignees, epic_id, blocked_reason,
			source_url, refs, content_hash, created_at, updated_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			project_id = excluded.project_id,
			title = excluded.title,
			description = excluded.description,
			design_notes = excluded.design_notes,
			acceptance_criteria = excluded.acceptance_criteria,
			status = excluded.status,
			priority = excluded.priority,
			issue_type = excluded.issue_type,
			assignees = excluded.assignees,
			epic_id = excluded.epic_id,
			blocked_reason = excluded.blocked_reason,
			source_url = excluded.source_url,
			refs = excluded.refs,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at
	`,
		issue.ID, issue.ProjectID, issue.Title, issue.Description, issue.DesignNotes,
		issue.AcceptanceCriteria, issue.Status, issue.Priority, issue.Type, assignees,
		issue.EpicID, issue.BlockedReason, issue.SourceURL, refs, issue.ContentHash,
		issue.CreatedAt, issue.UpdatedAt, closedAt,
	)
	if err != nil {
		if isUniqueConstraintViolation(err) {
			return fmt.Errorf("save issue %s: %w", issue.ID, types.ErrDuplicateID)
		}
		return wrapDBErrorf(err, "save issue %s", issue.ID)
	}
	return r.replaceLabels(ctx, issue.ID, issue.Labels)
}

func (r issueRepo) replaceLabels(ctx context.Context, id types.ID, labels []string) error {
	if _, err := r.s.q().ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ?`, id); err != nil {
		return wrapDBErrorf(err, "clear labels for %s", id)
	}
	for i, label := range labels {
		if _, err := r.s.q().ExecContext(ctx,
			`INSERT INTO labels (issue_id, label, rowid_order) VALUES (?, ?, ?)`,
			id, label, i); err != nil {
			return wrapDBErrorf(err, "insert label %q for %s", label, id)
		}
	}
	return nil
}

func (r issueRepo) labelsFor(ctx context.Context, id types.ID) ([]string, error) {
	rows, err := r.s.q().QueryContext(ctx,
		`SELECT label FROM labels WHERE issue_id = ? ORDER BY rowid_order`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

func (r issueRepo) Delete(ctx context.Context, id types.ID) error {
	res, err := r.s.q().ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
	if err != nil {
		return wrapDBErrorf(err, "delete issue %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErrorf(err, "delete issue %s", id)
	}
	if n == 0 {
		return fmt.Errorf("delete issue %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (r issueRepo) List(ctx context.Context, filter types.IssueFilter, opts types.ListOptions) ([]*types.Issue, error) {
	opts = opts.Normalize()
	where, args := buildFilterClause(filter)
	query := issueSelectColumns + ` FROM issues` + where +
		` ORDER BY ` + orderByClause(opts.Sort) + ` LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list issues", err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanIssuesWithLabels(ctx, rows)
}

func (r issueRepo) Search(ctx context.Context, query string, filter types.IssueFilter, opts types.ListOptions) ([]*types.Issue, error) {
	opts = opts.Normalize()
	where, args := buildFilterClause(filter)
	if where == "" {
		where = " WHERE 1=1"
	}
	sql := issueSelectColumnsPrefixed + `
		FROM issues_fts
		JOIN issues i ON issues_fts.rowid = i.rowid` + where + `
		AND issues_fts MATCH ?
		ORDER BY bm25(issues_fts) LIMIT ? OFFSET ?`
	args = append(args, query, opts.Limit, opts.Offset)

	rows, err := r.s.q().QueryContext(ctx, sql, args...)
	if err != nil {
		return nil, wrapDBError("search issues", err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanIssuesWithLabels(ctx, rows)
}

func (r issueRepo) scanIssuesWithLabels(ctx context.Context, rows *sql.Rows) ([]*types.Issue, error) {
	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, wrapDBError("scan issue", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate issues", err)
	}
	for _, issue := range issues {
		labels, err := r.labelsFor(ctx, issue.ID)
		if err != nil {
			return nil, wrapDBErrorf(err, "load labels for %s", issue.ID)
		}
		issue.Labels = labels
	}
	return issues, nil
}

func (r issueRepo) EpicCounts(ctx context.Context, epicID types.ID) (types.EpicCounts, error) {
	var counts types.EpicCounts
	err := r.s.q().QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			SUM(CASE WHEN status IN ('completed','closed') THEN 0 ELSE 1 END),
			SUM(CASE WHEN status IN ('completed','closed') THEN 1 ELSE 0 END)
		FROM issues WHERE epic_id = ?
	`, epicID).Scan(&counts.Total, &counts.Open, &counts.Closed)
	if err != nil {
		return counts, wrapDBErrorf(err, "epic counts for %s", epicID)
	}
	return counts, nil
}

func (r issueRepo) ListLabels(ctx context.Context, projectID *types.ID) ([]types.LabelCount, error) {
	query := `
		SELECT l.label, COUNT(*) FROM labels l
		JOIN issues i ON i.id = l.issue_id`
	var args []any
	if projectID != nil {
		query += ` WHERE i.project_id = ?`
		args = append(args, *projectID)
	}
	query += ` GROUP BY l.label ORDER BY l.label`

	rows, err := r.s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list labels", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.LabelCount
	for rows.Next() {
		var lc types.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, wrapDBError("scan label count", err)
		}
		out = append(out, lc)
	}
	return out, wrapDBError("iterate label counts", rows.Err())
}

// issueSelectColumns is the column list used by every issue-scanning
// query that reads directly from the issues table.
const issueSelectColumns = `SELECT
	id, project_id, title, description, design_notes, acceptance_criteria,
	status, priority, issue_type, assignees, epic_id, blocked_reason,
	source_url, refs, content_hash, created_at, updated_at, closed_at`

// issueSelectColumnsPrefixed is the same column list qualified with the
// "i." alias used in joined queries such as Search.
const issueSelectColumnsPrefixed = `SELECT
	i.id, i.project_id, i.title, i.description, i.design_notes, i.acceptance_criteria,
	i.status, i.priority, i.issue_type, i.assignees, i.epic_id, i.blocked_reason,
	i.source_url, i.refs, i.content_hash, i.created_at, i.updated_at, i.closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanIssue(row scanner) (*types.Issue, error) {
	var issue types.Issue
	var assignees, refs string
	var closedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&issue.ID, &issue.ProjectID, &issue.Title, &issue.Description, &issue.DesignNotes,
		&issue.AcceptanceCriteria, &issue.Status, &issue.Priority, &issue.Type, &assignees,
		&issue.EpicID, &issue.BlockedReason, &issue.SourceURL, &refs, &issue.ContentHash,
		&createdAt, &updatedAt, &closedAt,
	)
	if err != nil {
		return nil, err
	}
	issue.Assignees = parseJSONStringArray(assignees)
	issue.References = parseJSONStringArray(refs)
	issue.CreatedAt = parseTimeString(createdAt)
	issue.UpdatedAt = parseTimeString(updatedAt)
	issue.ClosedAt = parseNullableTimeString(closedAt)
	return &issue, nil
}

func buildFilterClause(f types.IssueFilter) (string, []any) {
	var clauses []string
	var args []any
	if f.ProjectID != nil {
		clauses = append(clauses, "project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Priority != nil {
		clauses = append(clauses, "priority = ?")
		args = append(args, *f.Priority)
	}
	if f.Type != nil {
		clauses = append(clauses, "issue_type = ?")
		args = append(args, *f.Type)
	}
	if f.EpicID != nil {
		clauses = append(clauses, "epic_id = ?")
		args = append(args, *f.EpicID)
	}
	if f.Assignee != nil {
		clauses = append(clauses, "assignees LIKE ?")
		args = append(args, "%\""+*f.Assignee+"\"%")
	}
	if f.Label != nil {
		clauses = append(clauses, "id IN (SELECT issue_id FROM labels WHERE label = ?)")
		args = append(args, *f.Label)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// orderByClause maps a fixed SortField/SortDirection pair to a literal
// SQL fragment. sortColumns and the Direction equality check are the
// only place user-influenced sort input ever reaches SQL text, and
// both are drawn from closed enums rather than interpolated strings.
func orderByClause(sort types.SortPolicy) string {
	column, ok := sortColumns[sort.Field]
	if !ok {
		column = "created_at"
	}
	dir := "ASC"
	if sort.Direction == types.SortDesc {
		dir = "DESC"
	}
	return column + " " + dir
}

var sortColumns = map[types.SortField]string{
	types.SortCreatedAt: "created_at",
	types.SortUpdatedAt: "updated_at",
	types.SortPriority:  "priority",
	types.SortStatus:    "status",
}
