package sqlite

import (
	"context"

	"github.com/dotwork/issuegraph/internal/types"
)

type commentRepo struct{ s *Store }

func (r commentRepo) Add(ctx context.Context, comment *types.Comment) error {
	_, err := r.s.q().ExecContext(ctx, `
		INSERT INTO comments (id, issue_id, author, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, comment.ID, comment.IssueID, comment.Author, comment.Body, comment.CreatedAt)
	return wrapDBErrorf(err, "add comment to %s", comment.IssueID)
}

func (r commentRepo) ListFor(ctx context.Context, issueID types.ID) ([]*types.Comment, error) {
	rows, err := r.s.q().QueryContext(ctx, `
		SELECT id, issue_id, author, body, created_at FROM comments
		WHERE issue_id = ? ORDER BY created_at ASC
	`, issueID)
	if err != nil {
		return nil, wrapDBErrorf(err, "list comments for %s", issueID)
	}
	defer func() { _ = rows.Close() }()

	var comments []*types.Comment
	for rows.Next() {
		var c types.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Body, &createdAt); err != nil {
			return nil, wrapDBError("scan comment", err)
		}
		c.CreatedAt = parseTimeString(createdAt)
		comments = append(comments, &c)
	}
	return comments, wrapDBError("iterate comments", rows.Err())
}
