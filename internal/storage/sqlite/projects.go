package sqlite

import (
	"context"
	"fmt"

	"github.com/dotwork/issuegraph/internal/types"
)

type projectRepo struct{ s *Store }

func (r projectRepo) Get(ctx context.Context, id types.ID) (*types.Project, error) {
	return r.scanOne(ctx, `WHERE id = ?`, id)
}

func (r projectRepo) GetByName(ctx context.Context, name string) (*types.Project, error) {
	return r.scanOne(ctx, `WHERE name = ?`, name)
}

func (r projectRepo) scanOne(ctx context.Context, where string, arg any) (*types.Project, error) {
	row := r.s.q().QueryRowContext(ctx,
		`SELECT id, name, description, owner, created_at FROM projects `+where, arg)
	var p types.Project
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Owner, &createdAt)
	if err != nil {
		return nil, wrapDBError("get project", err)
	}
	p.CreatedAt = parseTimeString(createdAt)
	return &p, nil
}

func (r projectRepo) Save(ctx context.Context, project *types.Project) error {
	_, err := r.s.q().ExecContext(ctx, `
		INSERT INTO projects (id, name, description, owner, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			owner = excluded.owner
	`, project.ID, project.Name, project.Description, project.Owner, project.CreatedAt)
	if err != nil {
		if isUniqueConstraintViolation(err) {
			return fmt.Errorf("save project %s: %w", project.Name, types.ErrDuplicateID)
		}
		return wrapDBErrorf(err, "save project %s", project.ID)
	}
	return nil
}

func (r projectRepo) Delete(ctx context.Context, id types.ID) error {
	res, err := r.s.q().ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return wrapDBErrorf(err, "delete project %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapDBErrorf(err, "delete project %s", id)
	}
	if n == 0 {
		return fmt.Errorf("delete project %s: %w", id, types.ErrNotFound)
	}
	return nil
}

func (r projectRepo) List(ctx context.Context) ([]*types.Project, error) {
	rows, err := r.s.q().QueryContext(ctx,
		`SELECT id, name, description, owner, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, wrapDBError("list projects", err)
	}
	defer func() { _ = rows.Close() }()

	var projects []*types.Project
	for rows.Next() {
		var p types.Project
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Owner, &createdAt); err != nil {
			return nil, wrapDBError("scan project", err)
		}
		p.CreatedAt = parseTimeString(createdAt)
		projects = append(projects, &p)
	}
	return projects, wrapDBError("iterate projects", rows.Err())
}

func (r projectRepo) HasIssues(ctx context.Context, id types.ID) (bool, error) {
	var n int
	err := r.s.q().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE project_id = ?`, id).Scan(&n)
	if err != nil {
		return false, wrapDBErrorf(err, "check issues for project %s", id)
	}
	return n > 0, nil
}
