package repo

import (
	"context"
	"database/sql"
	"fmt"

	"taskline/internal/domain"
)

type SprintFilter struct {
	ProjectID  string
	ActiveOnly bool
}

const sprintColumns = `id,project_id,name,COALESCE(goal,''),start_date,end_date,is_active,is_completed,created_at,version`

func scanSprint(row rowScanner) (domain.Sprint, error) {
	var (
		s                  domain.Sprint
		startDate, endDate sql.NullString
		active, completed  int
		created            string
	)
	if err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Goal, &startDate, &endDate, &active, &completed, &created, &s.Version); err != nil {
		return s, err
	}
	s.StartDate = stringPtr(startDate)
	s.EndDate = stringPtr(endDate)
	s.IsActive = active == 1
	s.IsCompleted = completed == 1
	var err error
	s.CreatedAt, err = parseTS(created)
	return s, err
}

func (r queries) GetSprint(ctx context.Context, id string) (domain.Sprint, error) {
	s, err := scanSprint(r.q.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE id=?`, id))
	if err != nil {
		return s, notFound(err, "sprint", id)
	}
	return s, nil
}

func (r queries) ListSprints(ctx context.Context, f SprintFilter) ([]domain.Sprint, error) {
	query := `SELECT ` + sprintColumns + ` FROM sprints WHERE project_id=?`
	args := []any{f.ProjectID}
	if f.ActiveOnly {
		query += ` AND is_active=1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r txRepo) InsertSprint(ctx context.Context, s domain.Sprint) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO sprints(id,project_id,name,goal,start_date,end_date,is_active,is_completed,created_at,version) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, nullable(s.Goal), nullableStringPtr(s.StartDate), nullableStringPtr(s.EndDate),
		boolInt(s.IsActive), boolInt(s.IsCompleted), formatTS(s.CreatedAt), s.Version)
	return mapWriteErr("sprints of project "+s.ProjectID, err)
}

func (r txRepo) UpdateSprint(ctx context.Context, s domain.Sprint) error {
	res, err := r.q.ExecContext(ctx, `UPDATE sprints SET name=?,goal=?,start_date=?,end_date=?,is_active=?,is_completed=?,version=version+1 WHERE id=? AND version=?`,
		s.Name, nullable(s.Goal), nullableStringPtr(s.StartDate), nullableStringPtr(s.EndDate),
		boolInt(s.IsActive), boolInt(s.IsCompleted), s.ID, s.Version)
	if err != nil {
		return mapWriteErr("sprints of project "+s.ProjectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ConflictError{Resource: "sprint " + s.ID, Reason: fmt.Sprintf("version %d is stale", s.Version)}
	}
	return nil
}
