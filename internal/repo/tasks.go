package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

// TaskFilter selects tasks. Empty fields are ignored.
type TaskFilter struct {
	ProjectID     string
	Statuses      []string
	ExcludeStatus string
	AssigneeID    string
	SprintID      string
	NoSprint      bool
	ParentID      string
	HasDueDate    bool
	// DueMonth is YYYY-MM and matches due dates within that month.
	DueMonth string
	Limit    int
}

const taskColumns = `id,project_id,sprint_id,parent_id,title,COALESCE(description,''),type,priority,status,reporter_id,assignee_id,
story_points,estimated_hours,due_date,start_date,labels_json,ord,created_at,updated_at,completed_at,version`

// taskOrder lists by explicit order, most recent first on ties.
const taskOrder = ` ORDER BY ord ASC, created_at DESC, id DESC`

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		t                              domain.Task
		sprintID, parentID, assigneeID sql.NullString
		storyPoints                    sql.NullInt64
		estimated                      sql.NullFloat64
		dueDate, startDate, labelsJSON sql.NullString
		created, updated               string
		completed                      sql.NullString
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &sprintID, &parentID, &t.Title, &t.Description, &t.Type, &t.Priority, &t.Status,
		&t.ReporterID, &assigneeID, &storyPoints, &estimated, &dueDate, &startDate, &labelsJSON, &t.Order,
		&created, &updated, &completed, &t.Version); err != nil {
		return t, err
	}
	t.SprintID = stringPtr(sprintID)
	t.ParentID = stringPtr(parentID)
	t.AssigneeID = stringPtr(assigneeID)
	t.DueDate = stringPtr(dueDate)
	t.StartDate = stringPtr(startDate)
	if storyPoints.Valid {
		v := int(storyPoints.Int64)
		t.StoryPoints = &v
	}
	if estimated.Valid {
		v := estimated.Float64
		t.EstimatedHours = &v
	}
	if labelsJSON.Valid && labelsJSON.String != "" {
		if err := json.Unmarshal([]byte(labelsJSON.String), &t.Labels); err != nil {
			return t, fmt.Errorf("task %s labels: %w", t.ID, err)
		}
	}
	var err error
	if t.CreatedAt, err = parseTS(created); err != nil {
		return t, err
	}
	if t.UpdatedAt, err = parseTS(updated); err != nil {
		return t, err
	}
	if t.CompletedAt, err = parseNullTS(completed); err != nil {
		return t, err
	}
	return t, nil
}

func (r queries) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(r.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
	if err != nil {
		return t, notFound(err, "task", id)
	}
	return t, nil
}

func (r queries) ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.ExcludeStatus != "" {
		clauses = append(clauses, "status<>?")
		args = append(args, f.ExcludeStatus)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.NoSprint {
		clauses = append(clauses, "sprint_id IS NULL")
	} else if f.SprintID != "" {
		clauses = append(clauses, "sprint_id=?")
		args = append(args, f.SprintID)
	}
	if f.ParentID != "" {
		clauses = append(clauses, "parent_id=?")
		args = append(args, f.ParentID)
	}
	if f.HasDueDate || f.DueMonth != "" {
		clauses = append(clauses, "due_date IS NOT NULL")
	}
	if f.DueMonth != "" {
		clauses = append(clauses, "substr(due_date,1,7)=?")
		args = append(args, f.DueMonth)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += taskOrder
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListChildren returns the ids of the direct subtasks of parentID in list order.
func (r queries) ListChildren(ctx context.Context, parentID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM tasks WHERE parent_id=?`+taskOrder, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func taskArgs(t domain.Task) ([]any, error) {
	var labels any
	if len(t.Labels) > 0 {
		var err error
		if labels, err = marshalJSON(t.Labels); err != nil {
			return nil, err
		}
	}
	return []any{
		nullableStringPtr(t.SprintID), nullableStringPtr(t.ParentID), t.Title, nullable(t.Description), t.Type, t.Priority, t.Status,
		nullableStringPtr(t.AssigneeID), nullableIntPtr(t.StoryPoints), nullableFloatPtr(t.EstimatedHours),
		nullableStringPtr(t.DueDate), nullableStringPtr(t.StartDate), labels, t.Order,
		formatTS(t.UpdatedAt), nullableTS(t.CompletedAt),
	}, nil
}

func (r txRepo) InsertTask(ctx context.Context, t domain.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	args = append([]any{t.ID, t.ProjectID, t.ReporterID, formatTS(t.CreatedAt), t.Version}, args...)
	_, err = r.q.ExecContext(ctx, `INSERT INTO tasks(id,project_id,reporter_id,created_at,version,
sprint_id,parent_id,title,description,type,priority,status,assignee_id,story_points,estimated_hours,due_date,start_date,labels_json,ord,updated_at,completed_at)
VALUES (?,?,?,?,?, ?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	return mapWriteErr("task "+t.ID, err)
}

func (r txRepo) UpdateTask(ctx context.Context, t domain.Task) error {
	args, err := taskArgs(t)
	if err != nil {
		return err
	}
	args = append(args, t.ID, t.Version)
	res, err := r.q.ExecContext(ctx, `UPDATE tasks SET
sprint_id=?,parent_id=?,title=?,description=?,type=?,priority=?,status=?,assignee_id=?,story_points=?,estimated_hours=?,
due_date=?,start_date=?,labels_json=?,ord=?,updated_at=?,completed_at=?,version=version+1
WHERE id=? AND version=?`, args...)
	if err != nil {
		return mapWriteErr("task "+t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ConflictError{Resource: "task " + t.ID, Reason: fmt.Sprintf("version %d is stale", t.Version)}
	}
	return nil
}
