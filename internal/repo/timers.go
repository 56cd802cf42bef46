package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskline/internal/domain"
)

type TimeEntryFilter struct {
	UserID      string
	TaskID      string
	RunningOnly bool
	Limit       int
}

const timeEntryColumns = `id,user_id,task_id,COALESCE(description,''),start_time,end_time,duration_seconds,is_running,created_at`

func scanTimeEntry(row rowScanner) (domain.TimeEntry, error) {
	var (
		e              domain.TimeEntry
		taskID, end    sql.NullString
		start, created string
		running        int
	)
	if err := row.Scan(&e.ID, &e.UserID, &taskID, &e.Description, &start, &end, &e.DurationSeconds, &running, &created); err != nil {
		return e, err
	}
	e.TaskID = stringPtr(taskID)
	e.IsRunning = running == 1
	var err error
	if e.StartTime, err = parseTS(start); err != nil {
		return e, err
	}
	if e.EndTime, err = parseNullTS(end); err != nil {
		return e, err
	}
	e.CreatedAt, err = parseTS(created)
	return e, err
}

func (r queries) GetTimeEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	e, err := scanTimeEntry(r.q.QueryRowContext(ctx, `SELECT `+timeEntryColumns+` FROM time_entries WHERE id=?`, id))
	if err != nil {
		return e, notFound(err, "time entry", id)
	}
	return e, nil
}

func (r queries) ListTimeEntries(ctx context.Context, f TimeEntryFilter) ([]domain.TimeEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.RunningOnly {
		clauses = append(clauses, "is_running=1")
	}
	query := `SELECT ` + timeEntryColumns + ` FROM time_entries`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY start_time DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TimeEntry
	for rows.Next() {
		e, err := scanTimeEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r txRepo) InsertTimeEntry(ctx context.Context, e domain.TimeEntry) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO time_entries(id,user_id,task_id,description,start_time,end_time,duration_seconds,is_running,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, nullableStringPtr(e.TaskID), nullable(e.Description), formatTS(e.StartTime), nullableTS(e.EndTime),
		e.DurationSeconds, boolInt(e.IsRunning), formatTS(e.CreatedAt))
	return mapWriteErr("timer of user "+e.UserID, err)
}

func (r txRepo) UpdateTimeEntry(ctx context.Context, e domain.TimeEntry) error {
	res, err := r.q.ExecContext(ctx, `UPDATE time_entries SET description=?,end_time=?,duration_seconds=?,is_running=? WHERE id=?`,
		nullable(e.Description), nullableTS(e.EndTime), e.DurationSeconds, boolInt(e.IsRunning), e.ID)
	if err != nil {
		return mapWriteErr("timer of user "+e.UserID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("time entry", e.ID)
	}
	return nil
}
