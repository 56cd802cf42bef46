package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

type EventFilter struct {
	ActorID   string
	TaskID    string
	ProjectID string
	Kinds     []string
	AfterSeq  int64
	// Ascending returns events in commit order; the default is newest first.
	Ascending bool
	Limit     int
}

type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Limit      int
}

func (r queries) ListComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id,task_id,author_id,content,created_at,updated_at FROM comments WHERE task_id=? ORDER BY created_at DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var (
			c                domain.Comment
			created, updated string
		)
		if err := rows.Scan(&c.ID, &c.TaskID, &c.AuthorID, &c.Content, &created, &updated); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTS(created); err != nil {
			return nil, err
		}
		if c.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r txRepo) InsertComment(ctx context.Context, c domain.Comment) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO comments(id,task_id,author_id,content,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.TaskID, c.AuthorID, c.Content, formatTS(c.CreatedAt), formatTS(c.UpdatedAt))
	return err
}

// ListActivity returns a task's audit trail, newest first.
func (r queries) ListActivity(ctx context.Context, taskID string) ([]domain.ActivityLog, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id,task_id,actor_id,action,from_value,to_value,ts FROM activity_logs WHERE task_id=? ORDER BY ts DESC, id DESC`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ActivityLog
	for rows.Next() {
		var (
			a  domain.ActivityLog
			ts string
		)
		if err := rows.Scan(&a.ID, &a.TaskID, &a.ActorID, &a.Action, &a.FromValue, &a.ToValue, &ts); err != nil {
			return nil, err
		}
		if a.Timestamp, err = parseTS(ts); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r queries) ListEvents(ctx context.Context, f EventFilter) ([]domain.BehavioralEvent, error) {
	var (
		clauses []string
		args    []any
	)
	if f.ActorID != "" {
		clauses = append(clauses, "actor_id=?")
		args = append(args, f.ActorID)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if len(f.Kinds) > 0 {
		clauses = append(clauses, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.AfterSeq > 0 {
		clauses = append(clauses, "seq>?")
		args = append(args, f.AfterSeq)
	}
	query := `SELECT seq,id,actor_id,task_id,project_id,kind,duration_seconds,metadata_json,ts FROM behavioral_events`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	if f.Ascending {
		query += " ORDER BY seq ASC"
	} else {
		query += " ORDER BY ts DESC, seq DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BehavioralEvent
	for rows.Next() {
		var (
			ev                domain.BehavioralEvent
			taskID, projectID sql.NullString
			duration          sql.NullInt64
			meta              sql.NullString
			ts                string
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &ev.ActorID, &taskID, &projectID, &ev.Kind, &duration, &meta, &ts); err != nil {
			return nil, err
		}
		ev.TaskID = stringPtr(taskID)
		ev.ProjectID = stringPtr(projectID)
		if duration.Valid {
			d := duration.Int64
			ev.DurationSeconds = &d
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("event %s metadata: %w", ev.ID, err)
			}
		}
		if ev.Timestamp, err = parseTS(ts); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}

// LatestEventSeq returns the sequence of the newest behavioral event, 0 if none.
func (r queries) LatestEventSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := r.q.QueryRowContext(ctx, `SELECT MAX(seq) FROM behavioral_events`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

const notificationColumns = `id,user_id,task_id,kind,title,message,is_read,created_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n       domain.Notification
		taskID  sql.NullString
		read    int
		created string
	)
	if err := row.Scan(&n.ID, &n.UserID, &taskID, &n.Kind, &n.Title, &n.Message, &read, &created); err != nil {
		return n, err
	}
	n.TaskID = stringPtr(taskID)
	n.IsRead = read == 1
	var err error
	n.CreatedAt, err = parseTS(created)
	return n, err
}

func (r queries) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	n, err := scanNotification(r.q.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id))
	if err != nil {
		return n, notFound(err, "notification", id)
	}
	return n, nil
}

func (r queries) ListNotifications(ctx context.Context, f NotificationFilter) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id=?`
	args := []any{f.UserID}
	if f.UnreadOnly {
		query += ` AND is_read=0`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r txRepo) MarkNotificationsRead(ctx context.Context, userID, id string) (int64, error) {
	query := `UPDATE notifications SET is_read=1 WHERE user_id=? AND is_read=0`
	args := []any{userID}
	if id != "" {
		query += ` AND id=?`
		args = append(args, id)
	}
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateMany appends activity logs, then behavioral events, then notifications.
func (r txRepo) CreateMany(ctx context.Context, fx domain.Effects) error {
	for _, a := range fx.Activity {
		if _, err := r.q.ExecContext(ctx, `INSERT INTO activity_logs(id,task_id,actor_id,action,from_value,to_value,ts) VALUES (?,?,?,?,?,?,?)`,
			a.ID, a.TaskID, a.ActorID, a.Action, a.FromValue, a.ToValue, formatTS(a.Timestamp)); err != nil {
			return fmt.Errorf("insert activity %s: %w", a.Action, err)
		}
	}
	for _, ev := range fx.Events {
		var meta any
		if len(ev.Metadata) > 0 {
			var err error
			if meta, err = marshalJSON(ev.Metadata); err != nil {
				return err
			}
		}
		var duration any
		if ev.DurationSeconds != nil {
			duration = *ev.DurationSeconds
		}
		if _, err := r.q.ExecContext(ctx, `INSERT INTO behavioral_events(id,actor_id,task_id,project_id,kind,duration_seconds,metadata_json,ts) VALUES (?,?,?,?,?,?,?,?)`,
			ev.ID, ev.ActorID, nullableStringPtr(ev.TaskID), nullableStringPtr(ev.ProjectID), ev.Kind, duration, meta, formatTS(ev.Timestamp)); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.Kind, err)
		}
	}
	for _, n := range fx.Notifications {
		if _, err := r.q.ExecContext(ctx, `INSERT INTO notifications(id,user_id,task_id,kind,title,message,is_read,created_at) VALUES (?,?,?,?,?,?,?,?)`,
			n.ID, n.UserID, nullableStringPtr(n.TaskID), n.Kind, n.Title, n.Message, boolInt(n.IsRead), formatTS(n.CreatedAt)); err != nil {
			return fmt.Errorf("insert notification %s: %w", n.Kind, err)
		}
	}
	return nil
}
