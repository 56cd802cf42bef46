package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskline/internal/domain"
)

// Reader is the query side of the persistence port.
type Reader interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]domain.Project, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]domain.Task, error)
	ListChildren(ctx context.Context, parentID string) ([]string, error)
	GetSprint(ctx context.Context, id string) (domain.Sprint, error)
	ListSprints(ctx context.Context, f SprintFilter) ([]domain.Sprint, error)
	GetTimeEntry(ctx context.Context, id string) (domain.TimeEntry, error)
	ListTimeEntries(ctx context.Context, f TimeEntryFilter) ([]domain.TimeEntry, error)
	ListComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	ListActivity(ctx context.Context, taskID string) ([]domain.ActivityLog, error)
	ListEvents(ctx context.Context, f EventFilter) ([]domain.BehavioralEvent, error)
	LatestEventSeq(ctx context.Context) (int64, error)
	GetNotification(ctx context.Context, id string) (domain.Notification, error)
	ListNotifications(ctx context.Context, f NotificationFilter) ([]domain.Notification, error)
}

// Tx is a unit of work. Everything written through a Tx commits or rolls back together.
type Tx interface {
	Reader
	InsertProject(ctx context.Context, p domain.Project) error
	AddMember(ctx context.Context, projectID string, m domain.Member) error
	InsertTask(ctx context.Context, t domain.Task) error
	// UpdateTask saves t if the stored version still equals t.Version and bumps it.
	UpdateTask(ctx context.Context, t domain.Task) error
	InsertSprint(ctx context.Context, s domain.Sprint) error
	UpdateSprint(ctx context.Context, s domain.Sprint) error
	InsertComment(ctx context.Context, c domain.Comment) error
	InsertTimeEntry(ctx context.Context, e domain.TimeEntry) error
	UpdateTimeEntry(ctx context.Context, e domain.TimeEntry) error
	// MarkNotificationsRead marks one notification (or all when id is empty) of userID as read.
	MarkNotificationsRead(ctx context.Context, userID, id string) (int64, error)
	// CreateMany appends a batch of side-effect records in order.
	CreateMany(ctx context.Context, fx domain.Effects) error
}

// Store is the persistence port used by the engine.
//
// Activity logs, behavioral events, notifications, comments and time entries
// belong to their task (or project) and are removed with it by the storage
// layer. The engine never deletes them.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q dbtx
}

// Repo is the SQLite implementation of Store.
type Repo struct {
	queries
	DB *sql.DB
}

func New(db *sql.DB) *Repo {
	return &Repo{queries: queries{q: db}, DB: db}
}

type txRepo struct {
	queries
}

// WithinTx runs fn in a transaction and commits when fn returns nil.
func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(ctx, txRepo{queries{q: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repo) Close() error {
	return r.DB.Close()
}

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000Z"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTS(*t)
}

func parseNullTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapWriteErr turns constraint violations from concurrent writers into ConflictError.
func mapWriteErr(resource string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return domain.ConflictError{Resource: resource, Reason: err.Error()}
	}
	return err
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(kind, id)
	}
	return err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
