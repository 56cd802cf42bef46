package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/lock"
	"taskline/internal/migrate"
	"taskline/internal/repo"
)

var (
	scrum    = domain.Actor{ID: "sam", Role: domain.RoleScrumMaster}
	reporter = domain.Actor{ID: "rita", Role: domain.RoleEmployee}
	dev      = domain.Actor{ID: "dan", Role: domain.RoleEmployee}
	peer     = domain.Actor{ID: "pat", Role: domain.RoleEmployee}
	outsider = domain.Actor{ID: "olga", Role: domain.RoleEmployee}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	Engine  engine.Engine
	Store   *repo.Repo
	Clock   *clock
	Ctx     context.Context
	Project domain.Project
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	store := repo.New(conn)
	t.Cleanup(func() { store.Close() })

	clk := &clock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	eng := engine.New(store, lock.NewMemory(5*time.Second))
	eng.Now = clk.Now
	ctx := context.Background()

	p, err := eng.CreateProject(ctx, scrum, engine.ProjectFields{Key: "web", Name: "Web"})
	require.NoError(t, err)
	for _, a := range []domain.Actor{reporter, dev, peer} {
		_, err := eng.AddProjectMember(ctx, scrum, p.ID, a.ID, domain.MemberMember)
		require.NoError(t, err)
	}
	return testEnv{Engine: eng, Store: store, Clock: clk, Ctx: ctx, Project: p}
}

func (env testEnv) createTask(t *testing.T, actor domain.Actor, f engine.TaskFields) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, actor, env.Project.ID, f)
	require.NoError(t, err)
	return task
}

func (env testEnv) activity(t *testing.T, taskID string) []domain.ActivityLog {
	t.Helper()
	logs, err := env.Store.ListActivity(env.Ctx, taskID)
	require.NoError(t, err)
	return logs
}

func (env testEnv) events(t *testing.T, taskID, kind string) []domain.BehavioralEvent {
	t.Helper()
	evs, err := env.Store.ListEvents(env.Ctx, repo.EventFilter{TaskID: taskID, Kinds: []string{kind}})
	require.NoError(t, err)
	return evs
}

func (env testEnv) notifications(t *testing.T, userID string) []domain.Notification {
	t.Helper()
	ns, err := env.Store.ListNotifications(env.Ctx, repo.NotificationFilter{UserID: userID})
	require.NoError(t, err)
	return ns
}

func countAction(logs []domain.ActivityLog, action string) int {
	n := 0
	for _, l := range logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

func strPtr(s string) *string { return &s }

func TestCreateTaskRecordsCreation(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})

	assert.Equal(t, reporter.ID, task.ReporterID)
	assert.Equal(t, domain.StatusTodo, task.Status)
	assert.Equal(t, "task", task.Type)
	assert.Equal(t, "medium", task.Priority)
	assert.Nil(t, task.CompletedAt)

	logs := env.activity(t, task.ID)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.ActionCreated, logs[0].Action)
	assert.Equal(t, reporter.ID, logs[0].ActorID)
	assert.Len(t, env.events(t, task.ID, domain.EventTaskCreated), 1)
	assert.Empty(t, env.notifications(t, reporter.ID))
}

func TestCreateTaskWithAssigneeNotifies(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Write docs", AssigneeID: dev.ID})

	logs := env.activity(t, task.ID)
	assert.Equal(t, 1, countAction(logs, domain.ActionAssigned))
	ns := env.notifications(t, dev.ID)
	require.Len(t, ns, 1)
	assert.Equal(t, "You have been assigned to task: Write docs", ns[0].Message)
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name      string
		actor     domain.Actor
		projectID string
		fields    engine.TaskFields
		field     string
	}{
		{"missing project", reporter, "", engine.TaskFields{Title: "x"}, "project"},
		{"missing title", reporter, env.Project.ID, engine.TaskFields{Title: "  "}, "title"},
		{"unknown project", reporter, "nope", engine.TaskFields{Title: "x"}, "project"},
		{"project not accessible", outsider, env.Project.ID, engine.TaskFields{Title: "x"}, "project"},
		{"bad status", reporter, env.Project.ID, engine.TaskFields{Title: "x", Status: "blocked"}, "status"},
		{"bad due date", reporter, env.Project.ID, engine.TaskFields{Title: "x", DueDate: "01/02/2024"}, "due_date"},
		{"unknown parent", reporter, env.Project.ID, engine.TaskFields{Title: "x", ParentID: "ghost"}, "parent"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Engine.CreateTask(env.Ctx, tc.actor, tc.projectID, tc.fields)
			var ve domain.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestStatusTransitionsLogOncePerChange(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})

	task, err := env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{Status: strPtr(domain.StatusInProgress)})
	require.NoError(t, err)
	assert.Nil(t, task.CompletedAt)

	env.Clock.Advance(time.Hour)
	doneAt := env.Clock.Now()
	task, err = env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{Status: strPtr(domain.StatusDone)})
	require.NoError(t, err)
	require.NotNil(t, task.CompletedAt)
	assert.Equal(t, doneAt, *task.CompletedAt)

	logs := env.activity(t, task.ID)
	require.Equal(t, 2, countAction(logs, domain.ActionStatusChanged))
	// newest first
	assert.Equal(t, domain.StatusInProgress, logs[0].FromValue)
	assert.Equal(t, domain.StatusDone, logs[0].ToValue)
	assert.Equal(t, domain.StatusTodo, logs[1].FromValue)
	assert.Len(t, env.events(t, task.ID, domain.EventTaskCompleted), 1)

	stored, err := env.Store.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, doneAt, *stored.CompletedAt)
	assert.Equal(t, int64(3), stored.Version)
}

func TestUpdateResendingSameValuesHasNoEffects(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug", AssigneeID: dev.ID})
	before := len(env.activity(t, task.ID))

	_, err := env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{
		Status:     strPtr(domain.StatusTodo),
		AssigneeID: strPtr(dev.ID),
		Title:      strPtr("Fix bug"),
	})
	require.NoError(t, err)
	assert.Len(t, env.activity(t, task.ID), before)
	assert.Len(t, env.notifications(t, dev.ID), 1)
}

func TestAssignmentLogsAndNotifiesOnlyOnChange(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})

	task, err := env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{AssigneeID: strPtr(dev.ID)})
	require.NoError(t, err)
	logs := env.activity(t, task.ID)
	require.Equal(t, 1, countAction(logs, domain.ActionAssigned))
	assert.Equal(t, "", logs[0].FromValue)
	assert.Equal(t, dev.ID, logs[0].ToValue)
	ns := env.notifications(t, dev.ID)
	require.Len(t, ns, 1)
	assert.Equal(t, domain.NotifyTaskAssigned, ns[0].Kind)
	assert.Equal(t, "Task Assigned", ns[0].Title)
	assert.Equal(t, task.ID, *ns[0].TaskID)

	// same assignee again
	_, err = env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{AssigneeID: strPtr(dev.ID)})
	require.NoError(t, err)
	assert.Equal(t, 1, countAction(env.activity(t, task.ID), domain.ActionAssigned))
	assert.Len(t, env.notifications(t, dev.ID), 1)

	// unassign logs but does not notify anyone
	_, err = env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{AssigneeID: strPtr("")})
	require.NoError(t, err)
	logs = env.activity(t, task.ID)
	assert.Equal(t, 2, countAction(logs, domain.ActionAssigned))
	assert.Equal(t, dev.ID, logs[0].FromValue)
	assert.Equal(t, "", logs[0].ToValue)
	assert.Len(t, env.notifications(t, dev.ID), 1)
}

func TestMoveTaskLogsEvenWhenStatusUnchanged(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug", Status: domain.StatusDone})
	require.NotNil(t, task.CompletedAt)
	firstDone := *task.CompletedAt

	env.Clock.Advance(time.Minute)
	order := 3
	moved, err := env.Engine.MoveTask(env.Ctx, reporter, task.ID, domain.StatusDone, &order)
	require.NoError(t, err)
	assert.Equal(t, 3, moved.Order)
	assert.Equal(t, firstDone, *moved.CompletedAt)

	logs := env.activity(t, task.ID)
	require.Equal(t, 1, countAction(logs, domain.ActionStatusChanged))
	assert.Equal(t, domain.StatusDone, logs[0].FromValue)
	assert.Equal(t, domain.StatusDone, logs[0].ToValue)

	drags := env.events(t, task.ID, domain.EventStatusDragDrop)
	require.Len(t, drags, 1)
	assert.Equal(t, map[string]string{"from": "done", "to": "done"}, drags[0].Metadata)
	assert.Len(t, env.events(t, task.ID, domain.EventTaskCompleted), 1)

	// UpdateTask with the same status records nothing
	_, err = env.Engine.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{Status: strPtr(domain.StatusDone)})
	require.NoError(t, err)
	assert.Equal(t, 1, countAction(env.activity(t, task.ID), domain.ActionStatusChanged))
}

func TestMoveTaskOutOfDoneClearsCompletion(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug", Status: domain.StatusDone})
	moved, err := env.Engine.MoveTask(env.Ctx, reporter, task.ID, domain.StatusReview, nil)
	require.NoError(t, err)
	assert.Nil(t, moved.CompletedAt)
	assert.Equal(t, task.Order, moved.Order)
	assert.Empty(t, env.events(t, task.ID, domain.EventTaskCompleted))

	_, err = env.Engine.MoveTask(env.Ctx, reporter, task.ID, "", nil)
	var ve domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestTaskWritePermissions(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug", AssigneeID: dev.ID})

	_, err := env.Engine.UpdateTask(env.Ctx, dev, task.ID, engine.TaskPatch{Status: strPtr(domain.StatusInProgress)})
	require.NoError(t, err, "assignee may write")
	_, err = env.Engine.UpdateTask(env.Ctx, scrum, task.ID, engine.TaskPatch{Priority: strPtr("high")})
	require.NoError(t, err, "scrum master may write")

	_, err = env.Engine.UpdateTask(env.Ctx, peer, task.ID, engine.TaskPatch{Status: strPtr(domain.StatusDone)})
	var ae domain.AuthorizationError
	require.True(t, errors.As(err, &ae), "project member without a role on the task: %v", err)
	_, err = env.Engine.MoveTask(env.Ctx, peer, task.ID, domain.StatusDone, nil)
	require.True(t, errors.As(err, &ae))

	_, err = env.Engine.UpdateTask(env.Ctx, outsider, task.ID, engine.TaskPatch{Status: strPtr(domain.StatusDone)})
	var nf domain.NotFoundError
	require.True(t, errors.As(err, &nf), "outsider must not learn the task exists: %v", err)

	_, err = env.Engine.UpdateTask(env.Ctx, reporter, "missing", engine.TaskPatch{})
	require.True(t, errors.As(err, &nf))

	// peer can still read
	_, err = env.Engine.GetTask(env.Ctx, peer, task.ID)
	assert.NoError(t, err)

	stored, err := env.Store.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, stored.Status)
}

func TestReporterIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})
	updated, err := env.Engine.UpdateTask(env.Ctx, scrum, task.ID, engine.TaskPatch{Title: strPtr("Fix the bug")})
	require.NoError(t, err)
	assert.Equal(t, reporter.ID, updated.ReporterID)
}

func TestParentCycleRejected(t *testing.T) {
	env := newTestEnv(t)
	epic := env.createTask(t, reporter, engine.TaskFields{Title: "Epic", Type: "epic"})
	story := env.createTask(t, reporter, engine.TaskFields{Title: "Story", ParentID: epic.ID})
	sub := env.createTask(t, reporter, engine.TaskFields{Title: "Sub", Type: "subtask", ParentID: story.ID})

	_, err := env.Engine.UpdateTask(env.Ctx, reporter, epic.ID, engine.TaskPatch{ParentID: strPtr(sub.ID)})
	var ve domain.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Equal(t, "parent", ve.Field)

	_, err = env.Engine.UpdateTask(env.Ctx, reporter, epic.ID, engine.TaskPatch{ParentID: strPtr(epic.ID)})
	require.True(t, errors.As(err, &ve))

	children, err := env.Engine.ListSubtasks(env.Ctx, peer, epic.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, story.ID, children[0].ID)
}

func TestBoardAndBacklog(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, reporter, engine.TaskFields{Title: "a", Status: domain.StatusBacklog})
	env.createTask(t, reporter, engine.TaskFields{Title: "b", Status: domain.StatusTodo, Order: 2})
	env.createTask(t, reporter, engine.TaskFields{Title: "c", Status: domain.StatusTodo, Order: 1})
	env.createTask(t, reporter, engine.TaskFields{Title: "d", Status: domain.StatusReview})

	board, err := env.Engine.Board(env.Ctx, peer, env.Project.ID)
	require.NoError(t, err)
	require.Len(t, board.Columns, 4)
	assert.Equal(t, domain.StatusTodo, board.Columns[0].Status)
	require.Len(t, board.Columns[0].Tasks, 2)
	assert.Equal(t, "c", board.Columns[0].Tasks[0].Title)
	assert.Empty(t, board.Columns[1].Tasks)
	assert.Len(t, board.Columns[2].Tasks, 1)

	backlog, err := env.Engine.Backlog(env.Ctx, peer, env.Project.ID)
	require.NoError(t, err)
	require.Len(t, backlog, 1)
	assert.Equal(t, "a", backlog[0].Title)

	_, err = env.Engine.Board(env.Ctx, outsider, env.Project.ID)
	var nf domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestListTasksRespectsVisibility(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, reporter, engine.TaskFields{Title: "mine", AssigneeID: dev.ID})
	env.createTask(t, reporter, engine.TaskFields{Title: "other"})

	mine, err := env.Engine.ListTasks(env.Ctx, dev, engine.TaskQuery{AssigneeID: "me"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "mine", mine[0].Title)

	all, err := env.Engine.ListTasks(env.Ctx, peer, engine.TaskQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := env.Engine.ListTasks(env.Ctx, outsider, engine.TaskQuery{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListTasksByDueDate(t *testing.T) {
	env := newTestEnv(t)
	env.createTask(t, reporter, engine.TaskFields{Title: "march", DueDate: "2024-03-14"})
	env.createTask(t, reporter, engine.TaskFields{Title: "april", DueDate: "2024-04-01"})
	env.createTask(t, reporter, engine.TaskFields{Title: "someday"})

	dated, err := env.Engine.ListTasks(env.Ctx, peer, engine.TaskQuery{HasDueDate: true})
	require.NoError(t, err)
	assert.Len(t, dated, 2)

	march, err := env.Engine.ListTasks(env.Ctx, peer, engine.TaskQuery{DueMonth: "2024-03"})
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, "march", march[0].Title)

	hidden, err := env.Engine.ListTasks(env.Ctx, outsider, engine.TaskQuery{HasDueDate: true})
	require.NoError(t, err)
	assert.Empty(t, hidden)

	_, err = env.Engine.ListTasks(env.Ctx, peer, engine.TaskQuery{DueMonth: "March"})
	var ve domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "due_month", ve.Field)
}

func TestCommentsRecordActivity(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})

	c, err := env.Engine.AddComment(env.Ctx, peer, task.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, peer.ID, c.AuthorID)
	assert.Equal(t, 1, countAction(env.activity(t, task.ID), domain.ActionCommentAdded))
	assert.Len(t, env.events(t, task.ID, domain.EventCommentAdded), 1)

	comments, err := env.Engine.ListComments(env.Ctx, reporter, task.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	_, err = env.Engine.AddComment(env.Ctx, peer, task.ID, " ")
	var ve domain.ValidationError
	assert.True(t, errors.As(err, &ve))
	_, err = env.Engine.AddComment(env.Ctx, outsider, task.ID, "hi")
	var nf domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

// failingStore fails every side-effect write.
type failingStore struct {
	repo.Store
}

func (f failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repo.Tx) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, tx repo.Tx) error {
		return fn(ctx, failingTx{tx})
	})
}

type failingTx struct {
	repo.Tx
}

func (failingTx) CreateMany(context.Context, domain.Effects) error {
	return errors.New("disk full")
}

func TestSideEffectFailureRollsBackMutation(t *testing.T) {
	env := newTestEnv(t)
	task := env.createTask(t, reporter, engine.TaskFields{Title: "Fix bug"})

	broken := env.Engine
	broken.Store = failingStore{env.Store}

	_, err := broken.UpdateTask(env.Ctx, reporter, task.ID, engine.TaskPatch{Status: strPtr(domain.StatusDone), AssigneeID: strPtr(dev.ID)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	stored, err := env.Store.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTodo, stored.Status)
	assert.Nil(t, stored.CompletedAt)
	assert.Nil(t, stored.AssigneeID)
	assert.Equal(t, task.Version, stored.Version)
	assert.Len(t, env.activity(t, task.ID), 1)
	assert.Empty(t, env.notifications(t, dev.ID))

	_, err = broken.CreateTask(env.Ctx, reporter, env.Project.ID, engine.TaskFields{Title: "never"})
	require.Error(t, err)
	tasks, err := env.Store.ListTasks(env.Ctx, repo.TaskFilter{ProjectID: env.Project.ID})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}
