package engine

import (
	"context"
	"strings"
	"time"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

// TaskQuery filters ListTasks. AssigneeID "me" means the calling actor.
type TaskQuery struct {
	ProjectID  string
	Status     string
	AssigneeID string
	SprintID   string
	ParentID   string
	// HasDueDate keeps only tasks with a due date; DueMonth (YYYY-MM) implies it.
	HasDueDate bool
	DueMonth   string
	Limit      int
}

type BoardColumn struct {
	Status string        `json:"status"`
	Tasks  []domain.Task `json:"tasks"`
}

type Board struct {
	ProjectID string        `json:"project_id"`
	Columns   []BoardColumn `json:"columns"`
}

func (e Engine) GetTask(ctx context.Context, actor domain.Actor, taskID string) (domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return domain.Task{}, err
	}
	t, _, err := e.readableTask(ctx, e.Store, actor, taskID)
	return t, err
}

// ListTasks returns tasks visible to actor, ordered by order then newest first.
func (e Engine) ListTasks(ctx context.Context, actor domain.Actor, q TaskQuery) ([]domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	f := repo.TaskFilter{ProjectID: q.ProjectID, SprintID: q.SprintID, ParentID: q.ParentID, AssigneeID: q.AssigneeID, HasDueDate: q.HasDueDate}
	if q.DueMonth != "" {
		if _, err := time.Parse("2006-01", q.DueMonth); err != nil {
			return nil, domain.Invalid("due_month", "must be YYYY-MM")
		}
		f.DueMonth = q.DueMonth
	}
	if strings.EqualFold(q.AssigneeID, "me") {
		f.AssigneeID = actor.ID
	}
	if q.Status != "" {
		if !contains(domain.TaskStatuses, q.Status) {
			return nil, domain.Invalid("status", "unknown status "+q.Status)
		}
		f.Statuses = []string{q.Status}
	}
	if q.ProjectID != "" {
		if _, err := e.readableProject(ctx, e.Store, actor, q.ProjectID); err != nil {
			return nil, err
		}
		f.Limit = q.Limit
		return e.Store.ListTasks(ctx, f)
	}
	tasks, err := e.Store.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	if actor.IsScrumMaster() {
		return limitTasks(tasks, q.Limit), nil
	}
	visible, err := e.visibleProjects(ctx, actor)
	if err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, t := range tasks {
		if visible[t.ProjectID] {
			out = append(out, t)
		}
	}
	return limitTasks(out, q.Limit), nil
}

func limitTasks(tasks []domain.Task, limit int) []domain.Task {
	if limit > 0 && len(tasks) > limit {
		return tasks[:limit]
	}
	return tasks
}

func (e Engine) visibleProjects(ctx context.Context, actor domain.Actor) (map[string]bool, error) {
	projects, err := e.Store.ListProjects(ctx, repo.ProjectFilter{MemberID: actor.ID, IncludeArchived: true})
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool, len(projects))
	for _, p := range projects {
		visible[p.ID] = true
	}
	return visible, nil
}

// ListSubtasks returns the direct children of a task in list order.
func (e Engine) ListSubtasks(ctx context.Context, actor domain.Actor, taskID string) ([]domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, _, err := e.readableTask(ctx, e.Store, actor, taskID); err != nil {
		return nil, err
	}
	ids, err := e.Store.ListChildren(ctx, taskID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := e.Store.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Board groups a project's tasks into the todo, in progress, review and done columns.
func (e Engine) Board(ctx context.Context, actor domain.Actor, projectID string) (Board, error) {
	if err := checkActor(actor); err != nil {
		return Board{}, err
	}
	if _, err := e.readableProject(ctx, e.Store, actor, projectID); err != nil {
		return Board{}, err
	}
	tasks, err := e.Store.ListTasks(ctx, repo.TaskFilter{ProjectID: projectID, Statuses: domain.BoardStatuses})
	if err != nil {
		return Board{}, err
	}
	b := Board{ProjectID: projectID}
	for _, status := range domain.BoardStatuses {
		col := BoardColumn{Status: status, Tasks: []domain.Task{}}
		for _, t := range tasks {
			if t.Status == status {
				col.Tasks = append(col.Tasks, t)
			}
		}
		b.Columns = append(b.Columns, col)
	}
	return b, nil
}

// Backlog lists backlog tasks that are not planned into a sprint.
func (e Engine) Backlog(ctx context.Context, actor domain.Actor, projectID string) ([]domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, err := e.readableProject(ctx, e.Store, actor, projectID); err != nil {
		return nil, err
	}
	return e.Store.ListTasks(ctx, repo.TaskFilter{ProjectID: projectID, Statuses: []string{domain.StatusBacklog}, NoSprint: true})
}

// ListActivity returns a task's audit trail, newest first.
func (e Engine) ListActivity(ctx context.Context, actor domain.Actor, taskID string) ([]domain.ActivityLog, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, _, err := e.readableTask(ctx, e.Store, actor, taskID); err != nil {
		return nil, err
	}
	return e.Store.ListActivity(ctx, taskID)
}

// AddComment comments on a task. Anyone who can read the task may comment.
func (e Engine) AddComment(ctx context.Context, actor domain.Actor, taskID, content string) (domain.Comment, error) {
	if err := checkActor(actor); err != nil {
		return domain.Comment{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, domain.Invalid("content", "required")
	}
	var c domain.Comment
	err := e.mutate(ctx, "", func(ctx context.Context, tx repo.Tx) error {
		t, _, err := e.readableTask(ctx, tx, actor, taskID)
		if err != nil {
			return err
		}
		now := e.now()
		c = domain.Comment{ID: newRecordID(now), TaskID: t.ID, AuthorID: actor.ID, Content: content, CreatedAt: now, UpdatedAt: now}
		if err := tx.InsertComment(ctx, c); err != nil {
			return err
		}
		var fx domain.Effects
		fx.Log(t.ID, actor.ID, domain.ActionCommentAdded, "", "")
		fx.Emit(taskEvent(t, actor, domain.EventCommentAdded))
		return e.apply(ctx, tx, fx)
	})
	if err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (e Engine) ListComments(ctx context.Context, actor domain.Actor, taskID string) ([]domain.Comment, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, _, err := e.readableTask(ctx, e.Store, actor, taskID); err != nil {
		return nil, err
	}
	return e.Store.ListComments(ctx, taskID)
}
