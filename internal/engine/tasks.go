package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/engine/auth"
	"taskline/internal/lock"
	"taskline/internal/repo"
)

const maxTitleLen = 200

// TaskFields are the inputs of CreateTask. Empty strings mean "use the default".
type TaskFields struct {
	Title          string
	Description    string
	Type           string
	Priority       string
	Status         string
	AssigneeID     string
	SprintID       string
	ParentID       string
	StoryPoints    *int
	EstimatedHours *float64
	DueDate        string
	StartDate      string
	Labels         []string
	Order          int
}

// TaskPatch is a partial update. Nil fields are left untouched; an empty
// string clears AssigneeID, SprintID, ParentID, DueDate and StartDate.
type TaskPatch struct {
	Title          *string
	Description    *string
	Type           *string
	Priority       *string
	Status         *string
	AssigneeID     *string
	SprintID       *string
	ParentID       *string
	StoryPoints    *int
	EstimatedHours *float64
	DueDate        *string
	StartDate      *string
	Labels         *[]string
	Order          *int
}

// CreateTask creates a task reported by actor.
func (e Engine) CreateTask(ctx context.Context, actor domain.Actor, projectID string, f TaskFields) (domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return domain.Task{}, err
	}
	if projectID == "" {
		return domain.Task{}, domain.Invalid("project", "required")
	}
	now := e.now()
	t := domain.Task{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		Title:          strings.TrimSpace(f.Title),
		Description:    f.Description,
		Type:           defaultString(f.Type, "task"),
		Priority:       defaultString(f.Priority, "medium"),
		Status:         defaultString(f.Status, domain.StatusTodo),
		ReporterID:     actor.ID,
		AssigneeID:     optionalString(f.AssigneeID),
		SprintID:       optionalString(f.SprintID),
		ParentID:       optionalString(f.ParentID),
		StoryPoints:    f.StoryPoints,
		EstimatedHours: f.EstimatedHours,
		DueDate:        optionalString(f.DueDate),
		StartDate:      optionalString(f.StartDate),
		Labels:         normalizeLabels(f.Labels),
		Order:          f.Order,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	t.DeriveCompletedAt("", now)
	if err := validateTask(t); err != nil {
		return domain.Task{}, err
	}
	err := e.mutate(ctx, "", func(ctx context.Context, tx repo.Tx) error {
		if _, err := e.projectField(ctx, tx, actor, projectID); err != nil {
			return err
		}
		if err := e.checkReferences(ctx, tx, t); err != nil {
			return err
		}
		if err := tx.InsertTask(ctx, t); err != nil {
			return err
		}
		return e.apply(ctx, tx, planCreate(t, actor))
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.log().Debug("task created", "task", t.ID, "project", projectID, "actor", actor.ID)
	return t, nil
}

// UpdateTask applies patch against the stored state and records what changed.
func (e Engine) UpdateTask(ctx context.Context, actor domain.Actor, taskID string, patch TaskPatch) (domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return domain.Task{}, err
	}
	var after domain.Task
	err := e.mutate(ctx, lock.TaskKey(taskID), func(ctx context.Context, tx repo.Tx) error {
		before, err := e.writableTask(ctx, tx, actor, taskID)
		if err != nil {
			return err
		}
		after = applyPatch(before, patch)
		now := e.now()
		after.DeriveCompletedAt(before.Status, now)
		after.UpdatedAt = now
		if err := validateTask(after); err != nil {
			return err
		}
		if err := e.checkChangedReferences(ctx, tx, before, after); err != nil {
			return err
		}
		if err := tx.UpdateTask(ctx, after); err != nil {
			return err
		}
		after.Version++
		return e.apply(ctx, tx, planUpdate(before, after, actor))
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.log().Debug("task updated", "task", taskID, "actor", actor.ID, "status", after.Status)
	return after, nil
}

// MoveTask is the board drag-and-drop update. It always records a status
// change, even when the status is unchanged.
func (e Engine) MoveTask(ctx context.Context, actor domain.Actor, taskID, status string, order *int) (domain.Task, error) {
	if err := checkActor(actor); err != nil {
		return domain.Task{}, err
	}
	if status == "" {
		return domain.Task{}, domain.Invalid("status", "required")
	}
	if !contains(domain.TaskStatuses, status) {
		return domain.Task{}, domain.Invalid("status", fmt.Sprintf("unknown status %q", status))
	}
	var after domain.Task
	err := e.mutate(ctx, lock.TaskKey(taskID), func(ctx context.Context, tx repo.Tx) error {
		before, err := e.writableTask(ctx, tx, actor, taskID)
		if err != nil {
			return err
		}
		after = before
		after.Status = status
		if order != nil {
			after.Order = *order
		}
		now := e.now()
		after.DeriveCompletedAt(before.Status, now)
		after.UpdatedAt = now
		if err := tx.UpdateTask(ctx, after); err != nil {
			return err
		}
		after.Version++
		return e.apply(ctx, tx, planMove(before, after, actor))
	})
	if err != nil {
		return domain.Task{}, err
	}
	e.log().Debug("task moved", "task", taskID, "actor", actor.ID, "status", status)
	return after, nil
}

// planCreate lists the records written when a task is created. An initial
// assignee is treated like an assignment from nobody.
func planCreate(t domain.Task, actor domain.Actor) domain.Effects {
	var fx domain.Effects
	fx.Log(t.ID, actor.ID, domain.ActionCreated, "", "")
	fx.Emit(taskEvent(t, actor, domain.EventTaskCreated))
	if t.AssigneeID != nil {
		fx.Log(t.ID, actor.ID, domain.ActionAssigned, "", *t.AssigneeID)
		fx.Notify(assignedNotification(t))
	}
	return fx
}

// planUpdate compares the stored snapshot with the patched task.
func planUpdate(before, after domain.Task, actor domain.Actor) domain.Effects {
	var fx domain.Effects
	if before.Status != after.Status {
		fx.Log(after.ID, actor.ID, domain.ActionStatusChanged, before.Status, after.Status)
		if after.Status == domain.StatusDone {
			fx.Emit(taskEvent(after, actor, domain.EventTaskCompleted))
		}
	}
	if before.Assignee() != after.Assignee() {
		fx.Log(after.ID, actor.ID, domain.ActionAssigned, before.Assignee(), after.Assignee())
		if after.AssigneeID != nil {
			fx.Notify(assignedNotification(after))
		}
	}
	if before.Priority != after.Priority {
		fx.Log(after.ID, actor.ID, domain.ActionPriorityChanged, before.Priority, after.Priority)
	}
	if deref(before.SprintID) != deref(after.SprintID) {
		fx.Log(after.ID, actor.ID, domain.ActionSprintChanged, deref(before.SprintID), deref(after.SprintID))
	}
	if before.Description != after.Description {
		fx.Log(after.ID, actor.ID, domain.ActionDescriptionEdited, "", "")
	}
	return fx
}

func planMove(before, after domain.Task, actor domain.Actor) domain.Effects {
	var fx domain.Effects
	fx.Log(after.ID, actor.ID, domain.ActionStatusChanged, before.Status, after.Status)
	ev := taskEvent(after, actor, domain.EventStatusDragDrop)
	ev.Metadata = map[string]string{"from": before.Status, "to": after.Status}
	fx.Emit(ev)
	if after.Status == domain.StatusDone {
		fx.Emit(taskEvent(after, actor, domain.EventTaskCompleted))
	}
	return fx
}

func taskEvent(t domain.Task, actor domain.Actor, kind string) domain.BehavioralEvent {
	taskID, projectID := t.ID, t.ProjectID
	return domain.BehavioralEvent{ActorID: actor.ID, TaskID: &taskID, ProjectID: &projectID, Kind: kind}
}

func assignedNotification(t domain.Task) domain.Notification {
	taskID := t.ID
	return domain.Notification{
		UserID:  *t.AssigneeID,
		TaskID:  &taskID,
		Kind:    domain.NotifyTaskAssigned,
		Title:   "Task Assigned",
		Message: "You have been assigned to task: " + t.Title,
	}
}

func applyPatch(t domain.Task, p TaskPatch) domain.Task {
	if p.Title != nil {
		t.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AssigneeID != nil {
		t.AssigneeID = optionalString(*p.AssigneeID)
	}
	if p.SprintID != nil {
		t.SprintID = optionalString(*p.SprintID)
	}
	if p.ParentID != nil {
		t.ParentID = optionalString(*p.ParentID)
	}
	if p.StoryPoints != nil {
		v := *p.StoryPoints
		t.StoryPoints = &v
	}
	if p.EstimatedHours != nil {
		v := *p.EstimatedHours
		t.EstimatedHours = &v
	}
	if p.DueDate != nil {
		t.DueDate = optionalString(*p.DueDate)
	}
	if p.StartDate != nil {
		t.StartDate = optionalString(*p.StartDate)
	}
	if p.Labels != nil {
		t.Labels = normalizeLabels(*p.Labels)
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	return t
}

func validateTask(t domain.Task) error {
	if t.Title == "" {
		return domain.Invalid("title", "required")
	}
	if len(t.Title) > maxTitleLen {
		return domain.Invalid("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}
	if !contains(domain.TaskTypes, t.Type) {
		return domain.Invalid("type", fmt.Sprintf("unknown type %q", t.Type))
	}
	if !contains(domain.TaskPriorities, t.Priority) {
		return domain.Invalid("priority", fmt.Sprintf("unknown priority %q", t.Priority))
	}
	if !contains(domain.TaskStatuses, t.Status) {
		return domain.Invalid("status", fmt.Sprintf("unknown status %q", t.Status))
	}
	if t.StoryPoints != nil && *t.StoryPoints < 0 {
		return domain.Invalid("story_points", "must not be negative")
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return domain.Invalid("estimated_hours", "must not be negative")
	}
	if err := validateDate("due_date", t.DueDate); err != nil {
		return err
	}
	if err := validateDate("start_date", t.StartDate); err != nil {
		return err
	}
	if t.ParentID != nil && *t.ParentID == t.ID {
		return domain.Invalid("parent", "a task cannot be its own parent")
	}
	return nil
}

func validateDate(field string, v *string) error {
	if v == nil {
		return nil
	}
	if _, err := time.Parse(domain.DateLayout, *v); err != nil {
		return domain.Invalid(field, "must be YYYY-MM-DD")
	}
	return nil
}

func normalizeLabels(in []string) []string {
	var out []string
	for _, l := range in {
		l = strings.TrimSpace(l)
		if l != "" && !contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// checkReferences validates the sprint and parent of a new task.
func (e Engine) checkReferences(ctx context.Context, r repo.Reader, t domain.Task) error {
	if t.SprintID != nil {
		if err := checkSprintRef(ctx, r, t.ProjectID, *t.SprintID); err != nil {
			return err
		}
	}
	if t.ParentID != nil {
		if err := checkParentRef(ctx, r, t.ProjectID, *t.ParentID, t.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e Engine) checkChangedReferences(ctx context.Context, r repo.Reader, before, after domain.Task) error {
	if after.SprintID != nil && deref(before.SprintID) != *after.SprintID {
		if err := checkSprintRef(ctx, r, after.ProjectID, *after.SprintID); err != nil {
			return err
		}
	}
	if after.ParentID != nil && deref(before.ParentID) != *after.ParentID {
		if err := checkParentRef(ctx, r, after.ProjectID, *after.ParentID, after.ID); err != nil {
			return err
		}
	}
	return nil
}

func checkSprintRef(ctx context.Context, r repo.Reader, projectID, sprintID string) error {
	s, err := r.GetSprint(ctx, sprintID)
	if err != nil {
		if isNotFound(err) {
			return domain.Invalid("sprint", "sprint "+sprintID+" not found")
		}
		return err
	}
	if s.ProjectID != projectID {
		return domain.Invalid("sprint", "sprint belongs to another project")
	}
	if s.IsCompleted {
		return domain.Invalid("sprint", "sprint is completed")
	}
	return nil
}

// checkParentRef climbs the parent chain so that re-parenting cannot create a cycle.
func checkParentRef(ctx context.Context, r repo.Reader, projectID, parentID, childID string) error {
	cur := parentID
	for cur != "" {
		if cur == childID {
			return domain.Invalid("parent", "task hierarchy cycle detected")
		}
		t, err := r.GetTask(ctx, cur)
		if err != nil {
			if isNotFound(err) {
				return domain.Invalid("parent", "task "+cur+" not found")
			}
			return err
		}
		if cur == parentID && t.ProjectID != projectID {
			return domain.Invalid("parent", "parent in different project")
		}
		cur = deref(t.ParentID)
	}
	return nil
}

// readableTask loads a task and hides it unless actor can read its project.
func (e Engine) readableTask(ctx context.Context, r repo.Reader, actor domain.Actor, taskID string) (domain.Task, domain.Project, error) {
	t, err := r.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	p, err := r.GetProject(ctx, t.ProjectID)
	if err != nil {
		return domain.Task{}, domain.Project{}, err
	}
	if !auth.CanTask(actor, p, t, auth.Read) {
		return domain.Task{}, domain.Project{}, domain.NotFound("task", taskID)
	}
	return t, p, nil
}

func (e Engine) writableTask(ctx context.Context, r repo.Reader, actor domain.Actor, taskID string) (domain.Task, error) {
	t, p, err := e.readableTask(ctx, r, actor, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if err := auth.Require(auth.CanTask(actor, p, t, auth.Write), auth.Write, "task "+taskID); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
