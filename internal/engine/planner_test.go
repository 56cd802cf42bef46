package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskline/internal/domain"
)

func strp(s string) *string { return &s }

func baseTask() domain.Task {
	return domain.Task{
		ID:        "t1",
		ProjectID: "p1",
		Title:     "Fix bug",
		Type:      "task",
		Priority:  "medium",
		Status:    domain.StatusTodo,
		Version:   1,
	}
}

func actions(fx domain.Effects) []string {
	var out []string
	for _, a := range fx.Activity {
		out = append(out, a.Action)
	}
	return out
}

func kinds(fx domain.Effects) []string {
	var out []string
	for _, ev := range fx.Events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestPlanUpdate(t *testing.T) {
	actor := domain.Actor{ID: "rita", Role: domain.RoleEmployee}

	t.Run("unchanged", func(t *testing.T) {
		fx := planUpdate(baseTask(), baseTask(), actor)
		assert.True(t, fx.Empty())
	})

	t.Run("status to done", func(t *testing.T) {
		after := baseTask()
		after.Status = domain.StatusDone
		fx := planUpdate(baseTask(), after, actor)
		require.Len(t, fx.Activity, 1)
		assert.Equal(t, domain.StatusTodo, fx.Activity[0].FromValue)
		assert.Equal(t, domain.StatusDone, fx.Activity[0].ToValue)
		assert.Equal(t, []string{domain.EventTaskCompleted}, kinds(fx))
		assert.Equal(t, "p1", *fx.Events[0].ProjectID)
	})

	t.Run("reassign notifies the new assignee", func(t *testing.T) {
		before := baseTask()
		before.AssigneeID = strp("dan")
		after := before
		after.AssigneeID = strp("pat")
		fx := planUpdate(before, after, actor)
		assert.Equal(t, []string{domain.ActionAssigned}, actions(fx))
		assert.Equal(t, "dan", fx.Activity[0].FromValue)
		assert.Equal(t, "pat", fx.Activity[0].ToValue)
		require.Len(t, fx.Notifications, 1)
		assert.Equal(t, "pat", fx.Notifications[0].UserID)
		assert.Equal(t, domain.NotifyTaskAssigned, fx.Notifications[0].Kind)
	})

	t.Run("unassign is logged silently", func(t *testing.T) {
		before := baseTask()
		before.AssigneeID = strp("dan")
		fx := planUpdate(before, baseTask(), actor)
		assert.Equal(t, []string{domain.ActionAssigned}, actions(fx))
		assert.Empty(t, fx.Notifications)
	})

	t.Run("field edits in a fixed order", func(t *testing.T) {
		after := baseTask()
		after.Status = domain.StatusInProgress
		after.Priority = "high"
		after.SprintID = strp("s1")
		after.Description = "now with repro steps"
		fx := planUpdate(baseTask(), after, actor)
		assert.Equal(t, []string{
			domain.ActionStatusChanged,
			domain.ActionPriorityChanged,
			domain.ActionSprintChanged,
			domain.ActionDescriptionEdited,
		}, actions(fx))
		assert.Empty(t, fx.Events)
	})
}

func TestPlanMove(t *testing.T) {
	actor := domain.Actor{ID: "dan", Role: domain.RoleEmployee}
	before := baseTask()
	before.Status = domain.StatusDone
	after := before

	fx := planMove(before, after, actor)
	assert.Equal(t, []string{domain.ActionStatusChanged}, actions(fx))
	assert.Equal(t, []string{domain.EventStatusDragDrop, domain.EventTaskCompleted}, kinds(fx))
	assert.Equal(t, map[string]string{"from": "done", "to": "done"}, fx.Events[0].Metadata)

	after.Status = domain.StatusReview
	fx = planMove(before, after, actor)
	assert.Equal(t, []string{domain.EventStatusDragDrop}, kinds(fx))
}

func TestPlanCreate(t *testing.T) {
	actor := domain.Actor{ID: "rita", Role: domain.RoleEmployee}
	fx := planCreate(baseTask(), actor)
	assert.Equal(t, []string{domain.ActionCreated}, actions(fx))
	assert.Equal(t, []string{domain.EventTaskCreated}, kinds(fx))

	task := baseTask()
	task.AssigneeID = strp("dan")
	fx = planCreate(task, actor)
	assert.Equal(t, []string{domain.ActionCreated, domain.ActionAssigned}, actions(fx))
	require.Len(t, fx.Notifications, 1)
	assert.Equal(t, "You have been assigned to task: Fix bug", fx.Notifications[0].Message)
}

func TestPlanStop(t *testing.T) {
	actor := domain.Actor{ID: "dan", Role: domain.RoleEmployee}
	entry := domain.TimeEntry{ID: "e1", UserID: "dan", DurationSeconds: 42}
	assert.True(t, planStop(entry, actor).Empty())

	entry.TaskID = strp("t1")
	fx := planStop(entry, actor)
	require.Len(t, fx.Events, 1)
	assert.Equal(t, domain.EventStoppedTimer, fx.Events[0].Kind)
	assert.Equal(t, int64(42), *fx.Events[0].DurationSeconds)
}
