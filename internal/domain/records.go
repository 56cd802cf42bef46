package domain

import "time"

const (
	ActionCreated           = "created"
	ActionStatusChanged     = "status_changed"
	ActionAssigned          = "assigned"
	ActionDescriptionEdited = "description_edited"
	ActionCommentAdded      = "comment_added"
	ActionAttachmentAdded   = "attachment_added" // stored vocabulary only; attachments are not modelled
	ActionPriorityChanged   = "priority_changed"
	ActionSprintChanged     = "sprint_changed"
)

// ActivityLog is an immutable audit record for a task.
type ActivityLog struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action" enum:"created,status_changed,assigned,description_edited,comment_added,attachment_added,priority_changed,sprint_changed"`
	FromValue string    `json:"from_value"`
	ToValue   string    `json:"to_value"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventTaskOpened     = "task_opened"
	EventTaskClosedView = "task_closed_view"
	EventStatusDragDrop = "status_drag_drop"
	EventStartedTimer   = "started_timer"
	EventStoppedTimer   = "stopped_timer"
	EventCommentAdded   = "comment_added"
	EventTaskCreated    = "task_created"
	EventTaskCompleted  = "task_completed"
)

var EventKinds = []string{
	EventTaskOpened, EventTaskClosedView, EventStatusDragDrop, EventStartedTimer,
	EventStoppedTimer, EventCommentAdded, EventTaskCreated, EventTaskCompleted,
}

// ClientEventKinds may be recorded directly by API callers.
var ClientEventKinds = []string{EventTaskOpened, EventTaskClosedView}

// BehavioralEvent is an append-only analytics record.
type BehavioralEvent struct {
	ID              string            `json:"id"`
	Seq             int64             `json:"seq"`
	ActorID         string            `json:"actor_id"`
	TaskID          *string           `json:"task_id,omitempty"`
	ProjectID       *string           `json:"project_id,omitempty"`
	Kind            string            `json:"kind" enum:"task_opened,task_closed_view,status_drag_drop,started_timer,stopped_timer,comment_added,task_created,task_completed"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

const (
	NotifyTaskAssigned  = "task_assigned"
	NotifyStatusChanged = "status_changed"
	NotifyCommentAdded  = "comment_added"

	// Due-date and mention kinds are part of the stored vocabulary;
	// no operation raises them yet.
	NotifyDueSoon   = "due_soon"
	NotifyOverdue   = "overdue"
	NotifyMentioned = "mentioned"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TaskID    *string   `json:"task_id,omitempty"`
	Kind      string    `json:"kind" enum:"task_assigned,status_changed,comment_added,due_soon,overdue,mentioned"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// Effects is the ordered batch of side-effect records produced by one mutation.
type Effects struct {
	Activity      []ActivityLog
	Events        []BehavioralEvent
	Notifications []Notification
}

func (e *Effects) Log(taskID, actorID, action, from, to string) {
	e.Activity = append(e.Activity, ActivityLog{TaskID: taskID, ActorID: actorID, Action: action, FromValue: from, ToValue: to})
}

func (e *Effects) Emit(ev BehavioralEvent) {
	e.Events = append(e.Events, ev)
}

func (e *Effects) Notify(n Notification) {
	e.Notifications = append(e.Notifications, n)
}

// Merge appends other after e, preserving order.
func (e *Effects) Merge(other Effects) {
	e.Activity = append(e.Activity, other.Activity...)
	e.Events = append(e.Events, other.Events...)
	e.Notifications = append(e.Notifications, other.Notifications...)
}

func (e Effects) Empty() bool {
	return len(e.Activity) == 0 && len(e.Events) == 0 && len(e.Notifications) == 0
}
