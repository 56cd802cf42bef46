package domain

import "time"

// DateLayout is the calendar date format used for due/start/end dates.
const DateLayout = "2006-01-02"

const (
	RoleScrumMaster = "scrum_master"
	RoleEmployee    = "employee"
)

// Actor is the authenticated principal performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role" enum:"scrum_master,employee"`
}

func (a Actor) IsScrumMaster() bool {
	return a.Role == RoleScrumMaster
}

const (
	MemberAdmin  = "admin"
	MemberMember = "member"
)

type Member struct {
	ActorID  string    `json:"actor_id"`
	Role     string    `json:"role" enum:"admin,member"`
	JoinedAt time.Time `json:"joined_at"`
}

type Project struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	IsArchived  bool      `json:"is_archived"`
	Members     []Member  `json:"members,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasMember reports whether actorID is the creator or a member of the project.
func (p Project) HasMember(actorID string) bool {
	if p.CreatedBy == actorID {
		return true
	}
	for _, m := range p.Members {
		if m.ActorID == actorID {
			return true
		}
	}
	return false
}

const (
	StatusBacklog    = "backlog"
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusReview     = "review"
	StatusDone       = "done"
)

// BoardStatuses are the columns of a project board, in display order.
var BoardStatuses = []string{StatusTodo, StatusInProgress, StatusReview, StatusDone}

var (
	TaskStatuses   = []string{StatusBacklog, StatusTodo, StatusInProgress, StatusReview, StatusDone}
	TaskTypes      = []string{"story", "task", "bug", "epic", "subtask"}
	TaskPriorities = []string{"low", "medium", "high", "critical"}
)

type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	SprintID       *string    `json:"sprint_id,omitempty"`
	ParentID       *string    `json:"parent_id,omitempty"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Type           string     `json:"type" enum:"story,task,bug,epic,subtask"`
	Priority       string     `json:"priority" enum:"low,medium,high,critical"`
	Status         string     `json:"status" enum:"backlog,todo,in_progress,review,done"`
	ReporterID     string     `json:"reporter_id"`
	AssigneeID     *string    `json:"assignee_id,omitempty"`
	StoryPoints    *int       `json:"story_points,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	DueDate        *string    `json:"due_date,omitempty" format:"date"`
	StartDate      *string    `json:"start_date,omitempty" format:"date"`
	Labels         []string   `json:"labels,omitempty"`
	Order          int        `json:"order"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Version        int64      `json:"version"`
}

// Assignee returns the assignee id or "" when unassigned.
func (t Task) Assignee() string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

// DeriveCompletedAt keeps CompletedAt consistent with Status given the status
// the task had before this change.
func (t *Task) DeriveCompletedAt(prevStatus string, now time.Time) {
	if t.Status != StatusDone {
		t.CompletedAt = nil
		return
	}
	if prevStatus == StatusDone && t.CompletedAt != nil {
		return
	}
	ts := now.UTC()
	t.CompletedAt = &ts
}

type Sprint struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Goal        string    `json:"goal,omitempty"`
	StartDate   *string   `json:"start_date,omitempty" format:"date"`
	EndDate     *string   `json:"end_date,omitempty" format:"date"`
	IsActive    bool      `json:"is_active"`
	IsCompleted bool      `json:"is_completed"`
	CreatedAt   time.Time `json:"created_at"`
	Version     int64     `json:"version"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	AuthorID  string    `json:"author_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TimeEntry struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	TaskID          *string    `json:"task_id,omitempty"`
	Description     string     `json:"description,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	IsRunning       bool       `json:"is_running"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Stop closes a running entry at now. The duration is whole seconds, never negative.
func (e *TimeEntry) Stop(now time.Time) {
	end := now.UTC()
	e.EndTime = &end
	e.IsRunning = false
	d := int64(end.Sub(e.StartTime) / time.Second)
	if d < 0 {
		d = 0
	}
	e.DurationSeconds = d
}
