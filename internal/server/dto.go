package server

import (
	"time"

	"taskline/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	Key         string `json:"key" example:"WEB"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty" enum:"admin,member"`
}

type CreateTaskRequest struct {
	Title          string   `json:"title" maxLength:"200"`
	Description    string   `json:"description,omitempty"`
	Type           string   `json:"type,omitempty" enum:"story,task,bug,epic,subtask"`
	Priority       string   `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Status         string   `json:"status,omitempty" enum:"backlog,todo,in_progress,review,done"`
	AssigneeID     string   `json:"assignee_id,omitempty"`
	SprintID       string   `json:"sprint_id,omitempty"`
	ParentID       string   `json:"parent_id,omitempty"`
	StoryPoints    *int     `json:"story_points,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	DueDate        string   `json:"due_date,omitempty" format:"date"`
	StartDate      string   `json:"start_date,omitempty" format:"date"`
	Labels         []string `json:"labels,omitempty"`
	Order          int      `json:"order,omitempty"`
}

func (r CreateTaskRequest) fields() engine.TaskFields {
	return engine.TaskFields{
		Title:          r.Title,
		Description:    r.Description,
		Type:           r.Type,
		Priority:       r.Priority,
		Status:         r.Status,
		AssigneeID:     r.AssigneeID,
		SprintID:       r.SprintID,
		ParentID:       r.ParentID,
		StoryPoints:    r.StoryPoints,
		EstimatedHours: r.EstimatedHours,
		DueDate:        r.DueDate,
		StartDate:      r.StartDate,
		Labels:         r.Labels,
		Order:          r.Order,
	}
}

// UpdateTaskRequest is a partial update. An empty string clears assignee_id,
// sprint_id, parent_id, due_date and start_date.
type UpdateTaskRequest struct {
	Title          *string  `json:"title,omitempty"`
	Description    *string  `json:"description,omitempty"`
	Type           *string  `json:"type,omitempty" enum:"story,task,bug,epic,subtask"`
	Priority       *string  `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Status         *string  `json:"status,omitempty" enum:"backlog,todo,in_progress,review,done"`
	AssigneeID     *string  `json:"assignee_id,omitempty"`
	SprintID       *string  `json:"sprint_id,omitempty"`
	ParentID       *string  `json:"parent_id,omitempty"`
	StoryPoints    *int     `json:"story_points,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
	DueDate        *string  `json:"due_date,omitempty"`
	StartDate      *string  `json:"start_date,omitempty"`
	Labels         []string `json:"labels,omitempty"`
	Order          *int     `json:"order,omitempty"`
}

func (r UpdateTaskRequest) patch() engine.TaskPatch {
	p := engine.TaskPatch{
		Title:          r.Title,
		Description:    r.Description,
		Type:           r.Type,
		Priority:       r.Priority,
		Status:         r.Status,
		AssigneeID:     r.AssigneeID,
		SprintID:       r.SprintID,
		ParentID:       r.ParentID,
		StoryPoints:    r.StoryPoints,
		EstimatedHours: r.EstimatedHours,
		DueDate:        r.DueDate,
		StartDate:      r.StartDate,
		Order:          r.Order,
	}
	if r.Labels != nil {
		labels := r.Labels
		p.Labels = &labels
	}
	return p
}

type MoveTaskRequest struct {
	Status string `json:"status" enum:"backlog,todo,in_progress,review,done"`
	Order  *int   `json:"order,omitempty"`
}

type CreateCommentRequest struct {
	Content string `json:"content" minLength:"1"`
}

type CreateSprintRequest struct {
	Name      string `json:"name"`
	Goal      string `json:"goal,omitempty"`
	StartDate string `json:"start_date,omitempty" format:"date"`
	EndDate   string `json:"end_date,omitempty" format:"date"`
}

type StartTimerRequest struct {
	TaskID      string     `json:"task_id,omitempty"`
	Description string     `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
}

type RecordEventRequest struct {
	Kind            string            `json:"kind" enum:"task_opened,task_closed_view"`
	TaskID          string            `json:"task_id,omitempty"`
	DurationSeconds *int64            `json:"duration_seconds,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type DevTokenRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"scrum_master,employee"`
}

// Response payloads

type DevTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// body wraps a response payload for huma.
type body[T any] struct {
	Body T
}

func reply[T any](v T) *body[T] {
	return &body[T]{Body: v}
}
