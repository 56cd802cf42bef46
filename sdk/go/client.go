package tasklinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskline HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client for baseURL, which includes the API base path
// (for example http://127.0.0.1:8080/v1).
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		Timeout:     10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	SprintID    *string    `json:"sprint_id,omitempty"`
	ParentID    *string    `json:"parent_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	Status      string     `json:"status"`
	ReporterID  string     `json:"reporter_id"`
	AssigneeID  *string    `json:"assignee_id,omitempty"`
	DueDate     *string    `json:"due_date,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Order       int        `json:"order"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Version     int64      `json:"version"`
}

// NewTask holds the create-task fields; empty strings take server defaults.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Type        string   `json:"type,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Status      string   `json:"status,omitempty"`
	AssigneeID  string   `json:"assignee_id,omitempty"`
	SprintID    string   `json:"sprint_id,omitempty"`
	ParentID    string   `json:"parent_id,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Labels      []string `json:"labels,omitempty"`
}

// TaskPatch is a partial update; nil fields are left untouched and an empty
// string clears a reference.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	SprintID    *string `json:"sprint_id,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
}

type ActivityLog struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	FromValue string    `json:"from_value"`
	ToValue   string    `json:"to_value"`
	Timestamp time.Time `json:"timestamp"`
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
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TaskID    *string   `json:"task_id,omitempty"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task in a project.
func (c *Client) CreateTask(ctx context.Context, projectID string, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID)), t, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

func (c *Client) UpdateTask(ctx context.Context, taskID string, p TaskPatch) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(taskID), p, &resp)
	return resp, err
}

// MoveTask changes a task's board column. A nil order keeps the current position.
func (c *Client) MoveTask(ctx context.Context, taskID, status string, order *int) (Task, error) {
	body := map[string]any{"status": status}
	if order != nil {
		body["order"] = *order
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/move", url.PathEscape(taskID)), body, &resp)
	return resp, err
}

// TaskFilter narrows ListTasks. AssigneeID "me" selects the caller's tasks.
type TaskFilter struct {
	ProjectID  string
	Status     string
	AssigneeID string
	SprintID   string
	// DueMonth (YYYY-MM) lists tasks due in that month.
	DueMonth string
	Limit    int
}

func (c *Client) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	q := url.Values{}
	setQuery(q, "project_id", f.ProjectID)
	setQuery(q, "status", f.Status)
	setQuery(q, "assignee_id", f.AssigneeID)
	setQuery(q, "sprint_id", f.SprintID)
	setQuery(q, "due_month", f.DueMonth)
	if f.Limit > 0 {
		q.Set("limit", fmt.Sprint(f.Limit))
	}
	var resp []Task
	err := c.do(ctx, http.MethodGet, withQuery("tasks", q), nil, &resp)
	return resp, err
}

func (c *Client) Activity(ctx context.Context, taskID string) ([]ActivityLog, error) {
	var resp []ActivityLog
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("tasks/%s/activity", url.PathEscape(taskID)), nil, &resp)
	return resp, err
}

// StartTimer starts a timer, optionally against a task. Any running timer of
// the caller is stopped first.
func (c *Client) StartTimer(ctx context.Context, taskID, description string) (TimeEntry, error) {
	body := map[string]any{}
	if taskID != "" {
		body["task_id"] = taskID
	}
	if description != "" {
		body["description"] = description
	}
	var resp TimeEntry
	err := c.do(ctx, http.MethodPost, "timers/start", body, &resp)
	return resp, err
}

func (c *Client) StopTimer(ctx context.Context, entryID string) (TimeEntry, error) {
	var resp TimeEntry
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("timers/%s/stop", url.PathEscape(entryID)), nil, &resp)
	return resp, err
}

func (c *Client) RunningTimers(ctx context.Context) ([]TimeEntry, error) {
	var resp []TimeEntry
	err := c.do(ctx, http.MethodGet, "timers?running=true", nil, &resp)
	return resp, err
}

func (c *Client) Notifications(ctx context.Context, unreadOnly bool) ([]Notification, error) {
	endpoint := "notifications"
	if unreadOnly {
		endpoint += "?unread=true"
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) (Notification, error) {
	var resp Notification
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("notifications/%s/read", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// MarkAllNotificationsRead returns how many notifications changed.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int64, error) {
	var resp struct {
		Updated int64 `json:"updated"`
	}
	err := c.do(ctx, http.MethodPost, "notifications/read-all", nil, &resp)
	return resp.Updated, err
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
