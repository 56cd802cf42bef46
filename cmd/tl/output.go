package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

var (
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	blue   = color.New(color.FgHiBlue).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stdout, green("✓ ")+fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Fprintln(os.Stdout, cyan("• ")+fmt.Sprintf(format, args...))
}

// printError writes err to stderr, prefixed with the domain error code when there is one.
func printError(err error) {
	code := errorCode(err)
	if code == "" {
		fmt.Fprintln(os.Stderr, red("Error: ")+err.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "%s %s\n", red("Error ["+code+"]:"), err.Error())
}

func errorCode(err error) string {
	var (
		validation domain.ValidationError
		authz      domain.AuthorizationError
		notFound   domain.NotFoundError
		state      domain.InvalidStateError
		conflict   domain.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		return "validation_failed"
	case errors.As(err, &authz):
		return "forbidden"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &state):
		return "invalid_state"
	case errors.As(err, &conflict):
		return "concurrency_conflict"
	}
	return ""
}

func colorStatus(status string) string {
	switch status {
	case domain.StatusBacklog:
		return faint(status)
	case domain.StatusTodo:
		return blue(status)
	case domain.StatusInProgress:
		return yellow(status)
	case domain.StatusReview:
		return cyan(status)
	case domain.StatusDone:
		return green(status)
	}
	return status
}

func colorPriority(p string) string {
	switch p {
	case "critical":
		return red(p)
	case "high":
		return yellow(p)
	case "low":
		return faint(p)
	}
	return p
}

func newTable(header ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row(header))
	return t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

func formatDuration(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}

func printTasks(tasks []domain.Task) {
	if len(tasks) == 0 {
		printInfo("no tasks")
		return
	}
	t := newTable("ID", "Title", "Type", "Status", "Priority", "Assignee", "Sprint", "Order")
	for _, task := range tasks {
		t.AppendRow(table.Row{task.ID, task.Title, task.Type, colorStatus(task.Status), colorPriority(task.Priority), deref(task.AssigneeID), deref(task.SprintID), task.Order})
	}
	t.Render()
}

func printTask(task domain.Task) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendRows([]table.Row{
		{"ID", task.ID},
		{"Project", task.ProjectID},
		{"Title", task.Title},
		{"Type", task.Type},
		{"Status", colorStatus(task.Status)},
		{"Priority", colorPriority(task.Priority)},
		{"Reporter", task.ReporterID},
		{"Assignee", deref(task.AssigneeID)},
		{"Sprint", deref(task.SprintID)},
		{"Parent", deref(task.ParentID)},
		{"Due", deref(task.DueDate)},
		{"Labels", strings.Join(task.Labels, ", ")},
		{"Version", task.Version},
	})
	if task.StoryPoints != nil {
		t.AppendRow(table.Row{"Story points", *task.StoryPoints})
	}
	if task.CompletedAt != nil {
		t.AppendRow(table.Row{"Completed", formatTime(*task.CompletedAt)})
	}
	if task.Description != "" {
		t.AppendRow(table.Row{"Description", task.Description})
	}
	t.Render()
}

// printBoard renders one column per board status, side by side.
func printBoard(b engine.Board) {
	header := table.Row{}
	depth := 0
	for _, col := range b.Columns {
		header = append(header, colorStatus(col.Status)+faint(fmt.Sprintf(" (%d)", len(col.Tasks))))
		if len(col.Tasks) > depth {
			depth = len(col.Tasks)
		}
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(header)
	for i := 0; i < depth; i++ {
		row := table.Row{}
		for _, col := range b.Columns {
			cell := ""
			if i < len(col.Tasks) {
				cell = col.Tasks[i].Title + "\n" + faint(col.Tasks[i].ID)
			}
			row = append(row, cell)
		}
		t.AppendRow(row)
	}
	t.Render()
}

func printActivity(logs []domain.ActivityLog) {
	t := newTable("Time", "Actor", "Action", "From", "To")
	for _, l := range logs {
		t.AppendRow(table.Row{formatTime(l.Timestamp), l.ActorID, l.Action, l.FromValue, l.ToValue})
	}
	t.Render()
}

func printComments(comments []domain.Comment) {
	t := newTable("ID", "Author", "Created", "Content")
	for _, c := range comments {
		t.AppendRow(table.Row{c.ID, c.AuthorID, formatTime(c.CreatedAt), c.Content})
	}
	t.Render()
}

func printSprints(sprints []domain.Sprint) {
	t := newTable("ID", "Name", "State", "Start", "End", "Goal")
	for _, s := range sprints {
		t.AppendRow(table.Row{s.ID, s.Name, sprintState(s), deref(s.StartDate), deref(s.EndDate), s.Goal})
	}
	t.Render()
}

func sprintState(s domain.Sprint) string {
	switch {
	case s.IsCompleted:
		return green("completed")
	case s.IsActive:
		return yellow("active")
	}
	return faint("planned")
}

func printTimeEntries(entries []domain.TimeEntry) {
	t := newTable("ID", "User", "Task", "Started", "Duration", "State", "Description")
	for _, e := range entries {
		state, duration := faint("stopped"), formatDuration(e.DurationSeconds)
		if e.IsRunning {
			state = yellow("running")
			duration = time.Since(e.StartTime).Truncate(time.Second).String()
		}
		t.AppendRow(table.Row{e.ID, e.UserID, deref(e.TaskID), formatTime(e.StartTime), duration, state, e.Description})
	}
	t.Render()
}

func printNotifications(ns []domain.Notification) {
	t := newTable("ID", "Kind", "Title", "Message", "Created", "Read")
	for _, n := range ns {
		read := yellow("new")
		if n.IsRead {
			read = faint("read")
		}
		t.AppendRow(table.Row{n.ID, n.Kind, n.Title, n.Message, formatTime(n.CreatedAt), read})
	}
	t.Render()
}

func printEvents(evs []domain.BehavioralEvent) {
	t := newTable("Seq", "Time", "Actor", "Kind", "Task", "Detail")
	for _, ev := range evs {
		t.AppendRow(table.Row{ev.Seq, formatTime(ev.Timestamp), ev.ActorID, ev.Kind, deref(ev.TaskID), eventDetail(ev)})
	}
	t.Render()
}

func eventDetail(ev domain.BehavioralEvent) string {
	var parts []string
	if ev.DurationSeconds != nil {
		parts = append(parts, formatDuration(*ev.DurationSeconds))
	}
	if from, ok := ev.Metadata["from"]; ok {
		parts = append(parts, from+" -> "+ev.Metadata["to"])
	}
	return strings.Join(parts, " ")
}
