package auth_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskline/internal/domain"
	"taskline/internal/engine/auth"
)

var (
	sm       = domain.Actor{ID: "sm", Role: domain.RoleScrumMaster}
	reporter = domain.Actor{ID: "rep", Role: domain.RoleEmployee}
	assignee = domain.Actor{ID: "asg", Role: domain.RoleEmployee}
	member   = domain.Actor{ID: "mem", Role: domain.RoleEmployee}
	outsider = domain.Actor{ID: "out", Role: domain.RoleEmployee}

	project = domain.Project{ID: "p1", CreatedBy: "rep", Members: []domain.Member{
		{ActorID: "asg", Role: domain.MemberMember},
		{ActorID: "mem", Role: domain.MemberMember},
	}}
	task = domain.Task{ID: "t1", ProjectID: "p1", ReporterID: "rep", AssigneeID: strPtr("asg")}
)

func strPtr(s string) *string { return &s }

func TestCanTask(t *testing.T) {
	cases := []struct {
		name  string
		actor domain.Actor
		act   auth.Action
		want  bool
	}{
		{"scrum master writes", sm, auth.Write, true},
		{"reporter writes", reporter, auth.Write, true},
		{"assignee writes", assignee, auth.Write, true},
		{"member reads", member, auth.Read, true},
		{"member cannot write", member, auth.Write, false},
		{"outsider cannot read", outsider, auth.Read, false},
		{"outsider cannot write", outsider, auth.Write, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, auth.CanTask(tc.actor, project, task, tc.act))
		})
	}
}

func TestAssigneeOutsideProjectCannotWrite(t *testing.T) {
	stray := task
	stray.AssigneeID = strPtr("out")
	assert.False(t, auth.CanTask(outsider, project, stray, auth.Write))
}

func TestCanProjectAndSprint(t *testing.T) {
	assert.True(t, auth.CanCreateProject(sm))
	assert.False(t, auth.CanCreateProject(reporter))

	assert.True(t, auth.CanProject(member, project, auth.Read))
	assert.False(t, auth.CanProject(member, project, auth.Write))
	assert.True(t, auth.CanProject(reporter, project, auth.Write))
	assert.False(t, auth.CanProject(outsider, project, auth.Read))

	assert.True(t, auth.CanSprint(member, project, auth.Read))
	assert.False(t, auth.CanSprint(reporter, project, auth.Write))
	assert.True(t, auth.CanSprint(sm, project, auth.Write))
	assert.False(t, auth.CanSprint(outsider, project, auth.Read))
}

func TestCanTimeEntryAndNotification(t *testing.T) {
	entry := domain.TimeEntry{UserID: "asg"}
	assert.True(t, auth.CanTimeEntry(assignee, entry, auth.Write))
	assert.False(t, auth.CanTimeEntry(member, entry, auth.Read))
	assert.True(t, auth.CanTimeEntry(sm, entry, auth.Read))
	assert.False(t, auth.CanTimeEntry(sm, entry, auth.Write))

	n := domain.Notification{UserID: "mem"}
	assert.True(t, auth.CanNotification(member, n, auth.Write))
	assert.False(t, auth.CanNotification(assignee, n, auth.Write))
}

func TestRequire(t *testing.T) {
	assert.NoError(t, auth.Require(true, auth.Write, "task t1"))
	err := auth.Require(false, auth.Write, "task t1")
	var ae domain.AuthorizationError
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, "not allowed to write task t1", err.Error())
}
