// Package auth holds the access policy: pure predicates over an actor, a
// resource and an action. Nothing here touches storage.
package auth

import (
	"taskline/internal/domain"
)

type Action string

const (
	Read  Action = "read"
	Write Action = "write"
)

// CanCreateProject allows project creation to scrum masters only.
func CanCreateProject(a domain.Actor) bool {
	return a.IsScrumMaster()
}

func CanProject(a domain.Actor, p domain.Project, act Action) bool {
	if a.IsScrumMaster() {
		return true
	}
	switch act {
	case Read:
		return p.HasMember(a.ID)
	case Write:
		return p.CreatedBy == a.ID
	}
	return false
}

// CanTask requires project read for reads; writes are limited to the
// assignee, the reporter and scrum masters.
func CanTask(a domain.Actor, p domain.Project, t domain.Task, act Action) bool {
	if a.IsScrumMaster() {
		return true
	}
	if !CanProject(a, p, Read) {
		return false
	}
	switch act {
	case Read:
		return true
	case Write:
		return t.ReporterID == a.ID || (t.AssigneeID != nil && *t.AssigneeID == a.ID)
	}
	return false
}

func CanSprint(a domain.Actor, p domain.Project, act Action) bool {
	if a.IsScrumMaster() {
		return true
	}
	return act == Read && CanProject(a, p, Read)
}

func CanTimeEntry(a domain.Actor, e domain.TimeEntry, act Action) bool {
	if e.UserID == a.ID {
		return true
	}
	return act == Read && a.IsScrumMaster()
}

func CanNotification(a domain.Actor, n domain.Notification, act Action) bool {
	if n.UserID == a.ID {
		return true
	}
	return act == Read && a.IsScrumMaster()
}

// Require converts a failed predicate into an AuthorizationError.
func Require(ok bool, act Action, resource string) error {
	if ok {
		return nil
	}
	return domain.AuthorizationError{Action: string(act), Resource: resource}
}
