package domain

import "fmt"

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AuthorizationError reports that the actor may not perform the action.
type AuthorizationError struct {
	Action   string
	Resource string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("not allowed to %s %s", e.Action, e.Resource)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InvalidStateError reports an operation that is illegal in the entity's current state.
type InvalidStateError struct {
	Kind   string
	ID     string
	Reason string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.ID, e.Reason)
}

// ConflictError reports a concurrent modification; the whole operation may be retried.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict on %s: %s", e.Resource, e.Reason)
}

func Invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

func NotFound(kind, id string) error {
	return NotFoundError{Kind: kind, ID: id}
}
