package engine

import (
	"context"
	"fmt"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

// BehaviorFields is a client-reported analytics event.
type BehaviorFields struct {
	Kind            string
	TaskID          string
	DurationSeconds *int64
	Metadata        map[string]string
}

type EventQuery struct {
	// ActorID is honoured for scrum masters; everyone else sees their own events.
	ActorID string
	TaskID  string
	Kind    string
	Limit   int
}

// RecordBehavior appends a client-side event such as a task being opened.
// Kinds derived from mutations cannot be recorded directly.
func (e Engine) RecordBehavior(ctx context.Context, actor domain.Actor, f BehaviorFields) (domain.BehavioralEvent, error) {
	if err := checkActor(actor); err != nil {
		return domain.BehavioralEvent{}, err
	}
	if !contains(domain.ClientEventKinds, f.Kind) {
		return domain.BehavioralEvent{}, domain.Invalid("kind", fmt.Sprintf("%q cannot be recorded by clients", f.Kind))
	}
	if f.DurationSeconds != nil && *f.DurationSeconds < 0 {
		return domain.BehavioralEvent{}, domain.Invalid("duration_seconds", "must not be negative")
	}
	var ev domain.BehavioralEvent
	err := e.mutate(ctx, "", func(ctx context.Context, tx repo.Tx) error {
		ev = domain.BehavioralEvent{ActorID: actor.ID, Kind: f.Kind, DurationSeconds: f.DurationSeconds, Metadata: f.Metadata}
		if f.TaskID != "" {
			t, _, err := e.readableTask(ctx, tx, actor, f.TaskID)
			if err != nil {
				return err
			}
			ev = taskEvent(t, actor, f.Kind)
			ev.DurationSeconds = f.DurationSeconds
			ev.Metadata = f.Metadata
		}
		now := e.now()
		ev.ID = newRecordID(now)
		ev.Timestamp = now
		return e.apply(ctx, tx, domain.Effects{Events: []domain.BehavioralEvent{ev}})
	})
	if err != nil {
		return domain.BehavioralEvent{}, err
	}
	return ev, nil
}

// ListBehavioralEvents lists analytics events, newest first.
func (e Engine) ListBehavioralEvents(ctx context.Context, actor domain.Actor, q EventQuery) ([]domain.BehavioralEvent, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	f := repo.EventFilter{ActorID: actor.ID, Limit: q.Limit}
	if actor.IsScrumMaster() {
		f.ActorID = q.ActorID
	}
	if q.TaskID != "" {
		if _, _, err := e.readableTask(ctx, e.Store, actor, q.TaskID); err != nil {
			return nil, err
		}
		f.TaskID = q.TaskID
	}
	if q.Kind != "" {
		if !contains(domain.EventKinds, q.Kind) {
			return nil, domain.Invalid("kind", "unknown event kind "+q.Kind)
		}
		f.Kinds = []string{q.Kind}
	}
	return e.Store.ListEvents(ctx, f)
}
