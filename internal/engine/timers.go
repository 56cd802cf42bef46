package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/engine/auth"
	"taskline/internal/lock"
	"taskline/internal/repo"
)

type TimerFields struct {
	TaskID      string
	Description string
	// StartTime defaults to now and may not lie in the future.
	StartTime *time.Time
}

type TimeEntryQuery struct {
	TaskID      string
	RunningOnly bool
	Limit       int
}

// StartTimer stops the actor's running timers and starts a new one.
func (e Engine) StartTimer(ctx context.Context, actor domain.Actor, f TimerFields) (domain.TimeEntry, error) {
	if err := checkActor(actor); err != nil {
		return domain.TimeEntry{}, err
	}
	var entry domain.TimeEntry
	err := e.mutate(ctx, lock.TimerKey(actor.ID), func(ctx context.Context, tx repo.Tx) error {
		var task *domain.Task
		if f.TaskID != "" {
			t, _, err := e.readableTask(ctx, tx, actor, f.TaskID)
			if err != nil {
				return err
			}
			task = &t
		}
		now := e.now()
		start := now
		if f.StartTime != nil {
			start = f.StartTime.UTC()
			if start.After(now) {
				return domain.Invalid("start_time", "must not be in the future")
			}
		}

		var fx domain.Effects
		running, err := tx.ListTimeEntries(ctx, repo.TimeEntryFilter{UserID: actor.ID, RunningOnly: true})
		if err != nil {
			return err
		}
		for _, r := range running {
			r.Stop(now)
			if err := tx.UpdateTimeEntry(ctx, r); err != nil {
				return err
			}
			fx.Merge(planStop(r, actor))
		}

		entry = domain.TimeEntry{
			ID:          uuid.NewString(),
			UserID:      actor.ID,
			TaskID:      optionalString(f.TaskID),
			Description: f.Description,
			StartTime:   start,
			IsRunning:   true,
			CreatedAt:   now,
		}
		if err := tx.InsertTimeEntry(ctx, entry); err != nil {
			return err
		}
		if task != nil {
			fx.Emit(taskEvent(*task, actor, domain.EventStartedTimer))
		}
		return e.apply(ctx, tx, fx)
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	e.log().Debug("timer started", "entry", entry.ID, "actor", actor.ID, "task", f.TaskID)
	return entry, nil
}

// StopTimer stops a running timer owned by actor. Stopping twice is an InvalidStateError.
func (e Engine) StopTimer(ctx context.Context, actor domain.Actor, entryID string) (domain.TimeEntry, error) {
	if err := checkActor(actor); err != nil {
		return domain.TimeEntry{}, err
	}
	current, err := e.Store.GetTimeEntry(ctx, entryID)
	if err != nil {
		return domain.TimeEntry{}, err
	}
	if err := auth.Require(auth.CanTimeEntry(actor, current, auth.Write), auth.Write, "time entry "+entryID); err != nil {
		return domain.TimeEntry{}, err
	}
	var entry domain.TimeEntry
	err = e.mutate(ctx, lock.TimerKey(current.UserID), func(ctx context.Context, tx repo.Tx) error {
		got, err := tx.GetTimeEntry(ctx, entryID)
		if err != nil {
			return err
		}
		entry = got
		if !entry.IsRunning {
			return domain.InvalidStateError{Kind: "time entry", ID: entryID, Reason: "timer already stopped"}
		}
		entry.Stop(e.now())
		if err := tx.UpdateTimeEntry(ctx, entry); err != nil {
			return err
		}
		return e.apply(ctx, tx, planStop(entry, actor))
	})
	if err != nil {
		return domain.TimeEntry{}, err
	}
	e.log().Debug("timer stopped", "entry", entryID, "actor", actor.ID, "duration_seconds", entry.DurationSeconds)
	return entry, nil
}

// ListTimeEntries lists the actor's own time entries, newest first.
func (e Engine) ListTimeEntries(ctx context.Context, actor domain.Actor, q TimeEntryQuery) ([]domain.TimeEntry, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	return e.Store.ListTimeEntries(ctx, repo.TimeEntryFilter{UserID: actor.ID, TaskID: q.TaskID, RunningOnly: q.RunningOnly, Limit: q.Limit})
}

func planStop(entry domain.TimeEntry, actor domain.Actor) domain.Effects {
	var fx domain.Effects
	if entry.TaskID == nil {
		return fx
	}
	taskID := *entry.TaskID
	d := entry.DurationSeconds
	fx.Emit(domain.BehavioralEvent{ActorID: actor.ID, TaskID: &taskID, Kind: domain.EventStoppedTimer, DurationSeconds: &d})
	return fx
}
