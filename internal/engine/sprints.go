package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/engine/auth"
	"taskline/internal/lock"
	"taskline/internal/repo"
)

type SprintFields struct {
	Name      string
	Goal      string
	StartDate string
	EndDate   string
}

// CreateSprint adds an inactive sprint to a project. Scrum masters only.
func (e Engine) CreateSprint(ctx context.Context, actor domain.Actor, projectID string, f SprintFields) (domain.Sprint, error) {
	if err := checkActor(actor); err != nil {
		return domain.Sprint{}, err
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return domain.Sprint{}, domain.Invalid("name", "required")
	}
	start, end := optionalString(f.StartDate), optionalString(f.EndDate)
	if err := validateDate("start_date", start); err != nil {
		return domain.Sprint{}, err
	}
	if err := validateDate("end_date", end); err != nil {
		return domain.Sprint{}, err
	}
	// DateLayout strings compare in calendar order
	if start != nil && end != nil && *end < *start {
		return domain.Sprint{}, domain.Invalid("end_date", "must not be before start_date")
	}
	s := domain.Sprint{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Name:      name,
		Goal:      f.Goal,
		StartDate: start,
		EndDate:   end,
		CreatedAt: e.now(),
		Version:   1,
	}
	err := e.mutate(ctx, lock.SprintsKey(projectID), func(ctx context.Context, tx repo.Tx) error {
		p, err := e.projectField(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		if err := auth.Require(auth.CanSprint(actor, p, auth.Write), auth.Write, "sprints of project "+projectID); err != nil {
			return err
		}
		return tx.InsertSprint(ctx, s)
	})
	if err != nil {
		return domain.Sprint{}, err
	}
	e.log().Debug("sprint created", "sprint", s.ID, "project", projectID, "actor", actor.ID)
	return s, nil
}

// StartSprint activates a sprint and deactivates every other active sprint of
// its project.
func (e Engine) StartSprint(ctx context.Context, actor domain.Actor, sprintID string) (domain.Sprint, error) {
	if err := checkActor(actor); err != nil {
		return domain.Sprint{}, err
	}
	projectID, err := e.sprintProject(ctx, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	var s domain.Sprint
	err = e.mutate(ctx, lock.SprintsKey(projectID), func(ctx context.Context, tx repo.Tx) error {
		got, err := e.writableSprint(ctx, tx, actor, sprintID)
		if err != nil {
			return err
		}
		s = got
		if s.IsCompleted {
			return domain.InvalidStateError{Kind: "sprint", ID: sprintID, Reason: "sprint is completed"}
		}
		active, err := tx.ListSprints(ctx, repo.SprintFilter{ProjectID: s.ProjectID, ActiveOnly: true})
		if err != nil {
			return err
		}
		for _, other := range active {
			if other.ID == s.ID {
				continue
			}
			other.IsActive = false
			if err := tx.UpdateSprint(ctx, other); err != nil {
				return err
			}
		}
		s.IsActive = true
		if s.StartDate == nil {
			today := e.today()
			s.StartDate = &today
		}
		if err := tx.UpdateSprint(ctx, s); err != nil {
			return err
		}
		s.Version++
		return nil
	})
	if err != nil {
		return domain.Sprint{}, err
	}
	e.log().Debug("sprint started", "sprint", sprintID, "project", projectID, "actor", actor.ID)
	return s, nil
}

// CompleteSprint closes a sprint and returns its unfinished tasks to the backlog.
func (e Engine) CompleteSprint(ctx context.Context, actor domain.Actor, sprintID string) (domain.Sprint, error) {
	if err := checkActor(actor); err != nil {
		return domain.Sprint{}, err
	}
	projectID, err := e.sprintProject(ctx, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	var (
		s     domain.Sprint
		moved int
	)
	err = e.mutate(ctx, lock.SprintsKey(projectID), func(ctx context.Context, tx repo.Tx) error {
		got, err := e.writableSprint(ctx, tx, actor, sprintID)
		if err != nil {
			return err
		}
		s = got
		if s.IsCompleted {
			return domain.InvalidStateError{Kind: "sprint", ID: sprintID, Reason: "sprint is already completed"}
		}
		now := e.now()
		today := e.today()
		s.IsActive = false
		s.IsCompleted = true
		s.EndDate = &today
		if err := tx.UpdateSprint(ctx, s); err != nil {
			return err
		}
		s.Version++

		open, err := tx.ListTasks(ctx, repo.TaskFilter{SprintID: sprintID, ExcludeStatus: domain.StatusDone})
		if err != nil {
			return err
		}
		var fx domain.Effects
		for _, t := range open {
			prev := t.Status
			t.SprintID = nil
			t.Status = domain.StatusBacklog
			t.DeriveCompletedAt(prev, now)
			t.UpdatedAt = now
			if err := tx.UpdateTask(ctx, t); err != nil {
				return err
			}
			fx.Log(t.ID, actor.ID, domain.ActionSprintChanged, sprintID, "")
		}
		moved = len(open)
		return e.apply(ctx, tx, fx)
	})
	if err != nil {
		return domain.Sprint{}, err
	}
	e.log().Debug("sprint completed", "sprint", sprintID, "project", projectID, "actor", actor.ID, "returned_to_backlog", moved)
	return s, nil
}

func (e Engine) GetSprint(ctx context.Context, actor domain.Actor, sprintID string) (domain.Sprint, error) {
	if err := checkActor(actor); err != nil {
		return domain.Sprint{}, err
	}
	s, err := e.Store.GetSprint(ctx, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	p, err := e.Store.GetProject(ctx, s.ProjectID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if !auth.CanSprint(actor, p, auth.Read) {
		return domain.Sprint{}, domain.NotFound("sprint", sprintID)
	}
	return s, nil
}

func (e Engine) ListSprints(ctx context.Context, actor domain.Actor, projectID string) ([]domain.Sprint, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	if _, err := e.readableProject(ctx, e.Store, actor, projectID); err != nil {
		return nil, err
	}
	return e.Store.ListSprints(ctx, repo.SprintFilter{ProjectID: projectID})
}

// sprintProject resolves the lock group of a sprint. The project of a sprint never changes.
func (e Engine) sprintProject(ctx context.Context, sprintID string) (string, error) {
	s, err := e.Store.GetSprint(ctx, sprintID)
	if err != nil {
		return "", err
	}
	return s.ProjectID, nil
}

func (e Engine) writableSprint(ctx context.Context, r repo.Reader, actor domain.Actor, sprintID string) (domain.Sprint, error) {
	s, err := r.GetSprint(ctx, sprintID)
	if err != nil {
		return domain.Sprint{}, err
	}
	p, err := r.GetProject(ctx, s.ProjectID)
	if err != nil {
		return domain.Sprint{}, err
	}
	if !auth.CanSprint(actor, p, auth.Read) {
		return domain.Sprint{}, domain.NotFound("sprint", sprintID)
	}
	if err := auth.Require(auth.CanSprint(actor, p, auth.Write), auth.Write, "sprint "+sprintID); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}
