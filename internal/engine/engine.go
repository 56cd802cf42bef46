package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"taskline/internal/domain"
	"taskline/internal/events"
	"taskline/internal/lock"
	"taskline/internal/repo"
)

// Engine applies task, sprint and timer mutations together with their
// activity logs, behavioral events and notifications.
type Engine struct {
	Store  repo.Store
	Locks  lock.Locker
	Now    func() time.Time
	Logger *slog.Logger
}

func New(store repo.Store, locks lock.Locker) Engine {
	if locks == nil {
		locks = lock.NewMemory(5 * time.Second)
	}
	return Engine{
		Store:  store,
		Locks:  locks,
		Now:    time.Now,
		Logger: slog.Default(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) today() string {
	return e.now().Format(domain.DateLayout)
}

func (e Engine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// mutate serializes on the entity group key and runs fn in one transaction.
func (e Engine) mutate(ctx context.Context, key string, fn func(ctx context.Context, tx repo.Tx) error) error {
	if key != "" && e.Locks != nil {
		unlock, err := e.Locks.Lock(ctx, key)
		if err != nil {
			return err
		}
		defer unlock()
	}
	return e.Store.WithinTx(ctx, fn)
}

// apply stamps and appends fx with the engine clock.
func (e Engine) apply(ctx context.Context, tx repo.Tx, fx domain.Effects) error {
	return events.Writer{Now: e.now}.Append(ctx, tx, fx)
}

func checkActor(a domain.Actor) error {
	if a.ID == "" {
		return domain.AuthorizationError{Action: "act", Resource: "without an identity"}
	}
	if a.Role != domain.RoleScrumMaster && a.Role != domain.RoleEmployee {
		return domain.Invalid("role", "must be scrum_master or employee")
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var nf domain.NotFoundError
	return errors.As(err, &nf)
}

func newRecordID(ts time.Time) string {
	return events.NewID(ts)
}
