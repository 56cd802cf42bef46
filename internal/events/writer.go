package events

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"taskline/internal/domain"
	"taskline/internal/repo"
)

// Writer stamps ids and timestamps on a side-effect batch and appends it
// inside the caller's transaction.
type Writer struct {
	Now func() time.Time
}

func (w Writer) now() time.Time {
	if w.Now == nil {
		return time.Now().UTC()
	}
	return w.Now().UTC()
}

// NewID returns a ULID timestamped with ts.
func NewID(ts time.Time) string {
	return ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String()
}

// Stamp fills missing ids and timestamps in place.
func (w Writer) Stamp(fx *domain.Effects) {
	ts := w.now()
	for i := range fx.Activity {
		if fx.Activity[i].ID == "" {
			fx.Activity[i].ID = NewID(ts)
		}
		if fx.Activity[i].Timestamp.IsZero() {
			fx.Activity[i].Timestamp = ts
		}
	}
	for i := range fx.Events {
		if fx.Events[i].ID == "" {
			fx.Events[i].ID = NewID(ts)
		}
		if fx.Events[i].Timestamp.IsZero() {
			fx.Events[i].Timestamp = ts
		}
	}
	for i := range fx.Notifications {
		if fx.Notifications[i].ID == "" {
			fx.Notifications[i].ID = NewID(ts)
		}
		if fx.Notifications[i].CreatedAt.IsZero() {
			fx.Notifications[i].CreatedAt = ts
		}
	}
}

// Append writes fx through tx. An empty batch is a no-op.
func (w Writer) Append(ctx context.Context, tx repo.Tx, fx domain.Effects) error {
	if fx.Empty() {
		return nil
	}
	w.Stamp(&fx)
	if err := tx.CreateMany(ctx, fx); err != nil {
		return fmt.Errorf("append effects: %w", err)
	}
	return nil
}
