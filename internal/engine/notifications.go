package engine

import (
	"context"

	"taskline/internal/domain"
	"taskline/internal/engine/auth"
	"taskline/internal/lock"
	"taskline/internal/repo"
)

type NotificationQuery struct {
	UnreadOnly bool
	Limit      int
}

// ListNotifications returns the actor's notifications, newest first.
func (e Engine) ListNotifications(ctx context.Context, actor domain.Actor, q NotificationQuery) ([]domain.Notification, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	return e.Store.ListNotifications(ctx, repo.NotificationFilter{UserID: actor.ID, UnreadOnly: q.UnreadOnly, Limit: q.Limit})
}

// MarkNotificationRead marks one of the actor's notifications as read. Marking
// an already read notification is a no-op.
func (e Engine) MarkNotificationRead(ctx context.Context, actor domain.Actor, id string) (domain.Notification, error) {
	if err := checkActor(actor); err != nil {
		return domain.Notification{}, err
	}
	var n domain.Notification
	err := e.mutate(ctx, lock.NotificationsKey(actor.ID), func(ctx context.Context, tx repo.Tx) error {
		got, err := tx.GetNotification(ctx, id)
		if err != nil {
			return err
		}
		if !auth.CanNotification(actor, got, auth.Write) {
			return domain.NotFound("notification", id)
		}
		if _, err := tx.MarkNotificationsRead(ctx, actor.ID, id); err != nil {
			return err
		}
		got.IsRead = true
		n = got
		return nil
	})
	return n, err
}

// MarkAllNotificationsRead marks every unread notification of the actor and
// returns how many changed.
func (e Engine) MarkAllNotificationsRead(ctx context.Context, actor domain.Actor) (int64, error) {
	if err := checkActor(actor); err != nil {
		return 0, err
	}
	var n int64
	err := e.mutate(ctx, lock.NotificationsKey(actor.ID), func(ctx context.Context, tx repo.Tx) error {
		var err error
		n, err = tx.MarkNotificationsRead(ctx, actor.ID, "")
		return err
	})
	return n, err
}
