package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/notifications",
		Summary:     "List the caller's notifications, newest first",
		Tags:        []string{"notifications"},
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" default:"100"`
	}) (*body[[]domain.Notification], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListNotifications(ctx, actor, engine.NotificationQuery{UnreadOnly: input.Unread, Limit: limitParam(input.Limit)})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notification-read",
		Method:      http.MethodPost,
		Path:        "/notifications/{notification_id}/read",
		Summary:     "Mark one notification read",
		Tags:        []string{"notifications"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		NotificationID string `path:"notification_id"`
	}) (*body[domain.Notification], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.MarkNotificationRead(ctx, actor, input.NotificationID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(n), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-all-notifications-read",
		Method:      http.MethodPost,
		Path:        "/notifications/read-all",
		Summary:     "Mark every unread notification read",
		Tags:        []string{"notifications"},
	}, func(ctx context.Context, _ *struct{}) (*body[MarkAllReadResponse], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		n, err := e.MarkAllNotificationsRead(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(MarkAllReadResponse{Updated: n}), nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-event",
		Method:        http.MethodPost,
		Path:          "/events",
		Summary:       "Record a client-side behavioral event",
		Tags:          []string{"events"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body RecordEventRequest
	}) (*body[domain.BehavioralEvent], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ev, err := e.RecordBehavior(ctx, actor, engine.BehaviorFields{
			Kind:            input.Body.Kind,
			TaskID:          input.Body.TaskID,
			DurationSeconds: input.Body.DurationSeconds,
			Metadata:        input.Body.Metadata,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(ev), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List behavioral events, newest first",
		Description: "Employees only see their own events; actor_id is honoured for scrum masters.",
		Tags:        []string{"events"},
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ActorID string `query:"actor_id"`
		TaskID  string `query:"task_id"`
		Kind    string `query:"kind"`
		Limit   int    `query:"limit" default:"100"`
	}) (*body[[]domain.BehavioralEvent], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListBehavioralEvents(ctx, actor, engine.EventQuery{
			ActorID: input.ActorID,
			TaskID:  input.TaskID,
			Kind:    input.Kind,
			Limit:   limitParam(input.Limit),
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})
}
