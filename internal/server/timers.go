package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

func registerTimers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-timer",
		Method:        http.MethodPost,
		Path:          "/timers/start",
		Summary:       "Start a timer, stopping the caller's running one",
		Tags:          []string{"timers"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body StartTimerRequest
	}) (*body[domain.TimeEntry], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.StartTimer(ctx, actor, engine.TimerFields{
			TaskID:      input.Body.TaskID,
			Description: input.Body.Description,
			StartTime:   input.Body.StartTime,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stop-timer",
		Method:      http.MethodPost,
		Path:        "/timers/{entry_id}/stop",
		Summary:     "Stop a running timer",
		Tags:        []string{"timers"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EntryID string `path:"entry_id"`
	}) (*body[domain.TimeEntry], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.StopTimer(ctx, actor, input.EntryID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(entry), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-time-entries",
		Method:      http.MethodGet,
		Path:        "/timers",
		Summary:     "List the caller's time entries",
		Tags:        []string{"timers"},
	}, func(ctx context.Context, input *struct {
		TaskID  string `query:"task_id"`
		Running bool   `query:"running"`
		Limit   int    `query:"limit" default:"100"`
	}) (*body[[]domain.TimeEntry], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListTimeEntries(ctx, actor, engine.TimeEntryQuery{
			TaskID:      input.TaskID,
			RunningOnly: input.Running,
			Limit:       limitParam(input.Limit),
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})
}
