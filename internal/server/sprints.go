package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

type sprintPath struct {
	SprintID string `path:"sprint_id"`
}

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Create sprint",
		Tags:          []string{"sprints"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      CreateSprintRequest
	}) (*body[domain.Sprint], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSprint(ctx, actor, input.ProjectID, engine.SprintFields{
			Name:      input.Body.Name,
			Goal:      input.Body.Goal,
			StartDate: input.Body.StartDate,
			EndDate:   input.Body.EndDate,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints",
		Summary:     "List sprints of a project",
		Tags:        []string{"sprints"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*body[[]domain.Sprint], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListSprints(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/sprints/{sprint_id}",
		Summary:     "Get sprint",
		Tags:        []string{"sprints"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*body[domain.Sprint], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.GetSprint(ctx, actor, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "start-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/start",
		Summary:     "Start sprint, deactivating any other active sprint",
		Tags:        []string{"sprints"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sprintPath) (*body[domain.Sprint], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.StartSprint(ctx, actor, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-sprint",
		Method:      http.MethodPost,
		Path:        "/sprints/{sprint_id}/complete",
		Summary:     "Complete sprint and return unfinished tasks to the backlog",
		Tags:        []string{"sprints"},
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *sprintPath) (*body[domain.Sprint], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CompleteSprint(ctx, actor, input.SprintID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(s), nil
	})
}
