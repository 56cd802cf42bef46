package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"taskline/internal/domain"
	"taskline/internal/engine"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		Tags:          []string{"projects"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest
	}) (*body[domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, actor, engine.ProjectFields{
			Key:         input.Body.Key,
			Name:        input.Body.Name,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
		Tags:        []string{"projects"},
	}, func(ctx context.Context, _ *struct{}) (*body[[]domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, actor)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*body[domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.GetProject(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "add-project-member",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/members",
		Summary:     "Add or re-role a project member",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Body      AddMemberRequest
	}) (*body[domain.Project], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.AddProjectMember(ctx, actor, input.ProjectID, input.Body.ActorID, input.Body.Role)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(p), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/board",
		Summary:     "Tasks grouped into board columns",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*body[engine.Board], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		b, err := e.Board(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(b), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-backlog",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/backlog",
		Summary:     "Backlog tasks outside any sprint",
		Tags:        []string{"projects"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*body[[]domain.Task], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Backlog(ctx, actor, input.ProjectID)
		if err != nil {
			return nil, handleError(ctx, err)
		}
		return reply(nonNil(items)), nil
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
