package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"taskline/internal/domain"
	"taskline/internal/engine/auth"
	"taskline/internal/repo"
)

var projectKeyRe = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,9}$`)

type ProjectFields struct {
	Key         string
	Name        string
	Description string
}

// CreateProject creates a project and makes the creator its admin member.
func (e Engine) CreateProject(ctx context.Context, actor domain.Actor, f ProjectFields) (domain.Project, error) {
	if err := checkActor(actor); err != nil {
		return domain.Project{}, err
	}
	if err := auth.Require(auth.CanCreateProject(actor), auth.Write, "projects"); err != nil {
		return domain.Project{}, err
	}
	key := strings.ToUpper(strings.TrimSpace(f.Key))
	if !projectKeyRe.MatchString(key) {
		return domain.Project{}, domain.Invalid("key", "must be 1-10 letters or digits starting with a letter")
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return domain.Project{}, domain.Invalid("name", "required")
	}
	now := e.now()
	p := domain.Project{
		ID:          uuid.NewString(),
		Key:         key,
		Name:        name,
		Description: f.Description,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Members:     []domain.Member{{ActorID: actor.ID, Role: domain.MemberAdmin, JoinedAt: now}},
	}
	err := e.mutate(ctx, "", func(ctx context.Context, tx repo.Tx) error {
		if err := tx.InsertProject(ctx, p); err != nil {
			return err
		}
		return tx.AddMember(ctx, p.ID, p.Members[0])
	})
	if err != nil {
		return domain.Project{}, err
	}
	e.log().Debug("project created", "project", p.ID, "key", p.Key, "actor", actor.ID)
	return p, nil
}

// AddProjectMember adds or re-roles a member. Only project writers may do this.
func (e Engine) AddProjectMember(ctx context.Context, actor domain.Actor, projectID, memberID, role string) (domain.Project, error) {
	if err := checkActor(actor); err != nil {
		return domain.Project{}, err
	}
	if memberID == "" {
		return domain.Project{}, domain.Invalid("actor_id", "required")
	}
	if role == "" {
		role = domain.MemberMember
	}
	if role != domain.MemberAdmin && role != domain.MemberMember {
		return domain.Project{}, domain.Invalid("role", "must be admin or member")
	}
	var out domain.Project
	err := e.mutate(ctx, "", func(ctx context.Context, tx repo.Tx) error {
		p, err := e.readableProject(ctx, tx, actor, projectID)
		if err != nil {
			return err
		}
		if err := auth.Require(auth.CanProject(actor, p, auth.Write), auth.Write, "project "+projectID); err != nil {
			return err
		}
		if err := tx.AddMember(ctx, projectID, domain.Member{ActorID: memberID, Role: role, JoinedAt: e.now()}); err != nil {
			return err
		}
		out, err = tx.GetProject(ctx, projectID)
		return err
	})
	return out, err
}

func (e Engine) GetProject(ctx context.Context, actor domain.Actor, projectID string) (domain.Project, error) {
	if err := checkActor(actor); err != nil {
		return domain.Project{}, err
	}
	return e.readableProject(ctx, e.Store, actor, projectID)
}

// ListProjects returns every project for scrum masters and member projects otherwise.
func (e Engine) ListProjects(ctx context.Context, actor domain.Actor) ([]domain.Project, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	f := repo.ProjectFilter{}
	if !actor.IsScrumMaster() {
		f.MemberID = actor.ID
	}
	return e.Store.ListProjects(ctx, f)
}

// readableProject hides projects the actor cannot read behind NotFoundError.
func (e Engine) readableProject(ctx context.Context, r repo.Reader, actor domain.Actor, projectID string) (domain.Project, error) {
	p, err := r.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if !auth.CanProject(actor, p, auth.Read) {
		return domain.Project{}, domain.NotFound("project", projectID)
	}
	return p, nil
}

// projectField resolves a project referenced from a request payload; an
// unknown or inaccessible project is a validation failure of that field.
func (e Engine) projectField(ctx context.Context, r repo.Reader, actor domain.Actor, projectID string) (domain.Project, error) {
	if projectID == "" {
		return domain.Project{}, domain.Invalid("project", "required")
	}
	p, err := e.readableProject(ctx, r, actor, projectID)
	var nf domain.NotFoundError
	if errors.As(err, &nf) {
		return domain.Project{}, domain.Invalid("project", "not found or not accessible")
	}
	if err != nil {
		return domain.Project{}, err
	}
	if p.IsArchived {
		return domain.Project{}, domain.Invalid("project", "archived")
	}
	return p, nil
}
