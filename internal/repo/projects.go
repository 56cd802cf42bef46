package repo

import (
	"context"

	"taskline/internal/domain"
)

type ProjectFilter struct {
	// MemberID limits results to projects the actor created or belongs to.
	MemberID        string
	IncludeArchived bool
}

const projectColumns = `id,key,name,COALESCE(description,''),created_by,is_archived,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (domain.Project, error) {
	var (
		p                domain.Project
		archived         int
		created, updated string
	)
	if err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Description, &p.CreatedBy, &archived, &created, &updated); err != nil {
		return p, err
	}
	p.IsArchived = archived == 1
	var err error
	if p.CreatedAt, err = parseTS(created); err != nil {
		return p, err
	}
	if p.UpdatedAt, err = parseTS(updated); err != nil {
		return p, err
	}
	return p, nil
}

func (r queries) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, err := scanProject(r.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, notFound(err, "project", id)
	}
	members, err := r.listMembers(ctx, id)
	if err != nil {
		return p, err
	}
	p.Members = members
	return p, nil
}

func (r queries) ListProjects(ctx context.Context, f ProjectFilter) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE 1=1`
	var args []any
	if !f.IncludeArchived {
		query += ` AND is_archived=0`
	}
	if f.MemberID != "" {
		query += ` AND (created_by=? OR id IN (SELECT project_id FROM project_members WHERE actor_id=?))`
		args = append(args, f.MemberID, f.MemberID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		members, err := r.listMembers(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Members = members
	}
	return res, nil
}

func (r queries) listMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT actor_id,role,joined_at FROM project_members WHERE project_id=? ORDER BY joined_at, actor_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []domain.Member
	for rows.Next() {
		var (
			m      domain.Member
			joined string
		)
		if err := rows.Scan(&m.ActorID, &m.Role, &joined); err != nil {
			return nil, err
		}
		if m.JoinedAt, err = parseTS(joined); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r txRepo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO projects(id,key,name,description,created_by,is_archived,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, p.Key, p.Name, nullable(p.Description), p.CreatedBy, boolInt(p.IsArchived), formatTS(p.CreatedAt), formatTS(p.UpdatedAt))
	if isUniqueViolation(err) {
		return domain.Invalid("key", "project key "+p.Key+" already exists")
	}
	return err
}

// AddMember inserts or updates a membership row.
func (r txRepo) AddMember(ctx context.Context, projectID string, m domain.Member) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO project_members(project_id,actor_id,role,joined_at) VALUES (?,?,?,?)
ON CONFLICT(project_id,actor_id) DO UPDATE SET role=excluded.role`,
		projectID, m.ActorID, m.Role, formatTS(m.JoinedAt))
	return err
}
