// Package teams exposes the team HTTP surface: listing, member management,
// role changes and manager transfer requests. All membership writes go
// through the memberships service.
package teams

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmboard/backend/internal/models"
)

// Member is a team membership joined with user and role names.
type Member struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	RoleID   uuid.UUID `json:"role_id"`
	RoleName string    `json:"role_name"`
	JoinedAt time.Time `json:"joined_at"`
}

// TeamWithRole is a team annotated with the requesting user's role in it.
type TeamWithRole struct {
	models.Team
	MyRole string `json:"my_role"`
}

// Repository serves team reads. Writes live in the memberships service.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns a team, or (nil, nil) when absent.
func (r *Repository) Get(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	const q = `SELECT id, name, description, manager_id, created_at, updated_at FROM teams WHERE id = $1`
	var t models.Team
	err := r.pool.QueryRow(ctx, q, teamID).Scan(&t.ID, &t.Name, &t.Description, &t.ManagerID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListForUser returns the teams the user belongs to, with their role name.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]TeamWithRole, error) {
	const q = `SELECT t.id, t.name, t.description, t.manager_id, t.created_at, t.updated_at, r.name
		FROM team_memberships tm
		JOIN teams t ON t.id = tm.team_id
		JOIN roles r ON r.id = tm.role_id
		WHERE tm.user_id = $1
		ORDER BY t.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []TeamWithRole
	for rows.Next() {
		var t TeamWithRole
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.ManagerID, &t.CreatedAt, &t.UpdatedAt, &t.MyRole); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListAll returns every team.
func (r *Repository) ListAll(ctx context.Context) ([]models.Team, error) {
	const q = `SELECT id, name, description, manager_id, created_at, updated_at FROM teams ORDER BY name`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Team
	for rows.Next() {
		var t models.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.ManagerID, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListMembers returns the team's members with user and role names.
func (r *Repository) ListMembers(ctx context.Context, teamID uuid.UUID) ([]Member, error) {
	const q = `SELECT u.id, u.username, u.email, r.id, r.name, tm.created_at
		FROM team_memberships tm
		JOIN users u ON u.id = tm.user_id
		JOIN roles r ON r.id = tm.role_id
		WHERE tm.team_id = $1
		ORDER BY tm.created_at`
	rows, err := r.pool.Query(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Email, &m.RoleID, &m.RoleName, &m.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// PermissionsForUser returns the union of permission actions the user holds
// in the team's scope, including firm-level assignments.
func (r *Repository) PermissionsForUser(ctx context.Context, userID, teamID uuid.UUID) ([]string, error) {
	const q = `SELECT DISTINCT p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (
			SELECT role_id FROM firm_role_assignments WHERE user_id = $1
			UNION
			SELECT role_id FROM team_memberships WHERE user_id = $1 AND team_id = $2
		)
		ORDER BY p.action`
	rows, err := r.pool.Query(ctx, q, userID, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ListPendingManagerRequests returns the team's open manager bids.
func (r *Repository) ListPendingManagerRequests(ctx context.Context, teamID uuid.UUID) ([]models.ManagerRequest, error) {
	const q = `SELECT id, team_id, user_id, status, created_at, updated_at
		FROM manager_requests WHERE team_id = $1 AND status = 'pending' ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ManagerRequest
	for rows.Next() {
		var mr models.ManagerRequest
		if err := rows.Scan(&mr.ID, &mr.TeamID, &mr.UserID, &mr.Status, &mr.CreatedAt, &mr.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, mr)
	}
	return list, rows.Err()
}

// ListProjects returns the projects owned by the team.
func (r *Repository) ListProjects(ctx context.Context, teamID uuid.UUID) ([]models.Project, error) {
	const q = `SELECT id, name, description, owner_id, owner_team_id, created_at, updated_at
		FROM projects WHERE owner_team_id = $1 ORDER BY name`
	rows, err := r.pool.Query(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Project
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.OwnerTeamID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
