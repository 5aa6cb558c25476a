// Package projects exposes the project HTTP surface: lifecycle, membership
// views, invitations and join requests, visitor grants and dashboard stats.
// All membership writes go through the memberships service.
package projects

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmboard/backend/internal/models"
)

// DefaultColumns are seeded onto every new project's board, in order.
var DefaultColumns = []string{"To Do", "In Progress", "In Review", "Done"}

// Member is a project membership joined with user and role names.
type Member struct {
	UserID   uuid.UUID               `json:"user_id"`
	Username string                  `json:"username"`
	Email    string                  `json:"email"`
	RoleID   uuid.UUID               `json:"role_id"`
	RoleName string                  `json:"role_name"`
	Origin   models.MembershipOrigin `json:"origin"`
	JoinedAt time.Time               `json:"joined_at"`
}

// ProjectWithRole is a project annotated with the requesting user's role.
type ProjectWithRole struct {
	models.Project
	MyRole string `json:"my_role"`
}

// Progress summarizes item completion for a project.
type Progress struct {
	TotalItems int     `json:"total_items"`
	DoneItems  int     `json:"done_items"`
	Percent    float64 `json:"percent"`
}

// DashboardStats summarizes a user's slice of the system.
type DashboardStats struct {
	Teams               int `json:"teams"`
	Projects            int `json:"projects"`
	OpenAssignedItems   int `json:"open_assigned_items"`
	UnreadNotifications int `json:"unread_notifications"`
}

// JoinRequestView is a join request joined with the requesting username.
type JoinRequestView struct {
	models.JoinRequest
	Username    string `json:"username"`
	ProjectName string `json:"project_name"`
}

// Repository serves project reads and non-membership writes.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const projectCols = `id, name, description, owner_id, owner_team_id, created_at, updated_at`

// Get returns a project, or (nil, nil) when absent.
func (r *Repository) Get(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	var p models.Project
	err := r.pool.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, projectID).
		Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.OwnerTeamID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListForUser returns the projects the user belongs to, with their role.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]ProjectWithRole, error) {
	const q = `SELECT p.id, p.name, p.description, p.owner_id, p.owner_team_id, p.created_at, p.updated_at, r.name
		FROM project_memberships pm
		JOIN projects p ON p.id = pm.project_id
		JOIN roles r ON r.id = pm.role_id
		WHERE pm.user_id = $1
		ORDER BY p.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ProjectWithRole
	for rows.Next() {
		var p ProjectWithRole
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.OwnerTeamID, &p.CreatedAt, &p.UpdatedAt, &p.MyRole); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Update changes a project's name and description.
func (r *Repository) Update(ctx context.Context, projectID uuid.UUID, name, description string) (*models.Project, error) {
	const q = `UPDATE projects SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 RETURNING ` + projectCols
	var p models.Project
	err := r.pool.QueryRow(ctx, q, projectID, name, description).
		Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.OwnerTeamID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// Delete removes a project. Memberships, columns, items and requests
// cascade.
func (r *Repository) Delete(ctx context.Context, projectID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, projectID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreateDefaultColumns seeds the standard board columns for a new project.
func (r *Repository) CreateDefaultColumns(ctx context.Context, projectID uuid.UUID) error {
	const q = `INSERT INTO board_columns (project_id, name, position) VALUES ($1, $2, $3)`
	for i, name := range DefaultColumns {
		if _, err := r.pool.Exec(ctx, q, projectID, name, i); err != nil {
			return err
		}
	}
	return nil
}

// ListMembers returns the project's members with user and role names.
func (r *Repository) ListMembers(ctx context.Context, projectID uuid.UUID) ([]Member, error) {
	const q = `SELECT u.id, u.username, u.email, r.id, r.name, pm.origin, pm.created_at
		FROM project_memberships pm
		JOIN users u ON u.id = pm.user_id
		JOIN roles r ON r.id = pm.role_id
		WHERE pm.project_id = $1
		ORDER BY pm.created_at`
	rows, err := r.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Email, &m.RoleID, &m.RoleName, &m.Origin, &m.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// GetProgress returns item completion counts for the project.
func (r *Repository) GetProgress(ctx context.Context, projectID uuid.UUID) (*Progress, error) {
	const q = `SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2) FROM items WHERE project_id = $1`
	var p Progress
	if err := r.pool.QueryRow(ctx, q, projectID, models.ItemStatusDone).Scan(&p.TotalItems, &p.DoneItems); err != nil {
		return nil, err
	}
	if p.TotalItems > 0 {
		p.Percent = float64(p.DoneItems) * 100 / float64(p.TotalItems)
	}
	return &p, nil
}

// ListPendingJoinRequests returns the project's open join requests with
// requester names.
func (r *Repository) ListPendingJoinRequests(ctx context.Context, projectID uuid.UUID) ([]JoinRequestView, error) {
	const q = `SELECT jr.id, jr.project_id, jr.user_id, jr.type, jr.role_id, jr.status, jr.created_at, jr.updated_at,
		u.username, p.name
		FROM join_requests jr
		JOIN users u ON u.id = jr.user_id
		JOIN projects p ON p.id = jr.project_id
		WHERE jr.project_id = $1 AND jr.type = 'request' AND jr.status = 'pending'
		ORDER BY jr.created_at`
	return r.queryJoinRequestViews(ctx, q, projectID)
}

// ListPendingInvitesForUser returns the user's open invitations with project
// names.
func (r *Repository) ListPendingInvitesForUser(ctx context.Context, userID uuid.UUID) ([]JoinRequestView, error) {
	const q = `SELECT jr.id, jr.project_id, jr.user_id, jr.type, jr.role_id, jr.status, jr.created_at, jr.updated_at,
		u.username, p.name
		FROM join_requests jr
		JOIN users u ON u.id = jr.user_id
		JOIN projects p ON p.id = jr.project_id
		WHERE jr.user_id = $1 AND jr.type = 'invite' AND jr.status = 'pending'
		ORDER BY jr.created_at`
	return r.queryJoinRequestViews(ctx, q, userID)
}

func (r *Repository) queryJoinRequestViews(ctx context.Context, q string, arg any) ([]JoinRequestView, error) {
	rows, err := r.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []JoinRequestView
	for rows.Next() {
		var v JoinRequestView
		if err := rows.Scan(&v.ID, &v.ProjectID, &v.UserID, &v.Type, &v.RoleID, &v.Status,
			&v.CreatedAt, &v.UpdatedAt, &v.Username, &v.ProjectName); err != nil {
			return nil, err
		}
		list = append(list, v)
	}
	return list, rows.Err()
}

// GetDashboardStats returns the user's dashboard counters.
func (r *Repository) GetDashboardStats(ctx context.Context, userID uuid.UUID) (*DashboardStats, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM team_memberships WHERE user_id = $1),
		(SELECT COUNT(*) FROM project_memberships WHERE user_id = $1),
		(SELECT COUNT(*) FROM items WHERE assignee_id = $1 AND status <> $2),
		(SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read)`
	var s DashboardStats
	err := r.pool.QueryRow(ctx, q, userID, models.ItemStatusDone).
		Scan(&s.Teams, &s.Projects, &s.OpenAssignedItems, &s.UnreadNotifications)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
