package rbac

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmboard/backend/internal/models"
)

// Store is the pgx-backed Catalog and MembershipReader.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates the postgres-backed rbac store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ Catalog          = (*Store)(nil)
	_ MembershipReader = (*Store)(nil)
)

// ListPermissions returns the full permission catalog.
func (s *Store) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, action, description FROM permissions ORDER BY action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Action, &p.Description); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// FindRole returns the role with the given name and scope, or (nil, nil).
func (s *Store) FindRole(ctx context.Context, name string, scope models.Scope) (*models.Role, error) {
	const q = `SELECT id, name, scope FROM roles WHERE name = $1 AND scope = $2`
	var r models.Role
	err := s.pool.QueryRow(ctx, q, name, string(scope)).Scan(&r.ID, &r.Name, &r.Scope)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// RoleByID returns the role with the given id, or (nil, nil).
func (s *Store) RoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error) {
	const q = `SELECT id, name, scope FROM roles WHERE id = $1`
	var r models.Role
	err := s.pool.QueryRow(ctx, q, id).Scan(&r.ID, &r.Name, &r.Scope)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// RolePermissions returns the set of permission actions granted by a role.
func (s *Store) RolePermissions(ctx context.Context, roleID uuid.UUID) (map[string]struct{}, error) {
	const q = `SELECT p.action FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`
	rows, err := s.pool.Query(ctx, q, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := make(map[string]struct{})
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return nil, err
		}
		perms[action] = struct{}{}
	}
	return perms, rows.Err()
}

// RolesByScope lists all roles at a scope.
func (s *Store) RolesByScope(ctx context.Context, scope models.Scope) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, scope FROM roles WHERE scope = $1 ORDER BY name`, string(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Role
	for rows.Next() {
		var r models.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Scope); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

// UserExists reports whether a user row exists for the id.
func (s *Store) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// FirmRoleIDs returns the firm-scoped role ids assigned to a user.
func (s *Store) FirmRoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT role_id FROM firm_role_assignments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TeamRoleID returns the role id of the user's team membership, or nil.
func (s *Store) TeamRoleID(ctx context.Context, userID, teamID uuid.UUID) (*uuid.UUID, error) {
	const q = `SELECT role_id FROM team_memberships WHERE user_id = $1 AND team_id = $2`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, q, userID, teamID).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}

// ProjectRoleID returns the role id of the user's project membership, or nil.
func (s *Store) ProjectRoleID(ctx context.Context, userID, projectID uuid.UUID) (*uuid.UUID, error) {
	const q = `SELECT role_id FROM project_memberships WHERE user_id = $1 AND project_id = $2`
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, q, userID, projectID).Scan(&id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &id, nil
}
