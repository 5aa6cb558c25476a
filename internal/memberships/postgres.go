package memberships

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmboard/backend/internal/models"
)

// querier is the subset of pgx shared by a pool and a transaction, so the
// same query methods serve both inside and outside WithTx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	q    querier
	pool *pgxpool.Pool // nil when this store is a transactional view
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{q: pool, pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already inside a transaction; reuse it.
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&PostgresStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

const teamCols = `id, name, description, manager_id, created_at, updated_at`

func scanTeam(row pgx.Row) (*models.Team, error) {
	var t models.Team
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.ManagerID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	return scanTeam(s.q.QueryRow(ctx, `SELECT `+teamCols+` FROM teams WHERE id = $1`, teamID))
}

func (s *PostgresStore) LockTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error) {
	return scanTeam(s.q.QueryRow(ctx, `SELECT `+teamCols+` FROM teams WHERE id = $1 FOR UPDATE`, teamID))
}

func (s *PostgresStore) InsertTeam(ctx context.Context, t models.Team) (*models.Team, error) {
	const q = `INSERT INTO teams (name, description, manager_id)
		VALUES ($1, $2, $3)
		RETURNING ` + teamCols
	return scanTeam(s.q.QueryRow(ctx, q, t.Name, t.Description, t.ManagerID))
}

func (s *PostgresStore) DeleteTeam(ctx context.Context, teamID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `DELETE FROM teams WHERE id = $1`, teamID)
	return err
}

func (s *PostgresStore) SetTeamManager(ctx context.Context, teamID, userID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `UPDATE teams SET manager_id = $2, updated_at = NOW() WHERE id = $1`, teamID, userID)
	return err
}

const projectCols = `id, name, description, owner_id, owner_team_id, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.OwnerTeamID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	return scanProject(s.q.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1`, projectID))
}

func (s *PostgresStore) LockProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	return scanProject(s.q.QueryRow(ctx, `SELECT `+projectCols+` FROM projects WHERE id = $1 FOR UPDATE`, projectID))
}

func (s *PostgresStore) InsertProject(ctx context.Context, p models.Project) (*models.Project, error) {
	const q = `INSERT INTO projects (name, description, owner_id, owner_team_id)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + projectCols
	return scanProject(s.q.QueryRow(ctx, q, p.Name, p.Description, p.OwnerID, p.OwnerTeamID))
}

func (s *PostgresStore) SetProjectOwner(ctx context.Context, projectID, userID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `UPDATE projects SET owner_id = $2, updated_at = NOW() WHERE id = $1`, projectID, userID)
	return err
}

func (s *PostgresStore) ListTeamProjects(ctx context.Context, teamID uuid.UUID) ([]models.Project, error) {
	rows, err := s.q.Query(ctx, `SELECT `+projectCols+` FROM projects WHERE owner_team_id = $1 ORDER BY created_at`, teamID)
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

func (s *PostgresStore) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const q = `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = $1`
	var u models.User
	err := s.q.QueryRow(ctx, q, userID).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE email = $1`
	var u models.User
	err := s.q.QueryRow(ctx, q, email).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetTeamMembership(ctx context.Context, userID, teamID uuid.UUID) (*models.TeamMembership, error) {
	const q = `SELECT user_id, team_id, role_id, created_at FROM team_memberships
		WHERE user_id = $1 AND team_id = $2`
	var m models.TeamMembership
	err := s.q.QueryRow(ctx, q, userID, teamID).Scan(&m.UserID, &m.TeamID, &m.RoleID, &m.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListTeamMemberships(ctx context.Context, teamID uuid.UUID) ([]models.TeamMembership, error) {
	const q = `SELECT user_id, team_id, role_id, created_at FROM team_memberships
		WHERE team_id = $1 ORDER BY created_at`
	rows, err := s.q.Query(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.TeamMembership
	for rows.Next() {
		var m models.TeamMembership
		if err := rows.Scan(&m.UserID, &m.TeamID, &m.RoleID, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (s *PostgresStore) InsertTeamMembership(ctx context.Context, m models.TeamMembership) error {
	const q = `INSERT INTO team_memberships (user_id, team_id, role_id) VALUES ($1, $2, $3)`
	_, err := s.q.Exec(ctx, q, m.UserID, m.TeamID, m.RoleID)
	return err
}

func (s *PostgresStore) UpdateTeamMembershipRole(ctx context.Context, userID, teamID, roleID uuid.UUID) error {
	const q = `UPDATE team_memberships SET role_id = $3 WHERE user_id = $1 AND team_id = $2`
	_, err := s.q.Exec(ctx, q, userID, teamID, roleID)
	return err
}

func (s *PostgresStore) DeleteTeamMembership(ctx context.Context, userID, teamID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `DELETE FROM team_memberships WHERE user_id = $1 AND team_id = $2`, userID, teamID)
	return err
}

func (s *PostgresStore) GetProjectMembership(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectMembership, error) {
	const q = `SELECT user_id, project_id, role_id, origin, created_at FROM project_memberships
		WHERE user_id = $1 AND project_id = $2`
	var m models.ProjectMembership
	err := s.q.QueryRow(ctx, q, userID, projectID).Scan(&m.UserID, &m.ProjectID, &m.RoleID, &m.Origin, &m.CreatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListProjectMemberships(ctx context.Context, projectID uuid.UUID) ([]models.ProjectMembership, error) {
	const q = `SELECT user_id, project_id, role_id, origin, created_at FROM project_memberships
		WHERE project_id = $1 ORDER BY created_at`
	rows, err := s.q.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ProjectMembership
	for rows.Next() {
		var m models.ProjectMembership
		if err := rows.Scan(&m.UserID, &m.ProjectID, &m.RoleID, &m.Origin, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

func (s *PostgresStore) InsertProjectMembership(ctx context.Context, m models.ProjectMembership) error {
	const q = `INSERT INTO project_memberships (user_id, project_id, role_id, origin) VALUES ($1, $2, $3, $4)`
	_, err := s.q.Exec(ctx, q, m.UserID, m.ProjectID, m.RoleID, string(m.Origin))
	return err
}

func (s *PostgresStore) UpdateProjectMembershipRole(ctx context.Context, userID, projectID, roleID uuid.UUID) error {
	const q = `UPDATE project_memberships SET role_id = $3 WHERE user_id = $1 AND project_id = $2`
	_, err := s.q.Exec(ctx, q, userID, projectID, roleID)
	return err
}

func (s *PostgresStore) SetProjectMembershipOrigin(ctx context.Context, userID, projectID uuid.UUID, origin models.MembershipOrigin) error {
	const q = `UPDATE project_memberships SET origin = $3 WHERE user_id = $1 AND project_id = $2`
	_, err := s.q.Exec(ctx, q, userID, projectID, origin)
	return err
}

func (s *PostgresStore) DeleteProjectMembership(ctx context.Context, userID, projectID uuid.UUID) error {
	_, err := s.q.Exec(ctx, `DELETE FROM project_memberships WHERE user_id = $1 AND project_id = $2`, userID, projectID)
	return err
}

func (s *PostgresStore) CountProjectMembersWithRole(ctx context.Context, projectID, roleID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM project_memberships WHERE project_id = $1 AND role_id = $2`
	var n int
	err := s.q.QueryRow(ctx, q, projectID, roleID).Scan(&n)
	return n, err
}

func (s *PostgresStore) DeleteCascadedMembership(ctx context.Context, userID, projectID uuid.UUID) (bool, error) {
	const q = `DELETE FROM project_memberships
		WHERE user_id = $1 AND project_id = $2 AND origin = 'team'`
	tag, err := s.q.Exec(ctx, q, userID, projectID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) DeleteMembershipsWithRole(ctx context.Context, projectID, roleID uuid.UUID) (int, error) {
	const q = `DELETE FROM project_memberships WHERE project_id = $1 AND role_id = $2`
	tag, err := s.q.Exec(ctx, q, projectID, roleID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const joinRequestCols = `id, project_id, user_id, type, role_id, status, created_at, updated_at`

func scanJoinRequest(row pgx.Row) (*models.JoinRequest, error) {
	var r models.JoinRequest
	err := row.Scan(&r.ID, &r.ProjectID, &r.UserID, &r.Type, &r.RoleID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) FindPendingJoinRequest(ctx context.Context, projectID, userID uuid.UUID, typ models.JoinRequestType) (*models.JoinRequest, error) {
	const q = `SELECT ` + joinRequestCols + ` FROM join_requests
		WHERE project_id = $1 AND user_id = $2 AND type = $3 AND status = 'pending'`
	return scanJoinRequest(s.q.QueryRow(ctx, q, projectID, userID, string(typ)))
}

func (s *PostgresStore) GetJoinRequest(ctx context.Context, id uuid.UUID) (*models.JoinRequest, error) {
	return scanJoinRequest(s.q.QueryRow(ctx, `SELECT `+joinRequestCols+` FROM join_requests WHERE id = $1`, id))
}

func (s *PostgresStore) InsertJoinRequest(ctx context.Context, r models.JoinRequest) (*models.JoinRequest, error) {
	const q = `INSERT INTO join_requests (project_id, user_id, type, role_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + joinRequestCols
	return scanJoinRequest(s.q.QueryRow(ctx, q, r.ProjectID, r.UserID, string(r.Type), r.RoleID, string(r.Status)))
}

func (s *PostgresStore) ResolveJoinRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error {
	const q = `UPDATE join_requests SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := s.q.Exec(ctx, q, id, string(status))
	return err
}

func (s *PostgresStore) ListPendingJoinRequests(ctx context.Context, projectID uuid.UUID, typ models.JoinRequestType) ([]models.JoinRequest, error) {
	const q = `SELECT ` + joinRequestCols + ` FROM join_requests
		WHERE project_id = $1 AND type = $2 AND status = 'pending' ORDER BY created_at`
	rows, err := s.q.Query(ctx, q, projectID, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJoinRequests(rows)
}

func (s *PostgresStore) ListPendingInvitesForUser(ctx context.Context, userID uuid.UUID) ([]models.JoinRequest, error) {
	const q = `SELECT ` + joinRequestCols + ` FROM join_requests
		WHERE user_id = $1 AND type = 'invite' AND status = 'pending' ORDER BY created_at`
	rows, err := s.q.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJoinRequests(rows)
}

func collectJoinRequests(rows pgx.Rows) ([]models.JoinRequest, error) {
	var list []models.JoinRequest
	for rows.Next() {
		var r models.JoinRequest
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.UserID, &r.Type, &r.RoleID, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

const managerRequestCols = `id, team_id, user_id, status, created_at, updated_at`

func scanManagerRequest(row pgx.Row) (*models.ManagerRequest, error) {
	var r models.ManagerRequest
	err := row.Scan(&r.ID, &r.TeamID, &r.UserID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) FindPendingManagerRequest(ctx context.Context, teamID, userID uuid.UUID) (*models.ManagerRequest, error) {
	const q = `SELECT ` + managerRequestCols + ` FROM manager_requests
		WHERE team_id = $1 AND user_id = $2 AND status = 'pending'`
	return scanManagerRequest(s.q.QueryRow(ctx, q, teamID, userID))
}

func (s *PostgresStore) GetManagerRequest(ctx context.Context, id uuid.UUID) (*models.ManagerRequest, error) {
	return scanManagerRequest(s.q.QueryRow(ctx, `SELECT `+managerRequestCols+` FROM manager_requests WHERE id = $1`, id))
}

func (s *PostgresStore) InsertManagerRequest(ctx context.Context, r models.ManagerRequest) (*models.ManagerRequest, error) {
	const q = `INSERT INTO manager_requests (team_id, user_id, status)
		VALUES ($1, $2, $3)
		RETURNING ` + managerRequestCols
	return scanManagerRequest(s.q.QueryRow(ctx, q, r.TeamID, r.UserID, string(r.Status)))
}

func (s *PostgresStore) ResolveManagerRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error {
	const q = `UPDATE manager_requests SET status = $2, updated_at = NOW() WHERE id = $1`
	_, err := s.q.Exec(ctx, q, id, string(status))
	return err
}

func (s *PostgresStore) ListPendingManagerRequests(ctx context.Context, teamID uuid.UUID) ([]models.ManagerRequest, error) {
	const q = `SELECT ` + managerRequestCols + ` FROM manager_requests
		WHERE team_id = $1 AND status = 'pending' ORDER BY created_at`
	rows, err := s.q.Query(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ManagerRequest
	for rows.Next() {
		var r models.ManagerRequest
		if err := rows.Scan(&r.ID, &r.TeamID, &r.UserID, &r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (s *PostgresStore) InsertNotification(ctx context.Context, userID uuid.UUID, message string) (*models.Notification, error) {
	const q = `INSERT INTO notifications (user_id, message)
		VALUES ($1, $2)
		RETURNING id, user_id, message, is_read, created_at`
	var n models.Notification
	err := s.q.QueryRow(ctx, q, userID, message).Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
