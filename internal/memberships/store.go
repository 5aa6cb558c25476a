package memberships

import (
	"context"

	"github.com/google/uuid"

	"github.com/firmboard/backend/internal/models"
)

// Store is the persistence contract for the mutation service. Lookups return
// (nil, nil) when the row is absent. WithTx runs fn against a transactional
// view of the same store; every mutation the service performs happens inside
// exactly one WithTx call so invariants commit atomically or not at all.
type Store interface {
	WithTx(ctx context.Context, fn func(Store) error) error

	// LockTeam and LockProject serialize concurrent role changes on the same
	// scope (row-level lock on the team/project row). Valid only inside a
	// transaction; they also report whether the row exists.
	LockTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error)
	LockProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)

	GetTeam(ctx context.Context, teamID uuid.UUID) (*models.Team, error)
	InsertTeam(ctx context.Context, t models.Team) (*models.Team, error)
	DeleteTeam(ctx context.Context, teamID uuid.UUID) error
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	InsertProject(ctx context.Context, p models.Project) (*models.Project, error)
	SetTeamManager(ctx context.Context, teamID, userID uuid.UUID) error
	SetProjectOwner(ctx context.Context, projectID, userID uuid.UUID) error
	ListTeamProjects(ctx context.Context, teamID uuid.UUID) ([]models.Project, error)

	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	GetTeamMembership(ctx context.Context, userID, teamID uuid.UUID) (*models.TeamMembership, error)
	ListTeamMemberships(ctx context.Context, teamID uuid.UUID) ([]models.TeamMembership, error)
	InsertTeamMembership(ctx context.Context, m models.TeamMembership) error
	UpdateTeamMembershipRole(ctx context.Context, userID, teamID, roleID uuid.UUID) error
	DeleteTeamMembership(ctx context.Context, userID, teamID uuid.UUID) error

	GetProjectMembership(ctx context.Context, userID, projectID uuid.UUID) (*models.ProjectMembership, error)
	ListProjectMemberships(ctx context.Context, projectID uuid.UUID) ([]models.ProjectMembership, error)
	InsertProjectMembership(ctx context.Context, m models.ProjectMembership) error
	UpdateProjectMembershipRole(ctx context.Context, userID, projectID, roleID uuid.UUID) error
	SetProjectMembershipOrigin(ctx context.Context, userID, projectID uuid.UUID, origin models.MembershipOrigin) error
	DeleteProjectMembership(ctx context.Context, userID, projectID uuid.UUID) error
	CountProjectMembersWithRole(ctx context.Context, projectID, roleID uuid.UUID) (int, error)
	// DeleteCascadedMembership removes the user's membership in the project
	// only when it was acquired through the team cascade.
	DeleteCascadedMembership(ctx context.Context, userID, projectID uuid.UUID) (bool, error)
	// DeleteMembershipsWithRole removes every membership on the project
	// holding the role; returns the number removed.
	DeleteMembershipsWithRole(ctx context.Context, projectID, roleID uuid.UUID) (int, error)

	FindPendingJoinRequest(ctx context.Context, projectID, userID uuid.UUID, typ models.JoinRequestType) (*models.JoinRequest, error)
	GetJoinRequest(ctx context.Context, id uuid.UUID) (*models.JoinRequest, error)
	InsertJoinRequest(ctx context.Context, r models.JoinRequest) (*models.JoinRequest, error)
	ResolveJoinRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error
	ListPendingJoinRequests(ctx context.Context, projectID uuid.UUID, typ models.JoinRequestType) ([]models.JoinRequest, error)
	ListPendingInvitesForUser(ctx context.Context, userID uuid.UUID) ([]models.JoinRequest, error)

	FindPendingManagerRequest(ctx context.Context, teamID, userID uuid.UUID) (*models.ManagerRequest, error)
	GetManagerRequest(ctx context.Context, id uuid.UUID) (*models.ManagerRequest, error)
	InsertManagerRequest(ctx context.Context, r models.ManagerRequest) (*models.ManagerRequest, error)
	ResolveManagerRequestStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error
	ListPendingManagerRequests(ctx context.Context, teamID uuid.UUID) ([]models.ManagerRequest, error)

	// InsertNotification writes the notification row in the current
	// transaction and returns it for post-commit delivery.
	InsertNotification(ctx context.Context, userID uuid.UUID, message string) (*models.Notification, error)
}

// Notifier delivers committed notifications. Best-effort: failures are
// logged by the implementation and never propagate to the caller.
type Notifier interface {
	Deliver(ctx context.Context, n models.Notification)
}
