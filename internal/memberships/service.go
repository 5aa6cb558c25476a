package memberships

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/models"
	"github.com/firmboard/backend/internal/rbac"
)

// Service applies membership mutations. Every operation authorizes the actor
// first, performs all writes inside a single transaction, and hands committed
// notifications to the notifier afterwards.
type Service struct {
	store    Store
	engine   *rbac.Engine
	catalog  rbac.Catalog
	defaults *rbac.Defaults
	notifier Notifier
	logger   *zap.Logger
}

func NewService(store Store, engine *rbac.Engine, catalog rbac.Catalog, defaults *rbac.Defaults, notifier Notifier, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		engine:   engine,
		catalog:  catalog,
		defaults: defaults,
		notifier: notifier,
		logger:   logger,
	}
}

// require authorizes the actor for an action, translating a deny into a
// Forbidden fault. ErrUnauthenticated passes through untouched so the edge
// can answer 401 instead of 403.
func (s *Service) require(ctx context.Context, actor uuid.UUID, action string, scope rbac.Context) error {
	ok, err := s.engine.Authorize(ctx, actor, action, scope)
	if err != nil {
		return err
	}
	if !ok {
		return faultf(KindForbidden, "missing permission %q", action)
	}
	return nil
}

func (s *Service) defaultsReady() error {
	if s.defaults == nil {
		return faultf(KindMisconfigured, "default roles are not loaded")
	}
	for _, r := range []models.Role{
		s.defaults.TeamManager, s.defaults.TeamMember,
		s.defaults.ProjectOwner, s.defaults.ProjectContributor, s.defaults.ProjectVisitor,
	} {
		if r.ID == uuid.Nil {
			return faultf(KindMisconfigured, "default role catalog is incomplete")
		}
	}
	return nil
}

// resolveRole validates an explicit role id against the required scope, or
// falls back to the default role when none was given.
func (s *Service) resolveRole(ctx context.Context, roleID *uuid.UUID, scope models.Scope, fallback models.Role) (uuid.UUID, error) {
	if roleID == nil {
		return fallback.ID, nil
	}
	role, err := s.catalog.RoleByID(ctx, *roleID)
	if err != nil {
		return uuid.Nil, err
	}
	if role == nil || role.Scope != scope {
		return uuid.Nil, faultf(KindInvalidRole, "role is not a %s-scope role", scope)
	}
	return role.ID, nil
}

func (s *Service) deliver(ctx context.Context, pending []models.Notification) {
	if s.notifier == nil {
		return
	}
	for _, n := range pending {
		s.notifier.Deliver(ctx, n)
	}
}

// CreateTeam creates a team with the actor as its manager, including the
// manager's own membership row.
func (s *Service) CreateTeam(ctx context.Context, actor uuid.UUID, name, description string) (*models.Team, error) {
	if err := s.require(ctx, actor, rbac.ActionCreateTeam, rbac.Context{}); err != nil {
		return nil, err
	}
	if err := s.defaultsReady(); err != nil {
		return nil, err
	}
	var created *models.Team
	err := s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.InsertTeam(ctx, models.Team{Name: name, Description: description, ManagerID: actor})
		if err != nil {
			return err
		}
		if err := tx.InsertTeamMembership(ctx, models.TeamMembership{
			UserID: actor, TeamID: team.ID, RoleID: s.defaults.TeamManager.ID,
		}); err != nil {
			return err
		}
		created = team
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("team created", zap.String("team_id", created.ID.String()), zap.String("manager_id", actor.String()))
	return created, nil
}

// DeleteTeam removes a team. Memberships cascade; team-owned projects are
// detached, not deleted.
func (s *Service) DeleteTeam(ctx context.Context, actor, teamID uuid.UUID) error {
	if err := s.require(ctx, actor, rbac.ActionDeleteTeam, rbac.Context{TeamID: &teamID}); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		return tx.DeleteTeam(ctx, teamID)
	})
}

// AddTeamMember adds a user to a team and cascades a contributor membership
// into every project the team owns, unless the user already has one.
func (s *Service) AddTeamMember(ctx context.Context, actor, teamID, targetID uuid.UUID, roleID *uuid.UUID) (*models.TeamMembership, error) {
	if err := s.require(ctx, actor, rbac.ActionAddTeamMember, rbac.Context{TeamID: &teamID}); err != nil {
		return nil, err
	}
	if err := s.defaultsReady(); err != nil {
		return nil, err
	}
	resolved, err := s.resolveRole(ctx, roleID, models.ScopeTeam, s.defaults.TeamMember)
	if err != nil {
		return nil, err
	}
	if resolved == s.defaults.TeamManager.ID {
		return nil, faultf(KindInvalidRole, "the manager role is assigned through a transfer, not on join")
	}
	var added *models.TeamMembership
	err = s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		if user, err := tx.GetUser(ctx, targetID); err != nil {
			return err
		} else if user == nil {
			return faultf(KindNotFound, "user not found")
		}
		existing, err := tx.GetTeamMembership(ctx, targetID, teamID)
		if err != nil {
			return err
		}
		if existing != nil {
			return faultf(KindAlreadyMember, "user is already a member of this team")
		}
		m := models.TeamMembership{UserID: targetID, TeamID: teamID, RoleID: resolved}
		if err := tx.InsertTeamMembership(ctx, m); err != nil {
			return err
		}
		projects, err := tx.ListTeamProjects(ctx, teamID)
		if err != nil {
			return err
		}
		for _, p := range projects {
			pm, err := tx.GetProjectMembership(ctx, targetID, p.ID)
			if err != nil {
				return err
			}
			if pm != nil {
				continue
			}
			if err := tx.InsertProjectMembership(ctx, models.ProjectMembership{
				UserID: targetID, ProjectID: p.ID,
				RoleID: s.defaults.ProjectContributor.ID, Origin: models.OriginTeam,
			}); err != nil {
				return err
			}
		}
		added = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveTeamMember removes a user from a team and withdraws the project
// memberships the team cascade granted. Memberships earned independently
// (invitation, accepted request, visitor grant) survive. The current manager
// cannot be removed; the role must be transferred first.
func (s *Service) RemoveTeamMember(ctx context.Context, actor, teamID, targetID uuid.UUID) error {
	if err := s.require(ctx, actor, rbac.ActionRemoveTeamMember, rbac.Context{TeamID: &teamID}); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		if team.ManagerID == targetID {
			return faultf(KindForbidden, "the team manager must transfer the role before leaving")
		}
		m, err := tx.GetTeamMembership(ctx, targetID, teamID)
		if err != nil {
			return err
		}
		if m == nil {
			return faultf(KindNotFound, "user is not a member of this team")
		}
		projects, err := tx.ListTeamProjects(ctx, teamID)
		if err != nil {
			return err
		}
		for _, p := range projects {
			if _, err := tx.DeleteCascadedMembership(ctx, targetID, p.ID); err != nil {
				return err
			}
		}
		return tx.DeleteTeamMembership(ctx, targetID, teamID)
	})
}

// ChangeTeamMemberRole reassigns a member's team role. Promoting to manager
// demotes every other manager and updates the team's manager pointer in the
// same transaction; demoting the current manager directly is refused.
func (s *Service) ChangeTeamMemberRole(ctx context.Context, actor, teamID, targetID, roleID uuid.UUID) error {
	if err := s.require(ctx, actor, rbac.ActionAssignTeamRole, rbac.Context{TeamID: &teamID}); err != nil {
		return err
	}
	if err := s.defaultsReady(); err != nil {
		return err
	}
	role, err := s.catalog.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role == nil || role.Scope != models.ScopeTeam {
		return faultf(KindInvalidRole, "role is not a team-scope role")
	}
	var pending []models.Notification
	err = s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		m, err := tx.GetTeamMembership(ctx, targetID, teamID)
		if err != nil {
			return err
		}
		if m == nil {
			return faultf(KindNotFound, "user is not a member of this team")
		}
		if role.ID == s.defaults.TeamManager.ID {
			if team.ManagerID == targetID {
				return faultf(KindAlreadyManager, "user already manages this team")
			}
			if err := s.transferManager(ctx, tx, teamID, targetID); err != nil {
				return err
			}
		} else {
			if team.ManagerID == targetID {
				return faultf(KindForbidden, "promote another member to manager before demoting the current one")
			}
			if err := tx.UpdateTeamMembershipRole(ctx, targetID, teamID, role.ID); err != nil {
				return err
			}
		}
		n, err := tx.InsertNotification(ctx, targetID, fmt.Sprintf("Your role in team %q is now %s.", team.Name, role.Name))
		if err != nil {
			return err
		}
		pending = append(pending, *n)
		return nil
	})
	if err != nil {
		return err
	}
	s.deliver(ctx, pending)
	return nil
}

// transferManager makes target the team's sole manager: every other manager
// membership drops to plain member, target's membership becomes manager, and
// the team row's manager pointer follows. Caller holds the team lock.
func (s *Service) transferManager(ctx context.Context, tx Store, teamID, targetID uuid.UUID) error {
	members, err := tx.ListTeamMemberships(ctx, teamID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.RoleID == s.defaults.TeamManager.ID && m.UserID != targetID {
			if err := tx.UpdateTeamMembershipRole(ctx, m.UserID, teamID, s.defaults.TeamMember.ID); err != nil {
				return err
			}
		}
	}
	if err := tx.UpdateTeamMembershipRole(ctx, targetID, teamID, s.defaults.TeamManager.ID); err != nil {
		return err
	}
	return tx.SetTeamManager(ctx, teamID, targetID)
}

// CreateProject creates a team-owned project and enrolls the whole team: the
// manager as Project Owner, everyone else as Project Contributor. The owner
// membership is recorded as directly earned so later team cascades never
// strip the last owner.
func (s *Service) CreateProject(ctx context.Context, actor, teamID uuid.UUID, name, description string) (*models.Project, error) {
	if err := s.require(ctx, actor, rbac.ActionCreateProject, rbac.Context{TeamID: &teamID}); err != nil {
		return nil, err
	}
	if err := s.defaultsReady(); err != nil {
		return nil, err
	}
	var created *models.Project
	err := s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.LockTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		project, err := tx.InsertProject(ctx, models.Project{
			Name: name, Description: description,
			OwnerID: team.ManagerID, OwnerTeamID: &team.ID,
		})
		if err != nil {
			return err
		}
		members, err := tx.ListTeamMemberships(ctx, teamID)
		if err != nil {
			return err
		}
		for _, m := range members {
			pm := models.ProjectMembership{
				UserID: m.UserID, ProjectID: project.ID,
				RoleID: s.defaults.ProjectContributor.ID, Origin: models.OriginTeam,
			}
			if m.UserID == team.ManagerID {
				pm.RoleID = s.defaults.ProjectOwner.ID
				pm.Origin = models.OriginDirect
			}
			if err := tx.InsertProjectMembership(ctx, pm); err != nil {
				return err
			}
		}
		created = project
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("project created",
		zap.String("project_id", created.ID.String()),
		zap.String("team_id", teamID.String()))
	return created, nil
}

// AddProjectMember adds a user straight onto a project.
func (s *Service) AddProjectMember(ctx context.Context, actor, projectID, targetID uuid.UUID, roleID *uuid.UUID) (*models.ProjectMembership, error) {
	if err := s.require(ctx, actor, rbac.ActionAddRemoveMembers, rbac.Context{ProjectID: &projectID}); err != nil {
		return nil, err
	}
	if err := s.defaultsReady(); err != nil {
		return nil, err
	}
	resolved, err := s.resolveRole(ctx, roleID, models.ScopeProject, s.defaults.ProjectContributor)
	if err != nil {
		return nil, err
	}
	var added *models.ProjectMembership
	var pending []models.Notification
	err = s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		if user, err := tx.GetUser(ctx, targetID); err != nil {
			return err
		} else if user == nil {
			return faultf(KindNotFound, "user not found")
		}
		existing, err := tx.GetProjectMembership(ctx, targetID, projectID)
		if err != nil {
			return err
		}
		if existing != nil {
			return faultf(KindAlreadyMember, "user is already a member of this project")
		}
		m := models.ProjectMembership{
			UserID: targetID, ProjectID: projectID,
			RoleID: resolved, Origin: models.OriginDirect,
		}
		if err := tx.InsertProjectMembership(ctx, m); err != nil {
			return err
		}
		n, err := tx.InsertNotification(ctx, targetID,
			fmt.Sprintf("You have been added to project %q.", project.Name))
		if err != nil {
			return err
		}
		pending = append(pending, *n)
		added = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, pending)
	return added, nil
}

// RemoveProjectMember removes a project membership. Removing the only
// remaining Project Owner is refused and leaves the project untouched.
func (s *Service) RemoveProjectMember(ctx context.Context, actor, projectID, targetID uuid.UUID) error {
	if err := s.require(ctx, actor, rbac.ActionAddRemoveMembers, rbac.Context{ProjectID: &projectID}); err != nil {
		return err
	}
	if err := s.defaultsReady(); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		m, err := tx.GetProjectMembership(ctx, targetID, projectID)
		if err != nil {
			return err
		}
		if m == nil {
			return faultf(KindNotFound, "user is not a member of this project")
		}
		if m.RoleID == s.defaults.ProjectOwner.ID {
			owners, err := tx.CountProjectMembersWithRole(ctx, projectID, s.defaults.ProjectOwner.ID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return faultf(KindLastOwner, "a project must keep at least one owner")
			}
		}
		return tx.DeleteProjectMembership(ctx, targetID, projectID)
	})
}

// ChangeProjectMemberRole reassigns a member's project role. Demoting the
// only remaining owner is refused.
func (s *Service) ChangeProjectMemberRole(ctx context.Context, actor, projectID, targetID, roleID uuid.UUID) error {
	if err := s.require(ctx, actor, rbac.ActionAssignProjectRole, rbac.Context{ProjectID: &projectID}); err != nil {
		return err
	}
	if err := s.defaultsReady(); err != nil {
		return err
	}
	role, err := s.catalog.RoleByID(ctx, roleID)
	if err != nil {
		return err
	}
	if role == nil || role.Scope != models.ScopeProject {
		return faultf(KindInvalidRole, "role is not a project-scope role")
	}
	var pending []models.Notification
	err = s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		m, err := tx.GetProjectMembership(ctx, targetID, projectID)
		if err != nil {
			return err
		}
		if m == nil {
			return faultf(KindNotFound, "user is not a member of this project")
		}
		if m.RoleID == role.ID {
			return nil
		}
		if role.ID == s.defaults.ProjectOwner.ID {
			// Promotion to owner transfers the role: prior owners drop to
			// contributor and the owner pointer moves to the target.
			members, err := tx.ListProjectMemberships(ctx, projectID)
			if err != nil {
				return err
			}
			for _, pm := range members {
				if pm.RoleID == s.defaults.ProjectOwner.ID && pm.UserID != targetID {
					if err := tx.UpdateProjectMembershipRole(ctx, pm.UserID, projectID, s.defaults.ProjectContributor.ID); err != nil {
						return err
					}
				}
			}
			// An owner's membership counts as independently earned from
			// here on; a later team cascade removal must not take it.
			if m.Origin != models.OriginDirect {
				if err := tx.SetProjectMembershipOrigin(ctx, targetID, projectID, models.OriginDirect); err != nil {
					return err
				}
			}
			if err := tx.SetProjectOwner(ctx, projectID, targetID); err != nil {
				return err
			}
		} else if m.RoleID == s.defaults.ProjectOwner.ID {
			owners, err := tx.CountProjectMembersWithRole(ctx, projectID, s.defaults.ProjectOwner.ID)
			if err != nil {
				return err
			}
			if owners <= 1 {
				return faultf(KindLastOwner, "a project must keep at least one owner")
			}
		}
		if err := tx.UpdateProjectMembershipRole(ctx, targetID, projectID, role.ID); err != nil {
			return err
		}
		n, err := tx.InsertNotification(ctx, targetID,
			fmt.Sprintf("Your role in project %q is now %s.", project.Name, role.Name))
		if err != nil {
			return err
		}
		pending = append(pending, *n)
		return nil
	})
	if err != nil {
		return err
	}
	s.deliver(ctx, pending)
	return nil
}

// TransferProjectOwnership makes target the project's primary owner: the
// project's owner pointer moves, target's membership becomes Owner, and the
// previous primary owner drops to Contributor. Other owners are untouched.
func (s *Service) TransferProjectOwnership(ctx context.Context, actor, projectID, targetID uuid.UUID) error {
	if err := s.require(ctx, actor, rbac.ActionManageProject, rbac.Context{ProjectID: &projectID}); err != nil {
		return err
	}
	if err := s.defaultsReady(); err != nil {
		return err
	}
	var pending []models.Notification
	err := s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		if project.OwnerID == targetID {
			return faultf(KindDuplicate, "user already owns this project")
		}
		m, err := tx.GetProjectMembership(ctx, targetID, projectID)
		if err != nil {
			return err
		}
		if m == nil {
			return faultf(KindNotFound, "new owner must already be a project member")
		}
		if err := tx.UpdateProjectMembershipRole(ctx, targetID, projectID, s.defaults.ProjectOwner.ID); err != nil {
			return err
		}
		if m.Origin != models.OriginDirect {
			if err := tx.SetProjectMembershipOrigin(ctx, targetID, projectID, models.OriginDirect); err != nil {
				return err
			}
		}
		prev, err := tx.GetProjectMembership(ctx, project.OwnerID, projectID)
		if err != nil {
			return err
		}
		if prev != nil && prev.RoleID == s.defaults.ProjectOwner.ID {
			if err := tx.UpdateProjectMembershipRole(ctx, project.OwnerID, projectID, s.defaults.ProjectContributor.ID); err != nil {
				return err
			}
		}
		if err := tx.SetProjectOwner(ctx, projectID, targetID); err != nil {
			return err
		}
		n, err := tx.InsertNotification(ctx, targetID,
			fmt.Sprintf("You are now the owner of project %q.", project.Name))
		if err != nil {
			return err
		}
		pending = append(pending, *n)
		return nil
	})
	if err != nil {
		return err
	}
	s.deliver(ctx, pending)
	return nil
}

// RequestToJoin files a pending request by the actor to join a project. Any
// authenticated user may file one; no permission is checked. Project owners
// are notified.
func (s *Service) RequestToJoin(ctx context.Context, actor, projectID uuid.UUID) (*models.JoinRequest, error) {
	if err := s.defaultsReady(); err != nil {
		return nil, err
	}
	var created *models.JoinRequest
	var pending []models.Notification
	err := s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		actorRow, err := tx.GetUser(ctx, actor)
		if err != nil {
			return err
		}
		if actorRow == nil {
			return rbac.ErrUnauthenticated
		}
		if m, err := tx.GetProjectMembership(ctx, actor, projectID); err != nil {
			return err
		} else if m != nil {
			return faultf(KindAlreadyMember, "you are already a member of this project")
		}
		if existing, err := tx.FindPendingJoinRequest(ctx, projectID, actor, models.JoinTypeRequest); err != nil {
			return err
		} else if existing != nil {
			return faultf(KindDuplicate, "a request to join this project is already pending")
		}
		req, err := tx.InsertJoinRequest(ctx, models.JoinRequest{
			ProjectID: projectID, UserID: actor,
			Type: models.JoinTypeRequest, Status: models.StatusPending,
		})
		if err != nil {
			return err
		}
		created = req
		msg := fmt.Sprintf("%s requested to join project %q.", actorRow.Username, project.Name)
		notes, err := s.notifyOwners(ctx, tx, projectID, msg)
		if err != nil {
			return err
		}
		pending = append(pending, notes...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, pending)
	return created, nil
}

// Invite files a pending invitation for the target user, identified by
// email. The role, if given, is held on the invitation and applied at
// acceptance; otherwise the default contributor role applies.
func (s *Service) Invite(ctx context.Context, actor, projectID uuid.UUID, targetEmail string, roleID *uuid.UUID) (*models.JoinRequest, error) {
	if err := s.require(ctx, actor, rbac.ActionAddRemoveMembers, rbac.Context{ProjectID: &projectID}); err != nil {
		return nil, err
	}
	if roleID != nil {
		role, err := s.catalog.RoleByID(ctx, *roleID)
		if err != nil {
			return nil, err
		}
		if role == nil || role.Scope != models.ScopeProject {
			return nil, faultf(KindInvalidRole, "role is not a project-scope role")
		}
	}
	var created *models.JoinRequest
	var pending []models.Notification
	err := s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		target, err := tx.GetUserByEmail(ctx, targetEmail)
		if err != nil {
			return err
		}
		if target == nil {
			return faultf(KindNotFound, "no user with that email")
		}
		if m, err := tx.GetProjectMembership(ctx, target.ID, projectID); err != nil {
			return err
		} else if m != nil {
			return faultf(KindAlreadyMember, "user is already a member of this project")
		}
		if existing, err := tx.FindPendingJoinRequest(ctx, projectID, target.ID, models.JoinTypeInvite); err != nil {
			return err
		} else if existing != nil {
			return faultf(KindDuplicate, "an invitation for this user is already pending")
		}
		req, err := tx.InsertJoinRequest(ctx, models.JoinRequest{
			ProjectID: projectID, UserID: target.ID,
			Type: models.JoinTypeInvite, RoleID: roleID, Status: models.StatusPending,
		})
		if err != nil {
			return err
		}
		created = req
		n, err := tx.InsertNotification(ctx, target.ID,
			fmt.Sprintf("You have been invited to join project %q.", project.Name))
		if err != nil {
			return err
		}
		pending = append(pending, *n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, pending)
	return created, nil
}

// ResolveJoinRequest accepts or rejects a pending request-to-join. Accepting
// when the requester became a member in the meantime still resolves the
// request without inserting a second membership.
func (s *Service) ResolveJoinRequest(ctx context.Context, actor, requestID uuid.UUID, accept bool) error {
	req, err := s.store.GetJoinRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil || req.Type != models.JoinTypeRequest {
		return faultf(KindNotFound, "join request not found")
	}
	if err := s.require(ctx, actor, rbac.ActionAddRemoveMembers, rbac.Context{ProjectID: &req.ProjectID}); err != nil {
		return err
	}
	return s.resolvePending(ctx, req.ID, models.JoinTypeRequest, accept, func(project models.Project) string {
		if accept {
			return fmt.Sprintf("Your request to join project %q was accepted.", project.Name)
		}
		return fmt.Sprintf("Your request to join project %q was declined.", project.Name)
	})
}

// ResolveInvitation lets the invited user accept or decline their own
// invitation. Resolving someone else's invitation is refused.
func (s *Service) ResolveInvitation(ctx context.Context, actor, requestID uuid.UUID, accept bool) error {
	req, err := s.store.GetJoinRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil || req.Type != models.JoinTypeInvite {
		return faultf(KindNotFound, "invitation not found")
	}
	if req.UserID != actor {
		return faultf(KindForbidden, "only the invited user can resolve this invitation")
	}
	return s.resolvePending(ctx, req.ID, models.JoinTypeInvite, accept, nil)
}

// resolvePending finishes a pending join request or invitation inside one
// transaction: re-checks pending status under the project lock, creates the
// membership on accept, and marks the row resolved. message, when non-nil,
// builds the requester notification.
func (s *Service) resolvePending(ctx context.Context, requestID uuid.UUID, typ models.JoinRequestType, accept bool, message func(models.Project) string) error {
	if err := s.defaultsReady(); err != nil {
		return err
	}
	var pending []models.Notification
	err := s.store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetJoinRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil || req.Type != typ || req.Status != models.StatusPending {
			return faultf(KindNotFound, "no pending request to resolve")
		}
		project, err := tx.LockProject(ctx, req.ProjectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		status := models.StatusRejected
		if accept {
			status = models.StatusAccepted
			m, err := tx.GetProjectMembership(ctx, req.UserID, req.ProjectID)
			if err != nil {
				return err
			}
			if m == nil {
				role := s.defaults.ProjectContributor.ID
				if req.RoleID != nil {
					role = *req.RoleID
				}
				if err := tx.InsertProjectMembership(ctx, models.ProjectMembership{
					UserID: req.UserID, ProjectID: req.ProjectID,
					RoleID: role, Origin: models.OriginDirect,
				}); err != nil {
					return err
				}
			}
		}
		if err := tx.ResolveJoinRequestStatus(ctx, req.ID, status); err != nil {
			return err
		}
		if message != nil {
			n, err := tx.InsertNotification(ctx, req.UserID, message(*project))
			if err != nil {
				return err
			}
			pending = append(pending, *n)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.deliver(ctx, pending)
	return nil
}

// RequestTeamManager files a pending bid by a team member to take over as
// manager. Non-members are refused before any row is written.
func (s *Service) RequestTeamManager(ctx context.Context, actor, teamID uuid.UUID) (*models.ManagerRequest, error) {
	var created *models.ManagerRequest
	var pending []models.Notification
	err := s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		m, err := tx.GetTeamMembership(ctx, actor, teamID)
		if err != nil {
			return err
		}
		if m == nil {
			return faultf(KindForbidden, "only team members can request the manager role")
		}
		if team.ManagerID == actor {
			return faultf(KindAlreadyManager, "you already manage this team")
		}
		if existing, err := tx.FindPendingManagerRequest(ctx, teamID, actor); err != nil {
			return err
		} else if existing != nil {
			return faultf(KindDuplicate, "a manager request for this team is already pending")
		}
		req, err := tx.InsertManagerRequest(ctx, models.ManagerRequest{
			TeamID: teamID, UserID: actor, Status: models.StatusPending,
		})
		if err != nil {
			return err
		}
		created = req
		actorRow, err := tx.GetUser(ctx, actor)
		if err != nil {
			return err
		}
		name := "A team member"
		if actorRow != nil {
			name = actorRow.Username
		}
		n, err := tx.InsertNotification(ctx, team.ManagerID,
			fmt.Sprintf("%s requested the manager role for team %q.", name, team.Name))
		if err != nil {
			return err
		}
		pending = append(pending, *n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.deliver(ctx, pending)
	return created, nil
}

// ResolveManagerRequest accepts or rejects a pending manager bid. Acceptance
// transfers the manager role atomically: the requester becomes the sole
// manager and every previous manager drops to plain member.
func (s *Service) ResolveManagerRequest(ctx context.Context, actor, requestID uuid.UUID, accept bool) error {
	req, err := s.store.GetManagerRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req == nil {
		return faultf(KindNotFound, "manager request not found")
	}
	if err := s.require(ctx, actor, rbac.ActionAssignTeamRole, rbac.Context{TeamID: &req.TeamID}); err != nil {
		return err
	}
	if err := s.defaultsReady(); err != nil {
		return err
	}
	var pending []models.Notification
	err = s.store.WithTx(ctx, func(tx Store) error {
		team, err := tx.LockTeam(ctx, req.TeamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		cur, err := tx.GetManagerRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if cur == nil || cur.Status != models.StatusPending {
			return faultf(KindNotFound, "no pending manager request to resolve")
		}
		status := models.StatusRejected
		msg := fmt.Sprintf("Your manager request for team %q was declined.", team.Name)
		if accept {
			m, err := tx.GetTeamMembership(ctx, cur.UserID, cur.TeamID)
			if err != nil {
				return err
			}
			if m == nil {
				return faultf(KindNotFound, "requester is no longer a team member")
			}
			if err := s.transferManager(ctx, tx, cur.TeamID, cur.UserID); err != nil {
				return err
			}
			status = models.StatusAccepted
			msg = fmt.Sprintf("You are now the manager of team %q.", team.Name)
		}
		if err := tx.ResolveManagerRequestStatus(ctx, cur.ID, status); err != nil {
			return err
		}
		n, err := tx.InsertNotification(ctx, cur.UserID, msg)
		if err != nil {
			return err
		}
		pending = append(pending, *n)
		return nil
	})
	if err != nil {
		return err
	}
	s.deliver(ctx, pending)
	return nil
}

// EnrollTeamInProject grants every member of the team a cascaded contributor
// membership on the project, skipping users who already belong. The team's
// manager may do this for their own team; otherwise the firm-level
// assignment permission is required. Returns the number enrolled.
func (s *Service) EnrollTeamInProject(ctx context.Context, actor, teamID, projectID uuid.UUID) (int, error) {
	if err := s.defaultsReady(); err != nil {
		return 0, err
	}
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return 0, err
	}
	if team == nil {
		return 0, faultf(KindNotFound, "team not found")
	}
	if team.ManagerID != actor {
		if err := s.require(ctx, actor, rbac.ActionAssignProjectToTeam, rbac.Context{}); err != nil {
			return 0, err
		}
	}
	var enrolled int
	err = s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		members, err := tx.ListTeamMemberships(ctx, teamID)
		if err != nil {
			return err
		}
		for _, m := range members {
			existing, err := tx.GetProjectMembership(ctx, m.UserID, projectID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			if err := tx.InsertProjectMembership(ctx, models.ProjectMembership{
				UserID: m.UserID, ProjectID: projectID,
				RoleID: s.defaults.ProjectContributor.ID, Origin: models.OriginTeam,
			}); err != nil {
				return err
			}
			enrolled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return enrolled, nil
}

// WithdrawTeamFromProject removes the cascaded memberships of the team's
// members from the project. Memberships earned independently survive.
// Returns the number removed.
func (s *Service) WithdrawTeamFromProject(ctx context.Context, actor, teamID, projectID uuid.UUID) (int, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return 0, err
	}
	if team == nil {
		return 0, faultf(KindNotFound, "team not found")
	}
	if team.ManagerID != actor {
		if err := s.require(ctx, actor, rbac.ActionAssignProjectToTeam, rbac.Context{}); err != nil {
			return 0, err
		}
	}
	var removed int
	err = s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		members, err := tx.ListTeamMemberships(ctx, teamID)
		if err != nil {
			return err
		}
		for _, m := range members {
			gone, err := tx.DeleteCascadedMembership(ctx, m.UserID, projectID)
			if err != nil {
				return err
			}
			if gone {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// GrantVisitorTeam gives every member of the team a visitor membership on
// the project, skipping users who already belong. Idempotent: a second call
// grants zero. Returns the number granted.
func (s *Service) GrantVisitorTeam(ctx context.Context, actor, projectID, teamID uuid.UUID) (int, error) {
	if err := s.require(ctx, actor, rbac.ActionAssignProjectRole, rbac.Context{ProjectID: &projectID}); err != nil {
		return 0, err
	}
	if err := s.defaultsReady(); err != nil {
		return 0, err
	}
	var granted int
	err := s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		team, err := tx.GetTeam(ctx, teamID)
		if err != nil {
			return err
		}
		if team == nil {
			return faultf(KindNotFound, "team not found")
		}
		members, err := tx.ListTeamMemberships(ctx, teamID)
		if err != nil {
			return err
		}
		for _, m := range members {
			existing, err := tx.GetProjectMembership(ctx, m.UserID, projectID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			if err := tx.InsertProjectMembership(ctx, models.ProjectMembership{
				UserID: m.UserID, ProjectID: projectID,
				RoleID: s.defaults.ProjectVisitor.ID, Origin: models.OriginVisitor,
			}); err != nil {
				return err
			}
			granted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return granted, nil
}

// RevokeVisitors removes every visitor membership from the project. Returns
// the number removed.
func (s *Service) RevokeVisitors(ctx context.Context, actor, projectID uuid.UUID) (int, error) {
	if err := s.require(ctx, actor, rbac.ActionAssignProjectRole, rbac.Context{ProjectID: &projectID}); err != nil {
		return 0, err
	}
	if err := s.defaultsReady(); err != nil {
		return 0, err
	}
	var removed int
	err := s.store.WithTx(ctx, func(tx Store) error {
		project, err := tx.LockProject(ctx, projectID)
		if err != nil {
			return err
		}
		if project == nil {
			return faultf(KindNotFound, "project not found")
		}
		n, err := tx.DeleteMembershipsWithRole(ctx, projectID, s.defaults.ProjectVisitor.ID)
		if err != nil {
			return err
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// notifyOwners writes a notification for every Project Owner on the project.
func (s *Service) notifyOwners(ctx context.Context, tx Store, projectID uuid.UUID, message string) ([]models.Notification, error) {
	members, err := tx.ListProjectMemberships(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var out []models.Notification
	for _, m := range members {
		if m.RoleID != s.defaults.ProjectOwner.ID {
			continue
		}
		n, err := tx.InsertNotification(ctx, m.UserID, message)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, nil
}
