package memberships

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/models"
	"github.com/firmboard/backend/internal/rbac"
)

// fakeCatalog mirrors the seeded role/permission catalog in memory.
type fakeCatalog struct {
	roles map[uuid.UUID]models.Role
	perms map[uuid.UUID]map[string]struct{}
}

var _ rbac.Catalog = (*fakeCatalog)(nil)

func (c *fakeCatalog) ListPermissions(context.Context) ([]models.Permission, error) {
	return nil, nil
}

func (c *fakeCatalog) FindRole(_ context.Context, name string, scope models.Scope) (*models.Role, error) {
	for _, r := range c.roles {
		if r.Name == name && r.Scope == scope {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (c *fakeCatalog) RoleByID(_ context.Context, id uuid.UUID) (*models.Role, error) {
	if r, ok := c.roles[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (c *fakeCatalog) RolePermissions(_ context.Context, roleID uuid.UUID) (map[string]struct{}, error) {
	return c.perms[roleID], nil
}

func (c *fakeCatalog) RolesByScope(_ context.Context, scope models.Scope) ([]models.Role, error) {
	var list []models.Role
	for _, r := range c.roles {
		if r.Scope == scope {
			list = append(list, r)
		}
	}
	return list, nil
}

var allActions = []string{
	rbac.ActionCreateTeam, rbac.ActionDeleteTeam, rbac.ActionAddTeamMember,
	rbac.ActionRemoveTeamMember, rbac.ActionAssignTeamRole, rbac.ActionCreateProject,
	rbac.ActionDeleteProject, rbac.ActionAssignProjectRole, rbac.ActionViewTeamMembers,
	rbac.ActionViewProject, rbac.ActionEditProject, rbac.ActionCreateTask,
	rbac.ActionEditAnyTask, rbac.ActionEditOwnTask, rbac.ActionDeleteAnyTask,
	rbac.ActionDeleteOwnTask, rbac.ActionCommentTask, rbac.ActionViewReports,
	rbac.ActionAssignProjectToTeam, rbac.ActionViewProjectSettings,
	rbac.ActionManageProject, rbac.ActionViewTasks, rbac.ActionAddRemoveMembers,
}

func actionSet(actions ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return set
}

// captureNotifier records delivered notifications for assertions.
type captureNotifier struct {
	delivered []models.Notification
}

func (c *captureNotifier) Deliver(_ context.Context, n models.Notification) {
	c.delivered = append(c.delivered, n)
}

type fixture struct {
	t        *testing.T
	store    *memStore
	catalog  *fakeCatalog
	defaults *rbac.Defaults
	notifier *captureNotifier
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mk := func(name string, scope models.Scope) models.Role {
		return models.Role{ID: uuid.New(), Name: name, Scope: scope}
	}
	d := &rbac.Defaults{
		FirmAdmin:          mk(models.RoleFirmAdmin, models.ScopeFirm),
		TeamManager:        mk(models.RoleTeamManager, models.ScopeTeam),
		TeamMember:         mk(models.RoleTeamMember, models.ScopeTeam),
		ProjectOwner:       mk(models.RoleProjectOwner, models.ScopeProject),
		ProjectContributor: mk(models.RoleProjectContributor, models.ScopeProject),
		ProjectVisitor:     mk(models.RoleProjectVisitor, models.ScopeProject),
	}
	catalog := &fakeCatalog{
		roles: map[uuid.UUID]models.Role{
			d.FirmAdmin.ID:          d.FirmAdmin,
			d.TeamManager.ID:        d.TeamManager,
			d.TeamMember.ID:         d.TeamMember,
			d.ProjectOwner.ID:       d.ProjectOwner,
			d.ProjectContributor.ID: d.ProjectContributor,
			d.ProjectVisitor.ID:     d.ProjectVisitor,
		},
		perms: map[uuid.UUID]map[string]struct{}{
			d.FirmAdmin.ID: actionSet(allActions...),
			d.TeamManager.ID: actionSet(rbac.ActionAddTeamMember, rbac.ActionRemoveTeamMember,
				rbac.ActionAssignTeamRole, rbac.ActionViewTeamMembers),
			d.TeamMember.ID: actionSet(rbac.ActionViewTeamMembers),
			d.ProjectOwner.ID: actionSet(rbac.ActionViewProject, rbac.ActionEditProject,
				rbac.ActionCreateTask, rbac.ActionEditAnyTask, rbac.ActionDeleteAnyTask,
				rbac.ActionCommentTask, rbac.ActionViewReports, rbac.ActionViewProjectSettings,
				rbac.ActionManageProject, rbac.ActionViewTasks, rbac.ActionAssignProjectRole,
				rbac.ActionAddRemoveMembers, rbac.ActionDeleteProject),
			d.ProjectContributor.ID: actionSet(rbac.ActionViewProject, rbac.ActionCreateTask,
				rbac.ActionEditOwnTask, rbac.ActionDeleteOwnTask, rbac.ActionCommentTask,
				rbac.ActionViewProjectSettings, rbac.ActionViewTasks),
			d.ProjectVisitor.ID: actionSet(rbac.ActionViewProject, rbac.ActionViewTasks,
				rbac.ActionViewProjectSettings, rbac.ActionViewReports),
		},
	}
	store := newMemStore()
	engine := rbac.NewEngine(catalog, store, zap.NewNop())
	notifier := &captureNotifier{}
	return &fixture{
		t:        t,
		store:    store,
		catalog:  catalog,
		defaults: d,
		notifier: notifier,
		svc:      NewService(store, engine, catalog, d, notifier, zap.NewNop()),
	}
}

func (f *fixture) user(name string) uuid.UUID {
	id := uuid.New()
	f.store.users[id] = models.User{ID: id, Username: name, Email: name + "@example.com"}
	return id
}

func (f *fixture) admin(name string) uuid.UUID {
	id := f.user(name)
	f.store.firmRoles[id] = []uuid.UUID{f.defaults.FirmAdmin.ID}
	return id
}

// seedTeam arranges a team directly in the store: first id is the manager,
// the rest plain members.
func (f *fixture) seedTeam(name string, manager uuid.UUID, members ...uuid.UUID) *models.Team {
	f.t.Helper()
	ctx := context.Background()
	team, err := f.store.InsertTeam(ctx, models.Team{Name: name, ManagerID: manager})
	require.NoError(f.t, err)
	require.NoError(f.t, f.store.InsertTeamMembership(ctx, models.TeamMembership{
		UserID: manager, TeamID: team.ID, RoleID: f.defaults.TeamManager.ID,
	}))
	for _, m := range members {
		require.NoError(f.t, f.store.InsertTeamMembership(ctx, models.TeamMembership{
			UserID: m, TeamID: team.ID, RoleID: f.defaults.TeamMember.ID,
		}))
	}
	return team
}

func (f *fixture) managerCount(teamID uuid.UUID) int {
	n := 0
	for k, m := range f.store.teamMembers {
		if k.scope == teamID && m.RoleID == f.defaults.TeamManager.ID {
			n++
		}
	}
	return n
}

func (f *fixture) ownerCount(projectID uuid.UUID) int {
	n := 0
	for k, m := range f.store.projMembers {
		if k.scope == projectID && m.RoleID == f.defaults.ProjectOwner.ID {
			n++
		}
	}
	return n
}

func requireFault(t *testing.T, err error, kind Kind) {
	t.Helper()
	f, ok := AsFault(err)
	require.True(t, ok, "expected a Fault, got %v", err)
	require.Equal(t, kind, f.Kind)
}

func TestAddTeamMemberCascadesIntoTeamProjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	dave := f.user("dave")
	team := f.seedTeam("Alpha", mallory)

	p1, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)
	p2, err := f.svc.CreateProject(ctx, admin, team.ID, "Y", "")
	require.NoError(t, err)

	_, err = f.svc.AddTeamMember(ctx, mallory, team.ID, dave, nil)
	require.NoError(t, err)

	for _, p := range []*models.Project{p1, p2} {
		m, err := f.store.GetProjectMembership(ctx, dave, p.ID)
		require.NoError(t, err)
		require.NotNil(t, m, "dave should be enrolled in %s", p.Name)
		assert.Equal(t, f.defaults.ProjectContributor.ID, m.RoleID)
		assert.Equal(t, models.OriginTeam, m.Origin)
	}

	_, err = f.svc.AddTeamMember(ctx, mallory, team.ID, dave, nil)
	requireFault(t, err, KindAlreadyMember)
}

func TestRemoveTeamMemberKeepsIndependentMemberships(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	dave := f.user("dave")
	team := f.seedTeam("Alpha", mallory)
	other := f.seedTeam("Beta", f.user("bea"))

	cascaded, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)
	independent, err := f.svc.CreateProject(ctx, admin, other.ID, "Z", "")
	require.NoError(t, err)

	_, err = f.svc.AddTeamMember(ctx, mallory, team.ID, dave, nil)
	require.NoError(t, err)
	// Visitor membership on an unrelated project, earned independently.
	require.NoError(t, f.store.InsertProjectMembership(ctx, models.ProjectMembership{
		UserID: dave, ProjectID: independent.ID,
		RoleID: f.defaults.ProjectVisitor.ID, Origin: models.OriginVisitor,
	}))

	require.NoError(t, f.svc.RemoveTeamMember(ctx, mallory, team.ID, dave))

	gone, err := f.store.GetProjectMembership(ctx, dave, cascaded.ID)
	require.NoError(t, err)
	assert.Nil(t, gone, "cascaded membership should be removed")
	kept, err := f.store.GetProjectMembership(ctx, dave, independent.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept, "independent visitor membership should survive")
	tm, err := f.store.GetTeamMembership(ctx, dave, team.ID)
	require.NoError(t, err)
	assert.Nil(t, tm)
}

func TestRemoveTeamManagerRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	team := f.seedTeam("Alpha", mallory)

	err := f.svc.RemoveTeamMember(ctx, admin, team.ID, mallory)
	requireFault(t, err, KindForbidden)

	m, err := f.store.GetTeamMembership(ctx, mallory, team.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestManagerPromotionSwapsManagerAtomically(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mallory := f.user("mallory")
	bob := f.user("bob")
	team := f.seedTeam("Alpha", mallory, bob)

	require.NoError(t, f.svc.ChangeTeamMemberRole(ctx, mallory, team.ID, bob, f.defaults.TeamManager.ID))

	got, err := f.store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.ManagerID)
	assert.Equal(t, 1, f.managerCount(team.ID), "exactly one manager membership")

	old, err := f.store.GetTeamMembership(ctx, mallory, team.ID)
	require.NoError(t, err)
	assert.Equal(t, f.defaults.TeamMember.ID, old.RoleID)

	// Promoting the sitting manager again is a conflict.
	err = f.svc.ChangeTeamMemberRole(ctx, bob, team.ID, bob, f.defaults.TeamManager.ID)
	requireFault(t, err, KindAlreadyManager)
	// Demoting the sitting manager without a replacement is refused.
	err = f.svc.ChangeTeamMemberRole(ctx, bob, team.ID, bob, f.defaults.TeamMember.ID)
	requireFault(t, err, KindForbidden)
	assert.Equal(t, 1, f.managerCount(team.ID))
}

func TestSingleManagerInvariantUnderTransferSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	users := []uuid.UUID{f.user("u0"), f.user("u1"), f.user("u2"), f.user("u3")}
	team := f.seedTeam("Alpha", users[0], users[1], users[2], users[3])

	for i := 0; i < 10; i++ {
		target := users[(i+1)%len(users)]
		cur, err := f.store.GetTeam(ctx, team.ID)
		require.NoError(t, err)
		if cur.ManagerID == target {
			continue
		}
		require.NoError(t, f.svc.ChangeTeamMemberRole(ctx, cur.ManagerID, team.ID, target, f.defaults.TeamManager.ID))
		require.Equal(t, 1, f.managerCount(team.ID), "iteration %d", i)
		after, err := f.store.GetTeam(ctx, team.ID)
		require.NoError(t, err)
		m, err := f.store.GetTeamMembership(ctx, after.ManagerID, team.ID)
		require.NoError(t, err)
		require.NotNil(t, m)
		require.Equal(t, f.defaults.TeamManager.ID, m.RoleID, "manager pointer must match the manager membership")
	}
}

func TestLastOwnerGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	bob := f.user("bob")
	team := f.seedTeam("Alpha", mallory, bob)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)

	err = f.svc.RemoveProjectMember(ctx, admin, project.ID, mallory)
	requireFault(t, err, KindLastOwner)
	m, err := f.store.GetProjectMembership(ctx, mallory, project.ID)
	require.NoError(t, err)
	require.NotNil(t, m, "refusal must leave the membership in place")
	assert.Equal(t, f.defaults.ProjectOwner.ID, m.RoleID)

	err = f.svc.ChangeProjectMemberRole(ctx, admin, project.ID, mallory, f.defaults.ProjectContributor.ID)
	requireFault(t, err, KindLastOwner)
	assert.Equal(t, 1, f.ownerCount(project.ID))
}

func TestOwnerPromotionDemotesPriorOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	bob := f.user("bob")
	team := f.seedTeam("Alpha", mallory, bob)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.ChangeProjectMemberRole(ctx, admin, project.ID, bob, f.defaults.ProjectOwner.ID))

	assert.Equal(t, 1, f.ownerCount(project.ID))
	newOwner, err := f.store.GetProjectMembership(ctx, bob, project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.defaults.ProjectOwner.ID, newOwner.RoleID)
	prior, err := f.store.GetProjectMembership(ctx, mallory, project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.defaults.ProjectContributor.ID, prior.RoleID)

	// The owner pointer follows the role.
	reloaded, err := f.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, reloaded.OwnerID)
}

func TestPromotedOwnerSurvivesTeamRemoval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	bob := f.user("bob")
	team := f.seedTeam("Alpha", mallory, bob)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)

	// bob joined the project through the team cascade. Promotion to owner
	// makes the membership independently earned.
	require.NoError(t, f.svc.ChangeProjectMemberRole(ctx, admin, project.ID, bob, f.defaults.ProjectOwner.ID))
	promoted, err := f.store.GetProjectMembership(ctx, bob, project.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OriginDirect, promoted.Origin)

	require.NoError(t, f.svc.RemoveTeamMember(ctx, admin, team.ID, bob))

	kept, err := f.store.GetProjectMembership(ctx, bob, project.ID)
	require.NoError(t, err)
	require.NotNil(t, kept, "owner membership must survive the team cascade")
	assert.Equal(t, f.defaults.ProjectOwner.ID, kept.RoleID)
	assert.Equal(t, 1, f.ownerCount(project.ID))
	reloaded, err := f.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, reloaded.OwnerID)
}

func TestTransferredOwnerSurvivesTeamWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	bob := f.user("bob")
	carol := f.user("carol")
	team := f.seedTeam("Alpha", mallory, bob, carol)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.TransferProjectOwnership(ctx, admin, project.ID, bob))

	// mallory's membership was earned at creation and bob's through the
	// transfer; only carol's cascaded row is removable.
	removed, err := f.svc.WithdrawTeamFromProject(ctx, admin, team.ID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	kept, err := f.store.GetProjectMembership(ctx, bob, project.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, f.defaults.ProjectOwner.ID, kept.RoleID)
	assert.Equal(t, 1, f.ownerCount(project.ID))
	gone, err := f.store.GetProjectMembership(ctx, carol, project.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTransferProjectOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	bob := f.user("bob")
	team := f.seedTeam("Alpha", mallory, bob)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)

	require.NoError(t, f.svc.TransferProjectOwnership(ctx, mallory, project.ID, bob))

	got, err := f.store.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.OwnerID)
	m, err := f.store.GetProjectMembership(ctx, bob, project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.defaults.ProjectOwner.ID, m.RoleID)
	prev, err := f.store.GetProjectMembership(ctx, mallory, project.ID)
	require.NoError(t, err)
	assert.Equal(t, f.defaults.ProjectContributor.ID, prev.RoleID)

	err = f.svc.TransferProjectOwnership(ctx, bob, project.ID, f.user("stranger"))
	requireFault(t, err, KindNotFound)
}

func TestBulkGrantVisitorsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	team := f.seedTeam("Alpha", mallory)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)
	visitors := f.seedTeam("Watchers", f.user("vera"), f.user("vince"), f.user("val"))

	granted, err := f.svc.GrantVisitorTeam(ctx, admin, project.ID, visitors.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, granted)

	granted, err = f.svc.GrantVisitorTeam(ctx, admin, project.ID, visitors.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, granted, "second grant adds nobody")

	removed, err := f.svc.RevokeVisitors(ctx, admin, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	// Non-visitor memberships are untouched by the revoke.
	m, err := f.store.GetProjectMembership(ctx, mallory, project.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
}

func TestRequestTeamManagerRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mallory := f.user("mallory")
	bob := f.user("bob")
	carol := f.user("carol")
	team := f.seedTeam("Beta", mallory, bob)

	_, err := f.svc.RequestTeamManager(ctx, carol, team.ID)
	requireFault(t, err, KindForbidden)
	assert.Empty(t, f.store.mgrReqs, "no request row for a non-member")

	_, err = f.svc.RequestTeamManager(ctx, mallory, team.ID)
	requireFault(t, err, KindAlreadyManager)

	req, err := f.svc.RequestTeamManager(ctx, bob, team.ID)
	require.NoError(t, err)
	require.NotNil(t, req)
	_, err = f.svc.RequestTeamManager(ctx, bob, team.ID)
	requireFault(t, err, KindDuplicate)
}

func TestResolveManagerRequestTransfers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mallory := f.user("mallory")
	bob := f.user("bob")
	team := f.seedTeam("Alpha", mallory, bob)

	req, err := f.svc.RequestTeamManager(ctx, bob, team.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.ResolveManagerRequest(ctx, mallory, req.ID, true))

	got, err := f.store.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.ManagerID)
	assert.Equal(t, 1, f.managerCount(team.ID))

	stored, err := f.store.GetManagerRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)

	// Resolving again finds nothing pending.
	err = f.svc.ResolveManagerRequest(ctx, bob, req.ID, true)
	requireFault(t, err, KindNotFound)
}

func TestJoinRequestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	dave := f.user("dave")
	team := f.seedTeam("Alpha", mallory)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)

	req, err := f.svc.RequestToJoin(ctx, dave, project.ID)
	require.NoError(t, err)
	require.NotNil(t, req)
	// The project owner learns about the request.
	require.NotEmpty(t, f.notifier.delivered)
	assert.Equal(t, mallory, f.notifier.delivered[0].UserID)

	_, err = f.svc.RequestToJoin(ctx, dave, project.ID)
	requireFault(t, err, KindDuplicate)

	require.NoError(t, f.svc.ResolveJoinRequest(ctx, mallory, req.ID, true))
	m, err := f.store.GetProjectMembership(ctx, dave, project.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, f.defaults.ProjectContributor.ID, m.RoleID)
	assert.Equal(t, models.OriginDirect, m.Origin)

	_, err = f.svc.RequestToJoin(ctx, dave, project.ID)
	requireFault(t, err, KindAlreadyMember)
	err = f.svc.ResolveJoinRequest(ctx, mallory, req.ID, true)
	requireFault(t, err, KindNotFound)
}

func TestInvitationLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	dave := f.user("dave")
	team := f.seedTeam("Alpha", mallory)
	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)

	visitorRole := f.defaults.ProjectVisitor.ID
	inv, err := f.svc.Invite(ctx, mallory, project.ID, "dave@example.com", &visitorRole)
	require.NoError(t, err)

	_, err = f.svc.Invite(ctx, mallory, project.ID, "dave@example.com", nil)
	requireFault(t, err, KindDuplicate)
	_, err = f.svc.Invite(ctx, mallory, project.ID, "nobody@example.com", nil)
	requireFault(t, err, KindNotFound)

	// Only the invited user can resolve it.
	err = f.svc.ResolveInvitation(ctx, mallory, inv.ID, true)
	requireFault(t, err, KindForbidden)

	require.NoError(t, f.svc.ResolveInvitation(ctx, dave, inv.ID, true))
	m, err := f.store.GetProjectMembership(ctx, dave, project.ID)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, visitorRole, m.RoleID, "invitation role applies at acceptance")
	assert.Equal(t, models.OriginDirect, m.Origin)
}

func TestMutationsAreAuthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mallory := f.user("mallory")
	bob := f.user("bob")
	eve := f.user("eve")
	team := f.seedTeam("Alpha", mallory, bob)

	// A plain member cannot add others.
	_, err := f.svc.AddTeamMember(ctx, bob, team.ID, eve, nil)
	requireFault(t, err, KindForbidden)

	// An id that resolves to no user is unauthenticated, not forbidden.
	_, err = f.svc.AddTeamMember(ctx, uuid.New(), team.ID, eve, nil)
	require.ErrorIs(t, err, rbac.ErrUnauthenticated)
}

func TestTeamProjectEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")

	team, err := f.svc.CreateTeam(ctx, admin, "Alpha", "")
	require.NoError(t, err)
	assert.Equal(t, admin, team.ManagerID)

	bob := f.user("bob")
	_, err = f.svc.AddTeamMember(ctx, admin, team.ID, bob, nil)
	require.NoError(t, err)
	tm, err := f.store.GetTeamMembership(ctx, bob, team.ID)
	require.NoError(t, err)
	assert.Equal(t, f.defaults.TeamMember.ID, tm.RoleID)

	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)
	ownerM, err := f.store.GetProjectMembership(ctx, admin, project.ID)
	require.NoError(t, err)
	require.NotNil(t, ownerM)
	assert.Equal(t, f.defaults.ProjectOwner.ID, ownerM.RoleID)
	bobM, err := f.store.GetProjectMembership(ctx, bob, project.ID)
	require.NoError(t, err)
	require.NotNil(t, bobM)
	assert.Equal(t, f.defaults.ProjectContributor.ID, bobM.RoleID)

	err = f.svc.RemoveProjectMember(ctx, admin, project.ID, admin)
	requireFault(t, err, KindLastOwner)
	still, err := f.store.GetProjectMembership(ctx, admin, project.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
	assert.Equal(t, f.defaults.ProjectOwner.ID, still.RoleID)
}

func TestEnrollAndWithdrawTeam(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	bob := f.user("bob")
	team := f.seedTeam("Alpha", mallory, bob)
	other := f.seedTeam("Beta", f.user("bea"))
	project, err := f.svc.CreateProject(ctx, admin, other.ID, "Z", "")
	require.NoError(t, err)

	// The team's own manager may enroll their team.
	enrolled, err := f.svc.EnrollTeamInProject(ctx, mallory, team.ID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, enrolled)

	enrolled, err = f.svc.EnrollTeamInProject(ctx, mallory, team.ID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, enrolled)

	// Outsiders without the firm-level permission cannot.
	_, err = f.svc.EnrollTeamInProject(ctx, bob, other.ID, project.ID)
	requireFault(t, err, KindForbidden)

	removed, err := f.svc.WithdrawTeamFromProject(ctx, mallory, team.ID, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	m, err := f.store.GetProjectMembership(ctx, bob, project.ID)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestInvalidRoleAcrossScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin("root")
	mallory := f.user("mallory")
	dave := f.user("dave")
	team := f.seedTeam("Alpha", mallory)

	// A project role cannot be used for a team membership.
	projRole := f.defaults.ProjectVisitor.ID
	_, err := f.svc.AddTeamMember(ctx, admin, team.ID, dave, &projRole)
	requireFault(t, err, KindInvalidRole)

	// The manager slot is not assignable on join.
	mgrRole := f.defaults.TeamManager.ID
	_, err = f.svc.AddTeamMember(ctx, admin, team.ID, dave, &mgrRole)
	requireFault(t, err, KindInvalidRole)

	project, err := f.svc.CreateProject(ctx, admin, team.ID, "X", "")
	require.NoError(t, err)
	teamRole := f.defaults.TeamMember.ID
	err = f.svc.ChangeProjectMemberRole(ctx, admin, project.ID, mallory, teamRole)
	requireFault(t, err, KindInvalidRole)
}
