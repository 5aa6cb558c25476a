package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/models"
)

type stubCatalog struct {
	roles map[uuid.UUID]models.Role
	perms map[uuid.UUID]map[string]struct{}
	// RolePermissions calls, to observe cache hits.
	lookups int
}

func (c *stubCatalog) ListPermissions(context.Context) ([]models.Permission, error) {
	return nil, nil
}

func (c *stubCatalog) FindRole(_ context.Context, name string, scope models.Scope) (*models.Role, error) {
	for _, r := range c.roles {
		if r.Name == name && r.Scope == scope {
			out := r
			return &out, nil
		}
	}
	return nil, nil
}

func (c *stubCatalog) RoleByID(_ context.Context, id uuid.UUID) (*models.Role, error) {
	if r, ok := c.roles[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (c *stubCatalog) RolePermissions(_ context.Context, roleID uuid.UUID) (map[string]struct{}, error) {
	c.lookups++
	return c.perms[roleID], nil
}

func (c *stubCatalog) RolesByScope(_ context.Context, scope models.Scope) ([]models.Role, error) {
	var list []models.Role
	for _, r := range c.roles {
		if r.Scope == scope {
			list = append(list, r)
		}
	}
	return list, nil
}

type stubReader struct {
	users     map[uuid.UUID]bool
	firmRoles map[uuid.UUID][]uuid.UUID
	teamRoles map[[2]uuid.UUID]uuid.UUID
	projRoles map[[2]uuid.UUID]uuid.UUID
}

func (r *stubReader) UserExists(_ context.Context, userID uuid.UUID) (bool, error) {
	return r.users[userID], nil
}

func (r *stubReader) FirmRoleIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return r.firmRoles[userID], nil
}

func (r *stubReader) TeamRoleID(_ context.Context, userID, teamID uuid.UUID) (*uuid.UUID, error) {
	if id, ok := r.teamRoles[[2]uuid.UUID{userID, teamID}]; ok {
		return &id, nil
	}
	return nil, nil
}

func (r *stubReader) ProjectRoleID(_ context.Context, userID, projectID uuid.UUID) (*uuid.UUID, error) {
	if id, ok := r.projRoles[[2]uuid.UUID{userID, projectID}]; ok {
		return &id, nil
	}
	return nil, nil
}

type engineFixture struct {
	catalog *stubCatalog
	reader  *stubReader
	engine  *Engine

	adminRole   uuid.UUID
	managerRole uuid.UUID
	memberRole  uuid.UUID
	ownerRole   uuid.UUID
	contribRole uuid.UUID
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		adminRole:   uuid.New(),
		managerRole: uuid.New(),
		memberRole:  uuid.New(),
		ownerRole:   uuid.New(),
		contribRole: uuid.New(),
	}
	set := func(actions ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			m[a] = struct{}{}
		}
		return m
	}
	f.catalog = &stubCatalog{
		roles: map[uuid.UUID]models.Role{
			f.adminRole:   {ID: f.adminRole, Name: models.RoleFirmAdmin, Scope: models.ScopeFirm},
			f.managerRole: {ID: f.managerRole, Name: models.RoleTeamManager, Scope: models.ScopeTeam},
			f.memberRole:  {ID: f.memberRole, Name: models.RoleTeamMember, Scope: models.ScopeTeam},
			f.ownerRole:   {ID: f.ownerRole, Name: models.RoleProjectOwner, Scope: models.ScopeProject},
			f.contribRole: {ID: f.contribRole, Name: models.RoleProjectContributor, Scope: models.ScopeProject},
		},
		perms: map[uuid.UUID]map[string]struct{}{
			f.adminRole:   set(ActionCreateTeam, ActionAddTeamMember, ActionEditAnyTask, ActionViewTasks),
			f.managerRole: set(ActionAddTeamMember, ActionViewTeamMembers),
			f.memberRole:  set(ActionViewTeamMembers),
			f.ownerRole:   set(ActionViewTasks, ActionEditAnyTask, ActionAddRemoveMembers),
			f.contribRole: set(ActionViewTasks, ActionEditOwnTask),
		},
	}
	f.reader = &stubReader{
		users:     map[uuid.UUID]bool{},
		firmRoles: map[uuid.UUID][]uuid.UUID{},
		teamRoles: map[[2]uuid.UUID]uuid.UUID{},
		projRoles: map[[2]uuid.UUID]uuid.UUID{},
	}
	f.engine = NewEngine(f.catalog, f.reader, zap.NewNop())
	return f
}

func (f *engineFixture) user() uuid.UUID {
	id := uuid.New()
	f.reader.users[id] = true
	return id
}

func TestAuthorizeUnknownUser(t *testing.T) {
	f := newEngineFixture()
	_, err := f.engine.Authorize(context.Background(), uuid.New(), ActionViewTasks, Context{})
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthorizeFirmOverrideIsScopeIndependent(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	admin := f.user()
	f.reader.firmRoles[admin] = []uuid.UUID{f.adminRole}

	teamID := uuid.New()
	projectID := uuid.New()
	for _, scope := range []Context{
		{},
		{TeamID: &teamID},
		{ProjectID: &projectID},
		{TeamID: &teamID, ProjectID: &projectID},
	} {
		ok, err := f.engine.Authorize(ctx, admin, ActionAddTeamMember, scope)
		require.NoError(t, err)
		assert.True(t, ok, "firm override must hold in scope %+v", scope)
	}
}

func TestAuthorizeTeamThenProject(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	user := f.user()
	teamID := uuid.New()
	projectID := uuid.New()
	f.reader.teamRoles[[2]uuid.UUID{user, teamID}] = f.managerRole
	f.reader.projRoles[[2]uuid.UUID{user, projectID}] = f.contribRole

	ok, err := f.engine.Authorize(ctx, user, ActionAddTeamMember, Context{TeamID: &teamID})
	require.NoError(t, err)
	assert.True(t, ok)

	// The same action without the team in scope is denied.
	ok, err = f.engine.Authorize(ctx, user, ActionAddTeamMember, Context{ProjectID: &projectID})
	require.NoError(t, err)
	assert.False(t, ok)

	// The project role answers project-scoped checks.
	ok, err = f.engine.Authorize(ctx, user, ActionViewTasks, Context{ProjectID: &projectID})
	require.NoError(t, err)
	assert.True(t, ok)

	// Membership in one scope grants nothing in another instance of it.
	otherTeam := uuid.New()
	ok, err = f.engine.Authorize(ctx, user, ActionAddTeamMember, Context{TeamID: &otherTeam})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeDenyIsNotAnError(t *testing.T) {
	f := newEngineFixture()
	user := f.user()
	ok, err := f.engine.Authorize(context.Background(), user, ActionCreateTeam, Context{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizeOwnedFallback(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	projectID := uuid.New()
	owner := f.user()
	contrib := f.user()
	reporter := f.user()
	f.reader.projRoles[[2]uuid.UUID{owner, projectID}] = f.ownerRole
	f.reader.projRoles[[2]uuid.UUID{contrib, projectID}] = f.contribRole
	f.reader.projRoles[[2]uuid.UUID{reporter, projectID}] = f.contribRole

	// Any-grant bypasses ownership entirely.
	d, err := f.engine.AuthorizeOwned(ctx, owner, ActionEditAnyTask, ActionEditOwnTask, projectID, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Own-grant requires being an owner of the resource.
	d, err = f.engine.AuthorizeOwned(ctx, reporter, ActionEditAnyTask, ActionEditOwnTask, projectID, []uuid.UUID{reporter})
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = f.engine.AuthorizeOwned(ctx, contrib, ActionEditAnyTask, ActionEditOwnTask, projectID, []uuid.UUID{reporter})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonNotOwner, d.Reason)

	// No grant at all is a plain forbidden, not a not-owner.
	stranger := f.user()
	d, err = f.engine.AuthorizeOwned(ctx, stranger, ActionEditAnyTask, ActionEditOwnTask, projectID, []uuid.UUID{stranger})
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonForbidden, d.Reason)
}

func TestPermissionSetCaching(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()
	user := f.user()
	teamID := uuid.New()
	f.reader.teamRoles[[2]uuid.UUID{user, teamID}] = f.managerRole

	for i := 0; i < 5; i++ {
		ok, err := f.engine.Authorize(ctx, user, ActionAddTeamMember, Context{TeamID: &teamID})
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, 1, f.catalog.lookups, "repeated checks hit the role permission cache")
}

func TestLoadDefaults(t *testing.T) {
	full := newEngineFixture()
	// Complete the catalog with the role the engine fixture skips.
	visitor := models.Role{ID: uuid.New(), Name: models.RoleProjectVisitor, Scope: models.ScopeProject}
	full.catalog.roles[visitor.ID] = visitor
	_, err := LoadDefaults(context.Background(), full.catalog)
	require.NoError(t, err)

	partial := newEngineFixture()
	_, err = LoadDefaults(context.Background(), partial.catalog)
	require.Error(t, err, "a missing default role fails startup")
	assert.Contains(t, err.Error(), models.RoleProjectVisitor)
}
