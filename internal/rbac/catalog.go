// Package rbac implements the scoped role-based authorization core: the
// role/permission catalog, the firm→team→project decision engine, and the
// one-time firm admin bootstrap.
package rbac

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/firmboard/backend/internal/models"
)

// Catalog is the read side of the role/permission vocabulary. FindRole
// returns (nil, nil) when no role matches; callers decide whether absence is
// a user error or a deployment defect.
type Catalog interface {
	ListPermissions(ctx context.Context) ([]models.Permission, error)
	FindRole(ctx context.Context, name string, scope models.Scope) (*models.Role, error)
	RoleByID(ctx context.Context, id uuid.UUID) (*models.Role, error)
	RolePermissions(ctx context.Context, roleID uuid.UUID) (map[string]struct{}, error)
	RolesByScope(ctx context.Context, scope models.Scope) ([]models.Role, error)
}

// Defaults holds the well-known roles every deployment must seed. Resolved
// once at startup so catalog misconfiguration surfaces at one boundary
// instead of inside every mutation.
type Defaults struct {
	FirmAdmin          models.Role
	TeamManager        models.Role
	TeamMember         models.Role
	ProjectOwner       models.Role
	ProjectContributor models.Role
	ProjectVisitor     models.Role
}

// LoadDefaults resolves the well-known roles from the catalog. A missing
// role is a fatal setup error.
func LoadDefaults(ctx context.Context, catalog Catalog) (*Defaults, error) {
	var d Defaults
	for _, want := range []struct {
		name  string
		scope models.Scope
		dst   *models.Role
	}{
		{models.RoleFirmAdmin, models.ScopeFirm, &d.FirmAdmin},
		{models.RoleTeamManager, models.ScopeTeam, &d.TeamManager},
		{models.RoleTeamMember, models.ScopeTeam, &d.TeamMember},
		{models.RoleProjectOwner, models.ScopeProject, &d.ProjectOwner},
		{models.RoleProjectContributor, models.ScopeProject, &d.ProjectContributor},
		{models.RoleProjectVisitor, models.ScopeProject, &d.ProjectVisitor},
	} {
		role, err := catalog.FindRole(ctx, want.name, want.scope)
		if err != nil {
			return nil, fmt.Errorf("find role %q (%s): %w", want.name, want.scope, err)
		}
		if role == nil {
			return nil, fmt.Errorf("catalog is missing default role %q (%s)", want.name, want.scope)
		}
		*want.dst = *role
	}
	return &d, nil
}
