package models

import (
	"time"

	"github.com/google/uuid"
)

// Scope is the level at which a role's permissions apply.
type Scope string

const (
	ScopeFirm    Scope = "firm"
	ScopeTeam    Scope = "team"
	ScopeProject Scope = "project"
)

// Well-known role names seeded by the catalog migration. Roles assigned to a
// team membership must have ScopeTeam, project memberships ScopeProject, and
// firm assignments ScopeFirm.
const (
	RoleFirmAdmin          = "Firm Admin"
	RoleTeamManager        = "Team Manager"
	RoleTeamMember         = "Team Member"
	RoleProjectOwner       = "Project Owner"
	RoleProjectContributor = "Project Contributor"
	RoleProjectVisitor     = "Project Visitor"
)

// Permission is an atomic named capability (e.g. create_task). Catalog
// entries are immutable after seeding.
type Permission struct {
	ID          uuid.UUID `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
}

// Role is a named bundle of permissions tagged with exactly one scope.
type Role struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Scope Scope     `json:"scope"`
}

// FirmRoleAssignment grants a user a firm-scoped role. Firm roles are checked
// first by the authorization engine and override narrower scopes.
type FirmRoleAssignment struct {
	UserID    uuid.UUID `json:"user_id"`
	RoleID    uuid.UUID `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}
