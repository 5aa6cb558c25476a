package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is a unit of tracked work, owned by a user and optionally by a
// team. Team-owned projects receive cascaded memberships from their team.
type Project struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	OwnerTeamID *uuid.UUID `json:"owner_team_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MembershipOrigin records how a project membership was acquired, so cascade
// removal can tell team-derived rows apart from ones earned independently.
type MembershipOrigin string

const (
	// OriginDirect: invited, join request accepted, or added explicitly.
	OriginDirect MembershipOrigin = "direct"
	// OriginTeam: auto-enrolled because the user joined the owning team.
	OriginTeam MembershipOrigin = "team"
	// OriginVisitor: granted by a bulk visitor-team grant.
	OriginVisitor MembershipOrigin = "visitor"
)

// ProjectMembership ties a user to a project with exactly one project-scoped
// role. (user, project) is unique. A project with members always keeps at
// least one Project Owner.
type ProjectMembership struct {
	UserID    uuid.UUID        `json:"user_id"`
	ProjectID uuid.UUID        `json:"project_id"`
	RoleID    uuid.UUID        `json:"role_id"`
	Origin    MembershipOrigin `json:"origin"`
	CreatedAt time.Time        `json:"created_at"`
}
