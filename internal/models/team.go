package models

import (
	"time"

	"github.com/google/uuid"
)

// Team is a firm-level group of users. ManagerID mirrors whichever team
// membership holds the Team Manager role; the two must never diverge.
type Team struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ManagerID   uuid.UUID `json:"manager_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TeamMembership ties a user to a team with exactly one team-scoped role.
// (user, team) is unique.
type TeamMembership struct {
	UserID    uuid.UUID `json:"user_id"`
	TeamID    uuid.UUID `json:"team_id"`
	RoleID    uuid.UUID `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}
