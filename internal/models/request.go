package models

import (
	"time"

	"github.com/google/uuid"
)

// JoinRequestType distinguishes a user-initiated request from a member-sent
// invitation.
type JoinRequestType string

const (
	JoinTypeRequest JoinRequestType = "request"
	JoinTypeInvite  JoinRequestType = "invite"
)

// RequestStatus is the lifecycle of a pending record. Resolution is terminal.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusAccepted RequestStatus = "accepted"
	StatusRejected RequestStatus = "rejected"
)

// JoinRequest is a pending request-to-join or invitation linking a user to a
// project.
type JoinRequest struct {
	ID        uuid.UUID       `json:"id"`
	ProjectID uuid.UUID       `json:"project_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Type      JoinRequestType `json:"type"`
	RoleID    *uuid.UUID      `json:"role_id,omitempty"`
	Status    RequestStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ManagerRequest is a pending bid by a team member to become that team's
// manager. Acceptance transfers the manager role atomically.
type ManagerRequest struct {
	ID        uuid.UUID     `json:"id"`
	TeamID    uuid.UUID     `json:"team_id"`
	UserID    uuid.UUID     `json:"user_id"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
