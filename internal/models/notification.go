package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an in-app message for a user. Rows are written inside the
// transaction of the mutation that caused them; delivery is asynchronous.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
