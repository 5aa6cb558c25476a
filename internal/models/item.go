package models

import (
	"time"

	"github.com/google/uuid"
)

// Item statuses mirror the default board columns.
const (
	ItemStatusTodo       = "todo"
	ItemStatusInProgress = "inprogress"
	ItemStatusInReview   = "inreview"
	ItemStatusDone       = "done"
)

// BoardColumn is one column of a project's board.
type BoardColumn struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Item is a tracked task on a project board. The reporter and assignee are
// its owners for the purpose of edit_own_task / delete_own_task checks.
type Item struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	ColumnID    *uuid.UUID `json:"column_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	ReporterID  uuid.UUID  `json:"reporter_id"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Owners returns the user ids allowed to act on the item under an "own"
// permission.
func (i *Item) Owners() []uuid.UUID {
	owners := []uuid.UUID{i.ReporterID}
	if i.AssigneeID != nil {
		owners = append(owners, *i.AssigneeID)
	}
	return owners
}

// ItemComment is a comment on an item.
type ItemComment struct {
	ID        uuid.UUID `json:"id"`
	ItemID    uuid.UUID `json:"item_id"`
	UserID    uuid.UUID `json:"user_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}
