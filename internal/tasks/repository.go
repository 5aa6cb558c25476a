// Package tasks serves project boards: columns, items and comments. Edit
// and delete honor the any/own permission pair, where an item's owners are
// its reporter and assignee.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firmboard/backend/internal/models"
)

// Repository handles board persistence.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemCols = `id, project_id, column_id, title, description, type, status,
	reporter_id, assignee_id, due_date, created_at, updated_at`

func scanItem(row pgx.Row) (*models.Item, error) {
	var it models.Item
	err := row.Scan(&it.ID, &it.ProjectID, &it.ColumnID, &it.Title, &it.Description, &it.Type,
		&it.Status, &it.ReporterID, &it.AssigneeID, &it.DueDate, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

// ProjectIDForItem resolves the project owning an item, for scope checks.
func (r *Repository) ProjectIDForItem(ctx context.Context, itemID uuid.UUID) (uuid.UUID, bool, error) {
	var projectID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT project_id FROM items WHERE id = $1`, itemID).Scan(&projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return projectID, true, nil
}

// ListColumns returns a project's board columns in position order.
func (r *Repository) ListColumns(ctx context.Context, projectID uuid.UUID) ([]models.BoardColumn, error) {
	const q = `SELECT id, project_id, name, position, created_at FROM board_columns
		WHERE project_id = $1 ORDER BY position, created_at`
	rows, err := r.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.BoardColumn
	for rows.Next() {
		var col models.BoardColumn
		if err := rows.Scan(&col.ID, &col.ProjectID, &col.Name, &col.Position, &col.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, col)
	}
	return list, rows.Err()
}

// CreateColumn appends a column to the project's board.
func (r *Repository) CreateColumn(ctx context.Context, projectID uuid.UUID, name string, position int) (*models.BoardColumn, error) {
	const q = `INSERT INTO board_columns (project_id, name, position)
		VALUES ($1, $2, $3)
		RETURNING id, project_id, name, position, created_at`
	var col models.BoardColumn
	err := r.pool.QueryRow(ctx, q, projectID, name, position).
		Scan(&col.ID, &col.ProjectID, &col.Name, &col.Position, &col.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &col, nil
}

// RenameColumn updates a column's name. Returns false when absent.
func (r *Repository) RenameColumn(ctx context.Context, columnID uuid.UUID, name string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE board_columns SET name = $2 WHERE id = $1`, columnID, name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteColumn removes a column. Items keep their status and lose the
// column pointer.
func (r *Repository) DeleteColumn(ctx context.Context, columnID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM board_columns WHERE id = $1`, columnID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ProjectIDForColumn resolves the project owning a column.
func (r *Repository) ProjectIDForColumn(ctx context.Context, columnID uuid.UUID) (uuid.UUID, bool, error) {
	var projectID uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT project_id FROM board_columns WHERE id = $1`, columnID).Scan(&projectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return projectID, true, nil
}

// GetItem returns an item, or (nil, nil) when absent.
func (r *Repository) GetItem(ctx context.Context, itemID uuid.UUID) (*models.Item, error) {
	return scanItem(r.pool.QueryRow(ctx, `SELECT `+itemCols+` FROM items WHERE id = $1`, itemID))
}

// ListItems returns a project's items, newest first.
func (r *Repository) ListItems(ctx context.Context, projectID uuid.UUID) ([]models.Item, error) {
	const q = `SELECT ` + itemCols + ` FROM items WHERE project_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(&it.ID, &it.ProjectID, &it.ColumnID, &it.Title, &it.Description, &it.Type,
			&it.Status, &it.ReporterID, &it.AssigneeID, &it.DueDate, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

// CreateItemParams holds the fields for a new item.
type CreateItemParams struct {
	ProjectID   uuid.UUID
	ColumnID    *uuid.UUID
	Title       string
	Description string
	Type        string
	Status      string
	ReporterID  uuid.UUID
	AssigneeID  *uuid.UUID
	DueDate     *time.Time
}

// CreateItem inserts a new item.
func (r *Repository) CreateItem(ctx context.Context, p CreateItemParams) (*models.Item, error) {
	const q = `INSERT INTO items (project_id, column_id, title, description, type, status, reporter_id, assignee_id, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + itemCols
	return scanItem(r.pool.QueryRow(ctx, q, p.ProjectID, p.ColumnID, p.Title, p.Description,
		p.Type, p.Status, p.ReporterID, p.AssigneeID, p.DueDate))
}

// UpdateItemParams holds the mutable fields of an item.
type UpdateItemParams struct {
	ColumnID    *uuid.UUID
	Title       string
	Description string
	Type        string
	Status      string
	AssigneeID  *uuid.UUID
	DueDate     *time.Time
}

// UpdateItem rewrites an item's mutable fields.
func (r *Repository) UpdateItem(ctx context.Context, itemID uuid.UUID, p UpdateItemParams) (*models.Item, error) {
	const q = `UPDATE items SET column_id = $2, title = $3, description = $4, type = $5,
		status = $6, assignee_id = $7, due_date = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + itemCols
	return scanItem(r.pool.QueryRow(ctx, q, itemID, p.ColumnID, p.Title, p.Description,
		p.Type, p.Status, p.AssigneeID, p.DueDate))
}

// DeleteItem removes an item and its comments.
func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, itemID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AddComment inserts a comment on an item.
func (r *Repository) AddComment(ctx context.Context, itemID, userID uuid.UUID, body string) (*models.ItemComment, error) {
	const q = `INSERT INTO item_comments (item_id, user_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, item_id, user_id, body, created_at`
	var cm models.ItemComment
	err := r.pool.QueryRow(ctx, q, itemID, userID, body).
		Scan(&cm.ID, &cm.ItemID, &cm.UserID, &cm.Body, &cm.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &cm, nil
}

// ListComments returns an item's comments, oldest first.
func (r *Repository) ListComments(ctx context.Context, itemID uuid.UUID) ([]models.ItemComment, error) {
	const q = `SELECT id, item_id, user_id, body, created_at FROM item_comments
		WHERE item_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ItemComment
	for rows.Next() {
		var cm models.ItemComment
		if err := rows.Scan(&cm.ID, &cm.ItemID, &cm.UserID, &cm.Body, &cm.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, cm)
	}
	return list, rows.Err()
}
