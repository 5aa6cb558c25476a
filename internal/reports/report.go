// Package reports assembles per-project status summaries.
package reports

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/models"
	"github.com/firmboard/backend/pkg/response"
)

// MemberLine is one row of a report's membership table.
type MemberLine struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	RoleName string    `json:"role_name"`
	Assigned int       `json:"assigned_items"`
}

// Report is a snapshot of a project's state.
type Report struct {
	ProjectID    uuid.UUID      `json:"project_id"`
	ProjectName  string         `json:"project_name"`
	Members      []MemberLine   `json:"members"`
	StatusCounts map[string]int `json:"status_counts"`
	Items        []models.Item  `json:"items"`
}

// Repository builds reports straight from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Build assembles the full report for a project. Returns (nil, nil) when the
// project does not exist.
func (r *Repository) Build(ctx context.Context, projectID uuid.UUID) (*Report, error) {
	rep := &Report{ProjectID: projectID, StatusCounts: map[string]int{}}

	err := r.pool.QueryRow(ctx, `SELECT name FROM projects WHERE id = $1`, projectID).Scan(&rep.ProjectName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	const membersQ = `
		SELECT u.id, u.username, r.name,
			(SELECT COUNT(*) FROM items i WHERE i.project_id = pm.project_id AND i.assignee_id = u.id)
		FROM project_memberships pm
		JOIN users u ON u.id = pm.user_id
		JOIN roles r ON r.id = pm.role_id
		WHERE pm.project_id = $1
		ORDER BY u.username`
	rows, err := r.pool.Query(ctx, membersQ, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m MemberLine
		if err := rows.Scan(&m.UserID, &m.Username, &m.RoleName, &m.Assigned); err != nil {
			return nil, err
		}
		rep.Members = append(rep.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const countsQ = `SELECT status, COUNT(*) FROM items WHERE project_id = $1 GROUP BY status`
	crows, err := r.pool.Query(ctx, countsQ, projectID)
	if err != nil {
		return nil, err
	}
	defer crows.Close()
	for crows.Next() {
		var status string
		var n int
		if err := crows.Scan(&status, &n); err != nil {
			return nil, err
		}
		rep.StatusCounts[status] = n
	}
	if err := crows.Err(); err != nil {
		return nil, err
	}

	const itemsQ = `SELECT id, project_id, column_id, title, description, type, status,
			reporter_id, assignee_id, due_date, created_at, updated_at
		FROM items WHERE project_id = $1 ORDER BY created_at DESC`
	irows, err := r.pool.Query(ctx, itemsQ, projectID)
	if err != nil {
		return nil, err
	}
	defer irows.Close()
	for irows.Next() {
		var it models.Item
		if err := irows.Scan(&it.ID, &it.ProjectID, &it.ColumnID, &it.Title, &it.Description, &it.Type,
			&it.Status, &it.ReporterID, &it.AssigneeID, &it.DueDate, &it.CreatedAt, &it.UpdatedAt); err != nil {
			return nil, err
		}
		rep.Items = append(rep.Items, it)
	}
	return rep, irows.Err()
}

// Handler serves project reports.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Get returns the project report.
func (h *Handler) Get(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("project_id"))
	if err != nil {
		response.BadRequest(c, "invalid project_id")
		return
	}
	report, err := h.repo.Build(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("build report", zap.Error(err))
		response.Internal(c, "failed to build report")
		return
	}
	if report == nil {
		response.NotFound(c, "project not found")
		return
	}
	response.OK(c, report)
}
