package tasks

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/auth"
	"github.com/firmboard/backend/internal/models"
	"github.com/firmboard/backend/internal/rbac"
	"github.com/firmboard/backend/pkg/response"
)

// Handler serves board columns, items and comments. Route-level gates cover
// create, view and comment; edit and delete are decided here because the
// own variant needs the item's reporter and assignee.
type Handler struct {
	repo   *Repository
	engine *rbac.Engine
	logger *zap.Logger
}

func NewHandler(repo *Repository, engine *rbac.Engine, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, engine: engine, logger: logger}
}

func (h *Handler) currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
	}
	return id, ok
}

func (h *Handler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// fetchItem loads an item or writes a 404.
func (h *Handler) fetchItem(c *gin.Context) (*models.Item, bool) {
	itemID, ok := h.pathID(c, "item_id")
	if !ok {
		return nil, false
	}
	item, err := h.repo.GetItem(c.Request.Context(), itemID)
	if err != nil {
		h.logger.Error("fetch item", zap.Error(err))
		response.Internal(c, "failed to load item")
		return nil, false
	}
	if item == nil {
		response.NotFound(c, "item not found")
		return nil, false
	}
	return item, true
}

// authorizeOwned runs the any/own check for an item and writes the refusal
// when denied.
func (h *Handler) authorizeOwned(c *gin.Context, item *models.Item, anyAction, ownAction string) bool {
	userID, ok := h.currentUser(c)
	if !ok {
		return false
	}
	decision, err := h.engine.AuthorizeOwned(c.Request.Context(), userID, anyAction, ownAction, item.ProjectID, item.Owners())
	if err != nil {
		if errors.Is(err, rbac.ErrUnauthenticated) {
			response.Unauthorized(c, "account no longer exists")
			return false
		}
		h.logger.Error("authorize item action", zap.Error(err))
		response.Internal(c, "authorization check failed")
		return false
	}
	if !decision.Allowed {
		if decision.Reason == rbac.ReasonNotOwner {
			response.Forbidden(c, "you may only modify your own tasks")
		} else {
			response.Forbidden(c, "insufficient permissions")
		}
		return false
	}
	return true
}

// ListColumns returns the project board's columns.
func (h *Handler) ListColumns(c *gin.Context) {
	projectID, ok := h.pathID(c, "project_id")
	if !ok {
		return
	}
	cols, err := h.repo.ListColumns(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("list columns", zap.Error(err))
		response.Internal(c, "failed to list columns")
		return
	}
	response.OK(c, cols)
}

type columnRequest struct {
	Name     string `json:"name" binding:"required"`
	Position int    `json:"position"`
}

// CreateColumn appends a column to the board.
func (h *Handler) CreateColumn(c *gin.Context) {
	projectID, ok := h.pathID(c, "project_id")
	if !ok {
		return
	}
	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	col, err := h.repo.CreateColumn(c.Request.Context(), projectID, req.Name, req.Position)
	if err != nil {
		h.logger.Error("create column", zap.Error(err))
		response.Internal(c, "failed to create column")
		return
	}
	response.Created(c, col)
}

// RenameColumn updates a column's name.
func (h *Handler) RenameColumn(c *gin.Context) {
	columnID, ok := h.pathID(c, "column_id")
	if !ok {
		return
	}
	var req columnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	renamed, err := h.repo.RenameColumn(c.Request.Context(), columnID, req.Name)
	if err != nil {
		h.logger.Error("rename column", zap.Error(err))
		response.Internal(c, "failed to rename column")
		return
	}
	if !renamed {
		response.NotFound(c, "column not found")
		return
	}
	response.OK(c, gin.H{"renamed": true})
}

// DeleteColumn removes a column from the board.
func (h *Handler) DeleteColumn(c *gin.Context) {
	columnID, ok := h.pathID(c, "column_id")
	if !ok {
		return
	}
	deleted, err := h.repo.DeleteColumn(c.Request.Context(), columnID)
	if err != nil {
		h.logger.Error("delete column", zap.Error(err))
		response.Internal(c, "failed to delete column")
		return
	}
	if !deleted {
		response.NotFound(c, "column not found")
		return
	}
	response.NoContent(c)
}

// ListItems returns a project's items.
func (h *Handler) ListItems(c *gin.Context) {
	projectID, ok := h.pathID(c, "project_id")
	if !ok {
		return
	}
	items, err := h.repo.ListItems(c.Request.Context(), projectID)
	if err != nil {
		h.logger.Error("list items", zap.Error(err))
		response.Internal(c, "failed to list items")
		return
	}
	response.OK(c, items)
}

// GetItem returns one item with its comments.
func (h *Handler) GetItem(c *gin.Context) {
	item, ok := h.fetchItem(c)
	if !ok {
		return
	}
	comments, err := h.repo.ListComments(c.Request.Context(), item.ID)
	if err != nil {
		h.logger.Error("list comments", zap.Error(err))
		response.Internal(c, "failed to load comments")
		return
	}
	response.OK(c, gin.H{"item": item, "comments": comments})
}

type createItemRequest struct {
	ColumnID    *uuid.UUID `json:"column_id"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	AssigneeID  *uuid.UUID `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

// CreateItem adds an item to the project board. The actor becomes the
// reporter.
func (h *Handler) CreateItem(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	projectID, ok := h.pathID(c, "project_id")
	if !ok {
		return
	}
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	itemType := req.Type
	if itemType == "" {
		itemType = "task"
	}
	item, err := h.repo.CreateItem(c.Request.Context(), CreateItemParams{
		ProjectID:   projectID,
		ColumnID:    req.ColumnID,
		Title:       req.Title,
		Description: req.Description,
		Type:        itemType,
		Status:      models.ItemStatusTodo,
		ReporterID:  userID,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.logger.Error("create item", zap.Error(err))
		response.Internal(c, "failed to create item")
		return
	}
	response.Created(c, item)
}

type updateItemRequest struct {
	ColumnID    *uuid.UUID `json:"column_id"`
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	AssigneeID  *uuid.UUID `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateItem rewrites an item. Allowed for edit_any_task holders, or
// edit_own_task holders who report or are assigned the item.
func (h *Handler) UpdateItem(c *gin.Context) {
	item, ok := h.fetchItem(c)
	if !ok {
		return
	}
	if !h.authorizeOwned(c, item, rbac.ActionEditAnyTask, rbac.ActionEditOwnTask) {
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	itemType := req.Type
	if itemType == "" {
		itemType = item.Type
	}
	status := req.Status
	if status == "" {
		status = item.Status
	}
	updated, err := h.repo.UpdateItem(c.Request.Context(), item.ID, UpdateItemParams{
		ColumnID:    req.ColumnID,
		Title:       req.Title,
		Description: req.Description,
		Type:        itemType,
		Status:      status,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		h.logger.Error("update item", zap.Error(err))
		response.Internal(c, "failed to update item")
		return
	}
	if updated == nil {
		response.NotFound(c, "item not found")
		return
	}
	response.OK(c, updated)
}

// DeleteItem removes an item. Same ownership rules as UpdateItem, with the
// delete permission pair.
func (h *Handler) DeleteItem(c *gin.Context) {
	item, ok := h.fetchItem(c)
	if !ok {
		return
	}
	if !h.authorizeOwned(c, item, rbac.ActionDeleteAnyTask, rbac.ActionDeleteOwnTask) {
		return
	}
	deleted, err := h.repo.DeleteItem(c.Request.Context(), item.ID)
	if err != nil {
		h.logger.Error("delete item", zap.Error(err))
		response.Internal(c, "failed to delete item")
		return
	}
	if !deleted {
		response.NotFound(c, "item not found")
		return
	}
	response.NoContent(c)
}

type commentRequest struct {
	Body string `json:"body" binding:"required"`
}

// AddComment posts a comment on an item.
func (h *Handler) AddComment(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	item, ok := h.fetchItem(c)
	if !ok {
		return
	}
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.repo.AddComment(c.Request.Context(), item.ID, userID, req.Body)
	if err != nil {
		h.logger.Error("add comment", zap.Error(err))
		response.Internal(c, "failed to add comment")
		return
	}
	response.Created(c, comment)
}

// ListComments returns an item's comments.
func (h *Handler) ListComments(c *gin.Context) {
	item, ok := h.fetchItem(c)
	if !ok {
		return
	}
	comments, err := h.repo.ListComments(c.Request.Context(), item.ID)
	if err != nil {
		h.logger.Error("list comments", zap.Error(err))
		response.Internal(c, "failed to load comments")
		return
	}
	response.OK(c, comments)
}
