package projects

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firmboard/backend/internal/auth"
	"github.com/firmboard/backend/internal/memberships"
	"github.com/firmboard/backend/internal/rbac"
	"github.com/firmboard/backend/pkg/response"
)

// Handler handles project HTTP endpoints.
type Handler struct {
	repo    *Repository
	service *memberships.Service
	logger  *zap.Logger
}

func NewHandler(repo *Repository, service *memberships.Service, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, service: service, logger: logger}
}

func writeServiceError(c *gin.Context, logger *zap.Logger, err error) {
	if errors.Is(err, rbac.ErrUnauthenticated) {
		response.Unauthorized(c, "account no longer exists")
		return
	}
	if f, ok := memberships.AsFault(err); ok {
		response.Status(c, f.HTTPStatus(), f.Message)
		return
	}
	logger.Error("project operation failed", zap.Error(err))
	response.Internal(c, "internal error")
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, ok := auth.CurrentUserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
	}
	return id, ok
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// CreateRequest is the body for POST /projects.
type CreateRequest struct {
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
	TeamID      uuid.UUID `json:"team_id" binding:"required"`
}

// Create handles POST /projects. The owning team is enrolled and the default
// board columns are seeded.
func (h *Handler) Create(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	project, err := h.service.CreateProject(c.Request.Context(), actor, req.TeamID, req.Name, req.Description)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	if err := h.repo.CreateDefaultColumns(c.Request.Context(), project.ID); err != nil {
		h.logger.Error("default column seed failed",
			zap.String("project_id", project.ID.String()), zap.Error(err))
	}
	response.Created(c, project)
}

// ListMine handles GET /projects.
func (h *Handler) ListMine(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.repo.ListForUser(c.Request.Context(), actor)
	if err != nil {
		response.Internal(c, "failed to list projects")
		return
	}
	response.OK(c, list)
}

// Get handles GET /projects/:project_id.
func (h *Handler) Get(c *gin.Context) {
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	project, err := h.repo.Get(c.Request.Context(), projectID)
	if err != nil {
		response.Internal(c, "failed to load project")
		return
	}
	if project == nil {
		response.NotFound(c, "project not found")
		return
	}
	response.OK(c, project)
}

// UpdateRequest is the body for PUT /projects/:project_id.
type UpdateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// Update handles PUT /projects/:project_id.
func (h *Handler) Update(c *gin.Context) {
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	project, err := h.repo.Update(c.Request.Context(), projectID, req.Name, req.Description)
	if err != nil {
		response.Internal(c, "failed to update project")
		return
	}
	if project == nil {
		response.NotFound(c, "project not found")
		return
	}
	response.OK(c, project)
}

// Delete handles DELETE /projects/:project_id.
func (h *Handler) Delete(c *gin.Context) {
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	deleted, err := h.repo.Delete(c.Request.Context(), projectID)
	if err != nil {
		response.Internal(c, "failed to delete project")
		return
	}
	if !deleted {
		response.NotFound(c, "project not found")
		return
	}
	response.NoContent(c)
}

// TransferRequest is the body for POST /projects/:project_id/transfer.
type TransferRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// Transfer handles POST /projects/:project_id/transfer.
func (h *Handler) Transfer(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.service.TransferProjectOwnership(c.Request.Context(), actor, projectID, req.UserID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"owner_id": req.UserID})
}

// Progress handles GET /projects/:project_id/progress.
func (h *Handler) Progress(c *gin.Context) {
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	p, err := h.repo.GetProgress(c.Request.Context(), projectID)
	if err != nil {
		response.Internal(c, "failed to load progress")
		return
	}
	response.OK(c, p)
}

// ListMembers handles GET /projects/:project_id/members.
func (h *Handler) ListMembers(c *gin.Context) {
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	list, err := h.repo.ListMembers(c.Request.Context(), projectID)
	if err != nil {
		response.Internal(c, "failed to list members")
		return
	}
	response.OK(c, list)
}

// AddMemberRequest is the body for POST /projects/:project_id/members.
type AddMemberRequest struct {
	UserID uuid.UUID  `json:"user_id" binding:"required"`
	RoleID *uuid.UUID `json:"role_id"`
}

// AddMember handles POST /projects/:project_id/members.
func (h *Handler) AddMember(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	m, err := h.service.AddProjectMember(c.Request.Context(), actor, projectID, req.UserID, req.RoleID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Created(c, m)
}

// RemoveMember handles DELETE /projects/:project_id/members/:user_id.
func (h *Handler) RemoveMember(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.service.RemoveProjectMember(c.Request.Context(), actor, projectID, userID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// ChangeRoleRequest is the body for PUT /projects/:project_id/members/:user_id/role.
type ChangeRoleRequest struct {
	RoleID uuid.UUID `json:"role_id" binding:"required"`
}

// ChangeMemberRole handles PUT /projects/:project_id/members/:user_id/role.
func (h *Handler) ChangeMemberRole(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var req ChangeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.service.ChangeProjectMemberRole(c.Request.Context(), actor, projectID, userID, req.RoleID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"role_id": req.RoleID})
}

// InviteRequest is the body for POST /projects/:project_id/invitations.
type InviteRequest struct {
	Email  string     `json:"email" binding:"required,email"`
	RoleID *uuid.UUID `json:"role_id"`
}

// Invite handles POST /projects/:project_id/invitations.
func (h *Handler) Invite(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	var req InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	inv, err := h.service.Invite(c.Request.Context(), actor, projectID, req.Email, req.RoleID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Created(c, inv)
}

// ListMyInvitations handles GET /invitations.
func (h *Handler) ListMyInvitations(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.repo.ListPendingInvitesForUser(c.Request.Context(), actor)
	if err != nil {
		response.Internal(c, "failed to list invitations")
		return
	}
	response.OK(c, list)
}

// ResolveInvitation handles POST /invitations/:request_id/accept and
// .../reject.
func (h *Handler) ResolveInvitation(accept bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			return
		}
		requestID, ok := pathID(c, "request_id")
		if !ok {
			return
		}
		if err := h.service.ResolveInvitation(c.Request.Context(), actor, requestID, accept); err != nil {
			writeServiceError(c, h.logger, err)
			return
		}
		response.OK(c, gin.H{"accepted": accept})
	}
}

// RequestToJoin handles POST /projects/:project_id/join-requests.
func (h *Handler) RequestToJoin(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	req, err := h.service.RequestToJoin(c.Request.Context(), actor, projectID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Created(c, req)
}

// ListJoinRequests handles GET /projects/:project_id/join-requests.
func (h *Handler) ListJoinRequests(c *gin.Context) {
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	list, err := h.repo.ListPendingJoinRequests(c.Request.Context(), projectID)
	if err != nil {
		response.Internal(c, "failed to list join requests")
		return
	}
	response.OK(c, list)
}

// ResolveJoinRequest handles POST /join-requests/:request_id/accept and
// .../reject.
func (h *Handler) ResolveJoinRequest(accept bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			return
		}
		requestID, ok := pathID(c, "request_id")
		if !ok {
			return
		}
		if err := h.service.ResolveJoinRequest(c.Request.Context(), actor, requestID, accept); err != nil {
			writeServiceError(c, h.logger, err)
			return
		}
		response.OK(c, gin.H{"accepted": accept})
	}
}

// GrantVisitorTeam handles POST /projects/:project_id/visitor-teams/:team_id.
func (h *Handler) GrantVisitorTeam(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	n, err := h.service.GrantVisitorTeam(c.Request.Context(), actor, projectID, teamID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"members_added": n})
}

// RevokeVisitors handles DELETE /projects/:project_id/visitors.
func (h *Handler) RevokeVisitors(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	n, err := h.service.RevokeVisitors(c.Request.Context(), actor, projectID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"members_removed": n})
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	stats, err := h.repo.GetDashboardStats(c.Request.Context(), actor)
	if err != nil {
		response.Internal(c, "failed to load dashboard")
		return
	}
	response.OK(c, stats)
}
