package teams

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

// Handler handles team HTTP endpoints.
type Handler struct {
	repo    *Repository
	users   *auth.Repository
	service *memberships.Service
	logger  *zap.Logger
}

func NewHandler(repo *Repository, users *auth.Repository, service *memberships.Service, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, users: users, service: service, logger: logger}
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
	logger.Error("team operation failed", zap.Error(err))
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

// CreateRequest is the body for POST /teams.
type CreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// Create handles POST /teams. The creator becomes the team's manager.
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
	team, err := h.service.CreateTeam(c.Request.Context(), actor, req.Name, req.Description)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Created(c, team)
}

// ListMine handles GET /teams.
func (h *Handler) ListMine(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.repo.ListForUser(c.Request.Context(), actor)
	if err != nil {
		response.Internal(c, "failed to list teams")
		return
	}
	response.OK(c, list)
}

// ListAll handles GET /teams/all.
func (h *Handler) ListAll(c *gin.Context) {
	list, err := h.repo.ListAll(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to list teams")
		return
	}
	response.OK(c, list)
}

// Get handles GET /teams/:team_id, returning the team with its members.
func (h *Handler) Get(c *gin.Context) {
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	team, err := h.repo.Get(c.Request.Context(), teamID)
	if err != nil {
		response.Internal(c, "failed to load team")
		return
	}
	if team == nil {
		response.NotFound(c, "team not found")
		return
	}
	members, err := h.repo.ListMembers(c.Request.Context(), teamID)
	if err != nil {
		response.Internal(c, "failed to load members")
		return
	}
	response.OK(c, gin.H{"team": team, "members": members})
}

// Delete handles DELETE /teams/:team_id.
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	if err := h.service.DeleteTeam(c.Request.Context(), actor, teamID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// AddMemberRequest is the body for POST /teams/:team_id/members.
type AddMemberRequest struct {
	Email  string     `json:"email" binding:"required,email"`
	RoleID *uuid.UUID `json:"role_id"`
}

// AddMember handles POST /teams/:team_id/members.
func (h *Handler) AddMember(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	target, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		response.Internal(c, "failed to look up user")
		return
	}
	if target == nil {
		response.NotFound(c, "no user with that email")
		return
	}
	m, err := h.service.AddTeamMember(c.Request.Context(), actor, teamID, target.ID, req.RoleID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Created(c, m)
}

// RemoveMember handles DELETE /teams/:team_id/members/:user_id.
func (h *Handler) RemoveMember(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.service.RemoveTeamMember(c.Request.Context(), actor, teamID, userID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.NoContent(c)
}

// ChangeRoleRequest is the body for PUT /teams/:team_id/members/:user_id/role.
type ChangeRoleRequest struct {
	RoleID uuid.UUID `json:"role_id" binding:"required"`
}

// ChangeRole handles PUT /teams/:team_id/members/:user_id/role.
func (h *Handler) ChangeRole(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
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
	if err := h.service.ChangeTeamMemberRole(c.Request.Context(), actor, teamID, userID, req.RoleID); err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"role_id": req.RoleID})
}

// MyPermissions handles GET /teams/:team_id/my-permissions.
func (h *Handler) MyPermissions(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	actions, err := h.repo.PermissionsForUser(c.Request.Context(), actor, teamID)
	if err != nil {
		response.Internal(c, "failed to load permissions")
		return
	}
	response.OK(c, gin.H{"permissions": actions})
}

// RequestManager handles POST /teams/:team_id/manager-requests.
func (h *Handler) RequestManager(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	req, err := h.service.RequestTeamManager(c.Request.Context(), actor, teamID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.Created(c, req)
}

// ListManagerRequests handles GET /teams/:team_id/manager-requests.
func (h *Handler) ListManagerRequests(c *gin.Context) {
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	list, err := h.repo.ListPendingManagerRequests(c.Request.Context(), teamID)
	if err != nil {
		response.Internal(c, "failed to list manager requests")
		return
	}
	response.OK(c, list)
}

// ResolveManagerRequest handles POST /manager-requests/:request_id/accept
// and .../reject.
func (h *Handler) ResolveManagerRequest(accept bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := currentUser(c)
		if !ok {
			return
		}
		requestID, ok := pathID(c, "request_id")
		if !ok {
			return
		}
		if err := h.service.ResolveManagerRequest(c.Request.Context(), actor, requestID, accept); err != nil {
			writeServiceError(c, h.logger, err)
			return
		}
		response.OK(c, gin.H{"accepted": accept})
	}
}

// ListProjects handles GET /teams/:team_id/projects.
func (h *Handler) ListProjects(c *gin.Context) {
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	list, err := h.repo.ListProjects(c.Request.Context(), teamID)
	if err != nil {
		response.Internal(c, "failed to list projects")
		return
	}
	response.OK(c, list)
}

// EnrollProject handles POST /teams/:team_id/projects/:project_id, enrolling
// the whole team into the project.
func (h *Handler) EnrollProject(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	n, err := h.service.EnrollTeamInProject(c.Request.Context(), actor, teamID, projectID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"members_added": n})
}

// WithdrawProject handles DELETE /teams/:team_id/projects/:project_id.
func (h *Handler) WithdrawProject(c *gin.Context) {
	actor, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := pathID(c, "team_id")
	if !ok {
		return
	}
	projectID, ok := pathID(c, "project_id")
	if !ok {
		return
	}
	n, err := h.service.WithdrawTeamFromProject(c.Request.Context(), actor, teamID, projectID)
	if err != nil {
		writeServiceError(c, h.logger, err)
		return
	}
	response.OK(c, gin.H{"members_removed": n})
}
