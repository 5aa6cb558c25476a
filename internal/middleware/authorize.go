package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/firmboard/backend/internal/auth"
	"github.com/firmboard/backend/internal/rbac"
	"github.com/firmboard/backend/pkg/response"
)

// ScopeResolver extracts part of the authorization scope from the request.
// Resolvers compose: one route may bind both a team and a project id.
type ScopeResolver func(c *gin.Context, scope *rbac.Context) error

var errBadScopeParam = errors.New("invalid scope parameter")

// TeamParam binds the named path parameter as the team in scope.
func TeamParam(name string) ScopeResolver {
	return func(c *gin.Context, scope *rbac.Context) error {
		id, err := uuid.Parse(c.Param(name))
		if err != nil {
			return errBadScopeParam
		}
		scope.TeamID = &id
		return nil
	}
}

// ProjectParam binds the named path parameter as the project in scope.
func ProjectParam(name string) ScopeResolver {
	return func(c *gin.Context, scope *rbac.Context) error {
		id, err := uuid.Parse(c.Param(name))
		if err != nil {
			return errBadScopeParam
		}
		scope.ProjectID = &id
		return nil
	}
}

// ItemProjectResolver resolves the project an item belongs to. The second
// return reports whether the item exists.
type ItemProjectResolver interface {
	ProjectIDForItem(ctx context.Context, itemID uuid.UUID) (uuid.UUID, bool, error)
}

// ProjectFromItem binds the project that owns the item named by the path
// parameter. A missing item aborts with 404 before any permission check.
func ProjectFromItem(resolver ItemProjectResolver, name string) ScopeResolver {
	return func(c *gin.Context, scope *rbac.Context) error {
		id, err := uuid.Parse(c.Param(name))
		if err != nil {
			return errBadScopeParam
		}
		projectID, ok, err := resolver.ProjectIDForItem(c.Request.Context(), id)
		if err != nil {
			return err
		}
		if !ok {
			response.NotFound(c, "item not found")
			c.Abort()
			return nil
		}
		scope.ProjectID = &projectID
		return nil
	}
}

// RequirePermission gates a route on an engine decision. 401 when the caller
// is unauthenticated or the token's user no longer exists, 403 on a deny.
func RequirePermission(engine *rbac.Engine, action string, resolvers ...ScopeResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := auth.CurrentUserID(c)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}

		var scope rbac.Context
		for _, resolve := range resolvers {
			if err := resolve(c, &scope); err != nil {
				if errors.Is(err, errBadScopeParam) {
					response.BadRequest(c, "invalid id in path")
				} else {
					response.Internal(c, "failed to resolve scope")
				}
				c.Abort()
				return
			}
			if c.IsAborted() {
				return
			}
		}

		allowed, err := engine.Authorize(c.Request.Context(), userID, action, scope)
		if err != nil {
			if errors.Is(err, rbac.ErrUnauthenticated) {
				response.Unauthorized(c, "account no longer exists")
			} else {
				response.Internal(c, "authorization check failed")
			}
			c.Abort()
			return
		}
		if !allowed {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
