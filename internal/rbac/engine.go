package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// ErrUnauthenticated is returned when the supplied identity does not resolve
// to a user at all. It is distinct from a deny: a deny is a normal decision,
// this is a broken or stale credential.
var ErrUnauthenticated = errors.New("unauthenticated: user does not exist")

// MembershipReader is the read-only view of memberships the engine needs.
// The engine never writes.
type MembershipReader interface {
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	FirmRoleIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	TeamRoleID(ctx context.Context, userID, teamID uuid.UUID) (*uuid.UUID, error)
	ProjectRoleID(ctx context.Context, userID, projectID uuid.UUID) (*uuid.UUID, error)
}

// Context carries the optional scope of an authorization check. A call may
// supply a team, a project, both, or neither.
type Context struct {
	TeamID    *uuid.UUID
	ProjectID *uuid.UUID
}

// Deny reasons carried by Decision.
const (
	ReasonForbidden = "forbidden"
	ReasonNotOwner  = "not_owner"
)

// Decision is the outcome of an ownership-aware check.
type Decision struct {
	Allowed bool
	Reason  string
}

const (
	permCacheSize = 512
	permCacheTTL  = 30 * time.Second
)

// Engine decides allow/deny for (user, action, scope context). It performs
// reads only and never returns an error for a deny.
type Engine struct {
	catalog     Catalog
	memberships MembershipReader
	logger      *zap.Logger

	// role id -> permission action set. Role permission sets are read-only
	// during a request; the TTL bounds staleness after administrative edits.
	permCache *lru.LRU[uuid.UUID, map[string]struct{}]
}

// NewEngine creates an authorization engine.
func NewEngine(catalog Catalog, memberships MembershipReader, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		catalog:     catalog,
		memberships: memberships,
		logger:      logger,
		permCache:   lru.NewLRU[uuid.UUID, map[string]struct{}](permCacheSize, nil, permCacheTTL),
	}
}

// Authorize reports whether userID may perform action within scope. Checks
// run broad to narrow and short-circuit: firm override, then team, then
// project. Returns ErrUnauthenticated when userID resolves to no user.
func (e *Engine) Authorize(ctx context.Context, userID uuid.UUID, action string, scope Context) (bool, error) {
	exists, err := e.memberships.UserExists(ctx, userID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, ErrUnauthenticated
	}

	// 1. Firm override.
	firmRoles, err := e.memberships.FirmRoleIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, roleID := range firmRoles {
		ok, err := e.roleGrants(ctx, roleID, action)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	// 2. Team check.
	if scope.TeamID != nil {
		roleID, err := e.memberships.TeamRoleID(ctx, userID, *scope.TeamID)
		if err != nil {
			return false, err
		}
		if roleID != nil {
			ok, err := e.roleGrants(ctx, *roleID, action)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}

	// 3. Project check.
	if scope.ProjectID != nil {
		roleID, err := e.memberships.ProjectRoleID(ctx, userID, *scope.ProjectID)
		if err != nil {
			return false, err
		}
		if roleID != nil {
			ok, err := e.roleGrants(ctx, *roleID, action)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
	}

	return false, nil
}

// AuthorizeOwned evaluates the any/own permission pair for a project-scoped
// resource. If anyAction is denied and ownAction grants, the caller's user
// must be one of the resource's owners; otherwise the deny carries
// ReasonNotOwner so the edge can report it distinctly.
func (e *Engine) AuthorizeOwned(ctx context.Context, userID uuid.UUID, anyAction, ownAction string, projectID uuid.UUID, owners []uuid.UUID) (Decision, error) {
	scope := Context{ProjectID: &projectID}

	ok, err := e.Authorize(ctx, userID, anyAction, scope)
	if err != nil {
		return Decision{}, err
	}
	if ok {
		return Decision{Allowed: true}, nil
	}

	ok, err = e.Authorize(ctx, userID, ownAction, scope)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Reason: ReasonForbidden}, nil
	}
	for _, owner := range owners {
		if owner == userID {
			return Decision{Allowed: true}, nil
		}
	}
	return Decision{Reason: ReasonNotOwner}, nil
}

func (e *Engine) roleGrants(ctx context.Context, roleID uuid.UUID, action string) (bool, error) {
	perms, ok := e.permCache.Get(roleID)
	if !ok {
		var err error
		perms, err = e.catalog.RolePermissions(ctx, roleID)
		if err != nil {
			return false, err
		}
		e.permCache.Add(roleID, perms)
	}
	_, granted := perms[action]
	return granted, nil
}
