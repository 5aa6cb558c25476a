// Package memberships implements the membership mutation service: every
// write to team/project memberships, join requests, invitations and manager
// transfers goes through here, so the scope invariants (single manager per
// team, at least one project owner) hold across concurrent writers.
package memberships

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure. Kinds map to distinct HTTP statuses at
// the edge and are stable machine-readable identifiers.
type Kind string

const (
	KindAlreadyMember  Kind = "already_member"
	KindAlreadyManager Kind = "already_manager"
	KindDuplicate      Kind = "duplicate"
	KindForbidden      Kind = "forbidden"
	KindInvalidRole    Kind = "invalid_role"
	KindLastOwner      Kind = "last_owner"
	KindMisconfigured  Kind = "misconfigured_defaults"
	KindNotFound       Kind = "not_found"
)

// Fault is a structured domain failure. It is rejected before any write:
// a returned Fault means no state changed.
type Fault struct {
	Kind    Kind
	Message string
}

func (f *Fault) Error() string {
	return f.Message
}

// HTTPStatus maps a failure kind to its response status.
func (f *Fault) HTTPStatus() int {
	switch f.Kind {
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicate, KindAlreadyMember, KindAlreadyManager:
		return http.StatusConflict
	case KindInvalidRole, KindMisconfigured:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// AsFault unwraps a Fault from err, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func faultf(kind Kind, format string, args ...interface{}) *Fault {
	return &Fault{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
