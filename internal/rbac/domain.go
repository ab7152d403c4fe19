// Package rbac implements role-based authorization: a durable role store,
// a permission evaluator with union-across-roles semantics, an ownership
// evaluator for author/assignee-scoped mutations, and HTTP gate middleware.
package rbac

import "time"

// Role is a named bundle of boolean permissions, stored independently of any
// individual identity. A permission absent from the map counts as false.
type Role struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Permissions map[string]bool `json:"permissions"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Grants reports whether the role grants the named permission.
func (r Role) Grants(perm string) bool {
	return r.Permissions[perm]
}

// DenyReason distinguishes why a check failed. Authentication failures are
// never conflated with authorization failures.
type DenyReason string

const (
	ReasonUnauthenticated        DenyReason = "authentication required"
	ReasonNoRole                 DenyReason = "no role assigned"
	ReasonInsufficientPermission DenyReason = "insufficient permission"
	ReasonForbidden              DenyReason = "forbidden"
)

// Decision is the transient outcome of evaluating an identity against
// required permissions. It is never persisted.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// Missing lists the permission names the identity lacked, supporting
	// precise client-side error messages.
	Missing []string
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with the given reason.
func Deny(reason DenyReason, missing ...string) Decision {
	return Decision{Reason: reason, Missing: missing}
}

// Status maps the decision to the HTTP status it should produce.
func (d Decision) Status() int {
	if d.Allowed {
		return 200
	}
	if d.Reason == ReasonUnauthenticated {
		return 401
	}
	return 403
}
