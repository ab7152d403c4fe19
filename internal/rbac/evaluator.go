package rbac

import (
	"context"
	"fmt"

	"github.com/bugtrail/bugtrail/internal/shared"
)

// Evaluator decides whether an identity may perform an action. Every check
// re-reads the role store, so a permission revoked between requests takes
// effect on the next request. A storage fault surfaces as an error (mapped
// to 500 by callers), never as a grant.
type Evaluator struct {
	store RoleStore
}

// NewEvaluator constructs an Evaluator over the given role store.
func NewEvaluator(store RoleStore) *Evaluator {
	return &Evaluator{store: store}
}

// Require allows iff at least one of the identity's roles grants perm.
func (e *Evaluator) Require(ctx context.Context, ident *shared.Identity, perm string) (Decision, error) {
	return e.RequireAny(ctx, ident, perm)
}

// RequireAny allows iff the union of permissions across the identity's roles
// intersects perms. On deny, Missing lists every requested permission the
// identity lacked.
func (e *Evaluator) RequireAny(ctx context.Context, ident *shared.Identity, perms ...string) (Decision, error) {
	granted, decision, err := e.grantedSet(ctx, ident)
	if err != nil || !decision.Allowed {
		return decision, err
	}
	for _, perm := range perms {
		if _, ok := granted[perm]; ok {
			return Allow(), nil
		}
	}
	return Deny(ReasonInsufficientPermission, append([]string(nil), perms...)...), nil
}

// RequireAll allows iff the union of permissions across the identity's roles
// is a superset of perms. On deny, Missing is the exact set difference.
func (e *Evaluator) RequireAll(ctx context.Context, ident *shared.Identity, perms ...string) (Decision, error) {
	granted, decision, err := e.grantedSet(ctx, ident)
	if err != nil || !decision.Allowed {
		return decision, err
	}
	var missing []string
	for _, perm := range perms {
		if _, ok := granted[perm]; !ok {
			missing = append(missing, perm)
		}
	}
	if len(missing) > 0 {
		return Deny(ReasonInsufficientPermission, missing...), nil
	}
	return Allow(), nil
}

// grantedSet resolves the union of granted permissions for the identity,
// short-circuiting the unauthenticated and role-less cases.
func (e *Evaluator) grantedSet(ctx context.Context, ident *shared.Identity) (map[string]struct{}, Decision, error) {
	if ident == nil {
		return nil, Deny(ReasonUnauthenticated), nil
	}
	if !ident.HasRoles() {
		return nil, Deny(ReasonNoRole), nil
	}
	roles, err := e.store.GetRoles(ctx, ident.Roles)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("rbac: resolve roles: %w", err)
	}
	// A role label pointing at a since-deleted document simply contributes
	// nothing to the union. Fail-closed, not an error.
	granted := make(map[string]struct{})
	for _, role := range roles {
		for perm, ok := range role.Permissions {
			if ok {
				granted[perm] = struct{}{}
			}
		}
	}
	return granted, Allow(), nil
}
