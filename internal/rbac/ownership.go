package rbac

import (
	"context"

	"github.com/bugtrail/bugtrail/internal/shared"
)

// Capability groups the permission variants guarding one family of mutations
// on a specific resource. An empty field means that variant does not apply.
type Capability struct {
	// Any grants the mutation on every resource.
	Any string
	// Own grants the mutation when the identity authored the resource.
	Own string
	// IfAssigned grants the mutation when the identity is the current
	// assignee.
	IfAssigned string
}

// Capability families for bug mutations.
var (
	CapEditBug = Capability{
		Any:        shared.PermEditAnyBug,
		Own:        shared.PermEditMyBug,
		IfAssigned: shared.PermEditIfAssigned,
	}
	CapReassignBug = Capability{
		Any:        shared.PermReassignAnyBug,
		IfAssigned: shared.PermReassignIfAssigned,
	}
	CapClassifyBug = Capability{
		Any:        shared.PermClassifyAnyBug,
		IfAssigned: shared.PermClassifyIfAssigned,
	}
)

// Resource exposes the ownership attributes the evaluator needs. Handlers
// fetch the resource fresh from the store before calling the evaluator;
// client-supplied state is never trusted.
type Resource interface {
	ResourceAuthorID() int64
	// ResourceAssigneeID returns the current assignee and whether one is set.
	ResourceAssigneeID() (int64, bool)
}

// AuthorizeResource runs the ownership decision table in order, first match
// wins: holding the Any variant allows; authoring the resource with the Own
// variant allows; being the current assignee with the IfAssigned variant
// allows; anything else denies as forbidden.
//
// The check is a pure function of (identity, resource snapshot, role store
// snapshot); nothing is cached or mutated.
func (e *Evaluator) AuthorizeResource(ctx context.Context, ident *shared.Identity, res Resource, capability Capability) (Decision, error) {
	granted, decision, err := e.grantedSet(ctx, ident)
	if err != nil || !decision.Allowed {
		return decision, err
	}
	has := func(perm string) bool {
		if perm == "" {
			return false
		}
		_, ok := granted[perm]
		return ok
	}
	if has(capability.Any) {
		return Allow(), nil
	}
	if has(capability.Own) && res.ResourceAuthorID() == ident.ID {
		return Allow(), nil
	}
	if has(capability.IfAssigned) {
		if assignee, ok := res.ResourceAssigneeID(); ok && assignee == ident.ID {
			return Allow(), nil
		}
	}
	return Deny(ReasonForbidden), nil
}
