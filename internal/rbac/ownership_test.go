package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bugtrail/bugtrail/internal/shared"
)

type stubResource struct {
	author   int64
	assignee *int64
}

func (r stubResource) ResourceAuthorID() int64 {
	return r.author
}

func (r stubResource) ResourceAssigneeID() (int64, bool) {
	if r.assignee == nil {
		return 0, false
	}
	return *r.assignee, true
}

func ownershipStore() *MemoryStore {
	return NewMemoryStore(
		Role{Name: "manager", Permissions: map[string]bool{shared.PermEditAnyBug: true}},
		Role{Name: "author", Permissions: map[string]bool{shared.PermEditMyBug: true}},
		Role{Name: "assignee", Permissions: map[string]bool{shared.PermEditIfAssigned: true}},
	)
}

func TestAuthorizeResourceAnyVariant(t *testing.T) {
	eval := NewEvaluator(ownershipStore())
	ident := &shared.Identity{ID: 1, Roles: []string{"manager"}}
	res := stubResource{author: 99}

	decision, err := eval.AuthorizeResource(context.Background(), ident, res, CapEditBug)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestAuthorizeResourceOwnVariant(t *testing.T) {
	eval := NewEvaluator(ownershipStore())
	ident := &shared.Identity{ID: 5, Roles: []string{"author"}}

	decision, err := eval.AuthorizeResource(context.Background(), ident, stubResource{author: 5}, CapEditBug)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = eval.AuthorizeResource(context.Background(), ident, stubResource{author: 6}, CapEditBug)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonForbidden, decision.Reason)
}

func TestAuthorizeResourceIfAssignedVariant(t *testing.T) {
	eval := NewEvaluator(ownershipStore())
	ident := &shared.Identity{ID: 5, Roles: []string{"assignee"}}
	me := int64(5)
	other := int64(9)

	decision, err := eval.AuthorizeResource(context.Background(), ident, stubResource{author: 1, assignee: &me}, CapEditBug)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = eval.AuthorizeResource(context.Background(), ident, stubResource{author: 1, assignee: &other}, CapEditBug)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)

	// Unassigned resource never satisfies the if-assigned variant.
	decision, err = eval.AuthorizeResource(context.Background(), ident, stubResource{author: 1}, CapEditBug)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestAuthorizeResourceCapabilityWithoutOwnVariant(t *testing.T) {
	store := NewMemoryStore(
		Role{Name: "author", Permissions: map[string]bool{
			shared.PermEditMyBug: true,
		}},
	)
	eval := NewEvaluator(store)
	ident := &shared.Identity{ID: 5, Roles: []string{"author"}}

	// Reassign has no own-variant, so authorship alone never grants it.
	decision, err := eval.AuthorizeResource(context.Background(), ident, stubResource{author: 5}, CapReassignBug)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonForbidden, decision.Reason)
}

func TestAuthorizeResourceUnauthenticated(t *testing.T) {
	eval := NewEvaluator(ownershipStore())

	decision, err := eval.AuthorizeResource(context.Background(), nil, stubResource{author: 1}, CapEditBug)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonUnauthenticated, decision.Reason)
}
