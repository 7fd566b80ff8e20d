// ABOUTME: Tests for privilege grant and group membership store operations
// ABOUTME: Covers idempotent add/remove, listing, and group lookups

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrivilegeStore_AddAndListGrants(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)

	require.NoError(t, store.AddGrant(ctx, &Grant{PrincipalID: p.ID, Privilege: "admin"}))
	require.NoError(t, store.AddGrant(ctx, &Grant{
		PrincipalID: p.ID,
		Privilege:   "read",
		ScopeTarget: "https://api.example/reports",
	}))

	grants, err := store.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, "admin", grants[0].Privilege)
	assert.Equal(t, "", grants[0].ScopeTarget)
	assert.Equal(t, "read", grants[1].Privilege)
	assert.Equal(t, "https://api.example/reports", grants[1].ScopeTarget)
}

func TestPrivilegeStore_AddGrant_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)

	require.NoError(t, store.AddGrant(ctx, &Grant{PrincipalID: p.ID, Privilege: "admin"}))
	require.NoError(t, store.AddGrant(ctx, &Grant{PrincipalID: p.ID, Privilege: "admin"}))

	grants, err := store.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestPrivilegeStore_RemoveGrant(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	require.NoError(t, store.AddGrant(ctx, &Grant{PrincipalID: p.ID, Privilege: "admin"}))

	require.NoError(t, store.RemoveGrant(ctx, p.ID, "admin", ""))

	grants, err := store.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)

	// Removing again succeeds silently
	require.NoError(t, store.RemoveGrant(ctx, p.ID, "admin", ""))
}

func TestPrivilegeStore_ListGrants_Empty(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)

	grants, err := store.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, grants)
	assert.Empty(t, grants)
}

func TestPrivilegeStore_GroupMembership(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user := makePrincipal(t, store, "user-1", PrincipalTypeUser)
	group := makePrincipal(t, store, "group-1", PrincipalTypeGroup)

	groups, err := store.ListGroupsFor(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)

	require.NoError(t, store.AddGroupMember(ctx, group.ID, user.ID))
	// Idempotent
	require.NoError(t, store.AddGroupMember(ctx, group.ID, user.ID))

	groups, err = store.ListGroupsFor(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"group-1"}, groups)

	require.NoError(t, store.RemoveGroupMember(ctx, group.ID, user.ID))
	groups, err = store.ListGroupsFor(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
