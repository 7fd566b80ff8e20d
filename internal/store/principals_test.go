// ABOUTME: Tests for principal CRUD store operations
// ABOUTME: Covers create, get, update semantics, filtering, delete cascade

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalStore_Create(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	p := &Principal{
		ID:         "principal-123",
		Type:       PrincipalTypeUser,
		Nickname:   "alice",
		Active:     true,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	err := store.CreatePrincipal(ctx, p)
	require.NoError(t, err)

	// Verify we can retrieve it
	retrieved, err := store.GetPrincipal(ctx, "principal-123")
	require.NoError(t, err)
	assert.Equal(t, "principal-123", retrieved.ID)
	assert.Equal(t, PrincipalTypeUser, retrieved.Type)
	assert.Equal(t, "alice", retrieved.Nickname)
	assert.True(t, retrieved.Active)
	assert.Equal(t, now, retrieved.CreatedAt)
}

func TestPrincipalStore_Get_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetPrincipal(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestPrincipalStore_Update_PreservesCreatedAt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	p := &Principal{
		ID:         "principal-123",
		Type:       PrincipalTypeUser,
		Nickname:   "alice",
		Active:     true,
		CreatedAt:  created,
		ModifiedAt: created,
	}
	require.NoError(t, store.CreatePrincipal(ctx, p))

	modified := time.Now().UTC().Truncate(time.Second)
	p.Nickname = "alice2"
	p.Active = false
	p.ModifiedAt = modified

	require.NoError(t, store.UpdatePrincipal(ctx, p))

	retrieved, err := store.GetPrincipal(ctx, "principal-123")
	require.NoError(t, err)
	assert.Equal(t, "alice2", retrieved.Nickname)
	assert.False(t, retrieved.Active)
	assert.Equal(t, created, retrieved.CreatedAt)
	assert.Equal(t, modified, retrieved.ModifiedAt)
}

func TestPrincipalStore_Update_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	p := &Principal{
		ID:         "ghost",
		Type:       PrincipalTypeUser,
		Nickname:   "ghost",
		Active:     true,
		CreatedAt:  now,
		ModifiedAt: now,
	}

	err := store.UpdatePrincipal(ctx, p)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestPrincipalStore_List_FilterByType(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	makePrincipal(t, store, "user-1", PrincipalTypeUser)
	makePrincipal(t, store, "user-2", PrincipalTypeUser)
	makePrincipal(t, store, "app-1", PrincipalTypeApp)
	makePrincipal(t, store, "group-1", PrincipalTypeGroup)

	userType := PrincipalTypeUser
	users, err := store.ListPrincipals(ctx, PrincipalFilter{Type: &userType})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	for _, u := range users {
		assert.Equal(t, PrincipalTypeUser, u.Type)
	}

	all, err := store.ListPrincipals(ctx, PrincipalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestPrincipalStore_List_FilterByActive(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	makePrincipal(t, store, "active-1", PrincipalTypeUser)
	inactive := makePrincipal(t, store, "inactive-1", PrincipalTypeUser)
	inactive.Active = false
	inactive.ModifiedAt = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.UpdatePrincipal(ctx, inactive))

	active := true
	got, err := store.ListPrincipals(ctx, PrincipalFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "active-1", got[0].ID)
}

func TestPrincipalStore_Delete_CascadesOwnedRows(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "principal-123", PrincipalTypeUser)
	require.NoError(t, store.CreateIdentity(ctx, &Identity{
		PrincipalID: p.ID,
		URI:         "https://idp.example/alice",
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	}))
	require.NoError(t, store.CreateDevice(ctx, &Device{
		ID:           "device-1",
		PrincipalID:  p.ID,
		CredentialID: []byte("cred-1"),
		PublicKey:    []byte("pk-1"),
		CreatedAt:    time.Now().UTC(),
	}))
	require.NoError(t, store.AddGrant(ctx, &Grant{PrincipalID: p.ID, Privilege: "admin"}))

	require.NoError(t, store.DeletePrincipal(ctx, p.ID))

	_, err := store.GetPrincipal(ctx, p.ID)
	assert.ErrorIs(t, err, ErrPrincipalNotFound)

	// Owned rows must be gone with the principal
	_, err = store.GetPrincipalByIdentity(ctx, "https://idp.example/alice")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)

	_, err = store.GetDeviceByCredentialID(ctx, []byte("cred-1"))
	assert.ErrorIs(t, err, ErrNotFound)

	grants, err := store.ListGrants(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestPrincipalStore_Delete_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.DeletePrincipal(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestPrincipalStore_PasswordHash(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "principal-123", PrincipalTypeUser)

	_, err := store.GetPasswordHash(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetPasswordHash(ctx, p.ID, "hash-1"))

	hash, err := store.GetPasswordHash(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-1", hash)

	// Setting again replaces the stored hash
	require.NoError(t, store.SetPasswordHash(ctx, p.ID, "hash-2"))
	hash, err = store.GetPasswordHash(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", hash)
}
