// ABOUTME: Tests for identity uniqueness and principal+identity creation
// ABOUTME: Covers the atomic conditional insert, primary semantics, verification

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDraft(id, nickname string) *Principal {
	now := time.Now().UTC().Truncate(time.Second)
	return &Principal{
		ID:         id,
		Type:       PrincipalTypeUser,
		Nickname:   nickname,
		Active:     true,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

func TestIdentityStore_CreatePrincipalWithIdentity(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.CreatePrincipalWithIdentity(ctx, newDraft("p-1", "alice"), &Identity{
		PrincipalID: "p-1",
		URI:         "https://idp.example/alice",
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	p, err := store.GetPrincipalByIdentity(ctx, "https://idp.example/alice")
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.ID)
	assert.Equal(t, "alice", p.Nickname)
}

func TestIdentityStore_DuplicateURI_SecondCreateLoses(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	uri := "https://idp.example/alice"

	err := store.CreatePrincipalWithIdentity(ctx, newDraft("p-1", "alice"), &Identity{
		PrincipalID: "p-1",
		URI:         uri,
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	// Second create with the same identity and a different nickname
	err = store.CreatePrincipalWithIdentity(ctx, newDraft("p-2", "mallory"), &Identity{
		PrincipalID: "p-2",
		URI:         uri,
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	// The transaction rolled back: the losing principal was never persisted
	_, err = store.GetPrincipal(ctx, "p-2")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)

	// The store still contains exactly one principal, named alice
	all, err := store.ListPrincipals(ctx, PrincipalFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "alice", all[0].Nickname)
}

func TestIdentityStore_CreateIdentity_DuplicateURI(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	makePrincipal(t, store, "p-1", PrincipalTypeUser)
	makePrincipal(t, store, "p-2", PrincipalTypeUser)

	uri := "https://idp.example/alice"
	require.NoError(t, store.CreateIdentity(ctx, &Identity{
		PrincipalID: "p-1",
		URI:         uri,
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	}))

	// Attaching the same URI to another principal is a conflict,
	// never a silent merge
	err := store.CreateIdentity(ctx, &Identity{
		PrincipalID: "p-2",
		URI:         uri,
		CreatedAt:   time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestIdentityStore_SecondPrimaryRejected(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	makePrincipal(t, store, "p-1", PrincipalTypeUser)

	require.NoError(t, store.CreateIdentity(ctx, &Identity{
		PrincipalID: "p-1",
		URI:         "https://idp.example/alice",
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	}))

	err := store.CreateIdentity(ctx, &Identity{
		PrincipalID: "p-1",
		URI:         "mailto:alice@example.org",
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrPrimaryIdentityExists)

	// A secondary identity is fine
	require.NoError(t, store.CreateIdentity(ctx, &Identity{
		PrincipalID: "p-1",
		URI:         "mailto:alice@example.org",
		CreatedAt:   time.Now().UTC(),
	}))

	identities, err := store.ListIdentities(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, identities, 2)
	assert.True(t, identities[0].IsPrimary)
	assert.False(t, identities[1].IsPrimary)
}

func TestIdentityStore_GetPrincipalByIdentity_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetPrincipalByIdentity(ctx, "https://idp.example/nobody")
	assert.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestIdentityStore_MarkVerified(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	makePrincipal(t, store, "p-1", PrincipalTypeUser)
	require.NoError(t, store.CreateIdentity(ctx, &Identity{
		PrincipalID: "p-1",
		URI:         "https://idp.example/alice",
		IsPrimary:   true,
		CreatedAt:   time.Now().UTC(),
	}))

	identities, err := store.ListIdentities(ctx, "p-1")
	require.NoError(t, err)
	require.Len(t, identities, 1)
	assert.Nil(t, identities[0].VerifiedAt)

	require.NoError(t, store.MarkIdentityVerified(ctx, "https://idp.example/alice"))

	identities, err = store.ListIdentities(ctx, "p-1")
	require.NoError(t, err)
	require.NotNil(t, identities[0].VerifiedAt)
}

func TestIdentityStore_MarkVerified_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.MarkIdentityVerified(ctx, "https://idp.example/nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}
