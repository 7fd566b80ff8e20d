// ABOUTME: Tests for the single-use challenge store
// ABOUTME: Covers atomic consumption, second-consume failure, expiry cleanup

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeStore_CreateAndConsume(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	c := &Challenge{
		Value:       "challenge-abc",
		PrincipalID: "p-1",
		SessionData: []byte(`{"challenge":"challenge-abc"}`),
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}
	require.NoError(t, store.CreateChallenge(ctx, c))

	got, err := store.ConsumeChallenge(ctx, "challenge-abc")
	require.NoError(t, err)
	assert.Equal(t, "p-1", got.PrincipalID)
	assert.Equal(t, []byte(`{"challenge":"challenge-abc"}`), got.SessionData)
	assert.Equal(t, now.Add(5*time.Minute), got.ExpiresAt)
}

func TestChallengeStore_Consume_SingleUse(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.CreateChallenge(ctx, &Challenge{
		Value:       "challenge-abc",
		SessionData: []byte("{}"),
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}))

	_, err := store.ConsumeChallenge(ctx, "challenge-abc")
	require.NoError(t, err)

	// A challenge can only ever be observed once
	_, err = store.ConsumeChallenge(ctx, "challenge-abc")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_Consume_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.ConsumeChallenge(ctx, "never-issued")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_Consume_ExpiredRowStillConsumed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.CreateChallenge(ctx, &Challenge{
		Value:       "challenge-old",
		SessionData: []byte("{}"),
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(-55 * time.Minute),
	}))

	// The store hands the row back and deletes it; expiry is the caller's
	// decision
	got, err := store.ConsumeChallenge(ctx, "challenge-old")
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Before(now))

	_, err = store.ConsumeChallenge(ctx, "challenge-old")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_UnscopedChallenge(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.CreateChallenge(ctx, &Challenge{
		Value:       "challenge-anon",
		SessionData: []byte("{}"),
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}))

	got, err := store.ConsumeChallenge(ctx, "challenge-anon")
	require.NoError(t, err)
	assert.Empty(t, got.PrincipalID)
}

func TestChallengeStore_DeleteExpired(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.CreateChallenge(ctx, &Challenge{
		Value:       "challenge-old",
		SessionData: []byte("{}"),
		CreatedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(-55 * time.Minute),
	}))
	require.NoError(t, store.CreateChallenge(ctx, &Challenge{
		Value:       "challenge-live",
		SessionData: []byte("{}"),
		CreatedAt:   now,
		ExpiresAt:   now.Add(5 * time.Minute),
	}))

	require.NoError(t, store.DeleteExpiredChallenges(ctx))

	_, err := store.ConsumeChallenge(ctx, "challenge-old")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	_, err = store.ConsumeChallenge(ctx, "challenge-live")
	require.NoError(t, err)
}
