// ABOUTME: Tests for WebAuthn device store operations
// ABOUTME: Covers duplicate credential rejection and the atomic counter update

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDevice(t *testing.T, s *SQLiteStore, id, principalID string, credID []byte, counter uint32) *Device {
	t.Helper()
	d := &Device{
		ID:           id,
		PrincipalID:  principalID,
		CredentialID: credID,
		PublicKey:    []byte("public-key"),
		Counter:      counter,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.CreateDevice(context.Background(), d))
	return d
}

func TestDeviceStore_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	makeDevice(t, store, "device-1", p.ID, []byte("cred-1"), 0)

	d, err := store.GetDeviceByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, "device-1", d.ID)
	assert.Equal(t, p.ID, d.PrincipalID)
	assert.Equal(t, []byte("public-key"), d.PublicKey)
	assert.Equal(t, uint32(0), d.Counter)
	assert.Nil(t, d.FlaggedAt)
}

func TestDeviceStore_DuplicateCredential(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p1 := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	p2 := makePrincipal(t, store, "p-2", PrincipalTypeUser)
	makeDevice(t, store, "device-1", p1.ID, []byte("cred-1"), 0)

	// The same credential ID can never be registered twice,
	// not even to a different principal
	err := store.CreateDevice(ctx, &Device{
		ID:           "device-2",
		PrincipalID:  p2.ID,
		CredentialID: []byte("cred-1"),
		PublicKey:    []byte("other-key"),
		CreatedAt:    time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateCredential)
}

func TestDeviceStore_GetByCredentialID_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetDeviceByCredentialID(ctx, []byte("nonexistent"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceStore_UpdateCounter_Advances(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	makeDevice(t, store, "device-1", p.ID, []byte("cred-1"), 0)

	// Initial counter 0: any reported value is accepted
	require.NoError(t, store.UpdateDeviceCounter(ctx, "device-1", 5))

	d, err := store.GetDeviceByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), d.Counter)

	require.NoError(t, store.UpdateDeviceCounter(ctx, "device-1", 6))
}

func TestDeviceStore_UpdateCounter_Regression(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	makeDevice(t, store, "device-1", p.ID, []byte("cred-1"), 0)
	require.NoError(t, store.UpdateDeviceCounter(ctx, "device-1", 5))

	// A replayed counter must not advance the stored value
	err := store.UpdateDeviceCounter(ctx, "device-1", 5)
	assert.ErrorIs(t, err, ErrCounterRegression)

	err = store.UpdateDeviceCounter(ctx, "device-1", 3)
	assert.ErrorIs(t, err, ErrCounterRegression)

	d, err := store.GetDeviceByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(5), d.Counter)
}

func TestDeviceStore_UpdateCounter_ZeroExempt(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	makeDevice(t, store, "device-1", p.ID, []byte("cred-1"), 0)

	// Authenticators that never report a counter keep sending zero;
	// a stored zero exempts the device from the strict-increase check
	require.NoError(t, store.UpdateDeviceCounter(ctx, "device-1", 0))

	d, err := store.GetDeviceByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), d.Counter)
}

func TestDeviceStore_UpdateCounter_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.UpdateDeviceCounter(ctx, "nonexistent", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceStore_FlagDevice(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	makeDevice(t, store, "device-1", p.ID, []byte("cred-1"), 0)

	require.NoError(t, store.FlagDevice(ctx, "device-1"))

	d, err := store.GetDeviceByCredentialID(ctx, []byte("cred-1"))
	require.NoError(t, err)
	require.NotNil(t, d.FlaggedAt)

	err = store.FlagDevice(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceStore_ListAndDelete(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	p := makePrincipal(t, store, "p-1", PrincipalTypeUser)
	makeDevice(t, store, "device-1", p.ID, []byte("cred-1"), 0)
	makeDevice(t, store, "device-2", p.ID, []byte("cred-2"), 0)

	devices, err := store.ListDevices(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	require.NoError(t, store.DeleteDevice(ctx, "device-1"))

	devices, err = store.ListDevices(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	err = store.DeleteDevice(ctx, "device-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
