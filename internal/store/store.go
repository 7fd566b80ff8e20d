// ABOUTME: Store data types and sentinel errors for lantern persistence
// ABOUTME: Defines Principal, Identity, Grant, Device, Challenge and store interfaces

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrPrincipalNotFound is returned when a principal doesn't exist
var ErrPrincipalNotFound = errors.New("principal not found")

// ErrDuplicateIdentity is returned when an identity URI is already bound
// to a principal
var ErrDuplicateIdentity = errors.New("identity already exists")

// ErrPrimaryIdentityExists is returned when a principal already has a
// primary identity
var ErrPrimaryIdentityExists = errors.New("principal already has a primary identity")

// ErrDuplicateCredential is returned when a WebAuthn credential ID is
// already registered
var ErrDuplicateCredential = errors.New("credential already registered")

// ErrChallengeNotFound is returned when a challenge doesn't exist or was
// already consumed
var ErrChallengeNotFound = errors.New("challenge not found")

// ErrCounterRegression is returned when a device counter update does not
// strictly advance the stored value
var ErrCounterRegression = errors.New("device counter did not advance")

// PrincipalType represents the kind of authenticatable entity
type PrincipalType string

const (
	PrincipalTypeUser  PrincipalType = "user"
	PrincipalTypeApp   PrincipalType = "app"
	PrincipalTypeGroup PrincipalType = "group"
)

// ValidPrincipalTypes lists all valid principal types
var ValidPrincipalTypes = []PrincipalType{
	PrincipalTypeUser,
	PrincipalTypeApp,
	PrincipalTypeGroup,
}

// Principal represents any authenticatable entity: a user, an application,
// or a group. Inactive principals are excluded from authentication success
// paths.
type Principal struct {
	ID         string
	Type       PrincipalType
	Nickname   string
	Active     bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// PrincipalFilter narrows ListPrincipals results
type PrincipalFilter struct {
	Type   *PrincipalType
	Active *bool
}

// Identity is an external, globally unique URI naming a principal.
// A principal may hold several identities but at most one primary.
type Identity struct {
	PrincipalID string
	URI         string
	IsPrimary   bool
	Label       string
	VerifiedAt  *time.Time
	CreatedAt   time.Time
}

// Grant assigns a named privilege to a principal, optionally scoped to a
// resource. An empty ScopeTarget means the grant is unscoped.
type Grant struct {
	PrincipalID string
	Privilege   string
	ScopeTarget string
	CreatedAt   time.Time
}

// Device represents a registered WebAuthn authenticator credential.
// Counter is monotonically non-decreasing across successful
// authentications; a stored value of zero exempts the device from clone
// detection.
type Device struct {
	ID              string
	PrincipalID     string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      string // JSON array
	Counter         uint32
	FlaggedAt       *time.Time
	CreatedAt       time.Time
}

// Challenge is a short-lived, single-use random value binding a WebAuthn
// ceremony request to its response. PrincipalID is empty for unscoped
// (discoverable) authentication ceremonies.
type Challenge struct {
	Value       string
	PrincipalID string
	SessionData []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// PrincipalStore defines the interface for principal and identity persistence.
type PrincipalStore interface {
	CreatePrincipal(ctx context.Context, p *Principal) error
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	UpdatePrincipal(ctx context.Context, p *Principal) error
	ListPrincipals(ctx context.Context, filter PrincipalFilter) ([]*Principal, error)
	DeletePrincipal(ctx context.Context, id string) error

	CreatePrincipalWithIdentity(ctx context.Context, p *Principal, ident *Identity) error
	CreateIdentity(ctx context.Context, ident *Identity) error
	GetPrincipalByIdentity(ctx context.Context, uri string) (*Principal, error)
	ListIdentities(ctx context.Context, principalID string) ([]*Identity, error)
	MarkIdentityVerified(ctx context.Context, uri string) error

	SetPasswordHash(ctx context.Context, principalID, hash string) error
	GetPasswordHash(ctx context.Context, principalID string) (string, error)
}

// PrivilegeStore defines the interface for grant and membership persistence.
// All read methods are pure: evaluating a privilege never mutates state.
type PrivilegeStore interface {
	AddGrant(ctx context.Context, g *Grant) error
	RemoveGrant(ctx context.Context, principalID, privilege, scopeTarget string) error
	ListGrants(ctx context.Context, principalID string) ([]*Grant, error)

	AddGroupMember(ctx context.Context, groupID, principalID string) error
	RemoveGroupMember(ctx context.Context, groupID, principalID string) error
	ListGroupsFor(ctx context.Context, principalID string) ([]string, error)
}

// DeviceStore defines the interface for WebAuthn device persistence.
type DeviceStore interface {
	CreateDevice(ctx context.Context, d *Device) error
	GetDeviceByCredentialID(ctx context.Context, credentialID []byte) (*Device, error)
	ListDevices(ctx context.Context, principalID string) ([]*Device, error)
	UpdateDeviceCounter(ctx context.Context, id string, counter uint32) error
	FlagDevice(ctx context.Context, id string) error
	DeleteDevice(ctx context.Context, id string) error
}

// ChallengeStore defines the interface for single-use ceremony challenges.
type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c *Challenge) error
	ConsumeChallenge(ctx context.Context, value string) (*Challenge, error)
	DeleteExpiredChallenges(ctx context.Context) error
}
