// ABOUTME: WebAuthn ceremony manager: registration and authentication flows
// ABOUTME: Owns challenge persistence, device lookup, and signature counter checks

package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/lantern-id/lantern/internal/store"
)

// ErrInvalidChallenge is returned when a ceremony response references a
// challenge that is unknown, already consumed, expired, or issued for a
// different principal.
var ErrInvalidChallenge = errors.New("invalid or expired challenge")

// ErrUnknownCredential is returned when an assertion names a credential
// that is not registered.
var ErrUnknownCredential = errors.New("unknown credential")

// ErrSignatureInvalid is returned when a ceremony response fails
// cryptographic verification.
var ErrSignatureInvalid = errors.New("signature verification failed")

// ErrPossibleClone is returned when an authenticator's signature counter
// does not strictly advance, which suggests a cloned device.
var ErrPossibleClone = errors.New("possible cloned authenticator")

// ErrPrincipalDisabled is returned when a ceremony resolves to an
// inactive principal.
var ErrPrincipalDisabled = errors.New("principal is disabled")

// ErrNoDevices is returned when a scoped authentication ceremony is
// requested for a principal with no registered devices.
var ErrNoDevices = errors.New("no registered devices")

// DefaultChallengeTTL bounds the window between issuing ceremony options
// and receiving the response.
const DefaultChallengeTTL = 5 * time.Minute

// Store is the persistence the ceremony manager depends on.
type Store interface {
	GetPrincipal(ctx context.Context, id string) (*store.Principal, error)

	CreateDevice(ctx context.Context, d *store.Device) error
	GetDeviceByCredentialID(ctx context.Context, credentialID []byte) (*store.Device, error)
	ListDevices(ctx context.Context, principalID string) ([]*store.Device, error)
	UpdateDeviceCounter(ctx context.Context, id string, counter uint32) error
	FlagDevice(ctx context.Context, id string) error

	CreateChallenge(ctx context.Context, c *store.Challenge) error
	ConsumeChallenge(ctx context.Context, value string) (*store.Challenge, error)
}

// RegistrationCeremony is the server half of a pending registration.
// Options goes to the client; Challenge names the stored challenge row.
type RegistrationCeremony struct {
	Challenge string
	Options   *protocol.CredentialCreation
	ExpiresAt time.Time
}

// AuthenticationCeremony is the server half of a pending authentication.
type AuthenticationCeremony struct {
	Challenge string
	Options   *protocol.CredentialAssertion
	ExpiresAt time.Time
}

// Manager drives WebAuthn registration and authentication ceremonies.
// Cryptographic verification is delegated to the Verifier; the manager
// owns challenge lifecycle, device persistence, and clone detection.
type Manager struct {
	store    Store
	verifier Verifier
	ttl      time.Duration
	logger   *slog.Logger
}

// NewManager creates a ceremony manager. A non-positive ttl falls back
// to DefaultChallengeTTL.
func NewManager(s Store, verifier Verifier, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &Manager{
		store:    s,
		verifier: verifier,
		ttl:      ttl,
		logger:   slog.Default().With("component", "mfa"),
	}
}

// BeginRegistration starts a registration ceremony for a principal. The
// issued challenge is persisted with the serialized session so the finish
// call can run on any server instance.
func (m *Manager) BeginRegistration(ctx context.Context, principalID string) (*RegistrationCeremony, error) {
	p, err := m.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPrincipalDisabled
	}

	devices, err := m.store.ListDevices(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	user := &ceremonyUser{principal: p, devices: devices}
	options, session, err := m.verifier.BeginRegistration(user, excludeList(devices))
	if err != nil {
		return nil, fmt.Errorf("beginning registration: %w", err)
	}

	expiresAt, err := m.persistSession(ctx, principalID, session)
	if err != nil {
		return nil, err
	}

	m.logger.Info("registration ceremony started", "principal_id", principalID)
	return &RegistrationCeremony{
		Challenge: session.Challenge,
		Options:   options,
		ExpiresAt: expiresAt,
	}, nil
}

// FinishRegistration completes a registration ceremony and stores the new
// device. The challenge is consumed before verification, so a repeated
// response fails with ErrInvalidChallenge regardless of outcome.
func (m *Manager) FinishRegistration(ctx context.Context, principalID, challenge string, response io.Reader) (*store.Device, error) {
	ch, session, err := m.consumeSession(ctx, challenge)
	if err != nil {
		return nil, err
	}
	if ch.PrincipalID != principalID {
		return nil, fmt.Errorf("%w: challenge issued for a different principal", ErrInvalidChallenge)
	}

	p, err := m.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPrincipalDisabled
	}

	user := &ceremonyUser{principal: p}
	cred, err := m.verifier.FinishRegistration(user, *session, response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	transports, err := json.Marshal(cred.Transport)
	if err != nil {
		return nil, fmt.Errorf("encoding transports: %w", err)
	}

	device := &store.Device{
		ID:              uuid.NewString(),
		PrincipalID:     principalID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		Transports:      string(transports),
		Counter:         cred.Authenticator.SignCount,
		CreatedAt:       time.Now().UTC(),
	}
	if err := m.store.CreateDevice(ctx, device); err != nil {
		return nil, err
	}

	m.logger.Info("registered webauthn device",
		"principal_id", principalID,
		"device_id", device.ID,
		"attestation", device.AttestationType)
	return device, nil
}

// BeginAuthentication starts an authentication ceremony. With a principal
// id the options carry an allowlist of that principal's credentials; with
// an empty id the ceremony is unscoped and the credential in the response
// identifies the principal.
func (m *Manager) BeginAuthentication(ctx context.Context, principalID string) (*AuthenticationCeremony, error) {
	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		err     error
	)

	if principalID == "" {
		options, session, err = m.verifier.BeginDiscoverableLogin()
		if err != nil {
			return nil, fmt.Errorf("beginning authentication: %w", err)
		}
	} else {
		p, perr := m.store.GetPrincipal(ctx, principalID)
		if perr != nil {
			return nil, perr
		}
		if !p.Active {
			return nil, ErrPrincipalDisabled
		}

		devices, derr := m.store.ListDevices(ctx, principalID)
		if derr != nil {
			return nil, fmt.Errorf("listing devices: %w", derr)
		}
		if len(devices) == 0 {
			return nil, ErrNoDevices
		}

		options, session, err = m.verifier.BeginLogin(&ceremonyUser{principal: p, devices: devices})
		if err != nil {
			return nil, fmt.Errorf("beginning authentication: %w", err)
		}
	}

	expiresAt, err := m.persistSession(ctx, principalID, session)
	if err != nil {
		return nil, err
	}

	m.logger.Info("authentication ceremony started",
		"principal_id", principalID,
		"scoped", principalID != "")
	return &AuthenticationCeremony{
		Challenge: session.Challenge,
		Options:   options,
		ExpiresAt: expiresAt,
	}, nil
}

// FinishAuthentication completes an authentication ceremony and returns
// the authenticated principal. The challenge is consumed up front; the
// signature counter advances only after the signature verifies, and a
// counter that fails to advance flags the device and fails closed.
func (m *Manager) FinishAuthentication(ctx context.Context, challenge string, response io.Reader) (*store.Principal, error) {
	ch, session, err := m.consumeSession(ctx, challenge)
	if err != nil {
		return nil, err
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		return nil, fmt.Errorf("parsing assertion: %w", err)
	}

	device, err := m.store.GetDeviceByCredentialID(ctx, parsed.RawID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownCredential
		}
		return nil, err
	}

	// A challenge issued for one principal cannot authenticate another's
	// credential
	if ch.PrincipalID != "" && ch.PrincipalID != device.PrincipalID {
		return nil, fmt.Errorf("%w: credential belongs to a different principal", ErrInvalidChallenge)
	}

	p, err := m.store.GetPrincipal(ctx, device.PrincipalID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPrincipalDisabled
	}

	user := &ceremonyUser{principal: p, devices: []*store.Device{device}}
	cred, err := m.verifier.VerifyAssertion(user, *session, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	if err := m.store.UpdateDeviceCounter(ctx, device.ID, cred.Authenticator.SignCount); err != nil {
		if errors.Is(err, store.ErrCounterRegression) {
			m.logger.Warn("authenticator counter regressed, possible clone",
				"principal_id", p.ID,
				"device_id", device.ID,
				"stored", device.Counter,
				"reported", cred.Authenticator.SignCount)
			if flagErr := m.store.FlagDevice(ctx, device.ID); flagErr != nil {
				m.logger.Error("flagging device failed", "device_id", device.ID, "error", flagErr)
			}
			return nil, fmt.Errorf("%w: counter reported %d, stored %d",
				ErrPossibleClone, cred.Authenticator.SignCount, device.Counter)
		}
		return nil, err
	}

	m.logger.Info("authentication succeeded", "principal_id", p.ID, "device_id", device.ID)
	return p, nil
}

// persistSession stores the verifier's session keyed by its challenge.
func (m *Manager) persistSession(ctx context.Context, principalID string, session *webauthn.SessionData) (time.Time, error) {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return time.Time{}, fmt.Errorf("encoding session: %w", err)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(m.ttl)
	err = m.store.CreateChallenge(ctx, &store.Challenge{
		Value:       session.Challenge,
		PrincipalID: principalID,
		SessionData: sessionJSON,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("persisting challenge: %w", err)
	}
	return expiresAt, nil
}

// consumeSession removes the challenge row and decodes its session. The
// row is gone after this call even when the challenge turns out to be
// expired: single use holds on every path.
func (m *Manager) consumeSession(ctx context.Context, challenge string) (*store.Challenge, *webauthn.SessionData, error) {
	ch, err := m.store.ConsumeChallenge(ctx, challenge)
	if err != nil {
		if errors.Is(err, store.ErrChallengeNotFound) {
			return nil, nil, fmt.Errorf("%w: unknown or already consumed", ErrInvalidChallenge)
		}
		return nil, nil, err
	}

	if time.Now().After(ch.ExpiresAt) {
		return nil, nil, fmt.Errorf("%w: expired at %s", ErrInvalidChallenge, ch.ExpiresAt.Format(time.RFC3339))
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(ch.SessionData, &session); err != nil {
		return nil, nil, fmt.Errorf("decoding session: %w", err)
	}
	return ch, &session, nil
}

// excludeList converts registered devices into credential descriptors so
// the authenticator refuses to re-register one it already holds.
func excludeList(devices []*store.Device) []protocol.CredentialDescriptor {
	var out []protocol.CredentialDescriptor
	for _, d := range devices {
		out = append(out, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: d.CredentialID,
		})
	}
	return out
}

// ceremonyUser adapts a principal and its devices to the webauthn.User
// interface.
type ceremonyUser struct {
	principal *store.Principal
	devices   []*store.Device
}

var _ webauthn.User = (*ceremonyUser)(nil)

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.principal.ID)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.principal.Nickname
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.principal.Nickname
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.devices))
	for _, d := range u.devices {
		var transports []protocol.AuthenticatorTransport
		if d.Transports != "" {
			// Best effort: a device with unreadable transports is still usable
			_ = json.Unmarshal([]byte(d.Transports), &transports)
		}
		creds = append(creds, webauthn.Credential{
			ID:              d.CredentialID,
			PublicKey:       d.PublicKey,
			AttestationType: d.AttestationType,
			Transport:       transports,
			Authenticator: webauthn.Authenticator{
				SignCount: d.Counter,
			},
		})
	}
	return creds
}
