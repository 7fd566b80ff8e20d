// ABOUTME: WebAuthn ceremony crypto delegated to the go-webauthn library
// ABOUTME: The Verifier interface is the trusted collaborator boundary for the core

package mfa

import (
	"fmt"
	"io"
	"net/url"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Verifier abstracts the cryptographic half of a WebAuthn ceremony:
// challenge generation, attestation checking, and assertion signature
// verification. The ceremony manager treats it as a trusted collaborator
// and owns everything else - challenge persistence, device lookup, and
// the counter invariant.
type Verifier interface {
	BeginRegistration(user webauthn.User, excluded []protocol.CredentialDescriptor) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	FinishRegistration(user webauthn.User, session webauthn.SessionData, response io.Reader) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin() (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	VerifyAssertion(user webauthn.User, session webauthn.SessionData, assertion *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
}

// RelyingParty identifies this server to authenticators.
type RelyingParty struct {
	DisplayName string
	ID          string
	Origins     []string
}

// DeriveRelyingParty extracts relying-party settings from a base URL.
// Returns localhost defaults if the URL is empty or invalid.
func DeriveRelyingParty(displayName, baseURL string) RelyingParty {
	rp := RelyingParty{
		DisplayName: displayName,
		ID:          "localhost",
		Origins:     []string{"http://localhost", "https://localhost"},
	}

	if baseURL == "" {
		return rp
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Hostname() == "" {
		return rp
	}

	rp.ID = parsed.Hostname()
	rp.Origins = []string{baseURL}
	return rp
}

// LibraryVerifier implements Verifier using go-webauthn.
type LibraryVerifier struct {
	w *webauthn.WebAuthn
}

var _ Verifier = (*LibraryVerifier)(nil)

// NewVerifier creates a verifier for the given relying party.
func NewVerifier(rp RelyingParty) (*LibraryVerifier, error) {
	w, err := webauthn.New(&webauthn.Config{
		RPDisplayName: rp.DisplayName,
		RPID:          rp.ID,
		RPOrigins:     rp.Origins,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}
	return &LibraryVerifier{w: w}, nil
}

// BeginRegistration issues creation options with a fresh random challenge,
// excluding credentials the principal already registered.
func (v *LibraryVerifier) BeginRegistration(user webauthn.User, excluded []protocol.CredentialDescriptor) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	if len(excluded) > 0 {
		return v.w.BeginRegistration(user, webauthn.WithExclusions(excluded))
	}
	return v.w.BeginRegistration(user)
}

// FinishRegistration parses and verifies an attestation response.
func (v *LibraryVerifier) FinishRegistration(user webauthn.User, session webauthn.SessionData, response io.Reader) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return nil, fmt.Errorf("parsing attestation response: %w", err)
	}
	return v.w.CreateCredential(user, session, parsed)
}

// BeginLogin issues assertion options scoped to a known principal's
// registered credentials.
func (v *LibraryVerifier) BeginLogin(user webauthn.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return v.w.BeginLogin(user)
}

// BeginDiscoverableLogin issues assertion options with no credential
// allowlist; the principal is resolved from the response.
func (v *LibraryVerifier) BeginDiscoverableLogin() (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return v.w.BeginDiscoverableLogin()
}

// VerifyAssertion verifies an assertion signature against the user's
// stored public key.
func (v *LibraryVerifier) VerifyAssertion(user webauthn.User, session webauthn.SessionData, assertion *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	if len(session.UserID) == 0 {
		// Unscoped ceremony: the session carries no user, the credential
		// itself identifies the principal
		return v.w.ValidateDiscoverableLogin(func(rawID, userHandle []byte) (webauthn.User, error) {
			return user, nil
		}, session, assertion)
	}
	return v.w.ValidateLogin(user, session, assertion)
}
