// ABOUTME: PrincipalIdentityService for attaching and verifying identities
// ABOUTME: URIs are validated before any store access and never silently merged

package principal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lantern-id/lantern/internal/auth"
	"github.com/lantern-id/lantern/internal/privilege"
	"github.com/lantern-id/lantern/internal/store"
)

// CreateIdentityParams carries the fields for attaching an identity to an
// existing principal.
type CreateIdentityParams struct {
	PrincipalID  string
	URI          string
	IsPrimary    bool
	Label        string
	MarkVerified bool
}

// IdentityService manages the identities bound to principals.
type IdentityService struct {
	store  store.PrincipalStore
	logger *slog.Logger
}

// NewIdentityService creates an identity service backed by the given store.
func NewIdentityService(s store.PrincipalStore) *IdentityService {
	return &IdentityService{
		store:  s,
		logger: slog.Default().With("component", "identity"),
	}
}

// Create attaches a new identity to a principal. The URI must be a
// well-formed absolute URI; a URI already bound to any principal is a
// conflict (store.ErrDuplicateIdentity), never a merge.
func (s *IdentityService) Create(ctx context.Context, ac *auth.Context, params CreateIdentityParams) (*store.Identity, error) {
	if err := privilege.Require(ac, privilege.Admin); err != nil {
		return nil, err
	}
	if !IsIdentityValid(params.URI) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, params.URI)
	}

	// Probe for the owning principal first so a dangling reference is a
	// clean NotFound instead of a constraint error
	if _, err := s.store.GetPrincipal(ctx, params.PrincipalID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	ident := &store.Identity{
		PrincipalID: params.PrincipalID,
		URI:         params.URI,
		IsPrimary:   params.IsPrimary,
		Label:       params.Label,
		CreatedAt:   now,
	}
	if params.MarkVerified {
		ident.VerifiedAt = &now
	}

	if err := s.store.CreateIdentity(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

// List returns all identities bound to a principal, primary first.
func (s *IdentityService) List(ctx context.Context, principalID string) ([]*store.Identity, error) {
	return s.store.ListIdentities(ctx, principalID)
}

// MarkVerified records that an identity was externally verified. Called
// by the verification flow, so it carries no privilege gate.
func (s *IdentityService) MarkVerified(ctx context.Context, uri string) error {
	return s.store.MarkIdentityVerified(ctx, uri)
}
