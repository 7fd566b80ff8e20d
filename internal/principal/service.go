// ABOUTME: PrincipalService and identity operations over the principal store
// ABOUTME: Admin-gated lifecycle mutations, URI validation, atomic identity create

package principal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/lantern-id/lantern/internal/auth"
	"github.com/lantern-id/lantern/internal/privilege"
	"github.com/lantern-id/lantern/internal/store"
)

// ErrInvalidIdentity is returned when a candidate identity is not a
// well-formed absolute URI. The check never touches storage.
var ErrInvalidIdentity = errors.New("identity must be an absolute URI")

// ErrInvalidType is returned for an unknown principal type.
var ErrInvalidType = errors.New("invalid principal type")

// Draft carries the caller-supplied fields for creating or updating a
// principal. An empty ID means create.
type Draft struct {
	ID       string
	Type     store.PrincipalType
	Nickname string
	Active   bool
}

// Service implements principal lifecycle operations. All mutations are
// gated on the admin privilege before any store access.
type Service struct {
	store  store.PrincipalStore
	logger *slog.Logger
}

// NewService creates a principal service backed by the given store.
func NewService(s store.PrincipalStore) *Service {
	return &Service{
		store:  s,
		logger: slog.Default().With("component", "principal"),
	}
}

// IsIdentityValid reports whether the candidate is a well-formed absolute
// URI. It is a pure function: no store access, so malformed input fails
// fast before anything else happens.
func IsIdentityValid(identity string) bool {
	u, err := url.Parse(identity)
	if err != nil {
		return false
	}
	return u.IsAbs()
}

// UUIDURN generates a urn:uuid identity for principals created without an
// external one, such as apps.
func UUIDURN() string {
	return "urn:uuid:" + uuid.NewString()
}

// Save creates or updates a principal. Creation assigns the id and both
// timestamps; update preserves createdAt and refreshes modifiedAt. An
// existing id is never overwritten with a new principal.
func (s *Service) Save(ctx context.Context, ac *auth.Context, draft *Draft) (*store.Principal, error) {
	if err := privilege.Require(ac, privilege.Admin); err != nil {
		return nil, err
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if draft.ID == "" {
		p := &store.Principal{
			ID:         uuid.NewString(),
			Type:       draft.Type,
			Nickname:   draft.Nickname,
			Active:     draft.Active,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		if err := s.store.CreatePrincipal(ctx, p); err != nil {
			return nil, err
		}
		return p, nil
	}

	existing, err := s.store.GetPrincipal(ctx, draft.ID)
	if err != nil {
		return nil, err
	}

	existing.Type = draft.Type
	existing.Nickname = draft.Nickname
	existing.Active = draft.Active
	existing.ModifiedAt = now

	if err := s.store.UpdatePrincipal(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// CreateWithIdentity creates a principal together with its primary
// identity. Uniqueness of the URI is enforced by the store's atomic
// conditional insert: of two concurrent creations for the same URI,
// exactly one succeeds and the loser observes ErrDuplicateIdentity. An
// empty URI gets a urn:uuid fallback.
func (s *Service) CreateWithIdentity(ctx context.Context, ac *auth.Context, draft *Draft, identity string, markVerified bool) (*store.Principal, error) {
	if err := privilege.Require(ac, privilege.Admin); err != nil {
		return nil, err
	}
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	if identity == "" {
		identity = UUIDURN()
	}
	if !IsIdentityValid(identity) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIdentity, identity)
	}

	now := time.Now().UTC()
	p := &store.Principal{
		ID:         uuid.NewString(),
		Type:       draft.Type,
		Nickname:   draft.Nickname,
		Active:     draft.Active,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	ident := &store.Identity{
		PrincipalID: p.ID,
		URI:         identity,
		IsPrimary:   true,
		CreatedAt:   now,
	}
	if markVerified {
		ident.VerifiedAt = &now
	}

	if err := s.store.CreatePrincipalWithIdentity(ctx, p, ident); err != nil {
		return nil, err
	}

	s.logger.Info("created principal", "id", p.ID, "type", p.Type, "identity", identity)
	return p, nil
}

// FindByID retrieves a principal by id.
func (s *Service) FindByID(ctx context.Context, id string) (*store.Principal, error) {
	return s.store.GetPrincipal(ctx, id)
}

// FindAll returns principals of the given type, or all principals when
// pType is nil.
func (s *Service) FindAll(ctx context.Context, pType *store.PrincipalType) ([]*store.Principal, error) {
	return s.store.ListPrincipals(ctx, store.PrincipalFilter{Type: pType})
}

// FindByIdentity resolves an identity URI to its principal. A miss is
// store.ErrPrincipalNotFound - the caller decides create-vs-fail.
func (s *Service) FindByIdentity(ctx context.Context, uri string) (*store.Principal, error) {
	return s.store.GetPrincipalByIdentity(ctx, uri)
}

// Delete removes a principal and, via the store's cascade, its
// identities, grants, devices, and password.
func (s *Service) Delete(ctx context.Context, ac *auth.Context, id string) error {
	if err := privilege.Require(ac, privilege.Admin); err != nil {
		return err
	}
	return s.store.DeletePrincipal(ctx, id)
}

func validateDraft(draft *Draft) error {
	switch draft.Type {
	case store.PrincipalTypeUser, store.PrincipalTypeApp, store.PrincipalTypeGroup:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidType, draft.Type)
	}
	if draft.Nickname == "" {
		return errors.New("nickname required")
	}
	return nil
}
