// ABOUTME: First-factor password support using bcrypt hashes
// ABOUTME: Verification is constant-time and never succeeds for inactive principals

package principal

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/lantern-id/lantern/internal/auth"
	"github.com/lantern-id/lantern/internal/privilege"
	"github.com/lantern-id/lantern/internal/store"
)

// ErrWeakPassword is returned when a candidate password is too short.
var ErrWeakPassword = errors.New("password must be at least 8 characters")

const minPasswordLength = 8

// SetPassword hashes and stores a password for a principal.
func (s *Service) SetPassword(ctx context.Context, ac *auth.Context, principalID, password string) error {
	if err := privilege.Require(ac, privilege.Admin); err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}

	if _, err := s.store.GetPrincipal(ctx, principalID); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	return s.store.SetPasswordHash(ctx, principalID, string(hash))
}

// VerifyPassword checks a password against the stored hash. A missing
// hash, a mismatch, or an inactive principal all yield false without an
// error - failure to authenticate is a normal result.
func (s *Service) VerifyPassword(ctx context.Context, principalID, password string) (bool, error) {
	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrPrincipalNotFound) {
			return false, nil
		}
		return false, err
	}
	if !p.Active {
		return false, nil
	}

	hash, err := s.store.GetPasswordHash(ctx, principalID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}
