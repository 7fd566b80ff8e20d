// ABOUTME: Privilege evaluation over direct and group-inherited grants
// ABOUTME: Pure reads; the Require gate rejects callers before any mutation

package privilege

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lantern-id/lantern/internal/auth"
	"github.com/lantern-id/lantern/internal/store"
)

// Admin is the reserved privilege gating all principal and app lifecycle
// mutations.
const Admin = "admin"

// ErrForbidden is returned when a caller lacks a required privilege.
// Authorization precedes action: the mutation is never attempted.
var ErrForbidden = errors.New("forbidden")

// GrantStore defines the read-only store surface the evaluator consumes.
type GrantStore interface {
	ListGrants(ctx context.Context, principalID string) ([]*store.Grant, error)
	ListGroupsFor(ctx context.Context, principalID string) ([]string, error)
}

// Evaluator answers "does principal P hold privilege X" by walking direct
// grants and grants held by the groups the principal belongs to.
// Evaluation never mutates state.
type Evaluator struct {
	grants GrantStore
	logger *slog.Logger
}

// NewEvaluator creates a privilege evaluator backed by the given store.
func NewEvaluator(grants GrantStore) *Evaluator {
	return &Evaluator{
		grants: grants,
		logger: slog.Default().With("component", "privilege"),
	}
}

// HasPrivilege reports whether the principal holds the named privilege,
// directly or through group membership. Absence is a normal false result,
// never an error.
func (e *Evaluator) HasPrivilege(ctx context.Context, principalID, privilege string) (bool, error) {
	set, err := e.EffectivePrivileges(ctx, principalID)
	if err != nil {
		return false, err
	}
	for _, p := range set {
		if p == privilege {
			return true, nil
		}
	}
	return false, nil
}

// HasPrivilegeOn reports whether the principal holds the named privilege
// for a specific resource. An unscoped grant covers every target; a scoped
// grant covers only its own. Group-inherited grants count the same way.
func (e *Evaluator) HasPrivilegeOn(ctx context.Context, principalID, privilege, scopeTarget string) (bool, error) {
	check := func(subjectID string) (bool, error) {
		grants, err := e.grants.ListGrants(ctx, subjectID)
		if err != nil {
			return false, fmt.Errorf("listing grants for %s: %w", subjectID, err)
		}
		for _, g := range grants {
			if g.Privilege != privilege {
				continue
			}
			if g.ScopeTarget == "" || g.ScopeTarget == scopeTarget {
				return true, nil
			}
		}
		return false, nil
	}

	ok, err := check(principalID)
	if err != nil || ok {
		return ok, err
	}

	groups, err := e.grants.ListGroupsFor(ctx, principalID)
	if err != nil {
		return false, fmt.Errorf("listing groups: %w", err)
	}
	for _, groupID := range groups {
		ok, err := check(groupID)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// EffectivePrivileges computes the union of a principal's direct grants
// and the grants of every group it belongs to. The result is suitable for
// building an auth.Context at the edge of a request.
func (e *Evaluator) EffectivePrivileges(ctx context.Context, principalID string) ([]string, error) {
	seen := map[string]bool{}
	var privileges []string

	collect := func(subjectID string) error {
		grants, err := e.grants.ListGrants(ctx, subjectID)
		if err != nil {
			return fmt.Errorf("listing grants for %s: %w", subjectID, err)
		}
		for _, g := range grants {
			if !seen[g.Privilege] {
				seen[g.Privilege] = true
				privileges = append(privileges, g.Privilege)
			}
		}
		return nil
	}

	if err := collect(principalID); err != nil {
		return nil, err
	}

	groups, err := e.grants.ListGroupsFor(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	for _, groupID := range groups {
		if err := collect(groupID); err != nil {
			return nil, err
		}
	}

	if privileges == nil {
		privileges = []string{}
	}
	return privileges, nil
}

// Resolve builds an auth.Context for a principal from its effective
// privilege set.
func (e *Evaluator) Resolve(ctx context.Context, p *store.Principal) (*auth.Context, error) {
	privileges, err := e.EffectivePrivileges(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &auth.Context{
		PrincipalID:   p.ID,
		PrincipalType: p.Type,
		Privileges:    privileges,
	}, nil
}

// Require returns ErrForbidden unless the caller's resolved privilege set
// contains the named privilege. Mutating operations call this before
// touching the store.
func Require(ac *auth.Context, privilege string) error {
	if ac == nil || !ac.HasPrivilege(privilege) {
		return fmt.Errorf("%w: %q privilege required", ErrForbidden, privilege)
	}
	return nil
}
