// ABOUTME: Authenticated caller context threaded explicitly through core calls
// ABOUTME: Carries the resolved principal and its effective privilege set

package auth

import (
	"context"

	"github.com/lantern-id/lantern/internal/store"
)

// Context holds the authenticated caller's resolved identity and effective
// privilege set. It is populated once at the edge (after authentication)
// and passed as an argument into core operations, never read from ambient
// state, so privilege decisions stay deterministic and testable.
type Context struct {
	PrincipalID   string
	PrincipalType store.PrincipalType
	Privileges    []string // effective set: direct plus group-inherited
}

// HasPrivilege reports whether the caller's resolved privilege set
// contains the named privilege.
func (c *Context) HasPrivilege(privilege string) bool {
	for _, p := range c.Privileges {
		if p == privilege {
			return true
		}
	}
	return false
}

// ctxKey is the key type for storing Context in context.Context.
type ctxKey struct{}

// WithContext returns a new context with the caller Context attached.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext retrieves the caller Context, returning nil if not present.
func FromContext(ctx context.Context) *Context {
	val := ctx.Value(ctxKey{})
	if val == nil {
		return nil
	}
	ac, ok := val.(*Context)
	if !ok {
		return nil
	}
	return ac
}

// MustFromContext retrieves the caller Context, panicking if not present.
func MustFromContext(ctx context.Context) *Context {
	ac := FromContext(ctx)
	if ac == nil {
		panic("auth: caller Context not found in context")
	}
	return ac
}
