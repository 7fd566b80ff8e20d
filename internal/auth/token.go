// ABOUTME: JWT token issuance and verification for authenticated principals
// ABOUTME: Uses HS256 signing with configurable secret; the contract the token layer consumes

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lantern-id/lantern/internal/store"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// TokenClaims is the identity extracted from a verified token.
type TokenClaims struct {
	PrincipalID   string
	PrincipalType store.PrincipalType
}

// TokenIssuer defines the contract the token-issuance layer satisfies
// when calling into the core.
type TokenIssuer interface {
	Issue(p *store.Principal, expiresIn time.Duration) (string, error)
	Verify(tokenString string) (*TokenClaims, error)
}

// JWTIssuer implements TokenIssuer using HS256 signed JWTs.
type JWTIssuer struct {
	secret []byte
}

var _ TokenIssuer = (*JWTIssuer)(nil)

// NewJWTIssuer creates a new JWT issuer with the given secret.
func NewJWTIssuer(secret []byte) *JWTIssuer {
	return &JWTIssuer{secret: secret}
}

// Issue creates a new token for the given principal with expiration.
func (i *JWTIssuer) Issue(p *store.Principal, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   p.ID,
		"ptype": string(p.Type),
		"iat":   now.Unix(),
		"exp":   now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the token and extracts the principal identity from its
// claims.
func (i *JWTIssuer) Verify(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	tc := &TokenClaims{PrincipalID: sub}
	if ptype, ok := claims["ptype"].(string); ok {
		tc.PrincipalType = store.PrincipalType(ptype)
	}

	return tc, nil
}
