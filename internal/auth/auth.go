// Package auth turns identity-provider tokens into custody principals.
// Tokens are HS256 JWTs carrying user_id, role and an optional location.
// Issuing tokens for real users belongs to the identity provider; Issue
// exists for tests and local tooling.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pkordes/hidetrace/backend/internal/domain"
)

// ErrInvalidToken is returned for tokens that are malformed, expired, signed
// with another key or missing a user id.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload.
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Location string `json:"location,omitempty"`
	jwt.RegisteredClaims
}

// Principal maps the claims onto a domain principal. Unknown roles become
// visitors.
func (c Claims) Principal() domain.Principal {
	return domain.Principal{UserID: c.UserID, Role: domain.ParseRole(c.Role), Location: c.Location}
}

// Verifier checks tokens against one HMAC secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a Verifier for secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Issue signs a token for p that expires after ttl.
func (v *Verifier) Issue(p domain.Principal, ttl time.Duration) (string, error) {
	now := v.now()
	claims := &Claims{
		UserID:   p.UserID,
		Role:     string(p.Role),
		Location: p.Location,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth.Verifier.Issue: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns the principal it names.
func (v *Verifier) Parse(token string) (domain.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	return claims.Principal(), nil
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or domain.Anonymous.
func PrincipalFrom(ctx context.Context) domain.Principal {
	if p, ok := ctx.Value(principalKey{}).(domain.Principal); ok {
		return p
	}
	return domain.Anonymous
}
