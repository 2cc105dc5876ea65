// Package auth verifies the HS256 bearer tokens issued by the managed auth
// provider and carries the resulting identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"aether-vault/internal/domain"
)

// UserMetadata mirrors the provider's user_metadata claim.
type UserMetadata struct {
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Claims are the JWT claims we read.
type Claims struct {
	jwt.RegisteredClaims
	UserMetadata UserMetadata `json:"user_metadata"`
}

// Validator checks bearer tokens against a shared secret.
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator returns nil when no secret is configured; a nil validator
// rejects every token.
func NewValidator(secret, issuer string) *Validator {
	if secret == "" {
		return nil
	}
	return &Validator{secret: []byte(secret), issuer: issuer}
}

// Validate parses the token and returns the identity it carries.
func (v *Validator) Validate(tokenStr string) (domain.Identity, error) {
	if v == nil {
		return domain.Identity{}, fmt.Errorf("%w: authentication not configured", domain.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return domain.Identity{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: token subject is required", domain.ErrUnauthenticated)
	}

	return domain.Identity{
		UserID:        claims.Subject,
		WalletAddress: claims.UserMetadata.WalletAddress,
	}, nil
}

// Issue signs a token for local development and the CLI.
func (v *Validator) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	if v == nil {
		return "", errors.New("auth.jwt_secret is not configured")
	}
	if id.UserID == "" {
		return "", errors.New("user id is required")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserMetadata: UserMetadata{WalletAddress: id.WalletAddress},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

type identityKey struct{}

// WithIdentity stores the caller identity on ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by the middleware.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}
