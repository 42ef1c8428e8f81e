// Package userdir resolves the acting user from HS256 bearer tokens issued
// by the surrounding application.
package userdir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/custodia-labs/syncengine/internal/core/domain"
	"github.com/custodia-labs/syncengine/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.UserDirectory = (*JWTDirectory)(nil)

// Issuer is the default token issuer.
const Issuer = "syncengine"

// Claims are the bearer token claims. The subject is the user ID.
type Claims struct {
	Email string `json:"email,omitempty"`

	jwt.RegisteredClaims
}

// JWTDirectory implements driven.UserDirectory over signed tokens.
type JWTDirectory struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time
}

// NewJWTDirectory creates a directory. The secret must not be empty.
func NewJWTDirectory(secret []byte, tokenTTL time.Duration) (*JWTDirectory, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &JWTDirectory{secret: secret, issuer: Issuer, tokenTTL: tokenTTL, now: time.Now}, nil
}

// Sign issues a token for a user.
func (d *JWTDirectory) Sign(user domain.User) (string, time.Time, error) {
	now := d.now().UTC()
	expiresAt := now.Add(d.tokenTTL)
	claims := Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    d.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Resolve validates a bearer token and returns its user.
func (d *JWTDirectory) Resolve(_ context.Context, bearer string) (*domain.User, error) {
	parsed, err := jwt.ParseWithClaims(bearer, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return d.secret, nil
	},
		jwt.WithIssuer(d.issuer),
		jwt.WithTimeFunc(d.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("%w: invalid token claims", domain.ErrNotFound)
	}
	return &domain.User{ID: claims.Subject, Email: claims.Email}, nil
}
