// Package identity implements the identity provider collaborator: it
// turns an opaque connection token into a verified public profile. Login
// and password handling live elsewhere; this layer only consumes tokens.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

// TokenProvider resolves HMAC-signed tokens whose claims carry the public
// profile. Resolution is stateless, so every call observes the claims as
// issued; a profile update means a re-issued token.
type TokenProvider struct {
	secret []byte
}

func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{secret: []byte(secret)}
}

type profileClaims struct {
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

func (p *TokenProvider) Resolve(token string) (domain.Identity, error) {
	var claims profileClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: %v", core.ErrAuthRequired, err)
	}
	id := domain.Identity{
		ID:          domain.UserID(claims.Subject),
		DisplayName: claims.Name,
		AccentColor: claims.Color,
		AvatarURL:   claims.Avatar,
	}
	if err := id.Validate(); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", core.ErrAuthRequired, err)
	}
	return id, nil
}

// Mint signs a token for an identity. Used by tests and dev tooling; the
// production issuer is the auth service.
func (p *TokenProvider) Mint(id domain.Identity, ttl time.Duration) (string, error) {
	claims := profileClaims{
		Name:   id.DisplayName,
		Color:  id.AccentColor,
		Avatar: id.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.ID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}
