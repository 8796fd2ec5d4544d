package oidc

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Claim types carried by access tokens.
const (
	ClaimTypeName = "name"
	ClaimTypeRole = "role"
)

// Claim is a single assertion put into an access token.
type Claim struct {
	Type  string
	Value string
}

// AccessClaims is the JWT payload of an access token. The login is the
// subject and every role is listed under "role".
type AccessClaims struct {
	Roles []string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// HasAnyRole reports whether the token carries one of roles.
func (c *AccessClaims) HasAnyRole(roles ...string) bool {
	for _, have := range c.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying the verified access claims.
func WithClaims(ctx context.Context, c *AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by WithClaims, if any.
func ClaimsFromContext(ctx context.Context) (*AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*AccessClaims)
	return c, ok
}
