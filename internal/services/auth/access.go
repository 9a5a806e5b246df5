package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	authkit "github.com/NordCoder/storefront-auth/internal/auth"
	"github.com/NordCoder/storefront-auth/internal/domain"
	domainauth "github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
)

// Principal is the caller behind a validated access token.
type Principal struct {
	IdentityID uuid.UUID     `json:"identityId"`
	Role       identity.Role `json:"role"`
}

// AccessTokens issues stateless access tokens and validates them against the
// live identity record, so role changes and version bumps apply immediately.
type AccessTokens struct {
	codec *authkit.Codec
	ids   identity.Repo
	ttl   time.Duration
}

func NewAccessTokens(codec *authkit.Codec, ids identity.Repo, ttl time.Duration) *AccessTokens {
	return &AccessTokens{codec: codec, ids: ids, ttl: ttl}
}

func (a *AccessTokens) TTL() time.Duration { return a.ttl }

func (a *AccessTokens) Issue(i *identity.Identity) (string, error) {
	return a.codec.Sign(domainauth.AccessClaims{
		Sub:   i.ID.String(),
		Role:  string(i.Role),
		Email: i.Email,
		Ver:   i.TokenVersion,
	}, a.ttl)
}

// Validate returns ErrUnauthorized for every rejected token. Other errors come
// from the identity store.
func (a *AccessTokens) Validate(ctx context.Context, token string) (Principal, error) {
	claims, ok := a.codec.Verify(token)
	if !ok || claims.Sub == "" || claims.Role == "" {
		return Principal{}, ErrUnauthorized
	}
	role := identity.Role(claims.Role)
	if !role.Valid() {
		return Principal{}, ErrUnauthorized
	}
	id, err := uuid.Parse(claims.Sub)
	if err != nil {
		return Principal{}, ErrUnauthorized
	}

	live, err := a.ids.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Principal{}, ErrUnauthorized
		}
		return Principal{}, fmt.Errorf("load identity: %w", err)
	}
	if !live.Active || live.Role != role || live.TokenVersion != claims.Ver {
		return Principal{}, ErrUnauthorized
	}
	return Principal{IdentityID: live.ID, Role: live.Role}, nil
}

// Require returns ErrForbidden unless p holds at least min.
func Require(p Principal, min identity.Role) error {
	if !p.Role.AtLeast(min) {
		return ErrForbidden
	}
	return nil
}
