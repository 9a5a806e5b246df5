package auth

import (
	"time"

	"github.com/google/uuid"
)

type AccessClaims struct {
	Sub   string `json:"sub"`   // identity id
	Role  string `json:"role"`  // role at issuance
	Email string `json:"email"` // normalized email
	Ver   int64  `json:"ver"`   // token version at issuance
	Iat   int64  `json:"iat"`   // created at
	Exp   int64  `json:"exp"`   // expires at
}

type RefreshToken struct {
	ID         uuid.UUID
	IdentityID uuid.UUID
	TokenHash  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

func (t *RefreshToken) Revoked() bool { return t.RevokedAt != nil }

// Usable reports whether the token can still be rotated at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked() && now.Before(t.ExpiresAt)
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}
