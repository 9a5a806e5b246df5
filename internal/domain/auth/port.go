package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RefreshTokenRepo interface {
	Create(ctx context.Context, t *RefreshToken) error
	// FindByHash locks the row when called inside a transaction.
	FindByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// RevokeIfActive sets revoked_at only while it is still NULL.
	RevokeIfActive(ctx context.Context, tokenHash string, at time.Time) (bool, error)
	RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Transactor interface {
	WithTx(ctx context.Context, function func(ctx context.Context) error) error
}
