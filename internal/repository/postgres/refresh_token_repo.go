package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	"github.com/NordCoder/storefront-auth/internal/domain"
	"github.com/NordCoder/storefront-auth/internal/domain/auth"
)

var _ auth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct{ db *DB }

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const (
	qRTCreate = `
INSERT INTO refresh_tokens (id, identity_id, token_hash, issued_at, expires_at)
VALUES ($1, $2, $3, $4, $5);`

	qRTFind = `
SELECT id, identity_id, token_hash, issued_at, expires_at, revoked_at
FROM refresh_tokens
WHERE token_hash = $1`

	qRTRevokeIfActive = `
UPDATE refresh_tokens SET revoked_at = $2
WHERE token_hash = $1 AND revoked_at IS NULL;`

	qRTRevokeAll = `
UPDATE refresh_tokens SET revoked_at = $2
WHERE identity_id = $1 AND revoked_at IS NULL;`

	qRTDeleteExpired = `
DELETE FROM refresh_tokens WHERE expires_at < $1;`
)

type refreshRow struct {
	ID         uuid.UUID  `db:"id"`
	IdentityID uuid.UUID  `db:"identity_id"`
	TokenHash  string     `db:"token_hash"`
	IssuedAt   time.Time  `db:"issued_at"`
	ExpiresAt  time.Time  `db:"expires_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

func (r *RefreshTokenRepo) Create(ctx context.Context, t *auth.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.db.execQueryer(ctx).Exec(ctx, qRTCreate, t.ID, t.IdentityID, t.TokenHash, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		return mapErr(err)
	}
	return nil
}

func (r *RefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	q := qRTFind
	if InTx(ctx) {
		q += ` FOR UPDATE`
	}

	var row refreshRow
	if err := pgxscan.Get(ctx, r.db.execQueryer(ctx), &row, q, tokenHash); err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find refresh: %w", err)
	}
	return &auth.RefreshToken{
		ID:         row.ID,
		IdentityID: row.IdentityID,
		TokenHash:  row.TokenHash,
		IssuedAt:   row.IssuedAt,
		ExpiresAt:  row.ExpiresAt,
		RevokedAt:  row.RevokedAt,
	}, nil
}

func (r *RefreshTokenRepo) RevokeIfActive(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevokeIfActive, tokenHash, at)
	if err != nil {
		return false, fmt.Errorf("revoke refresh: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RefreshTokenRepo) RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID, at time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevokeAll, identityID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qRTDeleteExpired, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh: %w", err)
	}
	return tag.RowsAffected(), nil
}
