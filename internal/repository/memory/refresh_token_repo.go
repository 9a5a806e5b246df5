package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/storefront-auth/internal/domain"
	"github.com/NordCoder/storefront-auth/internal/domain/auth"
)

var _ auth.RefreshTokenRepo = (*RefreshTokenRepo)(nil)

type RefreshTokenRepo struct{ s *Store }

func NewRefreshTokenRepo(s *Store) *RefreshTokenRepo { return &RefreshTokenRepo{s: s} }

func (r *RefreshTokenRepo) Create(ctx context.Context, t *auth.RefreshToken) error {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	if _, ok := r.s.refresh[t.TokenHash]; ok {
		return domain.ErrDuplicate
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.s.refresh[t.TokenHash] = *t
	return nil
}

func (r *RefreshTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	t, ok := r.s.refresh[tokenHash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if t.RevokedAt != nil {
		at := *t.RevokedAt
		t.RevokedAt = &at
	}
	return &t, nil
}

func (r *RefreshTokenRepo) RevokeIfActive(ctx context.Context, tokenHash string, at time.Time) (bool, error) {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	t, ok := r.s.refresh[tokenHash]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	r.s.refresh[tokenHash] = t
	return true, nil
}

func (r *RefreshTokenRepo) RevokeAllForIdentity(ctx context.Context, identityID uuid.UUID, at time.Time) (int64, error) {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	var n int64
	for h, t := range r.s.refresh {
		if t.IdentityID != identityID || t.RevokedAt != nil {
			continue
		}
		revokedAt := at
		t.RevokedAt = &revokedAt
		r.s.refresh[h] = t
		n++
	}
	return n, nil
}

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	unlock := r.s.lockStmt(ctx)
	defer unlock()

	var n int64
	for h, t := range r.s.refresh {
		if t.ExpiresAt.Before(before) {
			delete(r.s.refresh, h)
			n++
		}
	}
	return n, nil
}
