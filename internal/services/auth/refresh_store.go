package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	authkit "github.com/NordCoder/storefront-auth/internal/auth"
	"github.com/NordCoder/storefront-auth/internal/domain"
	domainauth "github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/obs"
)

// Rotation is the outcome of a successful refresh-token rotation.
type Rotation struct {
	Identity *identity.Identity
	RawToken string
}

var errRotationRejected = errors.New("rotation rejected")

// RefreshStore owns opaque refresh tokens. Raw values are returned to callers
// once and only their hashes are persisted.
type RefreshStore struct {
	repo domainauth.RefreshTokenRepo
	ids  identity.Repo
	tx   domainauth.Transactor
	ttl  time.Duration
	now  func() time.Time
	log  *zap.Logger
}

func NewRefreshStore(repo domainauth.RefreshTokenRepo, ids identity.Repo, tx domainauth.Transactor,
	ttl time.Duration, now func() time.Time, log *zap.Logger) *RefreshStore {
	if now == nil {
		now = time.Now
	}
	return &RefreshStore{repo: repo, ids: ids, tx: tx, ttl: ttl, now: now, log: obs.Component(log, "refresh_store")}
}

func (s *RefreshStore) Issue(ctx context.Context, identityID uuid.UUID) (string, error) {
	raw, err := authkit.GenerateRawToken(authkit.RefreshTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate refresh: %w", err)
	}
	now := s.now().UTC()
	rec := &domainauth.RefreshToken{
		IdentityID: identityID,
		TokenHash:  authkit.HashToken(raw),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("save refresh: %w", err)
	}
	return raw, nil
}

// Rotate exchanges raw for a successor in one transaction. The bool is false
// when the token cannot be rotated; the error is reserved for storage failures.
func (s *RefreshStore) Rotate(ctx context.Context, raw string) (Rotation, bool, error) {
	hash := authkit.HashToken(raw)
	var rot Rotation

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		rec, err := s.repo.FindByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errRotationRejected
			}
			return fmt.Errorf("find refresh: %w", err)
		}
		now := s.now().UTC()
		if !rec.Usable(now) {
			return errRotationRejected
		}

		owner, err := s.ids.GetByID(ctx, rec.IdentityID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errRotationRejected
			}
			return fmt.Errorf("load owner: %w", err)
		}
		if !owner.Active {
			return errRotationRejected
		}

		won, err := s.repo.RevokeIfActive(ctx, hash, now)
		if err != nil {
			return fmt.Errorf("revoke refresh: %w", err)
		}
		if !won {
			return errRotationRejected
		}

		next, err := s.Issue(ctx, owner.ID)
		if err != nil {
			return err
		}
		rot = Rotation{Identity: owner, RawToken: next}
		return nil
	})
	if errors.Is(err, errRotationRejected) {
		s.log.Debug("refresh rejected", obs.TokenFingerprint(hash))
		return Rotation{}, false, nil
	}
	if err != nil {
		return Rotation{}, false, err
	}
	return rot, true, nil
}

// Revoke reports whether this call revoked the token.
func (s *RefreshStore) Revoke(ctx context.Context, raw string) (bool, error) {
	return s.repo.RevokeIfActive(ctx, authkit.HashToken(raw), s.now().UTC())
}

// RevokeAll joins the caller's transaction when ctx carries one.
func (s *RefreshStore) RevokeAll(ctx context.Context, identityID uuid.UUID) (int64, error) {
	return s.repo.RevokeAllForIdentity(ctx, identityID, s.now().UTC())
}

// Purge deletes tokens that expired before now.
func (s *RefreshStore) Purge(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now().UTC())
}
