package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NordCoder/storefront-auth/internal/domain"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
)

// ChangeRole sets a new role, invalidating every outstanding session.
func (u *Usecase) ChangeRole(ctx context.Context, id uuid.UUID, role string) (ident *identity.Identity, err error) {
	ctx, done := u.begin(ctx, "change_role")
	defer done(&err)

	r, ok := identity.ParseRole(role)
	if !ok {
		return nil, ErrInvalidInput
	}
	return u.mutate(ctx, id, identity.Mutation{Role: &r}, outbox.KindRoleChanged)
}

func (u *Usecase) Deactivate(ctx context.Context, id uuid.UUID) (ident *identity.Identity, err error) {
	ctx, done := u.begin(ctx, "deactivate")
	defer done(&err)

	off := false
	return u.mutate(ctx, id, identity.Mutation{Active: &off}, outbox.KindDeactivated)
}

func (u *Usecase) Reactivate(ctx context.Context, id uuid.UUID) (ident *identity.Identity, err error) {
	ctx, done := u.begin(ctx, "reactivate")
	defer done(&err)

	on := true
	return u.mutate(ctx, id, identity.Mutation{Active: &on}, outbox.KindReactivated)
}

// ForceLogoutAll bumps the token version and revokes every refresh token
// without touching role or status.
func (u *Usecase) ForceLogoutAll(ctx context.Context, id uuid.UUID) (err error) {
	ctx, done := u.begin(ctx, "force_logout_all")
	defer done(&err)

	_, err = u.mutate(ctx, id, identity.Mutation{}, outbox.KindForcedLogout)
	return err
}

// mutate applies m, bumps the token version, revokes refresh tokens and
// records the event in one transaction.
func (u *Usecase) mutate(ctx context.Context, id uuid.UUID, m identity.Mutation, kind outbox.Kind) (*identity.Identity, error) {
	var (
		updated *identity.Identity
		revoked int64
	)
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = u.ids.Mutate(ctx, id, m)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("mutate identity: %w", err)
		}
		revoked, err = u.refresh.RevokeAll(ctx, id)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		return u.enqueue(ctx, kind, updated)
	})
	if err != nil {
		return nil, err
	}

	u.log.Info("sessions invalidated",
		zap.String("identity_id", id.String()),
		zap.Stringer("kind", kind),
		zap.Int64("token_version", updated.TokenVersion),
		zap.Int64("refresh_revoked", revoked),
	)
	return updated, nil
}
