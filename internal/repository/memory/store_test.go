package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/storefront-auth/internal/domain"
	"github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
)

func newIdentity(email string) *identity.Identity {
	return &identity.Identity{Email: email, PasswordHash: "h", Role: identity.DefaultRole, Active: true}
}

func TestIdentityRepo_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepo(NewStore(), nil)

	i := newIdentity("a@x.io")
	require.NoError(t, repo.Create(ctx, i))
	require.NotEqual(t, uuid.Nil, i.ID)
	require.False(t, i.CreatedAt.IsZero())

	got, err := repo.GetByEmail(ctx, "a@x.io")
	require.NoError(t, err)
	require.Equal(t, i.ID, got.ID)

	got, err = repo.GetByID(ctx, i.ID)
	require.NoError(t, err)
	require.Equal(t, "a@x.io", got.Email)

	_, err = repo.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.GetByEmail(ctx, "nobody@x.io")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIdentityRepo_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepo(NewStore(), nil)
	require.NoError(t, repo.Create(ctx, newIdentity("dup@x.io")))
	require.ErrorIs(t, repo.Create(ctx, newIdentity("dup@x.io")), domain.ErrDuplicate)
}

func TestIdentityRepo_MutateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepo(NewStore(), nil)
	i := newIdentity("m@x.io")
	require.NoError(t, repo.Create(ctx, i))

	admin := identity.RoleAdmin
	got, err := repo.Mutate(ctx, i.ID, identity.Mutation{Role: &admin})
	require.NoError(t, err)
	require.Equal(t, identity.RoleAdmin, got.Role)
	require.True(t, got.Active)
	require.Equal(t, int64(1), got.TokenVersion)

	off := false
	got, err = repo.Mutate(ctx, i.ID, identity.Mutation{Active: &off})
	require.NoError(t, err)
	require.False(t, got.Active)
	require.Equal(t, identity.RoleAdmin, got.Role)
	require.Equal(t, int64(2), got.TokenVersion)

	_, err = repo.Mutate(ctx, uuid.New(), identity.Mutation{})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefreshTokenRepo_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRefreshTokenRepo(NewStore())
	now := time.Now()
	owner := uuid.New()

	for _, h := range []string{"h1", "h2"} {
		require.NoError(t, repo.Create(ctx, &auth.RefreshToken{
			IdentityID: owner, TokenHash: h, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
		}))
	}
	require.NoError(t, repo.Create(ctx, &auth.RefreshToken{
		IdentityID: uuid.New(), TokenHash: "other", IssuedAt: now, ExpiresAt: now.Add(-time.Minute),
	}))

	ok, err := repo.RevokeIfActive(ctx, "h1", now)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.RevokeIfActive(ctx, "h1", now)
	require.NoError(t, err)
	require.False(t, ok, "second revoke must not win")
	ok, err = repo.RevokeIfActive(ctx, "missing", now)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := repo.RevokeAllForIdentity(ctx, owner, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	tok, err := repo.FindByHash(ctx, "h2")
	require.NoError(t, err)
	require.True(t, tok.Revoked())

	n, err = repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	_, err = repo.FindByHash(ctx, "other")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactor_RollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	ids := NewIdentityRepo(s, nil)
	tx := NewTransactor(s)

	boom := errors.New("boom")
	err := tx.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, ids.Create(ctx, newIdentity("tx@x.io")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = ids.GetByEmail(ctx, "tx@x.io")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactor_NestedJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	ids := NewIdentityRepo(s, nil)
	tx := NewTransactor(s)

	boom := errors.New("boom")
	err := tx.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, tx.WithTx(ctx, func(ctx context.Context) error {
			return ids.Create(ctx, newIdentity("inner@x.io"))
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, err = ids.GetByEmail(ctx, "inner@x.io")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactor_SerializesCompetingRevokes(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewRefreshTokenRepo(s)
	tx := NewTransactor(s)
	now := time.Now()
	require.NoError(t, repo.Create(ctx, &auth.RefreshToken{IdentityID: uuid.New(), TokenHash: "race", ExpiresAt: now.Add(time.Hour)}))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tx.WithTx(ctx, func(ctx context.Context) error {
				tok, err := repo.FindByHash(ctx, "race")
				if err != nil || !tok.Usable(now) {
					return err
				}
				ok, err := repo.RevokeIfActive(ctx, "race", now)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
				return err
			})
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestOutboxRepo_PickAndMark(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	repo := NewOutboxRepo(NewStore(), now)

	for _, k := range []string{"k1", "k2", "k1"} {
		require.NoError(t, repo.Enqueue(ctx, outbox.Message{IdempotencyKey: k, Kind: outbox.KindForcedLogout, Data: []byte("{}")}))
	}
	require.Len(t, repo.Messages(), 2, "idempotency key deduplicates")

	batch, err := repo.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	batch, err = repo.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, batch, "in-progress messages are leased")

	clock = clock.Add(2 * time.Minute)
	batch, err = repo.PickBatch(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1, "stale lease is picked again")

	require.NoError(t, repo.MarkSuccess(ctx, []string{"k1", "k2"}))
	clock = clock.Add(time.Hour)
	batch, err = repo.PickBatch(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, batch)

	_, err = repo.PickBatch(ctx, 0, time.Minute)
	require.Error(t, err)
}
