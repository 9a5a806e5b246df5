package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/storefront-auth/internal/domain"
	domainauth "github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/events"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
)

func register(t *testing.T, h *harness, email string) (*domainauth.TokenPair, *identity.Identity) {
	t.Helper()
	pair, ident, err := h.uc.Register(context.Background(), email, "correct horse")
	require.NoError(t, err)
	return pair, ident
}

func TestRegister_IssuesWorkingPair(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pair, ident := register(t, h, "  Shopper@Example.COM ")
	assert.Equal(t, "shopper@example.com", ident.Email)
	assert.Equal(t, identity.RoleCustomer, ident.Role)
	assert.Equal(t, int64(0), ident.TokenVersion)
	assert.True(t, ident.Active)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)
	assert.NotEmpty(t, pair.RefreshToken)

	p, err := h.uc.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, Principal{IdentityID: ident.ID, Role: identity.RoleCustomer}, p)

	me, err := h.uc.Me(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, ident.Email, me.Email)

	msgs := h.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, outbox.KindIdentityRegistered, msgs[0].Kind)
	var ev events.SessionEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &ev))
	assert.Equal(t, ident.ID, ev.IdentityID)
	assert.Equal(t, "identity.registered", ev.Type)
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	h := newHarness(t)
	register(t, h, "dup@example.com")

	_, _, err := h.uc.Register(context.Background(), "DUP@example.com ", "another pass")
	require.ErrorIs(t, err, ErrConflict)
}

// dupOnCreate hides the row from the pre-check, as when two registrations race.
type dupOnCreate struct {
	identity.Repo
}

func (dupOnCreate) GetByEmail(context.Context, string) (*identity.Identity, error) {
	return nil, domain.ErrNotFound
}

func (dupOnCreate) Create(context.Context, *identity.Identity) error {
	return domain.ErrDuplicate
}

func TestRegister_StorageDuplicateMapsToConflict(t *testing.T) {
	h := newHarness(t)
	h2 := newHarness(t, withIdentities(dupOnCreate{Repo: h.ids}))

	_, _, err := h2.uc.Register(context.Background(), "race@example.com", "long enough")
	require.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, h2.outbox.Messages(), "rolled back with the failed insert")
}

func TestRegister_InvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, _, err := h.uc.Register(ctx, "   ", "long enough")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = h.uc.Register(ctx, "a@b.c", "short")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLogin_FailuresAreUniform(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, ident := register(t, h, "u@example.com")

	_, err := h.uc.Login(ctx, "u@example.com", "wrong password")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.uc.Login(ctx, "nobody@example.com", "correct horse")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.uc.Deactivate(ctx, ident.ID)
	require.NoError(t, err)
	_, err = h.uc.Login(ctx, "u@example.com", "correct horse")
	require.ErrorIs(t, err, ErrUnauthorized)

	pair, err := h.uc.Login(ctx, " U@EXAMPLE.com", "correct horse")
	require.Nil(t, pair)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogin_ManySessionsCoexist(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, _ := register(t, h, "multi@example.com")

	second, err := h.uc.Login(ctx, "multi@example.com", "correct horse")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = h.uc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	_, err = h.uc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_RotatesSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, _ := register(t, h, "rot@example.com")

	next, err := h.uc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized, "a rotated token is dead")

	_, err = h.uc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, _ := register(t, h, "exp@example.com")

	_, err := h.uc.Refresh(ctx, "")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.uc.Refresh(ctx, "never-issued")
	require.ErrorIs(t, err, ErrUnauthorized)

	h.clock.Advance(testRefreshTTL + time.Second)
	_, err = h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	h := newHarness(t)
	pair, _ := register(t, h, "race@example.com")

	const workers = 24
	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		successor sync.Map
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			next, err := h.uc.Refresh(context.Background(), pair.RefreshToken)
			if err == nil {
				wins.Add(1)
				successor.Store(next.RefreshToken, true)
				return
			}
			if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())

	n := 0
	successor.Range(func(_, _ any) bool { n++; return true })
	require.Equal(t, 1, n)
}

func TestValidate_AccessTokenExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, _ := register(t, h, "ttl@example.com")

	h.clock.Advance(testAccessTTL - time.Second)
	_, err := h.uc.Validate(ctx, pair.AccessToken)
	require.NoError(t, err)

	h.clock.Advance(time.Second)
	_, err = h.uc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized, "exp == now is expired")
}

func TestValidate_RejectsForgedClaims(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, ident := register(t, h, "forge@example.com")

	sign := func(c domainauth.AccessClaims) string {
		tok, err := h.codec.Sign(c, time.Hour)
		require.NoError(t, err)
		return tok
	}
	sub := ident.ID.String()
	cases := map[string]string{
		"future version":  sign(domainauth.AccessClaims{Sub: sub, Role: "CUSTOMER", Ver: 5}),
		"escalated role":  sign(domainauth.AccessClaims{Sub: sub, Role: "ADMIN"}),
		"unknown role":    sign(domainauth.AccessClaims{Sub: sub, Role: "ROOT"}),
		"missing role":    sign(domainauth.AccessClaims{Sub: sub}),
		"missing sub":     sign(domainauth.AccessClaims{Role: "CUSTOMER"}),
		"non uuid sub":    sign(domainauth.AccessClaims{Sub: "42", Role: "CUSTOMER"}),
		"unknown subject": sign(domainauth.AccessClaims{Sub: uuid.NewString(), Role: "CUSTOMER"}),
		"garbage":         "not.a.token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.uc.Validate(ctx, tok)
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}

	ok := sign(domainauth.AccessClaims{Sub: sub, Role: "CUSTOMER", Ver: 0})
	_, err := h.uc.Validate(ctx, ok)
	require.NoError(t, err)
}

type failingIdentities struct {
	identity.Repo
	err error
}

func (f failingIdentities) GetByID(context.Context, uuid.UUID) (*identity.Identity, error) {
	return nil, f.err
}

func TestValidate_StorageFailureIsNotAVerdict(t *testing.T) {
	h := newHarness(t)
	pair, _ := register(t, h, "infra@example.com")

	down := errors.New("connection refused")
	broken := NewAccessTokens(h.codec, failingIdentities{Repo: h.ids, err: down}, testAccessTTL)
	_, err := broken.Validate(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, ErrUnauthorized)
}

func TestChangeRole_InvalidatesOutstandingSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, ident := register(t, h, "promote@example.com")
	second, err := h.uc.Login(ctx, "promote@example.com", "correct horse")
	require.NoError(t, err)

	updated, err := h.uc.ChangeRole(ctx, ident.ID, "manager")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleManager, updated.Role)
	assert.Equal(t, int64(1), updated.TokenVersion)

	_, err = h.uc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.uc.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	fresh, err := h.uc.Login(ctx, "promote@example.com", "correct horse")
	require.NoError(t, err)
	p, err := h.uc.Validate(ctx, fresh.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleManager, p.Role)

	msgs := h.outbox.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, outbox.KindRoleChanged, msgs[1].Kind)
}

func TestChangeRole_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, ident := register(t, h, "err@example.com")

	_, err := h.uc.ChangeRole(ctx, ident.ID, "OWNER")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.uc.ChangeRole(ctx, uuid.New(), "ADMIN")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateReactivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, ident := register(t, h, "off@example.com")

	off, err := h.uc.Deactivate(ctx, ident.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)

	_, err = h.uc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	on, err := h.uc.Reactivate(ctx, ident.ID)
	require.NoError(t, err)
	assert.True(t, on.Active)
	assert.Equal(t, int64(2), on.TokenVersion)

	_, err = h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized, "revoked tokens stay revoked")
	_, err = h.uc.Login(ctx, "off@example.com", "correct horse")
	require.NoError(t, err)

	_, err = h.uc.Deactivate(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivate_BlocksRotationOfUnrevokedToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, ident := register(t, h, "owner@example.com")

	off := false
	_, err := h.ids.Mutate(ctx, ident.ID, identity.Mutation{Active: &off})
	require.NoError(t, err)

	_, err = h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestForceLogoutAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, ident := register(t, h, "kick@example.com")

	require.NoError(t, h.uc.ForceLogoutAll(ctx, ident.ID))

	_, err := h.uc.Validate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	live, err := h.ids.GetByID(ctx, ident.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.RoleCustomer, live.Role)
	assert.True(t, live.Active)

	require.ErrorIs(t, h.uc.ForceLogoutAll(ctx, uuid.New()), ErrNotFound)
}

func TestLogout_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	pair, _ := register(t, h, "bye@example.com")

	require.NoError(t, h.uc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, h.uc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, h.uc.Logout(ctx, ""))
	require.NoError(t, h.uc.Logout(ctx, "unknown"))

	_, err := h.uc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = h.uc.Validate(ctx, pair.AccessToken)
	require.NoError(t, err, "logout does not touch access tokens")
}

func TestMe_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.uc.Me(context.Background(), Principal{IdentityID: uuid.New(), Role: identity.RoleCustomer})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	register(t, h, "purge1@example.com")
	h.clock.Advance(testRefreshTTL / 2)
	register(t, h, "purge2@example.com")

	n, err := h.uc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	h.clock.Advance(testRefreshTTL/2 + time.Second)
	n, err = h.uc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestNewUsecase_Validation(t *testing.T) {
	_, err := NewUsecase(Deps{}, Config{AccessTTL: time.Hour, RefreshTTL: time.Hour})
	require.Error(t, err)

	h := newHarness(t)
	_, err = NewUsecase(Deps{
		Identities:    h.ids,
		RefreshTokens: h.uc.refresh.repo,
		Tx:            h.uc.tx,
		Codec:         h.codec,
	}, Config{AccessTTL: 0, RefreshTTL: time.Hour})
	require.Error(t, err)
}
