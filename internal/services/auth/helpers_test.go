package auth

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	authkit "github.com/NordCoder/storefront-auth/internal/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/repository/memory"
)

const (
	testSecret     = "0123456789abcdef0123456789abcdef"
	testAccessTTL  = time.Hour
	testRefreshTTL = 30 * 24 * time.Hour
)

var cheapHasher = authkit.HasherParams{N: 1 << 10, R: 8, P: 1, SaltLen: 16, KeyLen: 64}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	uc     *Usecase
	clock  *fakeClock
	store  *memory.Store
	ids    identity.Repo
	outbox *memory.OutboxRepo
	codec  *authkit.Codec
}

type harnessOpt func(*Deps)

func withIdentities(r identity.Repo) harnessOpt {
	return func(d *Deps) { d.Identities = r }
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	clock := newClock()
	store := memory.NewStore()
	codec, err := authkit.NewCodec([]byte(testSecret), clock.Now)
	require.NoError(t, err)

	ob := memory.NewOutboxRepo(store, clock.Now)
	d := Deps{
		Identities:    memory.NewIdentityRepo(store, clock.Now),
		RefreshTokens: memory.NewRefreshTokenRepo(store),
		Tx:            memory.NewTransactor(store),
		Outbox:        ob,
		Codec:         codec,
		Hasher:        authkit.NewHasher(cheapHasher),
		Logger:        zaptest.NewLogger(t),
	}
	for _, o := range opts {
		o(&d)
	}
	uc, err := NewUsecase(d, Config{AccessTTL: testAccessTTL, RefreshTTL: testRefreshTTL, Now: clock.Now})
	require.NoError(t, err)
	return &harness{uc: uc, clock: clock, store: store, ids: d.Identities, outbox: ob, codec: codec}
}
