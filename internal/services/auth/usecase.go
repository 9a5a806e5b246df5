package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	authkit "github.com/NordCoder/storefront-auth/internal/auth"
	"github.com/NordCoder/storefront-auth/internal/domain"
	domainauth "github.com/NordCoder/storefront-auth/internal/domain/auth"
	"github.com/NordCoder/storefront-auth/internal/domain/events"
	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
	"github.com/NordCoder/storefront-auth/internal/obs"
)

const (
	TokenTypeBearer       = "Bearer"
	DefaultMinPasswordLen = 8
)

var tracer = otel.Tracer("github.com/NordCoder/storefront-auth/internal/services/auth")

type Config struct {
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	MinPasswordLen int
	Now            func() time.Time
}

type Deps struct {
	Identities    identity.Repo
	RefreshTokens domainauth.RefreshTokenRepo
	Tx            domainauth.Transactor
	// Outbox is optional; without it no session events are recorded.
	Outbox outbox.Repository
	Codec  *authkit.Codec
	Hasher *authkit.Hasher
	Logger *zap.Logger
}

// Usecase is the session engine: registration, login, refresh rotation, logout,
// access validation and the admin operations that invalidate sessions.
type Usecase struct {
	ids     identity.Repo
	tx      domainauth.Transactor
	outbox  outbox.Repository
	hasher  *authkit.Hasher
	access  *AccessTokens
	refresh *RefreshStore
	cfg     Config
	log     *zap.Logger

	// dummyHash keeps Login timing flat for unknown emails.
	dummyHash string
}

func NewUsecase(d Deps, cfg Config) (*Usecase, error) {
	if d.Identities == nil || d.RefreshTokens == nil || d.Tx == nil || d.Codec == nil {
		return nil, errors.New("auth usecase: missing dependency")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("auth usecase: ttl must be positive")
	}
	if cfg.MinPasswordLen <= 0 {
		cfg.MinPasswordLen = DefaultMinPasswordLen
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.Hasher == nil {
		d.Hasher = authkit.NewHasher(authkit.DefaultHasherParams)
	}

	dummy, err := d.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("auth usecase: dummy hash: %w", err)
	}

	log := obs.Component(d.Logger, "auth")
	return &Usecase{
		ids:       d.Identities,
		tx:        d.Tx,
		outbox:    d.Outbox,
		hasher:    d.Hasher,
		access:    NewAccessTokens(d.Codec, d.Identities, cfg.AccessTTL),
		refresh:   NewRefreshStore(d.RefreshTokens, d.Identities, d.Tx, cfg.RefreshTTL, cfg.Now, log),
		cfg:       cfg,
		log:       log,
		dummyHash: dummy,
	}, nil
}

func (u *Usecase) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "auth."+op)
	return ctx, func(errp *error) {
		err := *errp
		obs.AuthOperations.WithLabelValues(op, result(err)).Inc()
		obs.AuthOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if isVerdict(err) {
			span.SetAttributes(attribute.String("auth.result", result(err)))
			span.End()
			return
		}
		if err != nil {
			obs.WithTrace(ctx, u.log).Error("auth operation failed", zap.String("op", op), zap.Error(err))
		}
		obs.EndSpan(span, err)
	}
}

func (u *Usecase) Register(ctx context.Context, email, password string) (pair *domainauth.TokenPair, created *identity.Identity, err error) {
	ctx, done := u.begin(ctx, "register")
	defer done(&err)

	email = identity.NormalizeEmail(email)
	if email == "" || len(password) < u.cfg.MinPasswordLen {
		return nil, nil, ErrInvalidInput
	}

	if _, err := u.ids.GetByEmail(ctx, email); err == nil {
		return nil, nil, ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := u.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	created = &identity.Identity{
		Email:        email,
		PasswordHash: hash,
		Role:         identity.DefaultRole,
		TokenVersion: 0,
		Active:       true,
	}

	err = u.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := u.ids.Create(ctx, created); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return ErrConflict
			}
			return fmt.Errorf("create identity: %w", err)
		}
		return u.enqueue(ctx, outbox.KindIdentityRegistered, created)
	})
	if err != nil {
		return nil, nil, err
	}

	pair, err = u.issueTokens(ctx, created, "")
	if err != nil {
		return nil, nil, err
	}
	u.log.Info("identity registered", zap.String("identity_id", created.ID.String()))
	return pair, created, nil
}

// Login answers ErrUnauthorized for an unknown email, a wrong password and an
// inactive identity alike.
func (u *Usecase) Login(ctx context.Context, email, password string) (pair *domainauth.TokenPair, err error) {
	ctx, done := u.begin(ctx, "login")
	defer done(&err)

	ident, err := u.ids.GetByEmail(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup email: %w", err)
		}
		u.hasher.Verify(password, u.dummyHash)
		return nil, ErrUnauthorized
	}
	if !u.hasher.Verify(password, ident.PasswordHash) || !ident.Active {
		return nil, ErrUnauthorized
	}
	return u.issueTokens(ctx, ident, "")
}

func (u *Usecase) Refresh(ctx context.Context, raw string) (pair *domainauth.TokenPair, err error) {
	ctx, done := u.begin(ctx, "refresh")
	defer done(&err)

	if raw == "" {
		return nil, ErrUnauthorized
	}
	rot, ok, err := u.refresh.Rotate(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("rotate refresh: %w", err)
	}
	if !ok {
		return nil, ErrUnauthorized
	}
	return u.issueTokens(ctx, rot.Identity, rot.RawToken)
}

// Logout always succeeds from the caller's point of view.
func (u *Usecase) Logout(ctx context.Context, raw string) error {
	var err error
	ctx, done := u.begin(ctx, "logout")
	defer done(&err)

	if raw == "" {
		return nil
	}
	if _, rerr := u.refresh.Revoke(ctx, raw); rerr != nil {
		obs.WithTrace(ctx, u.log).Warn("logout revoke failed",
			obs.TokenFingerprint(authkit.HashToken(raw)), zap.Error(rerr))
	}
	return nil
}

func (u *Usecase) Validate(ctx context.Context, accessToken string) (p Principal, err error) {
	ctx, done := u.begin(ctx, "validate")
	defer done(&err)
	return u.access.Validate(ctx, accessToken)
}

// Me returns the live identity behind p.
func (u *Usecase) Me(ctx context.Context, p Principal) (*identity.Identity, error) {
	ident, err := u.ids.GetByID(ctx, p.IdentityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return ident, nil
}

// PurgeExpired removes refresh tokens whose expiry has passed.
func (u *Usecase) PurgeExpired(ctx context.Context) (n int64, err error) {
	ctx, done := u.begin(ctx, "purge")
	defer done(&err)

	n, err = u.refresh.Purge(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge refresh: %w", err)
	}
	obs.RefreshTokensPurged.Add(float64(n))
	return n, nil
}

func (u *Usecase) issueTokens(ctx context.Context, ident *identity.Identity, refreshRaw string) (*domainauth.TokenPair, error) {
	access, err := u.access.Issue(ident)
	if err != nil {
		return nil, fmt.Errorf("sign access: %w", err)
	}
	if refreshRaw == "" {
		refreshRaw, err = u.refresh.Issue(ctx, ident.ID)
		if err != nil {
			return nil, err
		}
	}
	return &domainauth.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshRaw,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(u.cfg.AccessTTL / time.Second),
	}, nil
}

func (u *Usecase) enqueue(ctx context.Context, kind outbox.Kind, ident *identity.Identity) error {
	if u.outbox == nil {
		return nil
	}
	ev := events.SessionEvent{
		ID:           uuid.New(),
		Type:         kind.String(),
		IdentityID:   ident.ID,
		Email:        ident.Email,
		Role:         string(ident.Role),
		TokenVersion: ident.TokenVersion,
		At:           u.cfg.Now().UTC(),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	carrier := obs.InjectTrace(ctx)
	if err := u.outbox.Enqueue(ctx, outbox.Message{
		IdempotencyKey: ev.ID.String(),
		Kind:           kind,
		Data:           data,
		Traceparent:    carrier.Get("traceparent"),
		Tracestate:     carrier.Get("tracestate"),
		Baggage:        carrier.Get("baggage"),
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	trace.SpanFromContext(ctx).AddEvent("outbox.enqueued", trace.WithAttributes(attribute.String("kind", kind.String())))
	return nil
}
