package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/obs"
	"github.com/NordCoder/storefront-auth/internal/ratelimit"
)

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromCtx(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Validator resolves an access token to its principal.
type Validator interface {
	Validate(ctx context.Context, token string) (Principal, error)
}

// RateLimit answers 429 once the client key runs out of budget. Limiter
// backend failures admit the request.
func RateLimit(l ratelimit.Limiter, log *zap.Logger) func(http.Handler) http.Handler {
	log = obs.Component(log, "ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), ratelimit.ClientKey(r))
			if err != nil {
				obs.RateLimitErrors.WithLabelValues("http").Inc()
				obs.WithTrace(r.Context(), log).Warn("limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				obs.RateLimitRejected.WithLabelValues("http").Inc()
				writeError(w, ErrRateLimited, log)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate requires a valid bearer token and stores the principal in the
// request context.
func Authenticate(v Validator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				writeError(w, ErrUnauthorized, log)
				return
			}
			p, err := v.Validate(r.Context(), token)
			if err != nil {
				writeError(w, err, log)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRole must run after Authenticate.
func RequireRole(min identity.Role, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromCtx(r.Context())
			if !ok {
				writeError(w, ErrUnauthorized, log)
				return
			}
			if err := Require(p, min); err != nil {
				writeError(w, err, log)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
