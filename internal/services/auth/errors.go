package auth

import (
	"errors"

	"github.com/NordCoder/storefront-auth/internal/domain"
)

var (
	ErrConflict     = errors.New("email already registered")
	ErrUnauthorized = errors.New("invalid credentials")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("identity not found")
	ErrRateLimited  = errors.New("too many requests")
	ErrInvalidInput = errors.New("invalid input")
)

// result labels an outcome for metrics without leaking error text.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}

// isVerdict reports whether err is a client-facing outcome rather than an
// infrastructure failure.
func isVerdict(err error) bool {
	r := result(err)
	return r != "ok" && r != "error"
}
