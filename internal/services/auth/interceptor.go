package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/NordCoder/storefront-auth/internal/obs"
	"github.com/NordCoder/storefront-auth/internal/ratelimit"
)

// PublicMethods skip authentication.
var PublicMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

func UnaryAuthInterceptor(v Validator, public map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		if public[info.FullMethod] {
			return next(ctx, req)
		}

		token := bearerFromMD(ctx)
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		p, err := v.Validate(ctx, token)
		if err != nil {
			return nil, GRPCError(err)
		}
		return next(WithPrincipal(ctx, p), req)
	}
}

// UnaryRateLimitInterceptor keys clients the same way the HTTP middleware does.
// Limiter backend failures admit the call.
// Methods in exempt, such as health checks, never spend the budget.
func UnaryRateLimitInterceptor(l ratelimit.Limiter, exempt map[string]bool, log *zap.Logger) grpc.UnaryServerInterceptor {
	log = obs.Component(log, "ratelimit")
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (interface{}, error) {
		if exempt[info.FullMethod] {
			return next(ctx, req)
		}
		ok, err := l.Allow(ctx, clientKeyFromCtx(ctx))
		if err != nil {
			obs.RateLimitErrors.WithLabelValues("grpc").Inc()
			obs.WithTrace(ctx, log).Warn("limiter unavailable", zap.String("method", info.FullMethod), zap.Error(err))
			return next(ctx, req)
		}
		if !ok {
			obs.RateLimitRejected.WithLabelValues("grpc").Inc()
			return nil, GRPCError(ErrRateLimited)
		}
		return next(ctx, req)
	}
}

// GRPCError maps the error taxonomy to a status; anything else is Internal
// with a generic message.
func GRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func bearerFromMD(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		if t := bearerToken(v); t != "" {
			return t
		}
	}
	return ""
}

func clientKeyFromCtx(ctx context.Context) string {
	var forwarded, addr string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get("x-forwarded-for"); len(vals) > 0 {
			forwarded = vals[0]
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = p.Addr.String()
	}
	return ratelimit.KeyFrom(forwarded, addr)
}
