package auth

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/NordCoder/storefront-auth/internal/domain/identity"
	"github.com/NordCoder/storefront-auth/internal/ratelimit"
)

type stubValidator struct {
	token string
	p     Principal
}

func (s stubValidator) Validate(_ context.Context, token string) (Principal, error) {
	if token != s.token {
		return Principal{}, ErrUnauthorized
	}
	return s.p, nil
}

func echoPrincipal(ctx context.Context, _ interface{}) (interface{}, error) {
	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		return nil, nil
	}
	return p, nil
}

func TestUnaryAuthInterceptor(t *testing.T) {
	want := Principal{IdentityID: uuid.New(), Role: identity.RoleManager}
	icpt := UnaryAuthInterceptor(stubValidator{token: "good", p: want}, PublicMethods)
	private := &grpc.UnaryServerInfo{FullMethod: "/storefront.v1.Orders/List"}

	_, err := icpt(context.Background(), nil, private, echoPrincipal)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer bad"))
	_, err = icpt(ctx, nil, private, echoPrincipal)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "bearer good"))
	got, err := icpt(ctx, nil, private, echoPrincipal)
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = icpt(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, echoPrincipal)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUnaryRateLimitInterceptor(t *testing.T) {
	limiter := ratelimit.NewWindow(ratelimit.Config{Max: 1, Window: time.Minute}, nil)
	icpt := UnaryRateLimitInterceptor(limiter, PublicMethods, zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/x/Y"}
	ok := func(context.Context, interface{}) (interface{}, error) { return "ok", nil }

	peerCtx := func(addr string) context.Context {
		return peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(addr), Port: 5000}})
	}

	_, err := icpt(peerCtx("::1"), nil, info, ok)
	require.NoError(t, err)
	_, err = icpt(peerCtx("127.0.0.1"), nil, info, ok)
	require.Equal(t, codes.ResourceExhausted, status.Code(err), "ipv6 loopback shares the ipv4 budget")

	_, err = icpt(peerCtx("10.0.0.7"), nil, info, ok)
	require.NoError(t, err)

	_, err = UnaryRateLimitInterceptor(brokenLimiter{}, nil, nil)(peerCtx("10.0.0.8"), nil, info, ok)
	require.NoError(t, err)
}

func TestUnaryRateLimitInterceptor_HealthChecksExempt(t *testing.T) {
	limiter := ratelimit.NewWindow(ratelimit.Config{Max: 1, Window: time.Minute}, nil)
	icpt := UnaryRateLimitInterceptor(limiter, PublicMethods, zaptest.NewLogger(t))
	ok := func(context.Context, interface{}) (interface{}, error) { return "ok", nil }
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.1.1.1"), Port: 5000}})

	health := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	for i := 0; i < 5; i++ {
		_, err := icpt(ctx, nil, health, ok)
		require.NoError(t, err)
	}

	// probes did not use up the client's budget
	other := &grpc.UnaryServerInfo{FullMethod: "/x/Y"}
	_, err := icpt(ctx, nil, other, ok)
	require.NoError(t, err)
	_, err = icpt(ctx, nil, other, ok)
	require.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestGRPCError(t *testing.T) {
	require.Nil(t, GRPCError(nil))
	require.Equal(t, codes.AlreadyExists, status.Code(GRPCError(ErrConflict)))
	require.Equal(t, codes.PermissionDenied, status.Code(GRPCError(ErrForbidden)))
	st, _ := status.FromError(GRPCError(context.DeadlineExceeded))
	require.Equal(t, codes.Internal, st.Code())
	require.Equal(t, "internal error", st.Message())
}
