package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	config "github.com/NordCoder/storefront-auth/internal/config/auth-service"
	"github.com/NordCoder/storefront-auth/internal/ratelimit"
)

// initLimiter never fails: an unreachable redis only logs, since the
// middleware lets requests through while the limiter errors.
func initLimiter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, func()) {
	rl := ratelimit.Config{Max: cfg.RateLimit.Max, Window: cfg.RateLimit.Window()}
	if rl.Disabled() {
		logger.Warn("rate limiting disabled")
	}

	if cfg.RateLimit.Driver != "redis" {
		return ratelimit.NewWindow(rl, nil), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; limiter fails open until it is reachable",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	return ratelimit.NewRedis(client, rl), func() { _ = client.Close() }
}
