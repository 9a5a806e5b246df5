package ratelimit

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var ErrRedisUnavailable = errors.New("rate limiter: redis unavailable")

const redisKeyPrefix = "ratelimit:"

// Redis is a fixed-window counter shared by every process using the same
// Redis keyspace.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
}

func NewRedis(client redis.UniversalClient, cfg Config) *Redis {
	return &Redis{client: client, cfg: cfg}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if r.cfg.Disabled() {
		return true, nil
	}
	k := redisKeyPrefix + key

	// INCR and PEXPIRE NX go in one MULTI: the window starts with the first
	// hit, later hits do not extend it, and a key can never be left without a TTL.
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.PExpireNX(ctx, k, r.cfg.Window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return incr.Val() <= int64(r.cfg.Max), nil
}

// Reset drops every counter under the limiter prefix.
func (r *Redis) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
