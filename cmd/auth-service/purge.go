package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/storefront-auth/internal/obs"
	"github.com/NordCoder/storefront-auth/internal/services/auth"
)

func runPurge(ctx context.Context, uc *auth.Usecase, every time.Duration, logger *zap.Logger) {
	log := obs.Component(logger, "purge")
	if every <= 0 {
		log.Info("expired token purge disabled")
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := uc.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("purge failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				log.Info("expired refresh tokens purged", zap.Int64("count", n))
			}
		}
	}
}
