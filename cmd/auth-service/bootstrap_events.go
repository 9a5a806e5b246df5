package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	config "github.com/NordCoder/storefront-auth/internal/config/auth-service"
	"github.com/NordCoder/storefront-auth/internal/domain/events"
	domainoutbox "github.com/NordCoder/storefront-auth/internal/domain/outbox"
	"github.com/NordCoder/storefront-auth/internal/obs/retry"
	"github.com/NordCoder/storefront-auth/internal/outbox"
	"github.com/NordCoder/storefront-auth/internal/repository/kafka"
	natsbus "github.com/NordCoder/storefront-auth/internal/repository/nats"
)

type publisher struct {
	// Publisher is nil when events are switched off.
	events.Publisher
	close func()
}

func (p *publisher) Close() {
	if p.close != nil {
		p.close()
	}
}

func initPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*publisher, error) {
	switch cfg.Events.Driver {
	case "kafka":
		kc := cfg.Events.Kafka
		ensureCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := kafka.EnsureTopic(ensureCtx, kc.Brokers, kafka.TopicSpec{Name: kc.Topic}, logger); err != nil {
			return nil, err
		}
		p := kafka.NewProducer(kc.Brokers, kc.Topic, logger)
		return &publisher{Publisher: p, close: func() { _ = p.Close() }}, nil
	case "nats":
		nc := cfg.Events.NATS
		b, err := natsbus.New(nc.URL, nc.Stream, nc.Subject, logger)
		if err != nil {
			return nil, err
		}
		return &publisher{Publisher: b, close: b.Close}, nil
	default:
		logger.Info("session events disabled")
		return &publisher{}, nil
	}
}

func buildOutboxRunner(cfg *config.Config, logger *zap.Logger, repo domainoutbox.Repository, pub events.Publisher) *outbox.Runner {
	dispatch := outbox.MakeGlobalHandler(pub, retry.PublishPolicy("session_events", logger))
	return outbox.NewRunner(logger, repo, dispatch, outbox.Config{
		Workers:       cfg.Outbox.Workers,
		BatchSize:     cfg.Outbox.BatchSize,
		WaitTime:      cfg.Outbox.WaitTime,
		InProgressTTL: cfg.Outbox.InProgressTTL,
	})
}
