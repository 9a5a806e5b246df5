package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/NordCoder/storefront-auth/internal/domain/events"
	"github.com/NordCoder/storefront-auth/internal/obs"
)

type Handler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads session events; authctl uses it to tail the topic.
type Consumer struct {
	reader messageReader
	log    *zap.Logger
}

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Logger        *zap.Logger
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,

		MinBytes:          1,
		MaxBytes:          10e6,
		SessionTimeout:    10 * time.Second,
		RebalanceTimeout:  15 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})

	return newConsumer(r, cfg.Topic, cfg.GroupID, cfg.Logger)
}

func newConsumer(r messageReader, topic, group string, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: r,
		log: obs.Component(log, "kafka.consumer").With(
			zap.String("topic", topic),
			zap.String("group", group),
		),
	}
}

// Consume runs h for every message until ctx ends. Messages whose handler
// fails are left uncommitted.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	log := c.log
	log.Info("consumer started")

	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second
	prop := otel.GetTextMapPropagator()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("consumer stopped")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				log.Debug("fetch EOF; retry", zap.Duration("backoff", backoff))
			} else {
				log.Warn("fetch failed; retry", zap.Error(err), zap.Duration("backoff", backoff))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		msgCtx := prop.Extract(ctx, headerCarrier(msg.Headers))
		if err := h(msgCtx, msg.Key, msg.Value); err != nil {
			obs.WithTrace(msgCtx, log).Error("handler error",
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("commit failed; will retry later", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }

// SessionEventHandler decodes each message before handing it to handle.
func SessionEventHandler(handle func(context.Context, events.SessionEvent) error) Handler {
	return func(ctx context.Context, _, value []byte) error {
		var e events.SessionEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decode session event: %w", err)
		}
		return handle(ctx, e)
	}
}
