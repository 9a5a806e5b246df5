// Package nats publishes session events to a JetStream stream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/NordCoder/storefront-auth/internal/domain/events"
	"github.com/NordCoder/storefront-auth/internal/obs"
)

type msgPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

var _ events.Publisher = (*Bus)(nil)

// Bus wraps a JetStream context. Event ids double as JetStream message ids so
// a redelivered outbox row is dropped by the stream's duplicate window.
type Bus struct {
	conn    *nats.Conn
	js      msgPublisher
	subject string
	log     *zap.Logger
}

// New connects to url and makes sure a stream covers subject.
func New(url, stream, subject string, log *zap.Logger, opts ...nats.Option) (*Bus, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	if err := ensureStream(js, stream, subject); err != nil {
		nc.Close()
		return nil, err
	}
	b := newBus(js, subject, log)
	b.conn = nc
	return b, nil
}

func newBus(js msgPublisher, subject string, log *zap.Logger) *Bus {
	return &Bus{js: js, subject: subject, log: obs.Component(log, "nats.bus").With(zap.String("subject", subject))}
}

func ensureStream(js nats.JetStreamContext, stream, subject string) error {
	if stream == "" {
		return nil
	}
	_, err := js.StreamInfo(stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}
	if _, err := js.AddStream(&nats.StreamConfig{Name: stream, Subjects: []string{subject}}); err != nil {
		return fmt.Errorf("add stream: %w", err)
	}
	return nil
}

func (b *Bus) PublishSessionEvent(ctx context.Context, e events.SessionEvent) error {
	if b == nil {
		return errors.New("nil bus")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	msg := nats.NewMsg(b.subject)
	msg.Data = data
	msg.Header.Set("Event-Type", e.Type)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(http.Header(msg.Header)))

	if _, err := b.js.PublishMsg(msg, nats.Context(ctx), nats.MsgId(e.ID.String())); err != nil {
		obs.WithTrace(ctx, b.log).Error("nats publish failed", zap.String("event_type", e.Type), zap.Error(err))
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains the connection.
func (b *Bus) Close() {
	if b == nil || b.conn == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}
