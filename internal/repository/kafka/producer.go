package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/storefront-auth/internal/domain/events"
	"github.com/NordCoder/storefront-auth/internal/obs"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ events.Publisher = (*Producer)(nil)

// Producer publishes session events as JSON keyed by identity id, so every
// event of one identity lands on the same partition in order.
type Producer struct {
	w     messageWriter
	topic string
	log   *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, topic, log)
}

func newProducer(w messageWriter, topic string, log *zap.Logger) *Producer {
	return &Producer{
		w:     w,
		topic: topic,
		log:   obs.Component(log, "kafka.producer").With(zap.String("topic", topic)),
	}
}

func (p *Producer) PublishSessionEvent(ctx context.Context, e events.SessionEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	tr := otel.Tracer("kafka.producer")
	ctx, span := tr.Start(ctx, "kafka.produce "+p.topic, trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingOperationPublish,
		),
	)
	var werr error
	defer func() { obs.EndSpan(span, werr) }()

	msg := kafka.Message{
		Key:     []byte(e.IdentityID.String()),
		Value:   value,
		Headers: sessionHeaders(ctx, e.Type),
	}
	if werr = p.w.WriteMessages(ctx, msg); werr != nil {
		p.log.Error("kafka write failed", zap.String("event_type", e.Type), zap.Error(werr))
		return fmt.Errorf("kafka write: %w", werr)
	}
	p.log.Debug("session event published",
		zap.String("event_type", e.Type),
		zap.String("event_id", e.ID.String()),
		zap.Int("value_len", len(value)),
	)
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
