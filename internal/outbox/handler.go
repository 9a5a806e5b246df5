package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/NordCoder/storefront-auth/internal/domain/events"
	"github.com/NordCoder/storefront-auth/internal/domain/outbox"
	"github.com/NordCoder/storefront-auth/internal/obs"
	"github.com/NordCoder/storefront-auth/internal/obs/retry"
)

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) (err error) {
		ctx, span := tr.Start(ctx, "outbox.handle "+kind)
		defer func() { obs.EndSpan(span, err) }()

		start := time.Now()
		err = retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

// sessionKinds are the outbox kinds that carry an events.SessionEvent.
var sessionKinds = map[outbox.Kind]bool{
	outbox.KindIdentityRegistered: true,
	outbox.KindRoleChanged:        true,
	outbox.KindDeactivated:        true,
	outbox.KindReactivated:        true,
	outbox.KindForcedLogout:       true,
}

// MakeGlobalHandler routes every session kind to pub.
func MakeGlobalHandler(pub events.Publisher, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		if !sessionKinds[kind] {
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
		base := func(ctx context.Context, data []byte) error {
			var e events.SessionEvent
			if err := json.Unmarshal(data, &e); err != nil {
				return retry.Permanent(fmt.Errorf("unmarshal %s payload: %w", kind, err))
			}
			return pub.PublishSessionEvent(ctx, e)
		}
		return instrument(kind.String(), base, pol), nil
	}
}
