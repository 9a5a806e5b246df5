package kafka

import (
	"context"
	"sort"

	"github.com/segmentio/kafka-go"

	"github.com/NordCoder/storefront-auth/internal/obs"
)

const EventTypeHeader = "event-type"

// sessionHeaders tags a message with its event type and the caller's trace
// context. Keys are sorted so equal inputs give equal header lists.
func sessionHeaders(ctx context.Context, eventType string) []kafka.Header {
	carrier := obs.InjectTrace(ctx)
	carrier.Set(EventTypeHeader, eventType)

	keys := carrier.Keys()
	sort.Strings(keys)
	hs := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(carrier.Get(k))})
	}
	return hs
}

// headerCarrier is a read-only TextMapCarrier over fetched message headers.
type headerCarrier []kafka.Header

func (h headerCarrier) Get(k string) string {
	for _, x := range h {
		if x.Key == k {
			return string(x.Value)
		}
	}
	return ""
}

func (h headerCarrier) Set(string, string) {}

func (h headerCarrier) Keys() []string {
	ks := make([]string, 0, len(h))
	for _, x := range h {
		ks = append(ks, x.Key)
	}
	return ks
}
