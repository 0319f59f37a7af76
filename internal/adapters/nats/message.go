package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

const headerContentType = "Content-Type"

// headerCarrier adapts nats.Header to the otel propagation carrier.
type headerCarrier nats.Header

func (h headerCarrier) Get(key string) string { return nats.Header(h).Get(key) }
func (h headerCarrier) Set(key, value string) { nats.Header(h).Set(key, value) }
func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

var _ propagation.TextMapCarrier = headerCarrier{}

// encodePointRegistered builds the message for event, carrying the trace
// context of ctx in its headers.
func encodePointRegistered(ctx context.Context, event *domain.PointRegistered) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode point.registered: %w", err)
	}
	msg := nats.NewMsg(PointRegisteredSubject(event.UF))
	msg.Data = data
	msg.Header.Set(headerContentType, "application/json")
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Header))
	return msg, nil
}

// decodePointRegistered parses msg and returns parent extended with the
// publisher's trace context.
func decodePointRegistered(parent context.Context, msg *nats.Msg) (context.Context, *domain.PointRegistered, error) {
	var event domain.PointRegistered
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return parent, nil, fmt.Errorf("decode point.registered: %w", err)
	}
	ctx := parent
	if msg.Header != nil {
		ctx = otel.GetTextMapPropagator().Extract(parent, headerCarrier(msg.Header))
	}
	return ctx, &event, nil
}
