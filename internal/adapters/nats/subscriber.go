package natsadapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/ecoleta/internal/core/domain"
)

const (
	maxDeliver     = 3
	redeliverDelay = 2 * time.Second
)

var tracer = otel.Tracer("github.com/samirrijal/ecoleta/internal/adapters/nats")

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribePointRegistered delivers every new registration to handler.
// Each gateway instance gets its own ephemeral consumer so all of them see
// every event; only events published after subscribing are delivered.
func (s *Subscriber) SubscribePointRegistered(ctx context.Context, handler func(ctx context.Context, event *domain.PointRegistered) error) error {
	sub, err := s.js.Subscribe(subjectPointRegistered+".>", func(msg *nats.Msg) {
		evCtx, event, err := decodePointRegistered(ctx, msg)
		if err != nil {
			slog.Warn("dropping malformed point.registered", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		evCtx, span := tracer.Start(evCtx, "nats.point_registered",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.String("messaging.destination", msg.Subject)),
		)
		defer span.End()

		if err := handler(evCtx, event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if meta, mErr := msg.Metadata(); mErr == nil && meta.NumDelivered >= maxDeliver {
				slog.Warn("giving up on point.registered", "subject", msg.Subject, "deliveries", meta.NumDelivered, "error", err)
			}
			_ = msg.NakWithDelay(redeliverDelay)
			return
		}
		_ = msg.Ack()
	},
		nats.BindStream(StreamPointEvents),
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(maxDeliver),
	)
	if err != nil {
		return fmt.Errorf("subscribe point.registered: %w", err)
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
