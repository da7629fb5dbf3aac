// Package events fans checkout lifecycle events out to in-process
// subscribers and to the message broker.
package events

import (
	"context"
	"log/slog"

	"storefront-checkout/internal/domain"
)

type Sink interface {
	Publish(ctx context.Context, ev domain.CheckoutEvent) error
}

type multiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// Fanout publishes to every sink. A failing sink is logged and does not stop
// the others.
func Fanout(logger *slog.Logger, sinks ...Sink) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &multiSink{sinks: sinks, logger: logger}
}

func (m *multiSink) Publish(ctx context.Context, ev domain.CheckoutEvent) error {
	for _, s := range m.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			m.logger.Warn("publish checkout event",
				"order_id", ev.OrderID,
				"state", ev.State,
				"err", err,
			)
		}
	}
	return nil
}
