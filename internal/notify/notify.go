// Package notify holds the fire-and-forget collaborator contracts the
// core informs after financial state is committed. Failures here are
// logged and never propagate back into the caller's transaction.
package notify

import (
	"context"

	"go.uber.org/zap"

	"chowhub-be/internal/logger"
)

// Activity event names recorded against orders.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentConfirmed   = "payment.confirmed"
	EventPaymentExpired     = "payment.expired"
	EventManualReview       = "payment.manual_review"
)

type ActivityNotifier interface {
	Record(ctx context.Context, actorID, orderID string, events []string)
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, entityType, id string)
}

// AsyncNotifier dispatches activity records on their own goroutine so a
// slow or failing downstream never blocks the financial path.
type AsyncNotifier struct {
	sink ActivitySink
}

// ActivitySink is the downstream the notifier hands events to, e.g. an
// audit service client.
type ActivitySink interface {
	Deliver(actorID, orderID string, events []string) error
}

func NewAsyncNotifier(sink ActivitySink) *AsyncNotifier {
	return &AsyncNotifier{sink: sink}
}

func (n *AsyncNotifier) Record(ctx context.Context, actorID, orderID string, events []string) {
	log := logger.FromCtx(ctx).With(
		zap.String("actor_id", actorID),
		zap.String("order_id", orderID),
		zap.Strings("events", events),
	)

	go func() {
		if err := n.sink.Deliver(actorID, orderID, events); err != nil {
			log.Warn("activity dispatch failed", zap.Error(err))
			return
		}
		log.Debug("activity recorded")
	}()
}

// LogSink is the default sink: it writes activity to the log. Real
// deployments swap in a client for the notification service.
type LogSink struct{}

func (LogSink) Deliver(actorID, orderID string, events []string) error {
	logger.L().Info("activity",
		zap.String("actor_id", actorID),
		zap.String("order_id", orderID),
		zap.Strings("events", events),
	)
	return nil
}

// LogInvalidator is the best-effort default cache invalidator.
type LogInvalidator struct{}

func (LogInvalidator) Invalidate(ctx context.Context, entityType, id string) {
	logger.FromCtx(ctx).Debug("cache invalidated",
		zap.String("entity_type", entityType),
		zap.String("id", id),
	)
}
