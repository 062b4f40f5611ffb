package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chowhub-be/internal/jobs"
	"chowhub-be/internal/logger"
	"chowhub-be/internal/metrics"
	"chowhub-be/internal/notify"
	"chowhub-be/internal/order"
	"chowhub-be/internal/timeutil"
)

const sweeperLeaseName = "payment-sweeper"

// Sweeper expires stale pending payments and abandons their orders. All
// of its writes are guarded on the expected prior state, so concurrent
// sweepers (or a racing confirmation) are safe, merely redundant.
type Sweeper struct {
	repo     Repository
	orders   order.Repository
	leases   jobs.LeaseRepository
	notifier notify.ActivityNotifier

	interval  time.Duration
	batchSize int
	holder    string
}

func NewSweeper(
	repo Repository,
	orders order.Repository,
	leases jobs.LeaseRepository,
	notifier notify.ActivityNotifier,
	interval time.Duration,
	batchSize int,
) *Sweeper {
	return &Sweeper{
		repo:      repo,
		orders:    orders,
		leases:    leases,
		notifier:  notifier,
		interval:  interval,
		batchSize: batchSize,
		holder:    uuid.New().String(),
	}
}

// Run ticks until ctx is cancelled. Each tick takes the persisted job
// lease before sweeping so that only one of N instances does the work.
func (s *Sweeper) Run(ctx context.Context) {
	log := logger.L().With(
		zap.String("job", sweeperLeaseName),
		zap.String("holder", s.holder),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info("sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")
			return
		case <-ticker.C:
		}

		got, err := s.leases.Acquire(ctx, sweeperLeaseName, s.holder, s.interval*2)
		if err != nil {
			log.Error("failed to acquire sweep lease", zap.Error(err))
			continue
		}
		if !got {
			log.Debug("sweep lease held elsewhere, skipping tick")
			continue
		}

		for {
			summary, err := s.Sweep(ctx, s.batchSize)
			if err != nil {
				log.Error("sweep pass failed", zap.Error(err))
				break
			}
			if summary.Expired > 0 || summary.Cancelled > 0 {
				log.Info("sweep pass done",
					zap.Int("expired", summary.Expired),
					zap.Int("cancelled", summary.Cancelled),
				)
			}
			// A short batch means the backlog is drained.
			if summary.Expired < s.batchSize {
				break
			}
		}

		if err := s.leases.Release(ctx, sweeperLeaseName, s.holder); err != nil {
			log.Warn("failed to release sweep lease", zap.Error(err))
		}
	}
}

// Sweep processes one bounded batch of lapsed pending payments.
func (s *Sweeper) Sweep(ctx context.Context, batchSize int) (SweepSummary, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "sweeper"),
		zap.String("method", "Sweep"),
	)

	var summary SweepSummary

	timer := metrics.StartTimer()
	now := timeutil.Now()
	attempts, err := s.repo.ListExpiredPending(ctx, now, batchSize)
	if err != nil {
		return summary, err
	}

	for _, a := range attempts {
		alog := log.With(
			zap.String("payment_id", a.PaymentID),
			zap.String("order_id", a.OrderID),
		)

		expired, err := s.repo.MarkExpired(ctx, a.PaymentID)
		if err != nil {
			alog.Error("failed to expire payment", zap.Error(err))
			continue
		}
		if !expired {
			// A confirmation resolved this payment between the listing
			// and now. Leave the order alone.
			alog.Debug("payment resolved concurrently, skipping")
			continue
		}
		summary.Expired++
		metrics.PaymentMetrics.SweptExpired.Inc()

		if s.abandonOrder(ctx, alog, a.OrderID, now) {
			summary.Cancelled++
			metrics.PaymentMetrics.SweptCancelled.Inc()
		}
	}

	if summary.Expired > 0 {
		log.Debug("sweep batch finished",
			zap.Int("expired", summary.Expired),
			zap.Duration("took", timer.Duration()),
		)
	}

	return summary, nil
}

// abandonOrder walks a still-unpaid order through PAYMENT_EXPIRED to
// CANCELLED_UNPAID. Every step is validated against the edge table and
// guarded at the storage layer; losing either race means a confirmation
// got there first and the order must not be touched.
func (s *Sweeper) abandonOrder(ctx context.Context, log *zap.Logger, orderID string, now time.Time) bool {
	if err := order.Authorize(order.StatusAwaitingPayment, order.StatusPaymentExpired, order.RoleSystem); err != nil {
		log.Error("expiry edge rejected by state machine", zap.Error(err))
		return false
	}

	marked, err := s.orders.UpdateStatusGuarded(ctx, orderID,
		[]order.OrderStatus{order.StatusAwaitingPayment},
		order.StatusPaymentExpired, nil, nil,
	)
	if err != nil {
		log.Error("failed to mark order payment-expired", zap.Error(err))
		return false
	}
	if !marked {
		log.Debug("order no longer awaiting payment, skipping")
		return false
	}

	if err := order.Authorize(order.StatusPaymentExpired, order.StatusCancelledUnpaid, order.RoleSystem); err != nil {
		log.Error("abandon edge rejected by state machine", zap.Error(err))
		return false
	}

	reason := order.CancelReasonPaymentExpired
	cancelled, err := s.orders.UpdateStatusGuarded(ctx, orderID,
		[]order.OrderStatus{order.StatusPaymentExpired},
		order.StatusCancelledUnpaid, &now, &reason,
	)
	if err != nil {
		log.Error("failed to abandon order", zap.Error(err))
		return false
	}
	if !cancelled {
		return false
	}

	log.Info("order abandoned for non-payment")
	s.notifier.Record(ctx, "", orderID, []string{notify.EventPaymentExpired})
	return true
}
