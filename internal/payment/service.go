package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chowhub-be/internal/availability"
	"chowhub-be/internal/logger"
	"chowhub-be/internal/notify"
	"chowhub-be/internal/order"
	"chowhub-be/internal/timeutil"
	"chowhub-be/internal/utils"
)

// verifyAttempts bounds the retry budget for opportunistic provider
// verification.
const verifyAttempts = 3

// Result is the post-confirmation view handed back to both entry
// points.
type Result struct {
	Order   *order.Order
	Payment *Payment
}

type Service interface {
	// Initiate opens a payment attempt for an order awaiting payment.
	// At most one unexpired pending attempt may exist per order.
	Initiate(ctx context.Context, orderID, actorID, payerEmail string, channel Channel) (*Handoff, error)

	// Confirm is the single authoritative confirmation path, used
	// identically by manual confirmation and the webhook reconciler.
	// Confirming an already-successful payment is a no-op.
	Confirm(ctx context.Context, reference string, reportedAmount int64, reportedMetadata json.RawMessage) (*Result, error)

	// Reconcile asks the provider for a charge's authoritative state and
	// confirms on success. Used when webhooks are delayed or lost.
	Reconcile(ctx context.Context, reference string) (*Result, error)
}

type Options struct {
	// Window caps how long an attempt may stay pending.
	Window time.Duration
	// AmountTolerance is the accepted reported-amount delta in minor
	// units.
	AmountTolerance int64
}

type service struct {
	repo        Repository
	orders      order.Repository
	windows     availability.Provider
	gateway     Gateway
	notifier    notify.ActivityNotifier
	invalidator notify.CacheInvalidator
	opts        Options
}

func NewService(
	repo Repository,
	orders order.Repository,
	windows availability.Provider,
	gateway Gateway,
	notifier notify.ActivityNotifier,
	invalidator notify.CacheInvalidator,
	opts Options,
) Service {
	if opts.Window <= 0 {
		opts.Window = 15 * time.Minute
	}
	return &service{
		repo:        repo,
		orders:      orders,
		windows:     windows,
		gateway:     gateway,
		notifier:    notifier,
		invalidator: invalidator,
		opts:        opts,
	}
}

func (s *service) Initiate(ctx context.Context, orderID, actorID, payerEmail string, channel Channel) (*Handoff, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Initiate"),
		zap.String("order_id", orderID),
		zap.String("actor_id", actorID),
		zap.String("channel", string(channel)),
	)

	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if o.CustomerID != actorID {
		log.Warn("initiation by non-owner rejected")
		return nil, order.ErrUnauthorized
	}

	if o.Status != order.StatusAwaitingPayment {
		log.Warn("order not awaiting payment", zap.String("status", string(o.Status)))
		return nil, fmt.Errorf("%w: order is %s", ErrNotReadyForPayment, o.Status)
	}

	now := timeutil.Now()

	if paid, err := s.repo.ExistsSuccessForOrder(ctx, orderID); err != nil {
		return nil, err
	} else if paid {
		return nil, ErrAlreadyPaid
	}

	if pending, err := s.repo.ExistsActivePendingForOrder(ctx, orderID, now); err != nil {
		return nil, err
	} else if pending {
		return nil, ErrPaymentAlreadyPending
	}

	// The attempt may not outlive the availability of any item: the
	// window closes at the earliest product close-time plus grace, and
	// never later than the fixed cap.
	expiresAt := now.Add(s.opts.Window)
	for _, item := range o.Items {
		window, manual, err := s.windows.GetWindow(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !availability.IsAvailable(window, manual, now) {
			log.Warn("item offline at issuance", zap.String("product_id", item.ProductID))
			return nil, fmt.Errorf("%w: product %s", order.ErrProductOffline, item.ProductID)
		}
		if window != nil {
			expiresAt = timeutil.Min(expiresAt, window.CloseTime())
		}
	}

	reference := utils.NewPaymentReference()

	charge, err := s.gateway.InitializeCharge(ctx, ChargeRequest{
		Reference:  reference,
		Amount:     o.TotalPrice,
		PayerEmail: payerEmail,
		Metadata: ChargeMetadata{
			OrderID: o.ID,
			UserID:  actorID,
		},
	})
	if err != nil {
		log.Error("provider charge initialization failed", zap.Error(err))
		return nil, err
	}

	p := &Payment{
		ID:        uuid.New().String(),
		Reference: reference,
		OrderID:   o.ID,
		UserID:    actorID,
		Amount:    o.TotalPrice,
		Status:    StatusPending,
		Channel:   channel,
		StartedAt: now,
		ExpiresAt: expiresAt,
	}

	inserted, err := s.repo.CreatePendingAttempt(ctx, p)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// A racing initiation won the slot between our pre-checks and
		// the insert. Classify for the caller.
		if paid, perr := s.repo.ExistsSuccessForOrder(ctx, orderID); perr == nil && paid {
			return nil, ErrAlreadyPaid
		}
		return nil, ErrPaymentAlreadyPending
	}

	// Shield the order from retention cleanup while the window is open.
	if err := s.orders.SetProtectedUntil(ctx, orderID, expiresAt); err != nil {
		log.Warn("failed to extend order protection", zap.Error(err))
	}

	log.Info("payment attempt opened",
		zap.String("reference", reference),
		zap.Time("expires_at", expiresAt),
	)

	return &Handoff{
		Reference:        reference,
		AuthorizationURL: charge.AuthorizationURL,
		AccessCode:       charge.AccessCode,
		Amount:           o.TotalPrice,
		ExpiresAt:        expiresAt,
	}, nil
}

func (s *service) Confirm(ctx context.Context, reference string, reportedAmount int64, reportedMetadata json.RawMessage) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Confirm"),
		zap.String("reference", reference),
		zap.Int64("reported_amount", reportedAmount),
	)

	p, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	// Idempotent replay: same end state, no second notification.
	if p.Status == StatusSuccess {
		log.Info("confirmation replayed for settled payment, no-op")
		o, err := s.orders.GetOrder(ctx, p.OrderID)
		if err != nil {
			return nil, err
		}
		return &Result{Order: o, Payment: p}, nil
	}

	// An expired or failed attempt is already resolved; a confirmation
	// arriving now is the late-provider case, and retrying cannot
	// succeed. Operators reconcile by hand.
	if p.Status == StatusExpired || p.Status == StatusFailed {
		log.Warn("confirmation for resolved payment attempt, flagging for manual review",
			zap.String("payment_status", string(p.Status)),
		)
		s.notifier.Record(ctx, p.UserID, p.OrderID, []string{notify.EventManualReview})
		return nil, fmt.Errorf("%w: payment is %s", ErrOrderNotEligible, p.Status)
	}

	o, err := s.orders.GetOrder(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}

	if o.Status != order.StatusAwaitingPayment {
		// A cancelled or expired order is never silently resurrected;
		// operators reconcile these by hand.
		log.Warn("confirmation for ineligible order, flagging for manual review",
			zap.String("order_status", string(o.Status)),
		)
		s.notifier.Record(ctx, p.UserID, o.ID, []string{notify.EventManualReview})
		return nil, fmt.Errorf("%w: order is %s", ErrOrderNotEligible, o.Status)
	}

	if delta := reportedAmount - o.TotalPrice; delta > s.opts.AmountTolerance || delta < -s.opts.AmountTolerance {
		log.Warn("reported amount outside tolerance",
			zap.Int64("order_total", o.TotalPrice),
		)
		if _, err := s.repo.MarkFailed(ctx, p.ID, FailureAmountMismatch); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reported %d, expected %d", ErrAmountMismatch, reportedAmount, o.TotalPrice)
	}

	// The state machine stays the sole authority on the edge even
	// though the write happens inside ConfirmTx.
	if err := order.Authorize(order.StatusAwaitingPayment, order.StatusPaymentConfirmed, order.RoleSystem); err != nil {
		return nil, err
	}

	completedAt := timeutil.Now()

	confirmed, err := s.repo.ConfirmTx(ctx, p.ID, o.ID, completedAt, reportedMetadata)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		// Lost a race. If the winner settled this same payment the
		// outcome is identical to ours and replying success keeps the
		// path idempotent.
		fresh, ferr := s.repo.GetByReference(ctx, reference)
		if ferr == nil && fresh.Status == StatusSuccess {
			log.Info("concurrent confirmation won, treating as replay")
			fo, oerr := s.orders.GetOrder(ctx, fresh.OrderID)
			if oerr != nil {
				return nil, oerr
			}
			return &Result{Order: fo, Payment: fresh}, nil
		}
		return nil, fmt.Errorf("%w: payment %s", order.ErrPersistenceConflict, reference)
	}

	updatedOrder, err := s.orders.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	updatedPayment, err := s.repo.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	log.Info("payment confirmed",
		zap.String("order_id", o.ID),
		zap.String("order_status", string(updatedOrder.Status)),
	)

	// Side effects stay outside the financial transaction; a failure
	// here is logged downstream and never rolls it back.
	s.notifier.Record(ctx, o.CustomerID, o.ID, []string{notify.EventPaymentConfirmed})
	s.notifier.Record(ctx, o.VendorID, o.ID, []string{notify.EventPaymentConfirmed})
	s.invalidator.Invalidate(ctx, "order", o.ID)

	return &Result{Order: updatedOrder, Payment: updatedPayment}, nil
}

func (s *service) Reconcile(ctx context.Context, reference string) (*Result, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Reconcile"),
		zap.String("reference", reference),
	)

	var (
		vr      *VerifyResult
		lastErr error
	)

	for attempt := 1; attempt <= verifyAttempts; attempt++ {
		vr, lastErr = s.gateway.Verify(ctx, reference)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, ErrProviderVerificationFailed) {
			return nil, lastErr
		}
		log.Warn("provider verification attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}
	if lastErr != nil {
		// The payment stays pending; the sweeper or a later webhook
		// resolves it.
		return nil, lastErr
	}

	if vr.Status != "success" {
		// The provider answered fine; the charge just is not settled.
		log.Info("provider reports non-success status", zap.String("status", vr.Status))
		return nil, fmt.Errorf("%w: provider status %s", ErrChargeNotSettled, vr.Status)
	}

	return s.Confirm(ctx, reference, vr.Amount, vr.Metadata)
}
