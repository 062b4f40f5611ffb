package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chowhub-be/internal/availability"
	"chowhub-be/internal/logger"
	"chowhub-be/internal/notify"
	"chowhub-be/internal/product"
	"chowhub-be/internal/timeutil"
)

// serviceChargePct is applied on top of the base price to form the
// order total.
const serviceChargePct = 10

// initialProtection shields a fresh order from retention cleanup long
// enough to open a payment attempt; initiation extends it to the actual
// payment window.
const initialProtection = 15 * time.Minute

type Service interface {
	CreateOrder(ctx context.Context, customerID, vendorID string, items []NewOrderItem) (*Order, error)
	GetOrder(ctx context.Context, orderID, actorID string, role Role) (*Order, error)

	// Transition applies one edge of the state machine on behalf of an
	// actor. The reason is recorded only when entering a cancelled state.
	Transition(ctx context.Context, orderID, actorID string, role Role, target OrderStatus, reason *string) (*Order, error)
}

type service struct {
	repo        Repository
	products    product.Repository
	windows     availability.Provider
	notifier    notify.ActivityNotifier
	invalidator notify.CacheInvalidator
}

func NewService(
	repo Repository,
	products product.Repository,
	windows availability.Provider,
	notifier notify.ActivityNotifier,
	invalidator notify.CacheInvalidator,
) Service {
	return &service{
		repo:        repo,
		products:    products,
		windows:     windows,
		notifier:    notifier,
		invalidator: invalidator,
	}
}

func (s *service) CreateOrder(ctx context.Context, customerID, vendorID string, items []NewOrderItem) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.String("customer_id", customerID),
		zap.String("vendor_id", vendorID),
		zap.Int("item_count", len(items)),
	)

	if customerID == "" {
		return nil, ErrUnauthorized
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	now := timeutil.Now()

	orderItems := make([]OrderItem, 0, len(items))
	var basePrice int64

	for i, in := range items {
		if in.Quantity <= 0 {
			log.Warn("invalid quantity", zap.Int("index", i))
			return nil, fmt.Errorf("quantity must be greater than zero")
		}

		p, err := s.products.GetProduct(ctx, in.ProductID)
		if err != nil {
			log.Error("failed to load product",
				zap.String("product_id", in.ProductID),
				zap.Error(err),
			)
			return nil, err
		}
		if p.VendorID != vendorID {
			return nil, fmt.Errorf("product %s does not belong to vendor %s", p.ID, vendorID)
		}

		window, manual, err := s.windows.GetWindow(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		if !availability.IsAvailable(window, manual, now) {
			log.Warn("product failed availability gate",
				zap.String("product_id", in.ProductID),
			)
			return nil, fmt.Errorf("%w: %s", ErrProductOffline, p.Name)
		}

		subtotal := p.UnitPrice * int64(in.Quantity)
		basePrice += subtotal

		orderItems = append(orderItems, OrderItem{
			ID:        uuid.New().String(),
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: p.UnitPrice,
			Subtotal:  subtotal,
			Options:   in.Options,
		})
	}

	if err := Authorize(StatusNone, StatusAwaitingPayment, RoleCustomer); err != nil {
		return nil, err
	}

	protectedUntil := now.Add(initialProtection)

	o := &Order{
		ID:             uuid.New().String(),
		CustomerID:     customerID,
		VendorID:       vendorID,
		Status:         StatusAwaitingPayment,
		BasePrice:      basePrice,
		TotalPrice:     basePrice + basePrice*serviceChargePct/100,
		ProtectedUntil: &protectedUntil,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          orderItems,
	}

	if err := s.repo.CreateOrderTx(ctx, o); err != nil {
		log.Error("failed to persist order", zap.Error(err))
		return nil, err
	}

	log.Info("order created",
		zap.String("order_id", o.ID),
		zap.Int64("total_price", o.TotalPrice),
	)

	s.notifier.Record(ctx, customerID, o.ID, []string{notify.EventOrderCreated})

	return o, nil
}

func (s *service) GetOrder(ctx context.Context, orderID, actorID string, role Role) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorizeActor(o, actorID, role); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *service) Transition(ctx context.Context, orderID, actorID string, role Role, target OrderStatus, reason *string) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Transition"),
		zap.String("order_id", orderID),
		zap.String("actor_id", actorID),
		zap.String("role", string(role)),
		zap.String("target", string(target)),
	)

	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := authorizeActor(o, actorID, role); err != nil {
		log.Warn("actor not authorized for order")
		return nil, err
	}

	if err := Authorize(o.Status, target, role); err != nil {
		log.Warn("transition rejected", zap.String("from", string(o.Status)))
		return nil, err
	}

	cancelledAt, cancelReason := cancellationFields(target, reason)

	changed, err := s.repo.UpdateStatusGuarded(ctx, orderID, []OrderStatus{o.Status}, target, cancelledAt, cancelReason)
	if err != nil {
		log.Error("failed to persist transition", zap.Error(err))
		return nil, err
	}
	if !changed {
		// A concurrent writer moved the order first.
		log.Warn("transition lost race")
		return nil, fmt.Errorf("%w: order %s no longer in %s", ErrPersistenceConflict, orderID, o.Status)
	}

	updated, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	log.Info("order transitioned", zap.String("status", string(updated.Status)))

	s.notifier.Record(ctx, actorID, orderID, []string{notify.EventOrderStatusChanged + ":" + string(target)})
	s.invalidator.Invalidate(ctx, "order", orderID)

	return updated, nil
}

// authorizeActor checks order ownership. System callers bypass the
// ownership check; they carry no user identity.
func authorizeActor(o *Order, actorID string, role Role) error {
	switch role {
	case RoleSystem:
		return nil
	case RoleCustomer:
		if o.CustomerID == actorID {
			return nil
		}
	case RoleVendor:
		if o.VendorID == actorID {
			return nil
		}
	}
	return ErrUnauthorized
}

func cancellationFields(target OrderStatus, reason *string) (*time.Time, *string) {
	if target != StatusCancelled && target != StatusCancelledUnpaid {
		return nil, nil
	}
	now := timeutil.Now()
	r := "CANCELLED_BY_ACTOR"
	if reason != nil && *reason != "" {
		r = *reason
	}
	return &now, &r
}
