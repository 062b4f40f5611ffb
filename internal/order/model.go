package order

import (
	"encoding/json"
	"time"
)

type OrderStatus string

const (
	StatusPending                   OrderStatus = "PENDING"
	StatusWaitingVendorConfirmation OrderStatus = "WAITING_VENDOR_CONFIRMATION"
	StatusWaitingCustomerApproval   OrderStatus = "WAITING_CUSTOMER_APPROVAL"
	StatusAwaitingPayment           OrderStatus = "AWAITING_PAYMENT"
	StatusPaymentConfirmed          OrderStatus = "PAYMENT_CONFIRMED"
	StatusCooking                   OrderStatus = "COOKING"
	StatusReadyForPickup            OrderStatus = "READY_FOR_PICKUP"
	StatusOutForDelivery            OrderStatus = "OUT_FOR_DELIVERY"
	StatusCompleted                 OrderStatus = "COMPLETED"
	StatusCancelled                 OrderStatus = "CANCELLED"
	StatusCancelledUnpaid           OrderStatus = "CANCELLED_UNPAID"
	StatusPaymentExpired            OrderStatus = "PAYMENT_EXPIRED"
	StatusFailedDelivery            OrderStatus = "FAILED_DELIVERY"
)

// CancelReasonPaymentExpired is recorded when the sweeper abandons an
// order whose payment window lapsed.
const CancelReasonPaymentExpired = "PAYMENT_EXPIRED"

type Order struct {
	ID         string
	CustomerID string
	VendorID   string
	Status     OrderStatus

	// Prices are in minor currency units.
	BasePrice  int64
	TotalPrice int64

	CancelledAt        *time.Time
	CancellationReason *string

	// ProtectedUntil shields the order from retention cleanup while a
	// payment window is open.
	ProtectedUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OrderItem
}

// OrderItem is immutable once the order leaves creation.
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
	Options   json.RawMessage
}

// NewOrderItem is the caller's view of an item at creation time.
type NewOrderItem struct {
	ProductID string
	Quantity  int
	Options   json.RawMessage
}
