package rest

import (
	"encoding/json"
	"time"

	"chowhub-be/internal/order"
	"chowhub-be/internal/payment"
)

type orderItemJSON struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice int64           `json:"unit_price"`
	Subtotal  int64           `json:"subtotal"`
	Options   json.RawMessage `json:"options,omitempty"`
}

type orderJSON struct {
	ID                 string          `json:"id"`
	CustomerID         string          `json:"customer_id"`
	VendorID           string          `json:"vendor_id"`
	Status             string          `json:"status"`
	BasePrice          int64           `json:"base_price"`
	TotalPrice         int64           `json:"total_price"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason *string         `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	Items              []orderItemJSON `json:"items"`
}

type paymentJSON struct {
	ID          string     `json:"id"`
	Reference   string     `json:"reference"`
	OrderID     string     `json:"order_id"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	Channel     string     `json:"channel"`
	ExpiresAt   time.Time  `json:"expires_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func orderView(o *order.Order) orderJSON {
	items := make([]orderItemJSON, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemJSON{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
			Options:   it.Options,
		})
	}

	return orderJSON{
		ID:                 o.ID,
		CustomerID:         o.CustomerID,
		VendorID:           o.VendorID,
		Status:             string(o.Status),
		BasePrice:          o.BasePrice,
		TotalPrice:         o.TotalPrice,
		CancelledAt:        o.CancelledAt,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		Items:              items,
	}
}

func paymentView(p *payment.Payment) paymentJSON {
	return paymentJSON{
		ID:          p.ID,
		Reference:   p.Reference,
		OrderID:     p.OrderID,
		Amount:      p.Amount,
		Status:      string(p.Status),
		Channel:     string(p.Channel),
		ExpiresAt:   p.ExpiresAt,
		CompletedAt: p.CompletedAt,
	}
}
