package payment

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

// FailureAmountMismatch is recorded on a payment whose provider-reported
// amount disagreed with the order total.
const FailureAmountMismatch = "AMOUNT_MISMATCH"

type Channel string

const (
	ChannelWeb    Channel = "web"
	ChannelMobile Channel = "mobile"
)

// Payment is one attempt to collect money for an order. The reference
// is globally unique and immutable once assigned; at most one payment
// per order ever reaches StatusSuccess.
type Payment struct {
	ID        string
	Reference string
	OrderID   string
	UserID    string
	// Amount is in minor currency units.
	Amount        int64
	Status        Status
	FailureReason *string
	Channel       Channel

	StartedAt   time.Time
	ExpiresAt   time.Time
	CompletedAt *time.Time

	ProviderMetadata json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Handoff is what the client needs to take the customer to the
// provider's payment page.
type Handoff struct {
	Reference        string    `json:"reference"`
	AuthorizationURL string    `json:"authorization_url"`
	AccessCode       string    `json:"access_code,omitempty"`
	Amount           int64     `json:"amount"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// SweepSummary reports one pass of the expiry sweeper.
type SweepSummary struct {
	Expired   int
	Cancelled int
}
