package payment

import (
	"context"
	"encoding/json"
)

// ChargeRequest is what the core hands the provider when opening a
// payment attempt. Metadata is echoed back verbatim in webhooks, which
// is how confirmations are correlated.
type ChargeRequest struct {
	Reference  string
	Amount     int64
	PayerEmail string
	Metadata   ChargeMetadata
}

type ChargeMetadata struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}

type ChargeResponse struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
}

// VerifyResult is the provider's authoritative view of a charge.
type VerifyResult struct {
	Status   string
	Amount   int64
	Metadata json.RawMessage
}

type Gateway interface {
	InitializeCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
	// VerifySignature checks a webhook signature over the raw body.
	VerifySignature(signature string, body []byte) error
}
