package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"chowhub-be/internal/logger"
	"chowhub-be/internal/metrics"
	"chowhub-be/internal/payment"
)

const (
	providerName    = "PAYSTACK"
	signatureHeader = "x-paystack-signature"

	eventChargeSuccess = "charge.success"
)

// Payload is the JSON Paystack posts: an event name and the charge
// data, with our initiation metadata echoed back.
type Payload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64           `json:"id"`
		Reference string          `json:"reference"`
		Status    string          `json:"status"`
		Amount    int64           `json:"amount"`
		Metadata  json.RawMessage `json:"metadata"`
	} `json:"data"`
}

type Handler struct {
	PaymentSvc  payment.Service
	PaymentRepo payment.Repository
	Gateway     payment.Gateway
}

func NewWebhookHandler(paymentSvc payment.Service, repo payment.Repository, gateway payment.Gateway) *Handler {
	return &Handler{
		PaymentSvc:  paymentSvc,
		PaymentRepo: repo,
		Gateway:     gateway,
	}
}

// PaymentWebhookHandler ingests provider notifications. Deliveries are
// at-least-once and possibly duplicated; everything downstream of the
// signature check must therefore be safe to repeat.
func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(zap.String("handler", "PaymentWebhook"))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := h.Gateway.VerifySignature(r.Header.Get(signatureHeader), body); err != nil {
		metrics.PaymentMetrics.WebhooksInvalid.Inc()
		log.Warn("webhook signature rejected", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		// Malformed but authentically signed: ack so the provider stops
		// retrying, and keep the raw body for manual inspection.
		log.Error("malformed webhook payload", zap.Error(err))
		h.journalMalformed(r, body)
		w.WriteHeader(http.StatusOK)
		return
	}

	eventID := eventIdentity(p, body)
	log = log.With(
		zap.String("event", p.Event),
		zap.String("event_id", eventID),
		zap.String("reference", p.Data.Reference),
	)

	webhookID, duplicate, err := h.PaymentRepo.SaveWebhook(
		ctx, providerName, eventID, p.Event, p.Data.Reference, body, true,
	)
	if err != nil {
		log.Error("failed to journal webhook", zap.Error(err))
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if duplicate {
		metrics.PaymentMetrics.WebhooksDuplicate.Inc()

		// A redelivery is only a true duplicate once the original was
		// processed. A journaled event whose handling failed must be
		// handled again, or a transient failure would swallow the
		// provider's retry for good.
		existingID, processed, err := h.PaymentRepo.GetWebhookByEvent(ctx, providerName, eventID)
		if err != nil {
			log.Error("failed to load journaled webhook", zap.Error(err))
			http.Error(w, "failed to record event", http.StatusInternalServerError)
			return
		}
		if processed {
			log.Info("duplicate webhook delivery acknowledged")
			w.WriteHeader(http.StatusOK)
			return
		}

		log.Info("redelivery of unprocessed webhook, handling again")
		webhookID = existingID
	}

	if p.Event != eventChargeSuccess {
		log.Info("ignoring non-charge event")
		_ = h.PaymentRepo.MarkWebhookProcessed(ctx, webhookID)
		w.WriteHeader(http.StatusOK)
		return
	}

	_, err = h.PaymentSvc.Confirm(ctx, p.Data.Reference, p.Data.Amount, p.Data.Metadata)
	switch {
	case err == nil:
		metrics.PaymentMetrics.WebhooksProcessed.Inc()
		_ = h.PaymentRepo.MarkWebhookProcessed(ctx, webhookID)
		w.WriteHeader(http.StatusOK)

	case errors.Is(err, payment.ErrPaymentNotFound),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrOrderNotEligible):
		// Validation failures will not succeed on redelivery. Ack, keep
		// the reason on the journal row for operators.
		log.Warn("webhook confirmation rejected", zap.Error(err))
		_ = h.PaymentRepo.MarkWebhookFailed(ctx, webhookID, err.Error())
		w.WriteHeader(http.StatusOK)

	default:
		// Transient: surface a 5xx so the provider redelivers. Confirm
		// is idempotent, so the retry is safe.
		log.Error("webhook confirmation failed transiently", zap.Error(err))
		_ = h.PaymentRepo.MarkWebhookFailed(ctx, webhookID, err.Error())
		http.Error(w, "failed to process event", http.StatusInternalServerError)
	}
}

// eventIdentity derives a stable dedup key. Paystack does not send an
// event ID, so the charge ID plus event name identifies a delivery; a
// body hash covers payloads missing both.
func eventIdentity(p Payload, body []byte) string {
	if p.Data.ID != 0 {
		return p.Event + ":" + strconv.FormatInt(p.Data.ID, 10)
	}
	sum := sha256.Sum256(body)
	return p.Event + ":" + hex.EncodeToString(sum[:8])
}

func (h *Handler) journalMalformed(r *http.Request, body []byte) {
	sum := sha256.Sum256(body)
	_, _, err := h.PaymentRepo.SaveWebhook(
		r.Context(), providerName, "malformed:"+hex.EncodeToString(sum[:8]),
		"malformed", "", body, true,
	)
	if err != nil {
		logger.FromCtx(r.Context()).Error("failed to journal malformed webhook", zap.Error(err))
	}
}
