package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chowhub-be/internal/logger"
	"chowhub-be/internal/order"
)

// ExpiredAttempt pairs a lapsed pending payment with its order for the
// sweeper.
type ExpiredAttempt struct {
	PaymentID string
	OrderID   string
}

type Repository interface {
	// CreatePendingAttempt inserts the payment only if the order has no
	// successful payment and no unexpired pending one. It reports
	// whether the insert happened; false means another attempt holds the
	// slot.
	CreatePendingAttempt(ctx context.Context, p *Payment) (bool, error)

	GetByReference(ctx context.Context, reference string) (*Payment, error)
	ExistsSuccessForOrder(ctx context.Context, orderID string) (bool, error)
	ExistsActivePendingForOrder(ctx context.Context, orderID string, now time.Time) (bool, error)

	// ConfirmTx settles the payment and confirms its order in a single
	// transaction; both writes commit together or neither does. Each
	// update is guarded on the expected prior state, and the whole
	// transaction rolls back when either guard misses.
	ConfirmTx(ctx context.Context, paymentID, orderID string, completedAt time.Time, providerMetadata json.RawMessage) (bool, error)

	// MarkFailed moves a pending payment to failed with a reason,
	// leaving its order untouched.
	MarkFailed(ctx context.Context, paymentID, reason string) (bool, error)

	// MarkExpired moves a pending payment to expired. False means a
	// concurrent writer resolved it first.
	MarkExpired(ctx context.Context, paymentID string) (bool, error)

	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]ExpiredAttempt, error)

	SaveWebhook(ctx context.Context, provider, eventID, eventType, reference string, payload json.RawMessage, signatureValid bool) (webhookID int64, isDuplicate bool, err error)

	// GetWebhookByEvent loads a journaled delivery's id and whether it
	// has been processed. Redeliveries of a journaled-but-unprocessed
	// event must be handled again, not short-circuited as duplicates.
	GetWebhookByEvent(ctx context.Context, provider, eventID string) (webhookID int64, processed bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePendingAttempt(ctx context.Context, p *Payment) (bool, error) {
	// The NOT EXISTS guard and the insert are one statement, so two
	// racing initiations cannot both slip through.
	const q = `
		INSERT INTO payments (
			id, reference, order_id, user_id, amount, status,
			channel, started_at, expires_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM payments
			WHERE order_id = $3
			  AND (status = 'success'
			       OR (status = 'pending' AND expires_at > $8))
		)
	`

	res, err := r.db.ExecContext(ctx, q,
		p.ID, p.Reference, p.OrderID, p.UserID, p.Amount, p.Status,
		p.Channel, p.StartedAt, p.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *repository) GetByReference(ctx context.Context, reference string) (*Payment, error) {
	const q = `
		SELECT id, reference, order_id, user_id, amount, status,
		       failure_reason, channel, started_at, expires_at,
		       completed_at, provider_metadata, created_at, updated_at
		FROM payments
		WHERE reference = $1
	`

	var p Payment
	var metadata []byte
	err := r.db.QueryRowContext(ctx, q, reference).Scan(
		&p.ID,
		&p.Reference,
		&p.OrderID,
		&p.UserID,
		&p.Amount,
		&p.Status,
		&p.FailureReason,
		&p.Channel,
		&p.StartedAt,
		&p.ExpiresAt,
		&p.CompletedAt,
		&metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	p.ProviderMetadata = metadata
	return &p, nil
}

func (r *repository) ExistsSuccessForOrder(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payments WHERE order_id = $1 AND status = 'success'
		)
	`, orderID).Scan(&exists)
	return exists, err
}

func (r *repository) ExistsActivePendingForOrder(ctx context.Context, orderID string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payments
			WHERE order_id = $1 AND status = 'pending' AND expires_at > $2
		)
	`, orderID, now).Scan(&exists)
	return exists, err
}

func (r *repository) ConfirmTx(ctx context.Context, paymentID, orderID string, completedAt time.Time, providerMetadata json.RawMessage) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ConfirmTx"),
		zap.String("payment_id", paymentID),
		zap.String("order_id", orderID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback confirm transaction", zap.Error(rbErr))
			}
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = 'success',
		    completed_at = $1,
		    provider_metadata = COALESCE($2, provider_metadata),
		    updated_at = NOW()
		WHERE id = $3
		  AND status = 'pending'
	`, completedAt, []byte(providerMetadata), paymentID)
	if err != nil {
		return false, fmt.Errorf("failed to settle payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Warn("payment no longer pending, aborting confirmation")
		return false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND status = $3
	`, order.StatusPaymentConfirmed, orderID, order.StatusAwaitingPayment)
	if err != nil {
		return false, fmt.Errorf("failed to confirm order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Warn("order left awaiting-payment concurrently, aborting confirmation")
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit confirmation: %w", err)
	}

	committed = true
	log.Info("payment confirmed atomically")
	return true, nil
}

func (r *repository) MarkFailed(ctx context.Context, paymentID, reason string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'failed',
		    failure_reason = $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND status = 'pending'
	`, reason, paymentID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *repository) MarkExpired(ctx context.Context, paymentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = 'expired',
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
	`, paymentID)
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (r *repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]ExpiredAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id
		FROM payments
		WHERE status = 'pending'
		  AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpiredAttempt
	for rows.Next() {
		var a ExpiredAttempt
		if err := rows.Scan(&a.PaymentID, &a.OrderID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) SaveWebhook(
	ctx context.Context,
	provider string,
	eventID string,
	eventType string,
	reference string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_type,
		event_id,
		reference,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(ctx, q,
		provider, eventType, eventID, reference, signatureValid, []byte(payload),
	).Scan(&id)

	if err != nil {
		// Duplicate delivery, already journaled.
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) GetWebhookByEvent(ctx context.Context, provider, eventID string) (int64, bool, error) {
	var (
		id        int64
		processed bool
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, processed_at IS NOT NULL
		FROM payment_webhooks
		WHERE provider = $1 AND event_id = $2;
	`, provider, eventID).Scan(&id, &processed)
	if err != nil {
		return 0, false, err
	}
	return id, processed, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET processed_at = NOW()
		WHERE id = $1;
	`, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payment_webhooks
		SET process_error = $2
		WHERE id = $1;
	`, webhookID, reason)
	return err
}
