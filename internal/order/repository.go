package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"chowhub-be/internal/logger"
)

type Repository interface {
	CreateOrderTx(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, orderID string) (*Order, error)

	// UpdateStatusGuarded moves an order to a new status only if its
	// current status is one of the expected ones. It reports whether a
	// row actually changed; a false result means a concurrent writer got
	// there first.
	UpdateStatusGuarded(
		ctx context.Context,
		orderID string,
		expected []OrderStatus,
		to OrderStatus,
		cancelledAt *time.Time,
		cancellationReason *string,
	) (bool, error)

	SetProtectedUntil(ctx context.Context, orderID string, until time.Time) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrderTx(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrderTx"),
		zap.String("order_id", o.ID),
		zap.Int("item_count", len(o.Items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, vendor_id, status,
			base_price, total_price, protected_until, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
	`,
		o.ID,
		o.CustomerID,
		o.VendorID,
		o.Status,
		o.BasePrice,
		o.TotalPrice,
		o.ProtectedUntil,
		o.CreatedAt,
	)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for i, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, product_id, quantity,
				unit_price, subtotal, options
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID,
			o.ID,
			item.ProductID,
			item.Quantity,
			item.UnitPrice,
			item.Subtotal,
			[]byte(item.Options),
		)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order transaction", zap.Error(err))
		return err
	}

	committed = true
	log.Info("order created")
	return nil
}

func (r *repository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	const q = `
		SELECT id, customer_id, vendor_id, status,
		       base_price, total_price,
		       cancelled_at, cancellation_reason, protected_until,
		       created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o Order
	err := r.db.QueryRowContext(ctx, q, orderID).Scan(
		&o.ID,
		&o.CustomerID,
		&o.VendorID,
		&o.Status,
		&o.BasePrice,
		&o.TotalPrice,
		&o.CancelledAt,
		&o.CancellationReason,
		&o.ProtectedUntil,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, subtotal, options
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item OrderItem
		var options []byte
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&options,
		); err != nil {
			return nil, err
		}
		item.Options = options
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) UpdateStatusGuarded(
	ctx context.Context,
	orderID string,
	expected []OrderStatus,
	to OrderStatus,
	cancelledAt *time.Time,
	cancellationReason *string,
) (bool, error) {

	expectedStrs := make([]string, len(expected))
	for i, s := range expected {
		expectedStrs[i] = string(s)
	}

	const q = `
		UPDATE orders
		SET status = $1,
		    cancelled_at = COALESCE($2, cancelled_at),
		    cancellation_reason = COALESCE($3, cancellation_reason),
		    updated_at = NOW()
		WHERE id = $4
		  AND status = ANY($5)
	`

	res, err := r.db.ExecContext(ctx, q,
		to, cancelledAt, cancellationReason, orderID, pq.Array(expectedStrs),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *repository) SetProtectedUntil(ctx context.Context, orderID string, until time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET protected_until = GREATEST(COALESCE(protected_until, $1), $1),
		    updated_at = NOW()
		WHERE id = $2
	`, until, orderID)
	if err != nil {
		return err
	}

	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
