package availability

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"chowhub-be/internal/logger"
)

type repository struct {
	db *sql.DB
}

// NewRepository returns a Provider backed by the catalog's
// product_schedules table.
func NewRepository(db *sql.DB) Provider {
	return &repository{db: db}
}

func (r *repository) GetWindow(ctx context.Context, productID string) (*Window, bool, error) {
	const q = `
		SELECT s.go_live_at, s.take_down_at, s.grace_minutes, p.is_live
		FROM products p
		LEFT JOIN product_schedules s ON s.product_id = p.id
		WHERE p.id = $1
	`

	var (
		goLiveAt   sql.NullTime
		takeDownAt sql.NullTime
		grace      sql.NullInt64
		isLive     bool
	)

	err := r.db.QueryRowContext(ctx, q, productID).
		Scan(&goLiveAt, &takeDownAt, &grace, &isLive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logger.FromCtx(ctx).Warn("product not found for availability check",
				zap.String("product_id", productID),
			)
		}
		return nil, false, err
	}

	// No schedule row: the manual flag decides.
	if !goLiveAt.Valid || !takeDownAt.Valid {
		return nil, isLive, nil
	}

	return &Window{
		ProductID:    productID,
		GoLiveAt:     goLiveAt.Time.UTC(),
		TakeDownAt:   takeDownAt.Time.UTC(),
		GraceMinutes: int(grace.Int64),
	}, isLive, nil
}
