package product

import (
	"context"
	"database/sql"
	"errors"
)

var ErrProductNotFound = errors.New("product not found")

type Repository interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) GetProduct(ctx context.Context, productID string) (*Product, error) {
	const q = `
		SELECT id, vendor_id, name, unit_price, is_live
		FROM products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRowContext(ctx, q, productID).
		Scan(&p.ID, &p.VendorID, &p.Name, &p.UnitPrice, &p.IsLive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
