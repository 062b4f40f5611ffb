// Package jobs coordinates background work across service instances
// through a persisted, TTL-bound lease row instead of an in-memory
// "already running" flag.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type LeaseRepository interface {
	// Acquire takes the named lease for holder if it is free or its TTL
	// has lapsed. It reports whether the caller now holds the lease.
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	// Release frees the lease early. Only the current holder may release.
	Release(ctx context.Context, name, holder string) error
}

type leaseRepository struct {
	db *sql.DB
}

func NewLeaseRepository(db *sql.DB) LeaseRepository {
	return &leaseRepository{db: db}
}

func (r *leaseRepository) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	// The upsert only steals the row when the previous holder's lease
	// has expired, so two instances can never hold it at once.
	const q = `
		INSERT INTO job_leases (name, holder, expires_at)
		VALUES ($1, $2, NOW() + $3 * INTERVAL '1 second')
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder,
		    expires_at = EXCLUDED.expires_at
		WHERE job_leases.expires_at < NOW()
		   OR job_leases.holder = EXCLUDED.holder
		RETURNING name;
	`

	var got string
	err := r.db.QueryRowContext(ctx, q, name, holder, int64(ttl.Seconds())).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *leaseRepository) Release(ctx context.Context, name, holder string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM job_leases
		WHERE name = $1 AND holder = $2
	`, name, holder)
	return err
}
