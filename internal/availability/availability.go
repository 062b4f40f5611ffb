// Package availability decides whether a product is currently
// purchasable given its optional live-window schedule.
package availability

import (
	"context"
	"time"

	"chowhub-be/internal/timeutil"
)

// Window is a product's live schedule. It is owned by the catalog; this
// package only reads it.
type Window struct {
	ProductID    string
	GoLiveAt     time.Time
	TakeDownAt   time.Time
	GraceMinutes int
}

// CloseTime is the last instant a product inside this window may still
// be paid for: take-down plus the grace period.
func (w Window) CloseTime() time.Time {
	return timeutil.AddMinutes(w.TakeDownAt, w.GraceMinutes)
}

// Contains reports whether now falls inside [goLiveAt, closeTime].
func (w Window) Contains(now time.Time) bool {
	now = timeutil.ToUTC(now)
	if timeutil.IsBefore(now, w.GoLiveAt) {
		return false
	}
	return !timeutil.IsAfter(now, w.CloseTime())
}

// Provider supplies the schedule and manual live flag for a product.
// A nil window means the product has no schedule.
type Provider interface {
	GetWindow(ctx context.Context, productID string) (*Window, bool, error)
}

// IsAvailable applies the gate: without a window the manual flag
// decides; with one, the window decides.
func IsAvailable(window *Window, manualFlag bool, now time.Time) bool {
	if window == nil {
		return manualFlag
	}
	return window.Contains(now)
}
