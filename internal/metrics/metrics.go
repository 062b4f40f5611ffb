package metrics

import (
	"sync/atomic"
	"time"
)

type Counter struct {
	value uint64
}

func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

func (c *Counter) Add(n uint64) {
	atomic.AddUint64(&c.value, n)
}

func (c *Counter) Load() uint64 {
	return atomic.LoadUint64(&c.value)
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Payment holds the counters the webhook handler and expiry sweeper
// report into.
type Payment struct {
	WebhooksProcessed Counter
	WebhooksDuplicate Counter
	WebhooksInvalid   Counter
	SweptExpired      Counter
	SweptCancelled    Counter
}

var PaymentMetrics = &Payment{}
