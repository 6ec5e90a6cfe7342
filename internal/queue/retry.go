// Package queue is the rate-limited, concurrency-bounded delivery job
// runner. Jobs are durable rows in Postgres; workers claim them in batches,
// pass admission control through a shared Redis rate limiter, and invoke the
// outbound mail transport with exponential-backoff retries.
package queue

import "time"

// RetryPolicy is an explicit backoff policy carried by each job at enqueue
// time, never read from ambient global config. This keeps the queue
// deterministic under test with a fake clock.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	Multiplier  int           `json:"multiplier"`
}

// DefaultRetryPolicy matches the platform default: 5 attempts with doubling
// delays of 2s, 4s, 8s, 16s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, Multiplier: 2}
}

// Backoff returns the delay before the next attempt, given the number of
// attempts already failed (1-based). attempt 1 → BaseDelay, attempt 2 →
// BaseDelay*Multiplier, and so on.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(p.Multiplier)
	}
	return delay
}

// Exhausted reports whether the given failure count has used up the policy.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
