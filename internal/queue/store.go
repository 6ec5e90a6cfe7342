package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/esp"
)

// JobStatus enumerates the lifecycle of a queued send job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobClaimed JobStatus = "claimed"
	JobSent    JobStatus = "sent"
	JobDead    JobStatus = "dead"
)

// Job is one durable send job, keyed by the delivery record it serves.
type Job struct {
	ID               string      `json:"id" db:"id"`
	DeliveryRecordID string      `json:"delivery_record_id" db:"delivery_record_id"`
	Message          esp.Message `json:"message" db:"message"`
	Policy           RetryPolicy `json:"policy" db:"policy"`
	Status           JobStatus   `json:"status" db:"status"`
	Attempts         int         `json:"attempts" db:"attempts"`
	NextAttemptAt    time.Time   `json:"next_attempt_at" db:"next_attempt_at"`
	LastError        string      `json:"last_error,omitempty" db:"last_error"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
}

// Store is the durable queue contract. Implementations must make ClaimBatch
// safe under concurrent workers (each job claimed exactly once), and must
// apply the delivery-record side effects of MarkSent/MarkDead atomically
// with the job transition.
type Store interface {
	// Enqueue inserts a job in queued state.
	Enqueue(ctx context.Context, job *Job) error

	// ClaimBatch claims up to limit due jobs (next_attempt_at <= now) and
	// returns them in claimed state.
	ClaimBatch(ctx context.Context, limit int, now time.Time) ([]Job, error)

	// MarkSent finishes a job: the job moves to sent, the delivery record
	// transitions to sent with the provider message id and SentAt stamped,
	// and a sent EmailEvent is appended.
	MarkSent(ctx context.Context, job *Job, messageID string, at time.Time) error

	// Reschedule returns a failed job to queued state for a later attempt.
	// No event is emitted for intermediate attempts.
	Reschedule(ctx context.Context, job *Job, nextAt time.Time, lastErr string) error

	// MarkDead retires a job after exhausting its policy: the job moves to
	// dead and the delivery record is marked failed with the last error.
	MarkDead(ctx context.Context, job *Job, lastErr string, at time.Time) error
}

// Queue is the enqueue-side facade used by the dispatcher. Enqueue is
// fire-and-forget from the caller's perspective: transport latency never
// propagates back to the HTTP-facing send path.
type Queue struct {
	store Store
}

// New creates a queue over the given store.
func New(store Store) *Queue {
	return &Queue{store: store}
}

// Enqueue inserts a send job for a delivery record with an explicit retry
// policy.
func (q *Queue) Enqueue(ctx context.Context, recordID string, msg esp.Message, policy RetryPolicy) error {
	job := &Job{
		ID:               uuid.New().String(),
		DeliveryRecordID: recordID,
		Message:          msg,
		Policy:           policy,
		Status:           JobQueued,
		NextAttemptAt:    time.Now(),
		CreatedAt:        time.Now(),
	}
	return q.store.Enqueue(ctx, job)
}
