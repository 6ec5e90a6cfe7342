package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/queue"
)

// Enqueue implements queue.Store. Message and policy travel as JSONB so the
// job row is self-contained; a worker needs no joins to send.
func (s *Store) Enqueue(ctx context.Context, job *queue.Job) error {
	msg, err := json.Marshal(job.Message)
	if err != nil {
		return fmt.Errorf("encode job message: %w", err)
	}
	policy, err := json.Marshal(job.Policy)
	if err != nil {
		return fmt.Errorf("encode job policy: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO send_jobs (id, delivery_record_id, message, policy, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		job.ID, job.DeliveryRecordID, msg, policy, job.Status, job.Attempts, job.NextAttemptAt, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

// ClaimBatch implements queue.Store. FOR UPDATE SKIP LOCKED lets multiple
// workers claim concurrently without handing the same job out twice.
func (s *Store) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]queue.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH due AS (
			SELECT id FROM send_jobs
			WHERE status = $1 AND next_attempt_at <= $2
			ORDER BY next_attempt_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE send_jobs j
		SET status = $4, updated_at = now()
		FROM due
		WHERE j.id = due.id
		RETURNING j.id, j.delivery_record_id, j.message, j.policy, j.status,
			j.attempts, j.next_attempt_at, COALESCE(j.last_error, ''), j.created_at`,
		queue.JobQueued, now, limit, queue.JobClaimed)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var out []queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// MarkSent implements queue.Store. Job transition, delivery record update
// and the sent event land in one transaction.
func (s *Store) MarkSent(ctx context.Context, job *queue.Job, messageID string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE send_jobs
			SET status = $2, attempts = $3, last_error = NULL, updated_at = now()
			WHERE id = $1`, job.ID, queue.JobSent, job.Attempts); err != nil {
			return fmt.Errorf("mark job sent: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE delivery_records
			SET status = $2, message_id = $3, sent_at = $4, error = NULL, updated_at = now()
			WHERE id = $1`, job.DeliveryRecordID, domain.DeliverySent, messageID, at); err != nil {
			return fmt.Errorf("mark delivery sent: %w", err)
		}

		ev := &domain.EmailEvent{
			ID:               uuid.New().String(),
			DeliveryRecordID: job.DeliveryRecordID,
			Type:             domain.EventSent,
			CreatedAt:        at,
		}
		return s.appendEventDB(ctx, tx, ev)
	})
}

// Reschedule implements queue.Store.
func (s *Store) Reschedule(ctx context.Context, job *queue.Job, nextAt time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE send_jobs
		SET status = $2, attempts = $3, next_attempt_at = $4, last_error = $5, updated_at = now()
		WHERE id = $1`, job.ID, queue.JobQueued, job.Attempts, nextAt, lastErr)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return nil
}

// MarkDead implements queue.Store.
func (s *Store) MarkDead(ctx context.Context, job *queue.Job, lastErr string, at time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE send_jobs
			SET status = $2, attempts = $3, last_error = $4, updated_at = now()
			WHERE id = $1`, job.ID, queue.JobDead, job.Attempts, lastErr); err != nil {
			return fmt.Errorf("mark job dead: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE delivery_records
			SET status = $2, error = $3, updated_at = now()
			WHERE id = $1`, job.DeliveryRecordID, domain.DeliveryFailed, lastErr); err != nil {
			return fmt.Errorf("mark delivery failed: %w", err)
		}
		return nil
	})
}

func scanJob(row rowScanner) (*queue.Job, error) {
	var (
		job    queue.Job
		msg    []byte
		policy []byte
	)
	err := row.Scan(&job.ID, &job.DeliveryRecordID, &msg, &policy, &job.Status,
		&job.Attempts, &job.NextAttemptAt, &job.LastError, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(msg, &job.Message); err != nil {
		return nil, fmt.Errorf("decode job message: %w", err)
	}
	if err := json.Unmarshal(policy, &job.Policy); err != nil {
		return nil, fmt.Errorf("decode job policy: %w", err)
	}
	return &job, nil
}
