package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-engine/internal/esp"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
}

// Pool runs the delivery workers. One dispatcher goroutine claims due jobs
// in batches and hands them to a bounded set of workers over a channel.
// Worker count and the rate budget are process-wide, shared across all
// campaigns.
type Pool struct {
	store   Store
	sender  esp.Sender
	limiter *RateLimiter
	cfg     PoolConfig

	clock func() time.Time
	jobs  chan Job
	wg    sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a worker pool.
func NewPool(store Store, sender esp.Sender, limiter *RateLimiter, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Pool{
		store:   store,
		sender:  sender,
		limiter: limiter,
		cfg:     cfg,
		clock:   time.Now,
		jobs:    make(chan Job, cfg.BatchSize),
	}
}

// Start launches the dispatcher and workers, blocking until ctx is
// cancelled and all in-flight jobs have finished.
func (p *Pool) Start(ctx context.Context) {
	logger.Info("delivery pool starting", "workers", p.cfg.Workers, "batch_size", p.cfg.BatchSize)

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	p.dispatch(ctx)
	close(p.jobs)
	p.wg.Wait()

	logger.Info("delivery pool stopped",
		"processed", p.processed.Load(), "failed", p.failed.Load())
}

// Processed returns the number of successfully sent jobs.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns the number of jobs retired to dead state.
func (p *Pool) Failed() int64 { return p.failed.Load() }

func (p *Pool) dispatch(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		batch, err := p.store.ClaimBatch(ctx, p.cfg.BatchSize, p.clock())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("claim batch failed", "error", err)
			continue
		}

		for _, job := range batch {
			select {
			case p.jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.process(ctx, job)
	}
}

func (p *Pool) process(ctx context.Context, job Job) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			// Shutdown mid-wait: put the job back for the next run
			p.requeue(job, "shutdown before send")
			return
		}
	}

	messageID, err := p.sender.Send(ctx, job.Message)
	if err != nil {
		p.handleFailure(job, err)
		return
	}

	if err := p.store.MarkSent(context.WithoutCancel(ctx), &job, messageID, p.clock()); err != nil {
		logger.Error("mark sent failed", "job_id", job.ID, "error", err)
		return
	}
	p.processed.Add(1)
}

func (p *Pool) handleFailure(job Job, sendErr error) {
	job.Attempts++
	ctx := context.Background()

	if job.Policy.Exhausted(job.Attempts) {
		if err := p.store.MarkDead(ctx, &job, sendErr.Error(), p.clock()); err != nil {
			logger.Error("mark dead failed", "job_id", job.ID, "error", err)
			return
		}
		p.failed.Add(1)
		logger.Warn("job retired after max attempts",
			"job_id", job.ID, "record_id", job.DeliveryRecordID,
			"attempts", job.Attempts, "error", sendErr)
		return
	}

	nextAt := p.clock().Add(job.Policy.Backoff(job.Attempts))
	if err := p.store.Reschedule(ctx, &job, nextAt, sendErr.Error()); err != nil {
		logger.Error("reschedule failed", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) requeue(job Job, reason string) {
	if err := p.store.Reschedule(context.Background(), &job, p.clock(), reason); err != nil {
		logger.Error("requeue failed", "job_id", job.ID, "error", err)
	}
}
