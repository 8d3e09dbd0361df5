// Package jobengine implements the durable, priority-ordered, at-least-once
// job queue (spec.md §4.2): enqueue with idempotency-key dedup, worker pool
// claim via FOR UPDATE SKIP LOCKED, lease-based re-claim, and exponential
// backoff with jitter for Transient failures.
package jobengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ordermesh/hub/internal/audit"
	"github.com/ordermesh/hub/internal/store"
	"github.com/ordermesh/hub/internal/telemetry"
)

// Engine claims and runs jobs with registered handlers.
type Engine struct {
	store    *store.Store
	audit    *audit.Writer
	logger   *slog.Logger
	cfg      Config
	workerID string

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates an Engine. workerID should be unique per process (e.g.
// hostname:pid) so lease ownership is unambiguous across a fleet.
func New(s *store.Store, auditWriter *audit.Writer, logger *slog.Logger, cfg Config, workerID string) *Engine {
	return &Engine{
		store:    s,
		audit:    auditWriter,
		logger:   logger,
		cfg:      cfg,
		workerID: workerID,
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterHandler associates a job type with the function that executes it.
// Unregistered types fail permanently once claimed, with a last_error
// naming the missing handler.
func (e *Engine) RegisterHandler(jobType string, h HandlerFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[jobType] = h
}

func (e *Engine) handlerFor(jobType string) (HandlerFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[jobType]
	return h, ok
}

// Enqueue inserts a new job, deduplicating on idempotency key.
func (e *Engine) Enqueue(ctx context.Context, p store.EnqueueJobParams) (store.Job, error) {
	if p.Priority == 0 {
		p.Priority = 5
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = 3
	}
	if p.ScheduledAt.IsZero() {
		p.ScheduledAt = time.Now()
	}

	job, err := e.store.EnqueueJob(ctx, p)
	if err != nil {
		return store.Job{}, fmt.Errorf("enqueueing job: %w", err)
	}

	resourceID := job.ID
	e.audit.Log(audit.Entry{
		TenantID:     job.TenantID,
		Action:       "job_enqueued",
		ResourceType: "job",
		ResourceID:   &resourceID,
		Tags:         []string{store.TagAutomation},
	})

	return job, nil
}

// Run starts cfg.WorkerCount poll loops and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.WorkerCount; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("%s-%d", e.workerID, i)
		go func() {
			defer wg.Done()
			e.pollLoop(ctx, workerID)
		}()
	}
	wg.Wait()
	return nil
}

func (e *Engine) pollLoop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.claimAndProcess(ctx, workerID)
		}
	}
}

func (e *Engine) claimAndProcess(ctx context.Context, workerID string) {
	jobs, err := e.store.ClaimAnyTenantJobs(ctx, workerID, e.cfg.BatchSize, e.cfg.LeaseTTL)
	if err != nil {
		e.logger.Error("claiming jobs", "error", err, "worker_id", workerID)
		return
	}

	for _, job := range jobs {
		telemetry.JobsClaimedTotal.WithLabelValues(job.Type).Inc()
		e.process(ctx, job, workerID)
	}
}

// process runs a single claimed job through start -> handler -> terminal
// transition, enforcing the per-job handler timeout (spec.md §5, 4m30s
// default against a 5m lease) so a handler is always cancelled 30s before
// another worker becomes entitled to reclaim its lease.
func (e *Engine) process(ctx context.Context, job store.Job, workerID string) {
	started, err := e.store.StartJob(ctx, job.ID, workerID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return // lease was reclaimed by another worker; not our job anymore
		}
		e.logger.Error("starting job", "error", err, "job_id", job.ID)
		return
	}

	handler, ok := e.handlerFor(job.Type)
	if !ok {
		e.failPermanently(ctx, started, workerID, fmt.Sprintf("no handler registered for type %q", job.Type))
		return
	}

	handlerCtx, cancel := context.WithTimeout(ctx, e.cfg.HandlerTimeout)
	defer cancel()

	start := time.Now()
	result, handlerErr := runHandler(handlerCtx, handler, started)
	telemetry.JobHandlerDuration.WithLabelValues(job.Type).Observe(time.Since(start).Seconds())

	e.finish(ctx, started, workerID, result, handlerErr)
}

// runHandler recovers a handler panic and reports it as a Transient error,
// per spec.md §7's propagation policy ("Handlers never panic-abort the
// worker").
func runHandler(ctx context.Context, h HandlerFunc, job store.Job) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}

func (e *Engine) finish(ctx context.Context, job store.Job, workerID string, result json.RawMessage, handlerErr error) {
	out, retryAfter := classify(handlerErr)

	switch out {
	case outcomeSuccess:
		completed, err := e.store.CompleteJobSuccess(ctx, job.ID, workerID, result)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return
			}
			e.logger.Error("completing job", "error", err, "job_id", job.ID)
			return
		}
		telemetry.JobsCompletedTotal.WithLabelValues(job.Type, "success").Inc()
		e.auditTerminal(completed, "job_completed", nil)

	case outcomeConflict:
		// Another worker already transitioned this job; silent no-op
		// per spec.md §7.

	case outcomeRateLimited:
		scheduledAt := time.Now().Add(retryAfter)
		if _, err := e.store.RescheduleJobRateLimited(ctx, job.ID, workerID, scheduledAt, handlerErr.Error()); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return
			}
			e.logger.Error("rescheduling rate-limited job", "error", err, "job_id", job.ID)
			return
		}

	case outcomeTransient:
		if job.Attempts+1 >= job.MaxAttempts {
			e.failPermanently(ctx, job, workerID, handlerErr.Error())
			return
		}
		delay := computeBackoff(job.Attempts+1, e.cfg.RetryBaseDelay, e.cfg.RetryMaxDelay, e.cfg.RetryJitterFrac)
		if _, err := e.store.RescheduleJobForRetry(ctx, job.ID, workerID, time.Now().Add(delay), handlerErr.Error()); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return
			}
			e.logger.Error("rescheduling job for retry", "error", err, "job_id", job.ID)
			return
		}
		telemetry.JobRetriesTotal.WithLabelValues(job.Type).Inc()

	case outcomePermanent:
		e.failPermanently(ctx, job, workerID, handlerErr.Error())
	}
}

func (e *Engine) failPermanently(ctx context.Context, job store.Job, workerID, lastError string) {
	failed, err := e.store.FailJobPermanently(ctx, job.ID, workerID, lastError)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return
		}
		e.logger.Error("failing job permanently", "error", err, "job_id", job.ID)
		return
	}
	telemetry.JobsCompletedTotal.WithLabelValues(job.Type, "failed").Inc()
	e.auditTerminal(failed, "job_failed", &lastError)

	// A job exhausting its attempts is a case an operator should see,
	// per spec.md §7 ("produce an operator approval, not silent dropping").
	if failed.Attempts < failed.MaxAttempts {
		return
	}
	if _, err := e.store.CreateApproval(ctx, store.CreateApprovalParams{
		TenantID:     job.TenantID,
		ResourceType: "job",
		ResourceID:   job.ID,
		Action:       store.ApprovalActionJobRetry,
		Payload:      mustMarshal(map[string]string{"last_error": lastError}),
		TTL:          7 * 24 * time.Hour,
	}); err != nil {
		e.logger.Error("creating approval for failed job", "error", err, "job_id", job.ID)
	}
}

func (e *Engine) auditTerminal(job store.Job, action string, lastError *string) {
	var newValue json.RawMessage
	if lastError != nil {
		newValue = mustMarshal(map[string]string{"last_error": *lastError})
	}
	resourceID := job.ID
	e.audit.Log(audit.Entry{
		TenantID:     job.TenantID,
		Action:       action,
		ResourceType: "job",
		ResourceID:   &resourceID,
		NewValue:     newValue,
		Tags:         []string{store.TagAutomation},
	})
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
