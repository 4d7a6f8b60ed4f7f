package job

import (
	"context"
	"log/slog"
	"time"

	"github.com/balungpisah/gotong-royong-core/internal/idutil"
	"github.com/balungpisah/gotong-royong-core/internal/metrics"
)

// Handler dispatches one job by type; a non-nil error triggers the
// backoff-reschedule or permanent-failure path.
type Handler func(ctx context.Context, env Envelope) error

// WorkerConfig tunes the promote/dequeue/backoff cadence.
type WorkerConfig struct {
	PromoteLimit  int
	DequeueMs     int64
	BackoffBaseMs int64
	BackoffMaxMs  int64
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{PromoteLimit: 100, DequeueMs: 1000, BackoffBaseMs: 500, BackoffMaxMs: 60_000}
}

// Worker drives promote_due -> dequeue -> dispatch -> ack/retry, per
// §4.4's worker loop, grounded on the teacher's escrow metrics
// instrumentation shape (counters for attempt/success/permanent
// failure, a latency histogram).
type Worker struct {
	queue    Queue
	handlers map[string]Handler
	cfg      WorkerConfig
	log      *slog.Logger
	metrics  *metrics.Metrics
}

func NewWorker(queue Queue, cfg WorkerConfig, log *slog.Logger, m *metrics.Metrics) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{queue: queue, handlers: make(map[string]Handler), cfg: cfg, log: log, metrics: m}
}

// Register binds a Handler to a job type. Call before Run.
func (w *Worker) Register(jobType string, h Handler) {
	w.handlers[jobType] = h
}

// ScheduleAt satisfies moderation.Scheduler (and any other domain's
// scheduling need) by enqueuing a job at runAtMs with the given
// deterministic request_id.
func (w *Worker) ScheduleAt(ctx context.Context, runAtMs int64, jobType string, payload map[string]string, requestID string) error {
	return w.queue.Enqueue(ctx, Envelope{
		JobID:       idutil.NewID(),
		JobType:     jobType,
		Payload:     payload,
		RequestID:   requestID,
		MaxAttempts: 5,
		RunAtMs:     runAtMs,
		CreatedAtMs: idutil.NowMillis(),
	})
}

// Run recovers crashed-processing jobs, then loops until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.queue.RequeueProcessing(ctx, 10_000); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if _, err := w.queue.PromoteDue(ctx, idutil.NowMillis(), w.cfg.PromoteLimit); err != nil {
			w.log.Warn("promote_due failed", "error", err)
		}

		env, err := w.queue.Dequeue(ctx, w.cfg.DequeueMs)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("dequeue failed", "error", err)
			continue
		}
		if env == nil {
			continue
		}

		w.dispatch(ctx, *env)
	}
}

func (w *Worker) dispatch(ctx context.Context, env Envelope) {
	start := time.Now()
	handler, ok := w.handlers[env.JobType]
	if !ok {
		w.log.Error("no handler registered for job type", "job_type", env.JobType, "job_id", env.JobID)
		_ = w.queue.Ack(ctx, env.JobID)
		w.recordAttempt(env.JobType, "no_handler")
		return
	}

	err := handler(ctx, env)
	_ = w.queue.Ack(ctx, env.JobID)

	if err == nil {
		w.recordAttempt(env.JobType, "success")
		w.recordLatency(env.JobType, time.Since(start))
		return
	}

	nextAttempt := env.Attempt + 1
	if nextAttempt >= env.MaxAttempts {
		w.log.Error("job permanently failed", "job_id", env.JobID, "job_type", env.JobType, "attempt", nextAttempt, "error", err)
		w.recordAttempt(env.JobType, "permanent_failure")
		if w.metrics != nil {
			w.metrics.JobPermanentFails.WithLabelValues(env.JobType).Inc()
		}
		return
	}

	delay := BackoffMs(w.cfg.BackoffBaseMs, nextAttempt, w.cfg.BackoffMaxMs)
	retry := env
	retry.Attempt = nextAttempt
	retry.RunAtMs = idutil.NowMillis() + delay
	if enqueueErr := w.queue.Enqueue(ctx, retry); enqueueErr != nil {
		w.log.Error("requeue after failure failed", "job_id", env.JobID, "error", enqueueErr)
	}
	w.recordAttempt(env.JobType, "retry_scheduled")
}

func (w *Worker) recordAttempt(jobType, outcome string) {
	w.log.Debug("job dispatch", "job_type", jobType, "outcome", outcome)
	if w.metrics != nil {
		w.metrics.JobAttemptTotal.WithLabelValues(jobType, outcome).Inc()
	}
}

func (w *Worker) recordLatency(jobType string, d time.Duration) {
	if w.metrics != nil {
		w.metrics.JobLatency.WithLabelValues(jobType).Observe(d.Seconds())
	}
}
