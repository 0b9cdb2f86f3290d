package queue

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hrygo/slawatch/internal/metrics"
	"github.com/hrygo/slawatch/store"
)

// Handler processes one claimed job. A returned error sends the job back for
// retry until its attempt budget is exhausted.
type Handler func(ctx context.Context, job *store.Job) error

type workerStore interface {
	ClaimJobs(ctx context.Context, queue string, limit int, nowTs, staleBeforeTs int64) ([]*store.Job, error)
	CompleteJob(ctx context.Context, id int64) error
	ReleaseJob(ctx context.Context, id int64, errMsg string, retryAtTs *int64) error
	SweepJobs(ctx context.Context, queue string, keepCompleted, keepFailed int) (int64, error)
	CountJobs(ctx context.Context, queue string, state store.JobState) (int64, error)
}

// WorkerConfig tunes one queue's worker pool.
type WorkerConfig struct {
	Queue string
	// Concurrency is the number of parallel handlers. Default 4.
	Concurrency int
	// RatePerSecond throttles handler starts across the pool. Zero means
	// unlimited. The alerts pool uses ~30/s to match the transport limit.
	RatePerSecond float64
	// PollInterval is the claim poll period. Default 500ms.
	PollInterval time.Duration
	// VisibilityTimeout re-delivers jobs stuck in running, covering handlers
	// that died mid-flight. Default 5m.
	VisibilityTimeout time.Duration
	// DrainGrace bounds a single handler run. Shutdown inherits the bound:
	// once the poller stops, no in-flight handler can delay Start returning
	// past the grace; abandoned work is re-delivered via the visibility
	// timeout. Default 10s.
	DrainGrace time.Duration
}

// Retention caps for terminal jobs, kept for observability.
const (
	keepCompletedJobs = 100
	keepFailedJobs    = 1000
	sweepInterval     = time.Minute
)

// Worker polls one queue and dispatches claimed jobs to a handler pool.
type Worker struct {
	store    workerStore
	cfg      WorkerConfig
	handler  Handler
	limiter  *rate.Limiter
	exporter *metrics.Exporter
	now      func() time.Time
}

func NewWorker(st workerStore, cfg WorkerConfig, handler Handler, exporter *metrics.Exporter) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 5 * time.Minute
	}
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = 10 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), int(math.Ceil(cfg.RatePerSecond)))
	}

	return &Worker{
		store:    st,
		cfg:      cfg,
		handler:  handler,
		limiter:  limiter,
		exporter: exporter,
		now:      time.Now,
	}
}

// Start runs the poll loop, the handler pool and the retention sweeper until
// ctx is cancelled, then drains in-flight handlers before returning.
func (w *Worker) Start(ctx context.Context) error {
	jobs := make(chan *store.Job)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		ticker := time.NewTicker(w.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
			w.poll(ctx, jobs)
		}
	})

	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			for job := range jobs {
				if err := w.limiter.Wait(ctx); err != nil {
					// Shutting down: release without consuming an attempt's
					// worth of work; the visibility timeout re-delivers.
					continue
				}
				w.handle(job)
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				w.sweep(ctx)
			}
		}
	})

	return g.Wait()
}

func (w *Worker) poll(ctx context.Context, jobs chan<- *store.Job) {
	now := w.now()
	claimed, err := w.store.ClaimJobs(ctx, w.cfg.Queue, w.cfg.Concurrency, now.Unix(), now.Add(-w.cfg.VisibilityTimeout).Unix())
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("failed to claim jobs", "queue", w.cfg.Queue, "error", err)
		}
		return
	}
	for _, job := range claimed {
		select {
		case jobs <- job:
		case <-ctx.Done():
			return
		}
	}
}

// handle runs one job to completion. The context is detached from the pool so
// cancellation does not kill a handler mid-write, but the drain grace bounds
// how long it can keep the pool waiting.
func (w *Worker) handle(job *store.Job) {
	hctx, hcancel := context.WithTimeout(context.Background(), w.cfg.DrainGrace)
	logger := slog.With("queue", job.Queue, "jobId", job.JobID, "job", job.Name, "attempt", job.AttemptsDone)

	err := w.handler(hctx, job)
	hcancel()

	// Bookkeeping gets its own short budget so a handler that burned the
	// whole grace can still record its outcome.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err == nil {
		if err := w.store.CompleteJob(ctx, job.ID); err != nil {
			logger.Error("failed to complete job", "error", err)
		}
		w.exporter.RecordJob(job.Queue, "completed")
		return
	}

	if job.AttemptsDone >= job.AttemptsMax {
		logger.Error("job failed terminally", "error", err)
		if err := w.store.ReleaseJob(ctx, job.ID, err.Error(), nil); err != nil {
			logger.Error("failed to mark job failed", "error", err)
		}
		w.exporter.RecordJob(job.Queue, "failed")
		return
	}

	retryAt := w.now().Add(backoffDelay(job)).Unix()
	logger.Warn("job failed, retrying", "retryAtTs", retryAt, "error", err)
	if err := w.store.ReleaseJob(ctx, job.ID, err.Error(), &retryAt); err != nil {
		logger.Error("failed to release job for retry", "error", err)
	}
	w.exporter.RecordJob(job.Queue, "retried")
}

// backoffDelay doubles per attempt: base, 2*base, 4*base, ...
func backoffDelay(job *store.Job) time.Duration {
	base := time.Duration(job.BackoffBaseMs) * time.Millisecond
	if base <= 0 {
		base = DefaultBackoffBase
	}
	exp := job.AttemptsDone - 1
	if exp < 0 {
		exp = 0
	}
	if exp > 10 {
		exp = 10
	}
	return base * time.Duration(int64(1)<<uint(exp))
}

func (w *Worker) sweep(ctx context.Context) {
	if removed, err := w.store.SweepJobs(ctx, w.cfg.Queue, keepCompletedJobs, keepFailedJobs); err != nil {
		slog.Error("failed to sweep jobs", "queue", w.cfg.Queue, "error", err)
	} else if removed > 0 {
		slog.Debug("swept terminal jobs", "queue", w.cfg.Queue, "removed", removed)
	}

	depth, err := w.store.CountJobs(ctx, w.cfg.Queue, store.JobPending)
	if err != nil {
		return
	}
	w.exporter.SetQueueDepth(w.cfg.Queue, float64(depth))
}
