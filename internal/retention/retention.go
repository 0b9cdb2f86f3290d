// Package retention runs the daily data-retention sweep as a self-scheduling
// queue job: each run purges rows past the configured retention window and
// enqueues the next run.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/store"
)

// JobSweep is the job name on the data-retention queue.
const JobSweep = "purge"

const sweepJobID = "retention-sweep"

const sweepPeriod = 24 * time.Hour

type sweepStore interface {
	GetGlobalSettings(ctx context.Context) (*store.GlobalSettings, error)
	PurgeBefore(ctx context.Context, cutoffTs int64) (*store.PurgeResult, error)
}

// Sweeper owns the retention job chain.
type Sweeper struct {
	store sweepStore
	queue *queue.Queue
	now   func() time.Time
}

func NewSweeper(st sweepStore, q *queue.Queue) *Sweeper {
	return &Sweeper{store: st, queue: q, now: time.Now}
}

// Arm makes sure a sweep job is pending. Called at startup; the stable job id
// keeps restarts from stacking extra runs.
func (s *Sweeper) Arm(ctx context.Context) error {
	_, created, err := s.queue.Enqueue(ctx, queue.QueueRetention, JobSweep, nil,
		queue.Options{Delay: time.Minute, JobID: sweepJobID, Attempts: 1},
	)
	if err != nil {
		return errors.Wrap(err, "failed to arm retention sweep")
	}
	if created {
		slog.Info("retention sweep armed")
	}
	return nil
}

// HandleSweepJob purges expired rows and schedules the next run. Open
// requests are never purged regardless of age; the store enforces that.
func (s *Sweeper) HandleSweepJob(ctx context.Context, _ *store.Job) error {
	settings, err := s.store.GetGlobalSettings(ctx)
	if err != nil {
		settings = store.DefaultGlobalSettings()
	}
	days := settings.RetentionDays
	if days <= 0 {
		days = store.DefaultGlobalSettings().RetentionDays
	}

	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()
	result, err := s.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		// Reschedule anyway: a failed sweep must not end the chain.
		if rescheduleErr := s.scheduleNext(ctx); rescheduleErr != nil {
			slog.Error("failed to reschedule retention sweep", "error", rescheduleErr)
		}
		return errors.Wrap(err, "retention purge failed")
	}

	slog.Info("retention sweep finished",
		"cutoffTs", cutoff,
		"messages", result.Messages,
		"requests", result.Requests,
		"alerts", result.Alerts,
		"cacheEntries", result.CacheEntries,
	)
	return s.scheduleNext(ctx)
}

func (s *Sweeper) scheduleNext(ctx context.Context) error {
	_, _, err := s.queue.Enqueue(ctx, queue.QueueRetention, JobSweep, nil,
		queue.Options{Delay: sweepPeriod, JobID: sweepJobID, Attempts: 1},
	)
	return errors.Wrap(err, "failed to schedule next retention sweep")
}
