// Package queue is a durable delayed job queue on top of the relational
// store. Jobs survive restarts; stable job ids make repeated enqueues
// coalesce, which is what the SLA timers rely on for idempotency.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/slawatch/store"
)

// Queue names used by the engine.
const (
	QueueSlaTimers = "sla-timers"
	QueueAlerts    = "alerts"
	QueueRetention = "data-retention"
)

const (
	// DefaultAttempts is the default retry budget per job.
	DefaultAttempts = 3
	// DefaultBackoffBase is the base of the exponential retry backoff.
	DefaultBackoffBase = time.Second
)

// Options controls a single enqueue.
type Options struct {
	// Delay postpones the first execution.
	Delay time.Duration
	// JobID is a stable identifier. Enqueueing a duplicate pending JobID
	// keeps the existing job. Empty means a random id.
	JobID string
	// Attempts overrides DefaultAttempts. SLA timer jobs use 1: a missed
	// check is re-scheduled by its handler, not retried blindly.
	Attempts int32
	// BackoffBase overrides DefaultBackoffBase.
	BackoffBase time.Duration
}

type enqueueStore interface {
	EnqueueJob(ctx context.Context, create *store.Job) (*store.Job, bool, error)
	GetJobByJobID(ctx context.Context, queue, jobID string) (*store.Job, error)
	CancelJob(ctx context.Context, queue, jobID string) (bool, error)
}

// Queue is the producer half: enqueue, cancel, inspect.
type Queue struct {
	store enqueueStore
	now   func() time.Time
}

func New(st enqueueStore) *Queue {
	return &Queue{store: st, now: time.Now}
}

// Enqueue stores a job. The payload is JSON-encoded. The bool result reports
// whether a new job was created; false means a live job with the same JobID
// already existed and was kept.
func (q *Queue) Enqueue(ctx context.Context, queueName, jobName string, payload any, opts Options) (*store.Job, bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode job payload: %w", err)
	}

	jobID := opts.JobID
	if jobID == "" {
		jobID = shortuuid.New()
	}
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	backoff := opts.BackoffBase
	if backoff <= 0 {
		backoff = DefaultBackoffBase
	}

	now := q.now()
	return q.store.EnqueueJob(ctx, &store.Job{
		Queue:         queueName,
		Name:          jobName,
		JobID:         jobID,
		Payload:       data,
		RunAtTs:       now.Add(opts.Delay).Unix(),
		AttemptsMax:   attempts,
		BackoffBaseMs: backoff.Milliseconds(),
		CreatedTs:     now.Unix(),
		UpdatedTs:     now.Unix(),
	})
}

// Cancel removes a pending job. Best-effort: false when the job is unknown,
// already running, or already finished.
func (q *Queue) Cancel(ctx context.Context, queueName, jobID string) (bool, error) {
	return q.store.CancelJob(ctx, queueName, jobID)
}

// Get returns the live job with the given id, or nil when none exists.
func (q *Queue) Get(ctx context.Context, queueName, jobID string) (*store.Job, error) {
	job, err := q.store.GetJobByJobID(ctx, queueName, jobID)
	if err == store.ErrNotFound {
		return nil, nil
	}
	return job, err
}
