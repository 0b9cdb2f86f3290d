package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hrygo/slawatch/store"
)

// memoryStore is safe for concurrent use so worker tests can run the poll
// loop and handlers in parallel.
type memoryStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*store.Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: map[int64]*store.Job{}}
}

func (m *memoryStore) EnqueueJob(_ context.Context, create *store.Job) (*store.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Queue == create.Queue && job.JobID == create.JobID && job.State == store.JobPending {
			return job, false, nil
		}
	}
	m.nextID++
	create.ID = m.nextID
	create.State = store.JobPending
	m.jobs[create.ID] = create
	return create, true, nil
}

func (m *memoryStore) GetJobByJobID(_ context.Context, queue, jobID string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Queue == queue && job.JobID == jobID &&
			(job.State == store.JobPending || job.State == store.JobRunning) {
			return job, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memoryStore) CancelJob(_ context.Context, queue, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Queue == queue && job.JobID == jobID && job.State == store.JobPending {
			job.State = store.JobCancelled
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStore) ClaimJobs(_ context.Context, queue string, limit int, nowTs, staleBeforeTs int64) ([]*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := make([]*store.Job, 0)
	for _, job := range m.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Queue != queue {
			continue
		}
		due := job.State == store.JobPending && job.RunAtTs <= nowTs
		stalled := job.State == store.JobRunning && job.UpdatedTs <= staleBeforeTs
		if due || stalled {
			job.State = store.JobRunning
			job.AttemptsDone++
			job.UpdatedTs = nowTs
			claimed = append(claimed, job)
		}
	}
	return claimed, nil
}

func (m *memoryStore) CompleteJob(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].State = store.JobCompleted
	return nil
}

func (m *memoryStore) ReleaseJob(_ context.Context, id int64, errMsg string, retryAtTs *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[id]
	job.LastError = &errMsg
	if retryAtTs == nil {
		job.State = store.JobFailed
		return nil
	}
	job.State = store.JobPending
	job.RunAtTs = *retryAtTs
	return nil
}

func (m *memoryStore) SweepJobs(context.Context, string, int, int) (int64, error) {
	return 0, nil
}

func (m *memoryStore) CountJobs(_ context.Context, queue string, state store.JobState) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, job := range m.jobs {
		if job.Queue == queue && job.State == state {
			count++
		}
	}
	return count, nil
}

func TestEnqueueDefaults(t *testing.T) {
	st := newMemoryStore()
	q := New(st)
	now := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time { return now }

	job, created, err := q.Enqueue(context.Background(), QueueAlerts, "send-alert", map[string]int64{"alertId": 7}, Options{Delay: time.Minute})
	require.NoError(t, err)
	require.True(t, created)
	require.NotEmpty(t, job.JobID)
	require.Equal(t, int32(DefaultAttempts), job.AttemptsMax)
	require.Equal(t, DefaultBackoffBase.Milliseconds(), job.BackoffBaseMs)
	require.Equal(t, now.Unix()+60, job.RunAtTs)
	require.JSONEq(t, `{"alertId": 7}`, string(job.Payload))
}

func TestEnqueueDuplicateJobIDKeepsExisting(t *testing.T) {
	st := newMemoryStore()
	q := New(st)
	ctx := context.Background()

	first, created, err := q.Enqueue(ctx, QueueSlaTimers, "breach-check", nil, Options{JobID: "sla-1", Attempts: 1})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := q.Enqueue(ctx, QueueSlaTimers, "breach-check", nil, Options{JobID: "sla-1", Attempts: 1, Delay: time.Hour})
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.RunAtTs, second.RunAtTs)
}

func TestCancelPendingJob(t *testing.T) {
	st := newMemoryStore()
	q := New(st)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, QueueSlaTimers, "breach-check", nil, Options{JobID: "sla-1"})
	require.NoError(t, err)

	ok, err := q.Cancel(ctx, QueueSlaTimers, "sla-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Best-effort: a second cancel finds nothing live.
	ok, err = q.Cancel(ctx, QueueSlaTimers, "sla-1")
	require.NoError(t, err)
	require.False(t, ok)

	job, err := q.Get(ctx, QueueSlaTimers, "sla-1")
	require.NoError(t, err)
	require.Nil(t, job)
}

func TestWorkerCompletesJob(t *testing.T) {
	st := newMemoryStore()
	q := New(st)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, QueueAlerts, "send-alert", nil, Options{})
	require.NoError(t, err)

	var handled int
	w := NewWorker(st, WorkerConfig{Queue: QueueAlerts}, func(context.Context, *store.Job) error {
		handled++
		return nil
	}, nil)

	claimed, err := st.ClaimJobs(ctx, QueueAlerts, 10, time.Now().Unix(), 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	w.handle(claimed[0])

	require.Equal(t, 1, handled)
	require.Equal(t, store.JobCompleted, claimed[0].State)
}

func TestWorkerRetriesWithBackoff(t *testing.T) {
	st := newMemoryStore()
	q := New(st)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time { return now }

	_, _, err := q.Enqueue(ctx, QueueAlerts, "send-alert", nil, Options{})
	require.NoError(t, err)

	w := NewWorker(st, WorkerConfig{Queue: QueueAlerts}, func(context.Context, *store.Job) error {
		return errors.New("transport unavailable")
	}, nil)
	w.now = func() time.Time { return now }

	// First attempt: retried after the 1s base backoff.
	claimed, err := st.ClaimJobs(ctx, QueueAlerts, 10, now.Unix(), 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	job := claimed[0]
	w.handle(job)
	require.Equal(t, store.JobPending, job.State)
	require.Equal(t, now.Unix()+1, job.RunAtTs)
	require.NotNil(t, job.LastError)
	require.Equal(t, "transport unavailable", *job.LastError)

	// Second attempt: backoff doubles.
	claimed, err = st.ClaimJobs(ctx, QueueAlerts, 10, job.RunAtTs, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	w.handle(claimed[0])
	require.Equal(t, store.JobPending, job.State)

	// Third attempt exhausts the budget.
	claimed, err = st.ClaimJobs(ctx, QueueAlerts, 10, job.RunAtTs, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	w.handle(claimed[0])
	require.Equal(t, store.JobFailed, job.State)
}

func TestWorkerSingleAttemptFailsTerminally(t *testing.T) {
	st := newMemoryStore()
	q := New(st)
	ctx := context.Background()

	_, _, err := q.Enqueue(ctx, QueueSlaTimers, "breach-check", nil, Options{JobID: "sla-9", Attempts: 1})
	require.NoError(t, err)

	w := NewWorker(st, WorkerConfig{Queue: QueueSlaTimers}, func(context.Context, *store.Job) error {
		return errors.New("boom")
	}, nil)

	claimed, err := st.ClaimJobs(ctx, QueueSlaTimers, 10, time.Now().Unix(), 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	w.handle(claimed[0])
	require.Equal(t, store.JobFailed, claimed[0].State)
}

func TestWorkerShutdownBoundedByDrainGrace(t *testing.T) {
	st := newMemoryStore()
	q := New(st)
	_, _, err := q.Enqueue(context.Background(), QueueAlerts, "send-alert", nil, Options{})
	require.NoError(t, err)

	started := make(chan struct{}, 1)
	w := NewWorker(st, WorkerConfig{
		Queue:        QueueAlerts,
		Concurrency:  1,
		PollInterval: 10 * time.Millisecond,
		DrainGrace:   50 * time.Millisecond,
	}, func(ctx context.Context, _ *store.Job) error {
		select {
		case started <- struct{}{}:
		default:
		}
		// A stuck downstream call: only the grace deadline frees it.
		<-ctx.Done()
		return ctx.Err()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown exceeded the drain grace")
	}
}

func TestBackoffDelay(t *testing.T) {
	job := &store.Job{BackoffBaseMs: 1000}
	job.AttemptsDone = 1
	require.Equal(t, time.Second, backoffDelay(job))
	job.AttemptsDone = 2
	require.Equal(t, 2*time.Second, backoffDelay(job))
	job.AttemptsDone = 3
	require.Equal(t, 4*time.Second, backoffDelay(job))
}
