package retention

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/slawatch/internal/queue"
	"github.com/hrygo/slawatch/store"
)

type fakeSweepStore struct {
	settings  *store.GlobalSettings
	purgedAt  []int64
	purgeErr  error
	jobs      map[string]*store.Job
	jobSerial int64
}

func newFakeSweepStore() *fakeSweepStore {
	return &fakeSweepStore{
		settings: store.DefaultGlobalSettings(),
		jobs:     map[string]*store.Job{},
	}
}

func (f *fakeSweepStore) GetGlobalSettings(context.Context) (*store.GlobalSettings, error) {
	return f.settings, nil
}

func (f *fakeSweepStore) PurgeBefore(_ context.Context, cutoffTs int64) (*store.PurgeResult, error) {
	if f.purgeErr != nil {
		return nil, f.purgeErr
	}
	f.purgedAt = append(f.purgedAt, cutoffTs)
	return &store.PurgeResult{Messages: 12, Requests: 3}, nil
}

func (f *fakeSweepStore) EnqueueJob(_ context.Context, create *store.Job) (*store.Job, bool, error) {
	if job, ok := f.jobs[create.JobID]; ok && job.State == store.JobPending {
		return job, false, nil
	}
	f.jobSerial++
	create.ID = f.jobSerial
	create.State = store.JobPending
	f.jobs[create.JobID] = create
	return create, true, nil
}

func (f *fakeSweepStore) GetJobByJobID(_ context.Context, _, jobID string) (*store.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.State != store.JobPending {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeSweepStore) CancelJob(_ context.Context, _, jobID string) (bool, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.State != store.JobPending {
		return false, nil
	}
	job.State = store.JobCancelled
	return true, nil
}

func TestArmIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFakeSweepStore()
	s := NewSweeper(f, queue.New(f))

	require.NoError(t, s.Arm(ctx))
	first := f.jobs[sweepJobID]
	require.NotNil(t, first)

	require.NoError(t, s.Arm(ctx))
	require.Equal(t, first.ID, f.jobs[sweepJobID].ID)
}

func TestSweepPurgesAndReschedules(t *testing.T) {
	ctx := context.Background()
	f := newFakeSweepStore()
	s := NewSweeper(f, queue.New(f))
	now := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.HandleSweepJob(ctx, &store.Job{Name: JobSweep}))

	require.Len(t, f.purgedAt, 1)
	require.Equal(t, now.Add(-365*24*time.Hour).Unix(), f.purgedAt[0])

	next := f.jobs[sweepJobID]
	require.NotNil(t, next)
	require.Equal(t, int64((24*time.Hour)/time.Second), next.RunAtTs-next.CreatedTs)
}

func TestSweepReschedulesAfterPurgeError(t *testing.T) {
	ctx := context.Background()
	f := newFakeSweepStore()
	f.purgeErr = errors.New("deadlock detected")
	s := NewSweeper(f, queue.New(f))

	require.Error(t, s.HandleSweepJob(ctx, &store.Job{Name: JobSweep}))
	require.NotNil(t, f.jobs[sweepJobID])
}

func TestSweepUsesConfiguredWindow(t *testing.T) {
	ctx := context.Background()
	f := newFakeSweepStore()
	f.settings.RetentionDays = 30
	s := NewSweeper(f, queue.New(f))
	now := time.Date(2026, 1, 10, 3, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.HandleSweepJob(ctx, &store.Job{Name: JobSweep}))
	require.Equal(t, now.Add(-30*24*time.Hour).Unix(), f.purgedAt[0])
}
