package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hrygo/slawatch/store"
)

const jobFields = "id, queue, name, job_id, payload, state, run_at_ts, attempts_max, attempts_done, backoff_base_ms, last_error, created_ts, updated_ts"

// EnqueueJob inserts a job. When a pending job with the same (queue, job_id)
// exists the existing one is kept and returned with false.
func (d *DB) EnqueueJob(ctx context.Context, create *store.Job) (*store.Job, bool, error) {
	fields := []string{"queue", "name", "job_id", "payload", "state", "run_at_ts", "attempts_max", "attempts_done", "backoff_base_ms", "created_ts", "updated_ts"}
	args := []any{
		create.Queue, create.Name, create.JobID, create.Payload, store.JobPending,
		create.RunAtTs, create.AttemptsMax, int32(0), create.BackoffBaseMs,
		create.CreatedTs, create.UpdatedTs,
	}

	stmt := `INSERT INTO job (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (queue, job_id) WHERE state = 'pending' DO NOTHING
		RETURNING id`
	err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID)
	if err == nil {
		create.State = store.JobPending
		return create, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	existing, err := d.GetJobByJobID(ctx, create.Queue, create.JobID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load existing job after conflict: %w", err)
	}
	return existing, false, nil
}

// GetJobByJobID returns the live (pending or running) job with the given
// stable id, or store.ErrNotFound.
func (d *DB) GetJobByJobID(ctx context.Context, queue, jobID string) (*store.Job, error) {
	query := `SELECT ` + jobFields + ` FROM job
		WHERE queue = $1 AND job_id = $2 AND state IN ('pending', 'running')
		ORDER BY id DESC
		LIMIT 1`
	job, err := scanJob(d.db.QueryRowContext(ctx, query, queue, jobID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// CancelJob cancels a pending job. Returns false when the job does not exist
// or is already running, completed or cancelled.
func (d *DB) CancelJob(ctx context.Context, queue, jobID string) (bool, error) {
	stmt := `UPDATE job SET state = 'cancelled', updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT
		WHERE queue = $1 AND job_id = $2 AND state = 'pending'`
	result, err := d.db.ExecContext(ctx, stmt, queue, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ClaimJobs atomically moves due pending jobs (and stalled running jobs whose
// handler presumably died) to running and returns them. SKIP LOCKED keeps
// concurrent workers from claiming the same rows.
func (d *DB) ClaimJobs(ctx context.Context, queue string, limit int, nowTs, staleBeforeTs int64) ([]*store.Job, error) {
	stmt := `UPDATE job SET state = 'running', attempts_done = attempts_done + 1, updated_ts = $3
		WHERE id IN (
			SELECT id FROM job
			WHERE queue = $1
				AND ((state = 'pending' AND run_at_ts <= $3) OR (state = 'running' AND updated_ts <= $4))
			ORDER BY run_at_ts ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobFields
	rows, err := d.db.QueryContext(ctx, stmt, queue, limit, nowTs, staleBeforeTs)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	defer rows.Close()

	list := make([]*store.Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claimed jobs: %w", err)
	}

	return list, nil
}

func (d *DB) CompleteJob(ctx context.Context, id int64) error {
	stmt := `UPDATE job SET state = 'completed', updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT WHERE id = $1`
	if _, err := d.db.ExecContext(ctx, stmt, id); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// ReleaseJob returns a failed job to the queue. A nil retryAtTs marks the job
// terminally failed.
func (d *DB) ReleaseJob(ctx context.Context, id int64, errMsg string, retryAtTs *int64) error {
	if retryAtTs != nil {
		stmt := `UPDATE job SET state = 'pending', run_at_ts = $2, last_error = $3, updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT WHERE id = $1`
		if _, err := d.db.ExecContext(ctx, stmt, id, *retryAtTs, errMsg); err != nil {
			return fmt.Errorf("failed to release job for retry: %w", err)
		}
		return nil
	}
	stmt := `UPDATE job SET state = 'failed', last_error = $2, updated_ts = EXTRACT(EPOCH FROM NOW())::BIGINT WHERE id = $1`
	if _, err := d.db.ExecContext(ctx, stmt, id, errMsg); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// SweepJobs trims terminal jobs beyond the retention caps, newest first.
func (d *DB) SweepJobs(ctx context.Context, queue string, keepCompleted, keepFailed int) (int64, error) {
	var total int64
	for _, c := range []struct {
		state store.JobState
		keep  int
	}{
		{store.JobCompleted, keepCompleted},
		{store.JobFailed, keepFailed},
	} {
		stmt := `DELETE FROM job WHERE queue = $1 AND state = $2 AND id NOT IN (
			SELECT id FROM job WHERE queue = $1 AND state = $2 ORDER BY updated_ts DESC LIMIT $3
		)`
		result, err := d.db.ExecContext(ctx, stmt, queue, c.state, c.keep)
		if err != nil {
			return total, fmt.Errorf("failed to sweep %s jobs: %w", c.state, err)
		}
		rows, _ := result.RowsAffected()
		total += rows
	}

	// Cancelled jobs have no observability value; drop them as well.
	if _, err := d.db.ExecContext(ctx, `DELETE FROM job WHERE queue = $1 AND state = 'cancelled'`, queue); err != nil {
		return total, fmt.Errorf("failed to sweep cancelled jobs: %w", err)
	}

	return total, nil
}

func (d *DB) CountJobs(ctx context.Context, queue string, state store.JobState) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job WHERE queue = $1 AND state = $2`, queue, state).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return count, nil
}

func scanJob(row rowScanner) (*store.Job, error) {
	job := &store.Job{}
	if err := row.Scan(
		&job.ID, &job.Queue, &job.Name, &job.JobID, &job.Payload, &job.State,
		&job.RunAtTs, &job.AttemptsMax, &job.AttemptsDone, &job.BackoffBaseMs,
		&job.LastError, &job.CreatedTs, &job.UpdatedTs,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}
