package store

// JobState is the lifecycle state of a queued job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Job is a durable delayed queue entry. JobID is the caller-supplied stable
// identifier; enqueueing a duplicate (queue, job_id) while a pending job
// exists keeps the existing one.
type Job struct {
	ID            int64
	Queue         string
	Name          string
	JobID         string
	Payload       []byte
	State         JobState
	RunAtTs       int64
	AttemptsMax   int32
	AttemptsDone  int32
	BackoffBaseMs int64
	LastError     *string
	CreatedTs     int64
	UpdatedTs     int64
}
