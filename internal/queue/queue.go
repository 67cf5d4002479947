// Package queue implements the durable, at-least-once job queue that drives
// lead enrichment, and the per-type worker pools that drain it.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// ErrJobNotFound is returned when acknowledging a job id that does not exist.
var ErrJobNotFound = eris.New("queue: job not found")

// Queue stores jobs and hands them out to workers under a lease.
//
// Claim returns (nil, nil) when no job of the type is ready. A claimed job's
// Attempt is incremented; a running job whose lease expired is delivered
// again, so handlers must be idempotent.
type Queue interface {
	Enqueue(ctx context.Context, jobs ...model.Job) error
	Claim(ctx context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error)
	Complete(ctx context.Context, id string) error
	Retry(ctx context.Context, id string, runAt time.Time, errMsg string) error
	Bury(ctx context.Context, id, errMsg string) error
	Counts(ctx context.Context) (model.JobCounts, error)
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewJob builds a queued job ready to run now.
func NewJob(jobType model.JobType, leadID string, payload model.JobPayload, maxAttempts int) model.Job {
	now := time.Now().UTC()
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return model.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		LeadID:      leadID,
		Payload:     payload,
		Status:      model.JobStatusQueued,
		MaxAttempts: maxAttempts,
		RunAt:       now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// PermanentError marks a handler failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the runner buries the job instead of retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func newCounts() model.JobCounts {
	counts := make(model.JobCounts, len(model.JobTypes))
	for _, t := range model.JobTypes {
		counts[t] = map[model.JobStatus]int{}
	}
	return counts
}

func addCount(counts model.JobCounts, t model.JobType, s model.JobStatus, n int) {
	if counts[t] == nil {
		counts[t] = map[model.JobStatus]int{}
	}
	counts[t][s] += n
}
