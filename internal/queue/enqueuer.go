package queue

import (
	"context"
	"time"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

// Enqueuer stamps new jobs with the attempt limit and a random start delay
// so a large intake batch does not hit the providers in one burst.
type Enqueuer struct {
	queue       Queue
	maxAttempts int
	jitterMax   time.Duration
}

// NewEnqueuer wraps q.
func NewEnqueuer(q Queue, maxAttempts int, jitterMax time.Duration) *Enqueuer {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Enqueuer{queue: q, maxAttempts: maxAttempts, jitterMax: jitterMax}
}

// Job builds a job for the stage with the configured attempt limit.
func (e *Enqueuer) Job(jobType model.JobType, leadID string, payload model.JobPayload) model.Job {
	return NewJob(jobType, leadID, payload, e.maxAttempts)
}

// Enqueue delays each job by up to jitterMax and stores it.
func (e *Enqueuer) Enqueue(ctx context.Context, jobs ...model.Job) error {
	for i := range jobs {
		if jobs[i].RunAt.IsZero() {
			jobs[i].RunAt = time.Now().UTC()
		}
		jobs[i].RunAt = jobs[i].RunAt.Add(resilience.Jitter(e.jitterMax))
		if jobs[i].MaxAttempts < 1 {
			jobs[i].MaxAttempts = e.maxAttempts
		}
	}
	return e.queue.Enqueue(ctx, jobs...)
}
