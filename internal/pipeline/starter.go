package pipeline

import (
	"context"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/queue"
)

// QueueStarter starts leads by enqueueing their domain jobs. The enqueuer
// staggers start times so a large intake does not burst the search provider.
type QueueStarter struct {
	enq *queue.Enqueuer
}

// NewQueueStarter creates a starter on enq.
func NewQueueStarter(enq *queue.Enqueuer) *QueueStarter {
	return &QueueStarter{enq: enq}
}

// Start enqueues one find-domain job per lead.
func (s *QueueStarter) Start(ctx context.Context, leads []model.Lead) error {
	jobs := make([]model.Job, 0, len(leads))
	for _, l := range leads {
		jobs = append(jobs, s.enq.Job(model.JobFindDomain, l.ID, model.JobPayload{Company: l.Company}))
	}
	return s.enq.Enqueue(ctx, jobs...)
}
