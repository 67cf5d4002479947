// Package workflow runs the enrichment stages as Temporal activities. A
// LeadWorkflow walks one lead through the same transition table the queue
// runner uses, so either backend produces identical lead state.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/queue"
)

// permanentErrorType tags activity errors that must not be retried.
const permanentErrorType = "PermanentStageError"

// Stager is the part of the orchestrator the activities call into.
type Stager interface {
	RunStage(ctx context.Context, job model.Job) ([]model.Job, error)
	Exhausted(ctx context.Context, job model.Job, cause error)
}

// Params configures one LeadWorkflow run.
type Params struct {
	Job            model.Job     `json:"job"`
	TaskQueue      string        `json:"task_queue"`
	MaxAttempts    int           `json:"max_attempts"`
	InitialBackoff time.Duration `json:"initial_backoff"`
	MaxBackoff     time.Duration `json:"max_backoff"`
	StageTimeout   time.Duration `json:"stage_timeout"`
}

// TaskQueueFor returns the task queue serving stage jobType.
func TaskQueueFor(base string, jobType model.JobType) string {
	return base + "-" + string(jobType)
}

// Activities exposes the orchestrator to Temporal workers.
type Activities struct {
	stager Stager
}

// NewActivities creates the activity set over s.
func NewActivities(s Stager) *Activities {
	return &Activities{stager: s}
}

// RunStage executes one stage. Permanent errors become non-retryable
// application errors so Temporal stops retrying them.
func (a *Activities) RunStage(ctx context.Context, job model.Job) ([]model.Job, error) {
	job.Attempt = int(activity.GetInfo(ctx).Attempt)

	next, err := a.stager.RunStage(ctx, job)
	if err != nil && queue.IsPermanent(err) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), permanentErrorType, err)
	}
	return next, err
}

// MarkFailed records the final stage error on the lead.
func (a *Activities) MarkFailed(ctx context.Context, job model.Job, reason string) error {
	a.stager.Exhausted(ctx, job, eris.New(reason))
	return nil
}

// LeadWorkflow runs the stages of one lead in order. Each stage is an
// activity on its own task queue so per-type concurrency is set by the
// worker serving that queue.
func LeadWorkflow(ctx workflow.Context, p Params) error {
	var a *Activities
	job := p.Job

	for {
		stageCtx := workflow.WithActivityOptions(ctx, stageOptions(p, job.Type))

		var next []model.Job
		err := workflow.ExecuteActivity(stageCtx, a.RunStage, job).Get(ctx, &next)
		if err != nil {
			workflow.GetLogger(ctx).Warn("stage exhausted",
				"lead_id", job.LeadID, "stage", string(job.Type), "error", err)

			failCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
				TaskQueue:           p.TaskQueue,
				StartToCloseTimeout: 30 * time.Second,
				RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
			})
			if ferr := workflow.ExecuteActivity(failCtx, a.MarkFailed, job, failureReason(err)).Get(ctx, nil); ferr != nil {
				return ferr
			}
			return err
		}
		if len(next) == 0 {
			return nil
		}
		job = next[0]
	}
}

func stageOptions(p Params, jobType model.JobType) workflow.ActivityOptions {
	timeout := p.StageTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return workflow.ActivityOptions{
		TaskQueue:           TaskQueueFor(p.TaskQueue, jobType),
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        p.InitialBackoff,
			BackoffCoefficient:     2.0,
			MaximumInterval:        p.MaxBackoff,
			MaximumAttempts:        int32(attempts),
			NonRetryableErrorTypes: []string{permanentErrorType},
		},
	}
}

// failureReason strips the activity envelope from err.
func failureReason(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error()
	}
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return "stage timed out"
	}
	return err.Error()
}
