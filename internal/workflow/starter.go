package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/queue"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

// WorkflowClient is the subset of client.Client the starter needs.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// StarterConfig holds the settings copied into every workflow run.
type StarterConfig struct {
	TaskQueue      string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	StageTimeout   time.Duration
	JitterMax      time.Duration
}

// Starter starts one LeadWorkflow per lead.
type Starter struct {
	client WorkflowClient
	cfg    StarterConfig
}

// NewStarter creates a Starter.
func NewStarter(c WorkflowClient, cfg StarterConfig) *Starter {
	return &Starter{client: c, cfg: cfg}
}

// WorkflowID is the workflow id for a lead. A lead has at most one running
// workflow; starting it again while it runs attaches to the existing run.
func WorkflowID(leadID string) string {
	return "lead-" + leadID
}

// Start launches workflows for leads, staggering start times by up to
// JitterMax.
func (s *Starter) Start(ctx context.Context, leads []model.Lead) error {
	for _, l := range leads {
		job := queue.NewJob(model.JobFindDomain, l.ID, model.JobPayload{Company: l.Company}, s.cfg.MaxAttempts)
		opts := client.StartWorkflowOptions{
			ID:         WorkflowID(l.ID),
			TaskQueue:  s.cfg.TaskQueue,
			StartDelay: resilience.Jitter(s.cfg.JitterMax),
		}
		params := Params{
			Job:            job,
			TaskQueue:      s.cfg.TaskQueue,
			MaxAttempts:    s.cfg.MaxAttempts,
			InitialBackoff: s.cfg.InitialBackoff,
			MaxBackoff:     s.cfg.MaxBackoff,
			StageTimeout:   s.cfg.StageTimeout,
		}
		if _, err := s.client.ExecuteWorkflow(ctx, opts, LeadWorkflow, params); err != nil {
			return eris.Wrapf(err, "workflow: start lead %s", l.ID)
		}
		zap.L().Debug("workflow: started lead",
			zap.String("lead_id", l.ID),
			zap.String("workflow_id", opts.ID),
			zap.Duration("delay", opts.StartDelay),
		)
	}
	return nil
}
