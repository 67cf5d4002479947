package workflow

import (
	"context"

	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
)

// WorkerConfig sizes the Temporal workers.
type WorkerConfig struct {
	TaskQueue   string
	Concurrency map[model.JobType]int
}

// Dial connects to the Temporal frontend.
func Dial(hostPort, namespace string) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "workflow: dial %s", hostPort)
	}
	return c, nil
}

// RunWorkers serves LeadWorkflow and its activities until ctx is cancelled.
// The base task queue carries workflows and MarkFailed; every stage has its
// own queue whose worker runs at most Concurrency[type] activities at once.
func RunWorkers(ctx context.Context, c client.Client, cfg WorkerConfig, acts *Activities) error {
	base := worker.New(c, cfg.TaskQueue, worker.Options{})
	base.RegisterWorkflow(LeadWorkflow)
	base.RegisterActivity(acts.MarkFailed)

	workers := []worker.Worker{base}
	for _, jt := range model.JobTypes {
		n := cfg.Concurrency[jt]
		if n < 1 {
			n = 1
		}
		w := worker.New(c, TaskQueueFor(cfg.TaskQueue, jt), worker.Options{
			MaxConcurrentActivityExecutionSize: n,
		})
		w.RegisterActivity(acts.RunStage)
		workers = append(workers, w)
	}

	for i, w := range workers {
		if err := w.Start(); err != nil {
			for _, started := range workers[:i] {
				started.Stop()
			}
			return eris.Wrap(err, "workflow: start worker")
		}
	}
	zap.L().Info("workflow: workers started",
		zap.String("task_queue", cfg.TaskQueue),
		zap.Int("workers", len(workers)),
	)

	<-ctx.Done()
	for _, w := range workers {
		w.Stop()
	}
	zap.L().Info("workflow: workers stopped")
	return nil
}
