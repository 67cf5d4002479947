package queue

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enricher/internal/metrics"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resilience"
)

// Handler executes one job. Returning nil acknowledges it; an error wrapped
// with Permanent buries it; any other error schedules a retry.
type Handler func(ctx context.Context, job model.Job) error

// ExhaustedFunc is called once a job is buried, with the last handler error.
type ExhaustedFunc func(ctx context.Context, job model.Job, err error)

// RunnerConfig sizes the worker pools and the retry schedule.
type RunnerConfig struct {
	Concurrency  map[model.JobType]int
	PollInterval time.Duration
	Lease        time.Duration
	JobTimeout   time.Duration
	Backoff      resilience.Backoff
	// DepthInterval is how often queue depth is published. Zero disables it.
	DepthInterval time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithExhausted sets the callback for buried jobs.
func WithExhausted(fn ExhaustedFunc) RunnerOption {
	return func(r *Runner) { r.onExhausted = fn }
}

// WithMetrics records job outcomes and queue depth on m.
func WithMetrics(m *metrics.Collector) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// Runner drains a Queue with one bounded worker pool per job type.
type Runner struct {
	queue       Queue
	cfg         RunnerConfig
	handlers    map[model.JobType]Handler
	onExhausted ExhaustedFunc
	metrics     *metrics.Collector
	now         func() time.Time
}

// NewRunner creates a Runner. Register handlers with Handle before Run.
func NewRunner(q Queue, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Minute
	}
	if cfg.JobTimeout <= 0 || cfg.JobTimeout > cfg.Lease {
		cfg.JobTimeout = cfg.Lease
	}
	r := &Runner{
		queue:    q,
		cfg:      cfg,
		handlers: make(map[model.JobType]Handler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers the handler for a job type.
func (r *Runner) Handle(jobType model.JobType, h Handler) {
	r.handlers[jobType] = h
}

// Run starts the worker pools and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for jobType := range r.handlers {
		n := r.cfg.Concurrency[jobType]
		if n < 1 {
			n = 1
		}
		zap.L().Info("queue: starting workers",
			zap.String("type", string(jobType)),
			zap.Int("concurrency", n),
		)
		for i := 0; i < n; i++ {
			g.Go(func() error {
				r.work(gctx, jobType)
				return nil
			})
		}
	}

	if r.cfg.DepthInterval > 0 && r.metrics != nil {
		g.Go(func() error {
			r.reportDepth(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (r *Runner) work(ctx context.Context, jobType model.JobType) {
	for ctx.Err() == nil {
		ok, err := r.RunOnce(ctx, jobType)
		if err != nil && ctx.Err() == nil {
			zap.L().Error("queue: claim failed", zap.String("type", string(jobType)), zap.Error(err))
		}
		if ok && err == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.PollInterval):
		}
	}
}

// RunOnce claims and processes at most one job of the type. It reports
// whether a job was claimed.
func (r *Runner) RunOnce(ctx context.Context, jobType model.JobType) (bool, error) {
	h, ok := r.handlers[jobType]
	if !ok {
		return false, nil
	}
	job, err := r.queue.Claim(ctx, jobType, r.cfg.Lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.process(ctx, h, *job)
	return true, nil
}

func (r *Runner) process(ctx context.Context, h Handler, job model.Job) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("lead_id", job.LeadID),
		zap.Int("attempt", job.Attempt),
	)

	start := r.now()
	jobCtx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	err := safeCall(jobCtx, h, job)
	cancel()
	elapsed := r.now().Sub(start)

	// Acknowledge even when shutdown cancelled ctx; the lease would otherwise
	// hold the job until it expires.
	ackCtx, ackCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer ackCancel()

	switch {
	case err == nil:
		if ackErr := r.queue.Complete(ackCtx, job.ID); ackErr != nil {
			log.Error("queue: complete failed", zap.Error(ackErr))
		}
		r.metrics.RecordJob(string(job.Type), metrics.OutcomeSucceeded, elapsed)
		log.Debug("queue: job succeeded", zap.Duration("elapsed", elapsed))

	case ctx.Err() != nil && !IsPermanent(err):
		// Interrupted by shutdown: hand the job straight back.
		if ackErr := r.queue.Retry(ackCtx, job.ID, r.now().UTC(), err.Error()); ackErr != nil {
			log.Error("queue: requeue after shutdown failed", zap.Error(ackErr))
		}

	case IsPermanent(err) || job.Attempt >= job.MaxAttempts:
		if ackErr := r.queue.Bury(ackCtx, job.ID, err.Error()); ackErr != nil {
			log.Error("queue: bury failed", zap.Error(ackErr))
		}
		r.metrics.RecordJob(string(job.Type), metrics.OutcomeDead, elapsed)
		log.Warn("queue: job dead",
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Bool("permanent", IsPermanent(err)),
			zap.Error(err),
		)
		if r.onExhausted != nil {
			r.onExhausted(ackCtx, job, err)
		}

	default:
		backoff := r.cfg.Backoff.Delay(job.Attempt)
		if ackErr := r.queue.Retry(ackCtx, job.ID, r.now().UTC().Add(backoff), err.Error()); ackErr != nil {
			log.Error("queue: retry failed", zap.Error(ackErr))
		}
		r.metrics.RecordJob(string(job.Type), metrics.OutcomeRetried, elapsed)
		log.Warn("queue: job failed, retrying",
			zap.Int("max_attempts", job.MaxAttempts),
			zap.Duration("backoff", backoff),
			zap.Bool("transient", resilience.IsTransient(err)),
			zap.Error(err),
		)
	}
}

// safeCall runs h and turns a panic into a retryable error so one bad job
// cannot take down the worker process.
func safeCall(ctx context.Context, h Handler, job model.Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("queue: handler panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			err = eris.Errorf("queue: handler panic: %v", p)
		}
	}()
	return h(ctx, job)
}

func (r *Runner) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.DepthInterval)
	defer ticker.Stop()

	for {
		counts, err := r.queue.Counts(ctx)
		if err != nil && ctx.Err() == nil {
			zap.L().Warn("queue: count jobs failed", zap.Error(err))
		}
		for jobType, byStatus := range counts {
			for _, status := range []model.JobStatus{model.JobStatusQueued, model.JobStatusRunning, model.JobStatusDead} {
				r.metrics.SetQueueDepth(string(jobType), string(status), byStatus[status])
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
