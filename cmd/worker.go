package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enricher/internal/workflow"
)

const (
	maintenanceInterval = 10 * time.Minute
	jobRetention        = 7 * 24 * time.Hour
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the enrichment workers until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		env, err := initEnv(ctx, envOptions{Providers: true, Starter: true, Migrate: true})
		if err != nil {
			return err
		}
		defer env.Close()

		return runWorkers(ctx, env)
	},
}

// runWorkers runs the stage workers for the configured queue driver together
// with the periodic maintenance loop.
func runWorkers(ctx context.Context, env *appEnv) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runMaintenance(gctx, env, maintenanceInterval)
		return nil
	})

	if env.Temporal != nil {
		g.Go(func() error {
			return workflow.RunWorkers(gctx, env.Temporal, workflow.WorkerConfig{
				TaskQueue:   cfg.Temporal.TaskQueue,
				Concurrency: concurrency(),
			}, workflow.NewActivities(env.Orch))
		})
	} else {
		runner := newRunner(env)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	return g.Wait()
}

// runMaintenance expires cache rows and prunes finished jobs every interval.
func runMaintenance(ctx context.Context, env *appEnv, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			maintain(ctx, env)
		}
	}
}

func maintain(ctx context.Context, env *appEnv) {
	log := zap.L().With(zap.String("task", "maintenance"))

	if n, err := env.Store.DeleteExpiredCache(ctx); err != nil {
		log.Warn("delete expired cache rows failed", zap.Error(err))
	} else if n > 0 {
		log.Info("deleted expired cache rows", zap.Int("rows", n))
	}

	if env.MemCache != nil {
		if n := env.MemCache.Sweep(); n > 0 {
			log.Debug("swept memory cache", zap.Int("entries", n))
		}
	}

	if env.Queue != nil {
		if n, err := env.Queue.Prune(ctx, jobRetention); err != nil {
			log.Warn("prune jobs failed", zap.Error(err))
		} else if n > 0 {
			log.Info("pruned finished jobs", zap.Int("jobs", n))
		}
	}
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
