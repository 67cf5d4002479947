package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/cache"
	"github.com/sells-group/lead-enricher/internal/llm"
	"github.com/sells-group/lead-enricher/internal/metrics"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/queue"
	"github.com/sells-group/lead-enricher/internal/resilience"
	"github.com/sells-group/lead-enricher/internal/resolver"
	"github.com/sells-group/lead-enricher/internal/search"
	"github.com/sells-group/lead-enricher/internal/store"
	"github.com/sells-group/lead-enricher/internal/workflow"
	anthropicpkg "github.com/sells-group/lead-enricher/pkg/anthropic"
	"github.com/sells-group/lead-enricher/pkg/jina"
	"github.com/sells-group/lead-enricher/pkg/perplexity"
	"github.com/sells-group/lead-enricher/pkg/verifier"
)

// migrator is implemented by the durable queue backends.
type migrator interface {
	Migrate(ctx context.Context) error
}

// envOptions selects which parts of the environment a command needs.
type envOptions struct {
	// Providers wires the resolvers and their external API clients.
	Providers bool
	// Starter wires a lead starter (queue enqueuer or Temporal client) so
	// intake can begin enrichment.
	Starter bool
	// Migrate creates store and queue tables on startup.
	Migrate bool
}

// appEnv holds the store, queue, metrics and orchestrator shared by the
// commands.
type appEnv struct {
	Store    store.Store
	Queue    queue.Queue // nil when queue.driver is temporal
	Temporal client.Client
	MemCache *cache.Memory // set only for the memory cache driver
	Registry *prometheus.Registry
	Metrics  *metrics.Collector
	Orch     *pipeline.Orchestrator
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Temporal != nil {
		e.Temporal.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv builds the environment for a command. Callers should defer
// env.Close().
func initEnv(ctx context.Context, opts envOptions) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	env := &appEnv{
		Store:    st,
		Registry: reg,
		Metrics:  metrics.NewCollector(reg, reg),
	}

	if err := initQueue(env); err != nil {
		env.Close()
		return nil, err
	}

	if opts.Migrate {
		if err := migrateAll(ctx, env); err != nil {
			env.Close()
			return nil, err
		}
	}

	deps := pipeline.Deps{Store: st}
	if opts.Providers {
		if err := initResolvers(ctx, env, &deps); err != nil {
			env.Close()
			return nil, err
		}
	}
	if opts.Starter {
		if err := initStarter(env, &deps); err != nil {
			env.Close()
			return nil, err
		}
	}

	env.Orch = pipeline.New(deps, pipeline.Options{
		FindExecutive: cfg.Pipeline.FindExecutive,
		FindEmail:     cfg.Pipeline.FindEmail,
		MaxAttempts:   cfg.Queue.MaxAttempts,
	})
	return env, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initQueue picks the job queue. The store driver keeps jobs in the same
// database as the leads.
func initQueue(env *appEnv) error {
	switch cfg.Queue.Driver {
	case "store":
		switch st := env.Store.(type) {
		case *store.PostgresStore:
			env.Queue = queue.NewPostgres(st.Pool())
		case *store.SQLiteStore:
			env.Queue = queue.NewSQLite(st.DB())
		default:
			return eris.Errorf("queue driver store is not supported by %T", env.Store)
		}
	case "memory":
		zap.L().Warn("memory queue selected, jobs do not survive a restart")
		env.Queue = queue.NewMemory()
	case "temporal":
	default:
		return eris.Errorf("unsupported queue driver: %s", cfg.Queue.Driver)
	}
	return nil
}

func migrateAll(ctx context.Context, env *appEnv) error {
	if err := env.Store.Migrate(ctx); err != nil {
		return eris.Wrap(err, "migrate store")
	}
	if m, ok := env.Queue.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate queue")
		}
	}
	return nil
}

func initStarter(env *appEnv, deps *pipeline.Deps) error {
	if cfg.Queue.Driver != "temporal" {
		enq := queue.NewEnqueuer(env.Queue, cfg.Queue.MaxAttempts, cfg.Queue.JitterMax())
		deps.Queue = enq
		deps.Starter = pipeline.NewQueueStarter(enq)
		return nil
	}

	tc, err := workflow.Dial(cfg.Temporal.HostPort, cfg.Temporal.Namespace)
	if err != nil {
		return err
	}
	env.Temporal = tc
	backoff := resilience.FromBackoffConfig(cfg.Queue.InitialBackoffMs, cfg.Queue.MaxBackoffMs)
	deps.Starter = workflow.NewStarter(tc, workflow.StarterConfig{
		TaskQueue:      cfg.Temporal.TaskQueue,
		MaxAttempts:    cfg.Queue.MaxAttempts,
		InitialBackoff: backoff.Initial,
		MaxBackoff:     backoff.Max,
		StageTimeout:   cfg.Queue.JobTimeout(),
		JitterMax:      cfg.Queue.JitterMax(),
	})
	zap.L().Info("temporal starter enabled",
		zap.String("host_port", cfg.Temporal.HostPort),
		zap.String("task_queue", cfg.Temporal.TaskQueue),
	)
	return nil
}

// initResolvers builds the provider clients, each behind its own guard, and
// the three resolvers.
func initResolvers(ctx context.Context, env *appEnv, deps *pipeline.Deps) error {
	breakers := resilience.NewBreakers(resilience.BreakerConfig{
		OnStateChange: func(name string, from, to resilience.CircuitState) {
			zap.L().Warn("circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	rules := resolver.DefaultRules()
	if cfg.Resolver.RulesPath != "" {
		r, err := resolver.LoadRules(cfg.Resolver.RulesPath)
		if err != nil {
			return eris.Wrap(err, "load resolver rules")
		}
		rules = r
	}

	kv := initCache(env)

	sp, err := initSearch(breakers, env.Metrics)
	if err != nil {
		return err
	}
	deps.Domains = resolver.NewDomainResolver(sp, kv, cfg.Cache.DomainTTL(), rules)

	if cfg.Pipeline.FindExecutive {
		completer, err := initLLM(ctx, breakers, env.Metrics)
		if err != nil {
			return err
		}
		deps.Executives = resolver.NewExecutiveResolver(sp, completer, kv, cfg.Cache.ExecutiveTTL(), rules)
	}

	if cfg.Pipeline.FindEmail {
		vc := verifier.NewClient(cfg.Verifier.Key, verifier.WithBaseURL(cfg.Verifier.BaseURL))
		deps.Emails = resolver.NewEmailResolver(vc,
			resolver.WithVerifyDelay(time.Duration(cfg.Verifier.DelayMs)*time.Millisecond),
			resolver.WithVerifyGuard(newGuard("verifier", cfg.Verifier.RatePerSec, cfg.Verifier.TimeoutSecs, breakers, env.Metrics)),
		)
	}
	return nil
}

func initCache(env *appEnv) cache.Cache {
	switch cfg.Cache.Driver {
	case "memory":
		env.MemCache = cache.NewMemory()
		return cache.New(env.MemCache, cache.WithMetrics(env.Metrics))
	case "none":
		return cache.New(cache.Noop{}, cache.WithMetrics(env.Metrics))
	default:
		return cache.New(cache.NewStoreBackend(env.Store), cache.WithMetrics(env.Metrics))
	}
}

// initSearch builds the configured provider followed by its fallbacks.
func initSearch(breakers *resilience.Breakers, m *metrics.Collector) (search.Provider, error) {
	seen := map[string]bool{}
	var providers []search.Provider
	for _, name := range append([]string{cfg.Search.Provider}, cfg.Search.Fallbacks...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var p search.Provider
		switch name {
		case "jina":
			var opts []jina.Option
			if cfg.Jina.SearchBaseURL != "" {
				opts = append(opts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
			}
			p = search.NewJina(jina.NewClient(cfg.Jina.Key, opts...))
		case "duckduckgo":
			p = search.NewDuckDuckGo()
		case "perplexity":
			p = search.NewPerplexity(newPerplexityClient())
		default:
			return nil, eris.Errorf("unsupported search provider: %s", name)
		}
		providers = append(providers, search.Guarded(p, newGuard(name, cfg.Search.RatePerSec, cfg.Search.TimeoutSecs, breakers, m)))
	}

	if len(providers) == 0 {
		return nil, eris.New("no search provider configured")
	}
	if len(providers) == 1 {
		return providers[0], nil
	}
	zap.L().Info("search fallback chain", zap.Strings("providers", cfg.Search.Fallbacks))
	return search.NewChain(providers...), nil
}

func initLLM(ctx context.Context, breakers *resilience.Breakers, m *metrics.Collector) (llm.Completer, error) {
	var c llm.Completer
	switch cfg.LLM.Provider {
	case "anthropic":
		c = llm.NewAnthropic(anthropicpkg.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model)
	case "gemini":
		g, err := llm.NewGemini(ctx, cfg.Gemini.Key, cfg.Gemini.Model, cfg.Gemini.BaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		c = g
	case "perplexity":
		c = llm.NewPerplexity(newPerplexityClient())
	default:
		return nil, eris.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
	return llm.Guarded(c, newGuard("llm-"+cfg.LLM.Provider, cfg.LLM.RatePerSec, cfg.LLM.TimeoutSecs, breakers, m)), nil
}

func newPerplexityClient() perplexity.Client {
	return perplexity.NewClient(cfg.Perplexity.Key,
		perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		perplexity.WithModel(cfg.Perplexity.Model),
	)
}

func newGuard(name string, ratePerSec float64, timeoutSecs int, breakers *resilience.Breakers, m *metrics.Collector) *resilience.Guard {
	g := resilience.NewGuard(name, ratePerSec, time.Duration(timeoutSecs)*time.Second, breakers)
	g.OnResult = m.RecordProviderCall
	return g
}

// concurrency maps the configured pool sizes to job types.
func concurrency() map[model.JobType]int {
	return map[model.JobType]int{
		model.JobFindDomain:    cfg.Queue.Concurrency.FindDomain,
		model.JobFindExecutive: cfg.Queue.Concurrency.FindExecutive,
		model.JobFindEmail:     cfg.Queue.Concurrency.FindEmail,
	}
}

// newRunner builds the queue runner with a handler for every enabled stage.
func newRunner(env *appEnv) *queue.Runner {
	runner := queue.NewRunner(env.Queue, queue.RunnerConfig{
		Concurrency:   concurrency(),
		PollInterval:  cfg.Queue.PollInterval(),
		Lease:         cfg.Queue.VisibilityTimeout(),
		JobTimeout:    cfg.Queue.JobTimeout(),
		Backoff:       resilience.FromBackoffConfig(cfg.Queue.InitialBackoffMs, cfg.Queue.MaxBackoffMs),
		DepthInterval: 15 * time.Second,
	}, queue.WithExhausted(env.Orch.Exhausted), queue.WithMetrics(env.Metrics))

	table := env.Orch.Table()
	for _, jt := range model.JobTypes {
		if table.Enabled(jt) {
			runner.Handle(jt, env.Orch.Handle)
		}
	}
	return runner
}
