package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/cache"
	"github.com/sells-group/lead-enricher/internal/config"
	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/pipeline"
	"github.com/sells-group/lead-enricher/internal/queue"
	"github.com/sells-group/lead-enricher/internal/resilience"
	"github.com/sells-group/lead-enricher/internal/search"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "leads.db")},
		Queue: config.QueueConfig{
			Driver:                "store",
			PollIntervalMs:        10,
			VisibilityTimeoutSecs: 60,
			MaxAttempts:           3,
			JobTimeoutSecs:        5,
			Concurrency:           config.ConcurrencyConfig{FindDomain: 2, FindExecutive: 1, FindEmail: 1},
		},
		Cache:    config.CacheConfig{Driver: "memory", DomainTTLHours: 168, ExecutiveTTLHours: 24},
		Search:   config.SearchConfig{Provider: "duckduckgo", Fallbacks: []string{"duckduckgo"}, TimeoutSecs: 5, RatePerSec: 10},
		LLM:      config.LLMConfig{Provider: "perplexity", TimeoutSecs: 5, RatePerSec: 1},
		Verifier: config.VerifierConfig{Key: "k", BaseURL: "http://127.0.0.1:1", TimeoutSecs: 5},
		Pipeline: config.PipelineConfig{FindExecutive: true, FindEmail: true},
	}
}

func TestInitEnv_SQLiteStoreQueue(t *testing.T) {
	cfg = testConfig(t)
	ctx := context.Background()

	env, err := initEnv(ctx, envOptions{Starter: true, Migrate: true})
	require.NoError(t, err)
	defer env.Close()

	_, ok := env.Queue.(*queue.SQLite)
	assert.True(t, ok, "store driver on sqlite uses the sqlite queue")
	assert.Nil(t, env.Temporal)

	resp, err := env.Orch.Intake(ctx, pipeline.ExtractRequest{
		Leads: []model.LeadInput{{FullName: "Jane Doe", Company: "Acme Corp"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.InsertedCount)

	counts, err := env.Queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobFindDomain][model.JobStatusQueued])
}

func TestInitEnv_ProvidersWireEveryStage(t *testing.T) {
	cfg = testConfig(t)

	env, err := initEnv(context.Background(), envOptions{Providers: true, Starter: true, Migrate: true})
	require.NoError(t, err)
	defer env.Close()

	table := env.Orch.Table()
	for _, jt := range model.JobTypes {
		assert.True(t, table.Enabled(jt), "%s should be enabled", jt)
	}
	assert.NotNil(t, env.MemCache, "memory cache driver keeps a handle for sweeping")
	assert.NotNil(t, newRunner(env))
}

func TestInitEnv_DisabledStages(t *testing.T) {
	cfg = testConfig(t)
	cfg.Pipeline = config.PipelineConfig{}

	env, err := initEnv(context.Background(), envOptions{Providers: true, Migrate: true})
	require.NoError(t, err)
	defer env.Close()

	table := env.Orch.Table()
	assert.True(t, table.Enabled(model.JobFindDomain))
	assert.False(t, table.Enabled(model.JobFindExecutive))
	assert.False(t, table.Enabled(model.JobFindEmail))
}

func TestInitEnv_UnsupportedDrivers(t *testing.T) {
	cfg = testConfig(t)
	cfg.Store.Driver = "mysql"
	_, err := initEnv(context.Background(), envOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")

	cfg = testConfig(t)
	cfg.Queue.Driver = "kafka"
	_, err = initEnv(context.Background(), envOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported queue driver")
}

func TestInitSearch(t *testing.T) {
	cfg = testConfig(t)
	breakers := resilience.NewBreakers(resilience.BreakerConfig{})

	p, err := initSearch(breakers, nil)
	require.NoError(t, err)
	assert.Equal(t, "duckduckgo", p.Name(), "duplicate fallback is skipped")

	cfg.Search.Fallbacks = []string{"perplexity"}
	p, err = initSearch(breakers, nil)
	require.NoError(t, err)
	_, isChain := p.(*search.Chain)
	assert.True(t, isChain)

	cfg.Search.Provider = "bing"
	_, err = initSearch(breakers, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported search provider: bing")
}

func TestInitLLM_Unsupported(t *testing.T) {
	cfg = testConfig(t)
	cfg.LLM.Provider = "llama"
	_, err := initLLM(context.Background(), resilience.NewBreakers(resilience.BreakerConfig{}), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported llm provider")
}

func TestMaintain(t *testing.T) {
	cfg = testConfig(t)
	cfg.Queue.Driver = "memory"
	ctx := context.Background()

	env, err := initEnv(ctx, envOptions{Providers: true, Migrate: true})
	require.NoError(t, err)
	defer env.Close()

	require.NoError(t, env.Store.SetCache(ctx, "domain:stale", "", false, -time.Minute))
	require.NoError(t, env.MemCache.Set(ctx, "domain:stale", cache.NotFound(), -time.Minute))

	mem := env.Queue.(*queue.Memory)
	job := queue.NewJob(model.JobFindDomain, "l1", model.JobPayload{Company: "Acme"}, 1)
	require.NoError(t, mem.Enqueue(ctx, job))

	maintain(ctx, env)

	entry, err := env.Store.GetCache(ctx, "domain:stale")
	assert.True(t, entry == nil || err != nil, "expired row deleted")
	_, found, err := env.MemCache.Get(ctx, "domain:stale")
	require.NoError(t, err)
	assert.False(t, found)

	_, ok := mem.Get(job.ID)
	assert.True(t, ok, "queued jobs are never pruned")
}

func TestPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	counts := model.JobCounts{
		model.JobFindDomain: {model.JobStatusSucceeded: 2},
		model.JobFindEmail:  {model.JobStatusDead: 1},
	}
	err := printStatus(&buf, []model.FileSummary{{
		File:  model.File{ID: "f1", Name: "Demo"},
		Stats: model.FileStats{CurrentTotal: 2, Completed: 1, Failed: 1, WithCEO: 1},
	}}, counts)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "f1")
	assert.Contains(t, out, "Demo")
	assert.Contains(t, out, "find-email")
	assert.Contains(t, out, "WITH CEO")
}
