package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/store"
)

func newTestSQLiteQueue(t *testing.T) *SQLite {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := NewSQLite(st.DB())
	require.NoError(t, q.Migrate(context.Background()))
	return q
}

func TestSQLiteQueue_Lifecycle(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := NewJob(model.JobFindDomain, "lead-1", model.JobPayload{Company: "Acme Corp"}, 3)
	job.RunAt = time.Now().UTC().Add(-time.Second)
	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.Claim(ctx, model.JobFindDomain, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, "lead-1", claimed.LeadID)
	assert.Equal(t, "Acme Corp", claimed.Payload.Company)
	assert.Equal(t, model.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempt)
	assert.Equal(t, 3, claimed.MaxAttempts)

	again, err := q.Claim(ctx, model.JobFindDomain, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "leased job is not delivered twice")

	require.NoError(t, q.Retry(ctx, job.ID, time.Now().UTC().Add(-time.Millisecond), "search: status 502"))

	retried, err := q.Claim(ctx, model.JobFindDomain, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, retried)
	assert.Equal(t, 2, retried.Attempt)
	assert.Equal(t, "search: status 502", retried.LastError)

	require.NoError(t, q.Complete(ctx, job.ID))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobFindDomain][model.JobStatusSucceeded])
	assert.Equal(t, 0, counts[model.JobFindDomain][model.JobStatusQueued])
}

func TestSQLiteQueue_FutureJobWaits(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := NewJob(model.JobFindEmail, "lead-1", model.JobPayload{Domain: "acme.com"}, 3)
	job.RunAt = time.Now().UTC().Add(time.Hour)
	require.NoError(t, q.Enqueue(ctx, job))

	j, err := q.Claim(ctx, model.JobFindEmail, time.Minute)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestSQLiteQueue_ExpiredLeaseRedelivered(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := NewJob(model.JobFindExecutive, "lead-1", model.JobPayload{Domain: "acme.com"}, 3)
	job.RunAt = time.Now().UTC().Add(-time.Second)
	require.NoError(t, q.Enqueue(ctx, job))

	// A negative lease expires immediately, as if the worker had crashed.
	first, err := q.Claim(ctx, model.JobFindExecutive, -time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := q.Claim(ctx, model.JobFindExecutive, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempt)
}

func TestSQLiteQueue_EnqueueDuplicateIgnored(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := NewJob(model.JobFindDomain, "lead-1", model.JobPayload{Company: "Acme Corp"}, 3)
	require.NoError(t, q.Enqueue(ctx, job, job))
	require.NoError(t, q.Enqueue(ctx, job))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobFindDomain][model.JobStatusQueued])
}

func TestSQLiteQueue_BuryAndPrune(t *testing.T) {
	q := newTestSQLiteQueue(t)
	ctx := context.Background()

	job := NewJob(model.JobFindDomain, "lead-1", model.JobPayload{Company: "Acme Corp"}, 1)
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Bury(ctx, job.ID, "lead not found"))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobFindDomain][model.JobStatusDead])

	n, err := q.Prune(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = q.Prune(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteQueue_UnknownJob(t *testing.T) {
	q := newTestSQLiteQueue(t)

	err := q.Bury(context.Background(), "missing", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}
