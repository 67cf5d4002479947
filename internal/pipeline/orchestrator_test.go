package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/queue"
	"github.com/sells-group/lead-enricher/internal/resilience"
	"github.com/sells-group/lead-enricher/internal/resolver"
	"github.com/sells-group/lead-enricher/internal/store"
)

type fixture struct {
	store      *store.SQLiteStore
	domains    *mockDomainFinder
	executives *mockExecutiveFinder
	emails     *mockEmailFinder
	queue      *queue.Memory
	orch       *Orchestrator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	f := &fixture{
		store:      st,
		domains:    &mockDomainFinder{},
		executives: &mockExecutiveFinder{},
		emails:     &mockEmailFinder{},
		queue:      queue.NewMemory(),
	}
	t.Cleanup(func() {
		f.domains.AssertExpectations(t)
		f.executives.AssertExpectations(t)
		f.emails.AssertExpectations(t)
	})

	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	f.orch = New(Deps{
		Store:      st,
		Domains:    f.domains,
		Executives: f.executives,
		Emails:     f.emails,
		Queue:      f.queue,
		Starter:    NewQueueStarter(queue.NewEnqueuer(f.queue, opts.MaxAttempts, 0)),
	}, opts)
	return f
}

func (f *fixture) insertLead(t *testing.T, fullName, company string) model.Lead {
	t.Helper()
	ctx := context.Background()
	file, err := f.store.CreateFile(ctx, "test", 1)
	require.NoError(t, err)
	leads, err := f.store.InsertLeads(ctx, file.ID, []model.LeadInput{{FullName: fullName, Company: company}})
	require.NoError(t, err)
	return leads[0]
}

func (f *fixture) lead(t *testing.T, id string) *model.Lead {
	t.Helper()
	l, err := f.store.GetLead(context.Background(), id)
	require.NoError(t, err)
	return l
}

func domainJobFor(l model.Lead) model.Job {
	return queue.NewJob(model.JobFindDomain, l.ID, model.JobPayload{Company: l.Company}, 3)
}

func TestRunStage_DomainFoundEnqueuesExecutive(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")

	f.domains.On("Resolve", mock.Anything, "Acme Corp").
		Return(resolver.DomainResult{Domain: "acme.com", Found: true}, nil).Once()

	job := domainJobFor(l)
	next, err := f.orch.RunStage(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, model.JobFindExecutive, next[0].Type)
	assert.Equal(t, l.ID, next[0].LeadID)
	assert.Equal(t, "acme.com", next[0].Payload.Domain)
	assert.Equal(t, "Acme Corp", next[0].Payload.Company)
	assert.Equal(t, 3, next[0].MaxAttempts)

	got := f.lead(t, l.ID)
	assert.Equal(t, "acme.com", got.Domain)
	assert.Equal(t, model.LeadStatusProcessing, got.Status)
}

func TestRunStage_DomainNotFoundCompletesLead(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Obscure Holdings")

	f.domains.On("Resolve", mock.Anything, "Obscure Holdings").
		Return(resolver.DomainResult{}, nil).Once()

	next, err := f.orch.RunStage(context.Background(), domainJobFor(l))
	require.NoError(t, err)
	assert.Empty(t, next)

	got := f.lead(t, l.ID)
	assert.Equal(t, model.LeadStatusCompleted, got.Status)
	assert.Empty(t, got.Domain)
	assert.Empty(t, got.CEOName)
	assert.NotNil(t, got.ProcessedAt)
}

func TestRunStage_DomainRerunKeepsStoredDomain(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")
	ctx := context.Background()

	f.domains.On("Resolve", mock.Anything, "Acme Corp").
		Return(resolver.DomainResult{Domain: "acme.com", Found: true}, nil).Once()

	job := domainJobFor(l)
	first, err := f.orch.RunStage(ctx, job)
	require.NoError(t, err)

	// Re-delivery of the same job: the provider is not consulted again and
	// the successor keeps the same id.
	job.Attempt = 2
	second, err := f.orch.RunStage(ctx, job)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, "acme.com", f.lead(t, l.ID).Domain)

	// A different resolution cannot overwrite a stored domain.
	written, err := f.store.SetDomain(ctx, l.ID, "acme-corp.net")
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, "acme.com", f.lead(t, l.ID).Domain)
}

func TestRunStage_ExecutiveFoundEnqueuesEmail(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")
	ctx := context.Background()
	_, err := f.store.SetDomain(ctx, l.ID, "acme.com")
	require.NoError(t, err)

	f.executives.On("Resolve", mock.Anything, "Acme Corp", "acme.com").
		Return(resolver.ExecutiveResult{Name: "John Smith", Found: true}, nil).Once()

	job := queue.NewJob(model.JobFindExecutive, l.ID, model.JobPayload{Company: "Acme Corp", Domain: "acme.com"}, 3)
	next, err := f.orch.RunStage(ctx, job)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, model.JobFindEmail, next[0].Type)
	assert.Equal(t, "John", next[0].Payload.FirstName)
	assert.Equal(t, "Smith", next[0].Payload.LastName)
	assert.Equal(t, "John Smith", f.lead(t, l.ID).CEOName)
}

func TestRunStage_EmailUsesLeadNameWithoutExecutiveStage(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: false, FindEmail: true})
	l := f.insertLead(t, "Dr. Jane Doe, MBA", "Acme Corp")
	ctx := context.Background()

	f.domains.On("Resolve", mock.Anything, "Acme Corp").
		Return(resolver.DomainResult{Domain: "acme.com", Found: true}, nil).Once()
	f.emails.On("Resolve", mock.Anything, "Jane", "Doe", "acme.com").
		Return(resolver.EmailResult{
			EmailResult: model.EmailResult{Email: "jdoe@acme.com", Pattern: "flast", Status: "valid", Confidence: 0.9},
			Found:       true,
		}, nil).Once()

	next, err := f.orch.RunStage(ctx, domainJobFor(l))
	require.NoError(t, err)
	require.Len(t, next, 1)
	require.Equal(t, model.JobFindEmail, next[0].Type)

	next, err = f.orch.RunStage(ctx, next[0])
	require.NoError(t, err)
	assert.Empty(t, next)

	got := f.lead(t, l.ID)
	assert.Equal(t, "jdoe@acme.com", got.Email)
	assert.True(t, got.EmailVerified())
	assert.Equal(t, model.LeadStatusCompleted, got.Status)
}

func TestRunStage_ProviderErrorIsRetryable(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")

	f.domains.On("Resolve", mock.Anything, "Acme Corp").
		Return(resolver.DomainResult{}, resilience.NewTransientError(errors.New("search: status 503"), 503)).Once()

	_, err := f.orch.RunStage(context.Background(), domainJobFor(l))
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.False(t, queue.IsPermanent(err))

	got := f.lead(t, l.ID)
	assert.Equal(t, model.LeadStatusProcessing, got.Status, "lead is not failed until attempts run out")
}

func TestRunStage_MissingLeadIsPermanent(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})

	job := queue.NewJob(model.JobFindDomain, "no-such-lead", model.JobPayload{Company: "Acme Corp"}, 3)
	_, err := f.orch.RunStage(context.Background(), job)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestRunStage_TerminalLeadIsSkipped(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")
	require.NoError(t, f.store.CompleteLead(context.Background(), l.ID))

	next, err := f.orch.RunStage(context.Background(), domainJobFor(l))
	require.NoError(t, err)
	assert.Empty(t, next)
	f.domains.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
}

func TestRunStage_DisabledStageIsPermanent(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: false, FindEmail: false})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")

	assert.False(t, f.orch.Table().Enabled(model.JobFindEmail))

	job := queue.NewJob(model.JobFindEmail, l.ID, model.JobPayload{Domain: "acme.com"}, 3)
	var err error
	require.NotPanics(t, func() { _, err = f.orch.RunStage(context.Background(), job) })
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	got, err := f.store.GetLead(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusPending, got.Status, "disabled stage never touches the lead")
}

func TestHandle_EnqueuesSuccessorOnce(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")
	ctx := context.Background()

	f.domains.On("Resolve", mock.Anything, "Acme Corp").
		Return(resolver.DomainResult{Domain: "acme.com", Found: true}, nil).Once()

	job := domainJobFor(l)
	require.NoError(t, f.orch.Handle(ctx, job))
	require.NoError(t, f.orch.Handle(ctx, job))

	counts, err := f.queue.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.JobFindExecutive][model.JobStatusQueued])
}

func TestExhausted_FailsLead(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")

	f.orch.Exhausted(context.Background(), domainJobFor(l), errors.New("search: status 503"))

	got := f.lead(t, l.ID)
	assert.Equal(t, model.LeadStatusFailed, got.Status)
	assert.Equal(t, "find-domain: search: status 503", got.LastError)
}

func TestIntake_CreatesFileAndStartsLeads(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	ctx := context.Background()

	resp, err := f.orch.Intake(ctx, ExtractRequest{
		FileName: "Austin founders",
		Leads: []model.LeadInput{
			{FullName: "Jane Doe", Company: "Acme Corp"},
			{FullName: "  John   Roe ", Company: "Beta LLC"},
			{FullName: "", Company: "No Name Inc"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.InsertedCount)
	assert.Equal(t, 2, resp.TotalLeads)
	assert.NotEmpty(t, resp.FileID)

	file, err := f.store.GetFile(ctx, resp.FileID)
	require.NoError(t, err)
	assert.Equal(t, "Austin founders", file.Name)

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, model.JobFindDomain, j.Type)
		assert.Equal(t, 3, j.MaxAttempts)
	}

	// Appending to the same file grows its total.
	resp2, err := f.orch.Intake(ctx, ExtractRequest{
		FileID: resp.FileID,
		Leads:  []model.LeadInput{{FullName: "Ana Ruiz", Company: "Gamma Inc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp2.InsertedCount)
	assert.Equal(t, 3, resp2.TotalLeads)
	assert.Equal(t, resp.FileID, resp2.FileID)
}

func TestIntake_UnknownFile(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})

	_, err := f.orch.Intake(context.Background(), ExtractRequest{
		FileID: "missing",
		Leads:  []model.LeadInput{{FullName: "Jane Doe", Company: "Acme Corp"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestIntake_NoValidLeads(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})

	_, err := f.orch.Intake(context.Background(), ExtractRequest{
		Leads: []model.LeadInput{{FullName: "Jane Doe"}},
	})
	assert.True(t, errors.Is(err, ErrNoLeads))
}

func TestIntake_StarterFailure(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	starter := &mockStarter{}
	starter.On("Start", mock.Anything, mock.Anything).Return(errors.New("temporal: unavailable")).Once()
	f.orch.SetStarter(starter)

	_, err := f.orch.Intake(context.Background(), ExtractRequest{
		Leads: []model.LeadInput{{FullName: "Jane Doe", Company: "Acme Corp"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: start leads")
	starter.AssertExpectations(t)
}

func TestRetryFailed(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")
	ctx := context.Background()
	require.NoError(t, f.store.FailLead(ctx, l.ID, "find-domain: timeout"))

	n, err := f.orch.RetryFailed(ctx, l.FileID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.LeadStatusPending, f.lead(t, l.ID).Status)

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, l.ID, jobs[0].LeadID)
}

func TestEnrichNow_FailureMarksLeadFailed(t *testing.T) {
	f := newFixture(t, Options{FindExecutive: true, FindEmail: true})
	l := f.insertLead(t, "Jane Doe", "Acme Corp")

	f.domains.On("Resolve", mock.Anything, "Acme Corp").
		Return(resolver.DomainResult{}, errors.New("search: connection reset")).Once()

	_, err := f.orch.EnrichNow(context.Background(), l.ID)
	require.Error(t, err)

	got := f.lead(t, l.ID)
	assert.Equal(t, model.LeadStatusFailed, got.Status)
	assert.Contains(t, got.LastError, "connection reset")
}
