// Package pipeline advances leads through the enrichment stages. The
// Orchestrator runs one stage per job and decides the next step from the
// transition table; queue workers or Temporal activities call into it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/queue"
	"github.com/sells-group/lead-enricher/internal/resolver"
	"github.com/sells-group/lead-enricher/internal/store"
)

// DomainFinder resolves a company's website domain.
type DomainFinder interface {
	Resolve(ctx context.Context, company string) (resolver.DomainResult, error)
}

// ExecutiveFinder resolves the top executive's name for a company.
type ExecutiveFinder interface {
	Resolve(ctx context.Context, company, domain string) (resolver.ExecutiveResult, error)
}

// EmailFinder finds a verified email address for a person at a domain.
type EmailFinder interface {
	Resolve(ctx context.Context, firstName, lastName, domain string) (resolver.EmailResult, error)
}

// Enqueuer stores successor jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobs ...model.Job) error
}

// LeadStarter begins enrichment for newly inserted or reset leads.
type LeadStarter interface {
	Start(ctx context.Context, leads []model.Lead) error
}

// Deps are the collaborators of an Orchestrator. Executives and Emails may
// be nil when the matching stage is disabled.
type Deps struct {
	Store      store.Store
	Domains    DomainFinder
	Executives ExecutiveFinder
	Emails     EmailFinder
	Queue      Enqueuer
	Starter    LeadStarter
}

// Options toggles the optional stages.
type Options struct {
	FindExecutive bool
	FindEmail     bool
	MaxAttempts   int
}

// Orchestrator holds everything a stage needs. It keeps no per-lead state,
// so any number of workers can share one instance.
type Orchestrator struct {
	store       store.Store
	domains     DomainFinder
	executives  ExecutiveFinder
	emails      EmailFinder
	queue       Enqueuer
	starter     LeadStarter
	table       Table
	maxAttempts int
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	findExecutive := opts.FindExecutive && deps.Executives != nil
	findEmail := opts.FindEmail && deps.Emails != nil
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Orchestrator{
		store:       deps.Store,
		domains:     deps.Domains,
		executives:  deps.Executives,
		emails:      deps.Emails,
		queue:       deps.Queue,
		starter:     deps.Starter,
		table:       NewTable(findExecutive, findEmail),
		maxAttempts: opts.MaxAttempts,
	}
}

// SetStarter replaces the starter used by Intake and RetryFailed.
func (o *Orchestrator) SetStarter(s LeadStarter) {
	o.starter = s
}

// Table returns the transition table in effect.
func (o *Orchestrator) Table() Table {
	return o.table
}

// RunStage executes the job's stage against its lead, writes the result and
// returns the successor job, if any. Re-running a job is safe: a stage whose
// result is already stored reuses it instead of calling the provider again.
func (o *Orchestrator) RunStage(ctx context.Context, job model.Job) ([]model.Job, error) {
	log := zap.L().With(
		zap.String("lead_id", job.LeadID),
		zap.String("stage", string(job.Type)),
		zap.Int("attempt", job.Attempt),
	)

	lead, err := o.store.GetLead(ctx, job.LeadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, queue.Permanent(eris.Wrapf(err, "pipeline: lead %s", job.LeadID))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load lead %s", job.LeadID)
	}
	if lead.Status.Terminal() {
		log.Debug("pipeline: lead already terminal, skipping", zap.String("status", string(lead.Status)))
		return nil, nil
	}
	if !o.table.Enabled(job.Type) {
		return nil, queue.Permanent(eris.Errorf("pipeline: stage %s is not enabled", job.Type))
	}

	if err := o.store.MarkProcessing(ctx, lead.ID); err != nil {
		log.Error("pipeline: mark processing failed", zap.Error(err))
		return nil, eris.Wrap(err, "pipeline: mark processing")
	}

	var (
		outcome Outcome
		payload model.JobPayload
	)
	switch job.Type {
	case model.JobFindDomain:
		outcome, payload, err = o.runDomain(ctx, lead, job.Payload)
	case model.JobFindExecutive:
		outcome, payload, err = o.runExecutive(ctx, lead, job.Payload)
	case model.JobFindEmail:
		outcome, payload, err = o.runEmail(ctx, lead, job.Payload)
	default:
		return nil, queue.Permanent(eris.Errorf("pipeline: unknown job type %q", job.Type))
	}
	if err != nil {
		return nil, err
	}

	act, err := o.table.Next(job.Type, outcome)
	if err != nil {
		return nil, queue.Permanent(err)
	}
	log.Info("pipeline: stage done",
		zap.String("outcome", string(outcome)),
		zap.String("next", string(act.Next)),
		zap.Bool("terminal", act.Terminal),
	)

	if act.Terminal {
		if err := o.store.CompleteLead(ctx, lead.ID); err != nil {
			log.Error("pipeline: complete lead failed", zap.Error(err))
			return nil, eris.Wrap(err, "pipeline: complete lead")
		}
		return nil, nil
	}
	return []model.Job{o.successor(job, act.Next, payload)}, nil
}

// successor derives the next job's id from its predecessor so that a
// re-delivered job enqueues the same successor instead of a duplicate.
func (o *Orchestrator) successor(prev model.Job, next model.JobType, payload model.JobPayload) model.Job {
	maxAttempts := prev.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = o.maxAttempts
	}
	j := queue.NewJob(next, prev.LeadID, payload, maxAttempts)
	j.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(prev.ID+"/"+string(next))).String()
	return j
}

func (o *Orchestrator) runDomain(ctx context.Context, lead *model.Lead, in model.JobPayload) (Outcome, model.JobPayload, error) {
	company := firstNonEmpty(in.Company, lead.Company)
	domain := lead.Domain

	if domain == "" {
		res, err := o.domains.Resolve(ctx, company)
		if err != nil {
			return "", in, err
		}
		if !res.Found {
			return OutcomeNotFound, in, nil
		}
		written, err := o.store.SetDomain(ctx, lead.ID, res.Domain)
		if err != nil {
			zap.L().Error("pipeline: write domain failed", zap.String("lead_id", lead.ID), zap.Error(err))
			return "", in, eris.Wrap(err, "pipeline: set domain")
		}
		domain = res.Domain
		if !written {
			// Another delivery stored a domain first; keep what is stored.
			stored, err := o.store.GetLead(ctx, lead.ID)
			if err != nil {
				return "", in, eris.Wrap(err, "pipeline: reload lead")
			}
			domain = stored.Domain
		}
	}

	out := model.JobPayload{Company: company, Domain: domain}
	out.FirstName, out.LastName = model.SplitName(lead.FullName)
	return OutcomeFound, out, nil
}

func (o *Orchestrator) runExecutive(ctx context.Context, lead *model.Lead, in model.JobPayload) (Outcome, model.JobPayload, error) {
	company := firstNonEmpty(in.Company, lead.Company)
	domain := firstNonEmpty(lead.Domain, in.Domain)
	if domain == "" {
		return OutcomeNotFound, in, nil
	}

	name := lead.CEOName
	if name == "" {
		res, err := o.executives.Resolve(ctx, company, domain)
		if err != nil {
			return "", in, err
		}
		if !res.Found {
			return OutcomeNotFound, in, nil
		}
		if err := o.store.SetExecutive(ctx, lead.ID, res.Name); err != nil {
			zap.L().Error("pipeline: write executive failed", zap.String("lead_id", lead.ID), zap.Error(err))
			return "", in, eris.Wrap(err, "pipeline: set executive")
		}
		name = res.Name
	}

	out := model.JobPayload{Company: company, Domain: domain}
	out.FirstName, out.LastName = model.SplitName(name)
	return OutcomeFound, out, nil
}

func (o *Orchestrator) runEmail(ctx context.Context, lead *model.Lead, in model.JobPayload) (Outcome, model.JobPayload, error) {
	domain := firstNonEmpty(lead.Domain, in.Domain)
	if domain == "" {
		return OutcomeNotFound, in, nil
	}
	if lead.Email != "" {
		return OutcomeFound, in, nil
	}

	first, last := in.FirstName, in.LastName
	if first == "" {
		first, last = model.SplitName(firstNonEmpty(lead.CEOName, lead.FullName))
	}

	res, err := o.emails.Resolve(ctx, first, last, domain)
	if err != nil {
		return "", in, err
	}
	if !res.Found {
		return OutcomeNotFound, in, nil
	}
	if err := o.store.SetEmail(ctx, lead.ID, res.EmailResult); err != nil {
		zap.L().Error("pipeline: write email failed", zap.String("lead_id", lead.ID), zap.Error(err))
		return "", in, eris.Wrap(err, "pipeline: set email")
	}
	return OutcomeFound, in, nil
}

// Handle is the queue handler: it runs the stage and enqueues the successor.
func (o *Orchestrator) Handle(ctx context.Context, job model.Job) error {
	next, err := o.RunStage(ctx, job)
	if err != nil {
		return err
	}
	if len(next) == 0 {
		return nil
	}
	if err := o.queue.Enqueue(ctx, next...); err != nil {
		return eris.Wrapf(err, "pipeline: enqueue %s", next[0].Type)
	}
	return nil
}

// Exhausted marks the lead failed once its job has no attempts left.
func (o *Orchestrator) Exhausted(ctx context.Context, job model.Job, cause error) {
	reason := fmt.Sprintf("%s: %v", job.Type, cause)
	if err := o.store.FailLead(ctx, job.LeadID, reason); err != nil {
		zap.L().Error("pipeline: mark lead failed",
			zap.String("lead_id", job.LeadID),
			zap.String("stage", string(job.Type)),
			zap.Error(err),
		)
		return
	}
	zap.L().Warn("pipeline: lead failed",
		zap.String("lead_id", job.LeadID),
		zap.String("stage", string(job.Type)),
		zap.Error(cause),
	)
}

// EnrichNow runs every stage for one lead in the calling goroutine, without
// a queue, and returns the stored lead. A stage error fails the lead.
func (o *Orchestrator) EnrichNow(ctx context.Context, leadID string) (*model.Lead, error) {
	lead, err := o.store.GetLead(ctx, leadID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load lead %s", leadID)
	}

	job := queue.NewJob(model.JobFindDomain, lead.ID, model.JobPayload{Company: lead.Company}, 1)
	for {
		job.Attempt = 1
		next, err := o.RunStage(ctx, job)
		if err != nil {
			o.Exhausted(ctx, job, err)
			return nil, err
		}
		if len(next) == 0 {
			break
		}
		job = next[0]
	}
	return o.store.GetLead(ctx, leadID)
}

// ExtractRequest is the intake payload sent by the browser extension.
type ExtractRequest struct {
	Leads    []model.LeadInput `json:"leads"`
	FileID   string            `json:"fileId,omitempty"`
	FileName string            `json:"fileName,omitempty"`
	UserID   string            `json:"userId,omitempty"`
}

// ExtractResponse reports what Intake stored.
type ExtractResponse struct {
	InsertedCount int    `json:"insertedCount"`
	TotalLeads    int    `json:"totalLeads"`
	FileID        string `json:"fileId"`
}

// ErrNoLeads is returned by Intake when no submitted lead has a name and company.
var ErrNoLeads = eris.New("pipeline: no valid leads")

// Intake stores submitted leads under a file (created when FileID is empty)
// and starts enrichment for each. Leads missing a name or company are dropped.
func (o *Orchestrator) Intake(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	inputs := make([]model.LeadInput, 0, len(req.Leads))
	for _, in := range req.Leads {
		in = in.Normalize()
		if in.Valid() {
			inputs = append(inputs, in)
		}
	}
	if len(inputs) == 0 {
		return nil, ErrNoLeads
	}

	fileID := strings.TrimSpace(req.FileID)
	if fileID != "" {
		if _, err := o.store.GetFile(ctx, fileID); err != nil {
			return nil, eris.Wrapf(err, "pipeline: file %s", fileID)
		}
	} else {
		name := strings.TrimSpace(req.FileName)
		if name == "" {
			name = "Extraction " + time.Now().UTC().Format("2006-01-02 15:04")
		}
		f, err := o.store.CreateFile(ctx, name, len(inputs))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create file")
		}
		fileID = f.ID
	}

	leads, err := o.store.InsertLeads(ctx, fileID, inputs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: insert leads")
	}
	if err := o.start(ctx, leads); err != nil {
		return nil, err
	}

	stats, err := o.store.FileStats(ctx, fileID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: file stats")
	}

	zap.L().Info("pipeline: intake",
		zap.String("file_id", fileID),
		zap.String("user_id", req.UserID),
		zap.Int("submitted", len(req.Leads)),
		zap.Int("inserted", len(leads)),
	)
	return &ExtractResponse{InsertedCount: len(leads), TotalLeads: stats.CurrentTotal, FileID: fileID}, nil
}

// RetryFailed resets a file's failed leads to pending and starts them again.
func (o *Orchestrator) RetryFailed(ctx context.Context, fileID string) (int, error) {
	leads, err := o.store.ResetFailed(ctx, fileID)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: reset failed leads of %s", fileID)
	}
	if err := o.start(ctx, leads); err != nil {
		return 0, err
	}
	return len(leads), nil
}

func (o *Orchestrator) start(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	if o.starter == nil {
		return eris.New("pipeline: no lead starter configured")
	}
	if err := o.starter.Start(ctx, leads); err != nil {
		return eris.Wrap(err, "pipeline: start leads")
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
