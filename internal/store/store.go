// Package store persists extraction files, leads and resolver cache rows.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// ErrNotFound is returned when a file or lead id does not exist.
var ErrNotFound = eris.New("store: not found")

// CacheEntry is one row of the resolver cache. Found=false is the cached
// "not found" sentinel, distinct from a missing row.
type CacheEntry struct {
	Key       string
	Value     string
	Found     bool
	ExpiresAt time.Time
}

// Store defines the persistence interface for the enrichment pipeline.
//
// Lead writes are guarded in SQL so that concurrent or repeated jobs cannot
// violate lead invariants: a domain is only written while empty, executive and
// email fields are only written once a domain exists, and terminal leads only
// leave their state through ResetFailed.
type Store interface {
	// Files
	CreateFile(ctx context.Context, name string, totalLeads int) (*model.File, error)
	GetFile(ctx context.Context, fileID string) (*model.File, error)
	ListFiles(ctx context.Context) ([]model.FileSummary, error)
	FileStats(ctx context.Context, fileID string) (*model.FileStats, error)

	// Leads
	InsertLeads(ctx context.Context, fileID string, leads []model.LeadInput) ([]model.Lead, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, fileID string) ([]model.Lead, error)
	MarkProcessing(ctx context.Context, leadID string) error
	SetDomain(ctx context.Context, leadID, domain string) (bool, error)
	SetExecutive(ctx context.Context, leadID, name string) error
	SetEmail(ctx context.Context, leadID string, email model.EmailResult) error
	CompleteLead(ctx context.Context, leadID string) error
	FailLead(ctx context.Context, leadID, reason string) error
	ResetFailed(ctx context.Context, fileID string) ([]model.Lead, error)

	// Resolver cache
	GetCache(ctx context.Context, key string) (*CacheEntry, error)
	SetCache(ctx context.Context, key, value string, found bool, ttl time.Duration) error
	DeleteExpiredCache(ctx context.Context) (int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns is the column order shared by every lead SELECT.
const leadColumns = `id, file_id, full_name, company, title, location, linkedin_url,
	domain, ceo_name, email, email_pattern, email_status, status, last_error,
	created_at, updated_at, processed_at`

// statsSelect aggregates lead rows into model.FileStats.
const statsSelect = `COUNT(l.id),
	COALESCE(SUM(CASE WHEN l.status = 'completed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN l.status = 'failed' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN l.status = 'pending' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN l.status = 'processing' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN l.ceo_name <> '' THEN 1 ELSE 0 END), 0)`

func newLead(id, fileID string, in model.LeadInput, now time.Time) model.Lead {
	return model.Lead{
		ID:          id,
		FileID:      fileID,
		FullName:    in.FullName,
		Company:     in.Company,
		Title:       in.Title,
		Location:    in.Location,
		LinkedInURL: in.ProfileURL,
		Status:      model.LeadStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
