package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/db"
	"github.com/sells-group/lead-enricher/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the statements every job runs.
var preparedStatements = map[string]string{
	"get_lead":         `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`,
	"get_cache":        `SELECT key, value, found, expires_at FROM resolver_cache WHERE key = $1 AND expires_at > now()`,
	"mark_processing":  `UPDATE leads SET status = 'processing', updated_at = $2 WHERE id = $1 AND status IN ('pending', 'processing')`,
	"set_lead_domain":  `UPDATE leads SET domain = $2, updated_at = $3 WHERE id = $1 AND domain = ''`,
	"delete_exp_cache": `DELETE FROM resolver_cache WHERE expires_at <= now()`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller owns its lifetime.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool so the durable job queue can
// share connections with the store.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_files (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	total_leads INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS leads (
	id            TEXT PRIMARY KEY,
	file_id       TEXT NOT NULL REFERENCES extraction_files(id) ON DELETE CASCADE,
	full_name     TEXT NOT NULL,
	company       TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	linkedin_url  TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	ceo_name      TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL DEFAULT '',
	email_pattern TEXT NOT NULL DEFAULT '',
	email_status  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'pending',
	last_error    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_leads_file_id ON leads(file_id);
CREATE INDEX IF NOT EXISTS idx_leads_file_status ON leads(file_id, status);

CREATE TABLE IF NOT EXISTS resolver_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	found      BOOLEAN NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolver_cache_expires_at ON resolver_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Files ---

func (s *PostgresStore) CreateFile(ctx context.Context, name string, totalLeads int) (*model.File, error) {
	f := &model.File{
		ID:         uuid.New().String(),
		Name:       name,
		TotalLeads: totalLeads,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_files (id, name, total_leads, created_at) VALUES ($1, $2, $3, $4)`,
		f.ID, f.Name, f.TotalLeads, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert file")
	}
	return f, nil
}

func (s *PostgresStore) GetFile(ctx context.Context, fileID string) (*model.File, error) {
	var f model.File
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, total_leads, created_at FROM extraction_files WHERE id = $1`,
		fileID,
	).Scan(&f.ID, &f.Name, &f.TotalLeads, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: file %s", fileID)
		}
		return nil, eris.Wrapf(err, "postgres: get file %s", fileID)
	}
	return &f, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context) ([]model.FileSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.name, f.total_leads, f.created_at, `+statsSelect+`
		 FROM extraction_files f LEFT JOIN leads l ON l.file_id = f.id
		 GROUP BY f.id, f.name, f.total_leads, f.created_at
		 ORDER BY f.created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list files")
	}
	defer rows.Close()

	var files []model.FileSummary
	for rows.Next() {
		var fs model.FileSummary
		st := &fs.Stats
		if err := rows.Scan(&fs.ID, &fs.Name, &fs.TotalLeads, &fs.CreatedAt,
			&st.CurrentTotal, &st.Completed, &st.Failed, &st.Pending, &st.Processing, &st.WithCEO); err != nil {
			return nil, eris.Wrap(err, "postgres: scan file")
		}
		files = append(files, fs)
	}
	return files, eris.Wrap(rows.Err(), "postgres: list files iterate")
}

func (s *PostgresStore) FileStats(ctx context.Context, fileID string) (*model.FileStats, error) {
	var st model.FileStats
	err := s.pool.QueryRow(ctx,
		`SELECT `+statsSelect+` FROM leads l WHERE l.file_id = $1`,
		fileID,
	).Scan(&st.CurrentTotal, &st.Completed, &st.Failed, &st.Pending, &st.Processing, &st.WithCEO)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: file stats %s", fileID)
	}
	return &st, nil
}

// --- Leads ---

var leadInsertColumns = []string{
	"id", "file_id", "full_name", "company", "title", "location", "linkedin_url",
	"status", "created_at", "updated_at",
}

func (s *PostgresStore) InsertLeads(ctx context.Context, fileID string, inputs []model.LeadInput) ([]model.Lead, error) {
	now := time.Now().UTC()
	leads := make([]model.Lead, 0, len(inputs))
	rows := make([][]any, 0, len(inputs))
	for _, in := range inputs {
		l := newLead(uuid.New().String(), fileID, in, now)
		leads = append(leads, l)
		rows = append(rows, []any{
			l.ID, l.FileID, l.FullName, l.Company, l.Title, l.Location, l.LinkedInURL,
			string(l.Status), l.CreatedAt, l.UpdatedAt,
		})
	}

	if _, err := db.CopyFrom(ctx, s.pool, "leads", leadInsertColumns, rows); err != nil {
		return nil, eris.Wrapf(err, "postgres: insert leads for file %s", fileID)
	}
	return leads, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	l, err := scanLead(s.pool.QueryRow(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`,
		leadID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: lead %s", leadID)
		}
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, fileID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE file_id = $1 ORDER BY created_at, id`,
		fileID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list leads for file %s", fileID)
	}
	return collectLeads(rows)
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, leadID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'processing', updated_at = $2
		 WHERE id = $1 AND status IN ('pending', 'processing')`,
		leadID, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: mark processing %s", leadID)
}

func (s *PostgresStore) SetDomain(ctx context.Context, leadID, domain string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET domain = $2, updated_at = $3 WHERE id = $1 AND domain = ''`,
		leadID, domain, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: set domain %s", leadID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetExecutive(ctx context.Context, leadID, name string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET ceo_name = $2, updated_at = $3 WHERE id = $1 AND domain <> ''`,
		leadID, name, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set executive %s", leadID)
}

func (s *PostgresStore) SetEmail(ctx context.Context, leadID string, email model.EmailResult) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET email = $2, email_pattern = $3, email_status = $4, updated_at = $5
		 WHERE id = $1 AND domain <> ''`,
		leadID, email.Email, email.Pattern, email.Status, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set email %s", leadID)
}

func (s *PostgresStore) CompleteLead(ctx context.Context, leadID string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'completed', last_error = '', processed_at = $2, updated_at = $2
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		leadID, now,
	)
	return eris.Wrapf(err, "postgres: complete lead %s", leadID)
}

func (s *PostgresStore) FailLead(ctx context.Context, leadID, reason string) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'failed', last_error = $2, processed_at = $3, updated_at = $3
		 WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		leadID, reason, now,
	)
	return eris.Wrapf(err, "postgres: fail lead %s", leadID)
}

func (s *PostgresStore) ResetFailed(ctx context.Context, fileID string) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE leads SET status = 'pending', last_error = '', processed_at = NULL, updated_at = $2
		 WHERE file_id = $1 AND status = 'failed'
		 RETURNING `+leadColumns,
		fileID, time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: reset failed leads for file %s", fileID)
	}
	return collectLeads(rows)
}

// --- Resolver cache ---

func (s *PostgresStore) GetCache(ctx context.Context, key string) (*CacheEntry, error) {
	var e CacheEntry
	err := s.pool.QueryRow(ctx,
		`SELECT key, value, found, expires_at FROM resolver_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&e.Key, &e.Value, &e.Found, &e.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cache")
	}
	return &e, nil
}

func (s *PostgresStore) SetCache(ctx context.Context, key, value string, found bool, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO resolver_cache (key, value, found, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET value = $2, found = $3, cached_at = $4, expires_at = $5`,
		key, value, found, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cache")
}

func (s *PostgresStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM resolver_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func scanLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var status string
	err := row.Scan(&l.ID, &l.FileID, &l.FullName, &l.Company, &l.Title, &l.Location, &l.LinkedInURL,
		&l.Domain, &l.CEOName, &l.Email, &l.EmailPattern, &l.EmailStatus, &status, &l.LastError,
		&l.CreatedAt, &l.UpdatedAt, &l.ProcessedAt)
	if err != nil {
		return nil, err
	}
	l.Status = model.LeadStatus(status)
	return &l, nil
}

func collectLeads(rows pgx.Rows) ([]model.Lead, error) {
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}
