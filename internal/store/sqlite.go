package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-enricher/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection serializes writers so pragmas apply to every statement.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying handle so the durable job queue can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_files (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	total_leads INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
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
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	processed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_leads_file_id ON leads(file_id);
CREATE INDEX IF NOT EXISTS idx_leads_file_status ON leads(file_id, status);

CREATE TABLE IF NOT EXISTS resolver_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL DEFAULT '',
	found      INTEGER NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolver_cache_expires_at ON resolver_cache(expires_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Files ---

func (s *SQLiteStore) CreateFile(ctx context.Context, name string, totalLeads int) (*model.File, error) {
	f := &model.File{
		ID:         uuid.New().String(),
		Name:       name,
		TotalLeads: totalLeads,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_files (id, name, total_leads, created_at) VALUES (?, ?, ?, ?)`,
		f.ID, f.Name, f.TotalLeads, f.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert file")
	}
	return f, nil
}

func (s *SQLiteStore) GetFile(ctx context.Context, fileID string) (*model.File, error) {
	var f model.File
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, total_leads, created_at FROM extraction_files WHERE id = ?`,
		fileID,
	).Scan(&f.ID, &f.Name, &f.TotalLeads, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: file %s", fileID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get file %s", fileID)
	}
	return &f, nil
}

func (s *SQLiteStore) ListFiles(ctx context.Context) ([]model.FileSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.total_leads, f.created_at, `+statsSelect+`
		 FROM extraction_files f LEFT JOIN leads l ON l.file_id = f.id
		 GROUP BY f.id, f.name, f.total_leads, f.created_at
		 ORDER BY f.created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list files")
	}
	defer rows.Close()

	var files []model.FileSummary
	for rows.Next() {
		var fs model.FileSummary
		st := &fs.Stats
		if err := rows.Scan(&fs.ID, &fs.Name, &fs.TotalLeads, &fs.CreatedAt,
			&st.CurrentTotal, &st.Completed, &st.Failed, &st.Pending, &st.Processing, &st.WithCEO); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan file")
		}
		files = append(files, fs)
	}
	return files, eris.Wrap(rows.Err(), "sqlite: list files iterate")
}

func (s *SQLiteStore) FileStats(ctx context.Context, fileID string) (*model.FileStats, error) {
	var st model.FileStats
	err := s.db.QueryRowContext(ctx,
		`SELECT `+statsSelect+` FROM leads l WHERE l.file_id = ?`,
		fileID,
	).Scan(&st.CurrentTotal, &st.Completed, &st.Failed, &st.Pending, &st.Processing, &st.WithCEO)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: file stats %s", fileID)
	}
	return &st, nil
}

// --- Leads ---

func (s *SQLiteStore) InsertLeads(ctx context.Context, fileID string, inputs []model.LeadInput) ([]model.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin insert leads")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO leads (id, file_id, full_name, company, title, location, linkedin_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: prepare insert lead")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	leads := make([]model.Lead, 0, len(inputs))
	for _, in := range inputs {
		l := newLead(uuid.New().String(), fileID, in, now)
		if _, err := stmt.ExecContext(ctx,
			l.ID, l.FileID, l.FullName, l.Company, l.Title, l.Location, l.LinkedInURL,
			string(l.Status), l.CreatedAt, l.UpdatedAt,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert lead for file %s", fileID)
		}
		leads = append(leads, l)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit insert leads")
	}
	return leads, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	l, err := scanSQLiteLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`,
		leadID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lead %s", leadID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", leadID)
	}
	return l, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, fileID string) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE file_id = ? ORDER BY created_at, id`,
		fileID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list leads for file %s", fileID)
	}
	return collectSQLiteLeads(rows)
}

func (s *SQLiteStore) MarkProcessing(ctx context.Context, leadID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'processing', updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'processing')`,
		time.Now().UTC(), leadID,
	)
	return eris.Wrapf(err, "sqlite: mark processing %s", leadID)
}

func (s *SQLiteStore) SetDomain(ctx context.Context, leadID, domain string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET domain = ?, updated_at = ? WHERE id = ? AND domain = ''`,
		domain, time.Now().UTC(), leadID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: set domain %s", leadID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetExecutive(ctx context.Context, leadID, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET ceo_name = ?, updated_at = ? WHERE id = ? AND domain <> ''`,
		name, time.Now().UTC(), leadID,
	)
	return eris.Wrapf(err, "sqlite: set executive %s", leadID)
}

func (s *SQLiteStore) SetEmail(ctx context.Context, leadID string, email model.EmailResult) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET email = ?, email_pattern = ?, email_status = ?, updated_at = ?
		 WHERE id = ? AND domain <> ''`,
		email.Email, email.Pattern, email.Status, time.Now().UTC(), leadID,
	)
	return eris.Wrapf(err, "sqlite: set email %s", leadID)
}

func (s *SQLiteStore) CompleteLead(ctx context.Context, leadID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'completed', last_error = '', processed_at = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		now, now, leadID,
	)
	return eris.Wrapf(err, "sqlite: complete lead %s", leadID)
}

func (s *SQLiteStore) FailLead(ctx context.Context, leadID, reason string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = 'failed', last_error = ?, processed_at = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('completed', 'failed')`,
		reason, now, now, leadID,
	)
	return eris.Wrapf(err, "sqlite: fail lead %s", leadID)
}

func (s *SQLiteStore) ResetFailed(ctx context.Context, fileID string) ([]model.Lead, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin reset failed")
	}
	defer tx.Rollback() //nolint:errcheck

	idRows, err := tx.QueryContext(ctx,
		`SELECT id FROM leads WHERE file_id = ? AND status = 'failed' ORDER BY created_at, id`,
		fileID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select failed leads for file %s", fileID)
	}
	var ids []string
	for idRows.Next() {
		var id string
		if err := idRows.Scan(&id); err != nil {
			idRows.Close()
			return nil, eris.Wrap(err, "sqlite: scan lead id")
		}
		ids = append(ids, id)
	}
	idRows.Close()
	if err := idRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate failed leads")
	}

	leads := make([]model.Lead, 0, len(ids))
	now := time.Now().UTC()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE leads SET status = 'pending', last_error = '', processed_at = NULL, updated_at = ?
			 WHERE id = ? AND status = 'failed'`,
			now, id,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: reset lead %s", id)
		}
		l, err := scanSQLiteLead(tx.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id))
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: reload lead %s", id)
		}
		leads = append(leads, *l)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit reset failed")
	}
	return leads, nil
}

// --- Resolver cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string) (*CacheEntry, error) {
	var e CacheEntry
	err := s.db.QueryRowContext(ctx,
		`SELECT key, value, found, expires_at FROM resolver_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&e.Key, &e.Value, &e.Found, &e.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache")
	}
	return &e, nil
}

func (s *SQLiteStore) SetCache(ctx context.Context, key, value string, found bool, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolver_cache (key, value, found, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, found = excluded.found,
		 cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, value, found, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cache")
}

func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resolver_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var status string
	var processedAt sql.NullTime
	err := row.Scan(&l.ID, &l.FileID, &l.FullName, &l.Company, &l.Title, &l.Location, &l.LinkedInURL,
		&l.Domain, &l.CEOName, &l.Email, &l.EmailPattern, &l.EmailStatus, &status, &l.LastError,
		&l.CreatedAt, &l.UpdatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	l.Status = model.LeadStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		l.ProcessedAt = &t
	}
	return &l, nil
}

func collectSQLiteLeads(rows *sql.Rows) ([]model.Lead, error) {
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}
