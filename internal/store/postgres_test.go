package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-enricher/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var leadColumnNames = []string{
	"id", "file_id", "full_name", "company", "title", "location", "linkedin_url",
	"domain", "ceo_name", "email", "email_pattern", "email_status", "status", "last_error",
	"created_at", "updated_at", "processed_at",
}

func TestPostgresStore_GetLead(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT id, file_id, full_name,.* FROM leads WHERE id = \$1`).
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows(leadColumnNames).AddRow(
			"lead-1", "file-1", "Jane Doe", "Acme Corp", "VP Sales", "Austin", "",
			"acme.com", "John Smith", "", "", "", "processing", "",
			now, now, nil,
		))

	l, err := s.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "acme.com", l.Domain)
	assert.Equal(t, "John Smith", l.CEOName)
	assert.Equal(t, model.LeadStatusProcessing, l.Status)
	assert.Nil(t, l.ProcessedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetLead_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM leads WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLead(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetFile_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, total_leads, created_at FROM extraction_files WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetFile(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateFile(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO extraction_files`).
		WithArgs(pgxmock.AnyArg(), "Austin founders", 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	f, err := s.CreateFile(context.Background(), "Austin founders", 3)
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, 3, f.TotalLeads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertLeads_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"leads"}, leadInsertColumns).WillReturnResult(2)

	leads, err := s.InsertLeads(context.Background(), "file-1", []model.LeadInput{
		{FullName: "Jane Doe", Company: "Acme Corp"},
		{FullName: "John Roe", Company: "Beta LLC"},
	})
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "file-1", leads[0].FileID)
	assert.Equal(t, model.LeadStatusPending, leads[1].Status)
	assert.NotEqual(t, leads[0].ID, leads[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetDomain_OnlyWhenEmpty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET domain = \$2, updated_at = \$3 WHERE id = \$1 AND domain = ''`).
		WithArgs("lead-1", "acme.com", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	written, err := s.SetDomain(context.Background(), "lead-1", "acme.com")
	require.NoError(t, err)
	assert.False(t, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetExecutive_RequiresDomain(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE leads SET ceo_name = \$2, updated_at = \$3 WHERE id = \$1 AND domain <> ''`).
		WithArgs("lead-1", "John Smith", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SetExecutive(context.Background(), "lead-1", "John Smith"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteLead_SkipsTerminal(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`(?s)UPDATE leads SET status = 'completed'.*status NOT IN \('completed', 'failed'\)`).
		WithArgs("lead-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteLead(context.Background(), "lead-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FileStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)SELECT COUNT\(l.id\).* FROM leads l WHERE l.file_id = \$1`).
		WithArgs("file-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "completed", "failed", "pending", "processing", "with_ceo"}).
			AddRow(int64(10), int64(6), int64(1), int64(2), int64(1), int64(4)))

	st, err := s.FileStats(context.Background(), "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.FileStats{CurrentTotal: 10, Completed: 6, Failed: 1, Pending: 2, Processing: 1, WithCEO: 4}, *st)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCache_Miss(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT key, value, found, expires_at FROM resolver_cache`).
		WithArgs("domain:unknown").
		WillReturnError(pgx.ErrNoRows)

	e, err := s.GetCache(context.Background(), "domain:unknown")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCache_NegativeHit(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	exp := time.Now().Add(time.Hour)

	mock.ExpectQuery(`SELECT key, value, found, expires_at FROM resolver_cache`).
		WithArgs("executive:acme.com").
		WillReturnRows(pgxmock.NewRows([]string{"key", "value", "found", "expires_at"}).
			AddRow("executive:acme.com", "", false, exp))

	e, err := s.GetCache(context.Background(), "executive:acme.com")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, e.Found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCache_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE`).
		WithArgs("domain:acme corp", "acme.com", true, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCache(context.Background(), "domain:acme corp", "acme.com", true, 7*24*time.Hour)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredCache(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM resolver_cache WHERE expires_at <= now\(\)`).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.DeleteExpiredCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ResetFailed(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)UPDATE leads SET status = 'pending'.*RETURNING`).
		WithArgs("file-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(leadColumnNames).AddRow(
			"lead-9", "file-1", "Ana Ruiz", "Gamma Inc", "", "", "",
			"", "", "", "", "", "pending", "",
			now, now, nil,
		))

	leads, err := s.ResetFailed(context.Background(), "file-1")
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "lead-9", leads[0].ID)
	assert.Equal(t, model.LeadStatusPending, leads[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS extraction_files`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
