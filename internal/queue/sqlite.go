package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/model"
)

// SQLite is a durable Queue on a SQLite database. The store opens SQLite
// with a single connection, so the claim transaction is never interleaved
// with another writer.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite creates a queue on the given handle, normally store.SQLiteStore.DB().
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	lead_id      TEXT NOT NULL,
	payload      TEXT NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL DEFAULT 'queued',
	attempt      INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL,
	run_at       DATETIME NOT NULL,
	locked_until DATETIME,
	last_error   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(type, status, run_at);
CREATE INDEX IF NOT EXISTS idx_jobs_lead_id ON jobs(lead_id);
`

// Migrate creates the jobs table.
func (q *SQLite) Migrate(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "queue: sqlite migrate")
}

// Enqueue inserts jobs in one transaction, ignoring ids already present.
func (q *SQLite) Enqueue(ctx context.Context, jobs ...model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	now := q.now().UTC()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "queue: begin enqueue")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO jobs (id, type, lead_id, payload, status, attempt, max_attempts, run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "queue: prepare enqueue")
	}
	defer stmt.Close() //nolint:errcheck

	for _, j := range jobs {
		row, err := jobRow(j, now)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return eris.Wrapf(err, "queue: insert job %s", j.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "queue: commit enqueue")
}

// Claim selects the next ready job and leases it inside one transaction.
func (q *SQLite) Claim(ctx context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error) {
	now := q.now().UTC()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "queue: begin claim")
	}
	defer tx.Rollback() //nolint:errcheck

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs
		 WHERE type = ?
		   AND ((status = 'queued' AND run_at <= ?) OR (status = 'running' AND locked_until < ?))
		 ORDER BY run_at
		 LIMIT 1`,
		string(jobType), now, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "queue: select %s", jobType)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', attempt = attempt + 1, locked_until = ?, updated_at = ? WHERE id = ?`,
		now.Add(lease), now, id,
	); err != nil {
		return nil, eris.Wrapf(err, "queue: lease job %s", id)
	}

	j, err := scanSQLiteJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "queue: reload job %s", id)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "queue: commit claim")
	}
	return j, nil
}

func scanSQLiteJob(row *sql.Row) (*model.Job, error) {
	var (
		j       model.Job
		typ     string
		status  string
		payload string
	)
	if err := row.Scan(&j.ID, &typ, &j.LeadID, &payload, &status, &j.Attempt, &j.MaxAttempts,
		&j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(status)
	if err := json.Unmarshal([]byte(payload), &j.Payload); err != nil {
		return nil, eris.Wrapf(err, "queue: decode payload for job %s", j.ID)
	}
	return &j, nil
}

func (q *SQLite) Complete(ctx context.Context, id string) error {
	return q.exec(ctx, id, "complete",
		`UPDATE jobs SET status = 'succeeded', locked_until = NULL, updated_at = ? WHERE id = ?`,
		q.now().UTC(), id)
}

func (q *SQLite) Retry(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return q.exec(ctx, id, "retry",
		`UPDATE jobs SET status = 'queued', run_at = ?, last_error = ?, locked_until = NULL, updated_at = ? WHERE id = ?`,
		runAt.UTC(), errMsg, q.now().UTC(), id)
}

func (q *SQLite) Bury(ctx context.Context, id, errMsg string) error {
	return q.exec(ctx, id, "bury",
		`UPDATE jobs SET status = 'dead', last_error = ?, locked_until = NULL, updated_at = ? WHERE id = ?`,
		errMsg, q.now().UTC(), id)
}

func (q *SQLite) exec(ctx context.Context, id, op, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "queue: %s job %s", op, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "queue: %s job %s", op, id)
	}
	if n == 0 {
		return eris.Wrapf(ErrJobNotFound, "queue: %s job %s", op, id)
	}
	return nil
}

func (q *SQLite) Counts(ctx context.Context) (model.JobCounts, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT type, status, COUNT(*) FROM jobs GROUP BY type, status`)
	if err != nil {
		return nil, eris.Wrap(err, "queue: count jobs")
	}
	defer rows.Close() //nolint:errcheck

	counts := newCounts()
	for rows.Next() {
		var (
			typ, status string
			n           int
		)
		if err := rows.Scan(&typ, &status, &n); err != nil {
			return nil, eris.Wrap(err, "queue: scan job count")
		}
		addCount(counts, model.JobType(typ), model.JobStatus(status), n)
	}
	return counts, eris.Wrap(rows.Err(), "queue: iterate job counts")
}

// Prune deletes succeeded and dead jobs last touched before now-olderThan.
func (q *SQLite) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN ('succeeded', 'dead') AND updated_at < ?`,
		q.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, eris.Wrap(err, "queue: prune jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "queue: prune rows affected")
}
