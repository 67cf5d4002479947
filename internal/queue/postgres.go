package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/db"
	"github.com/sells-group/lead-enricher/internal/model"
)

// Postgres is a durable Queue on the jobs table. Concurrent workers claim
// with FOR UPDATE SKIP LOCKED so no job is leased twice.
type Postgres struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgres creates a queue on the store's pool.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	lead_id      TEXT NOT NULL,
	payload      JSONB NOT NULL DEFAULT '{}'::jsonb,
	status       TEXT NOT NULL DEFAULT 'queued',
	attempt      INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL,
	run_at       TIMESTAMPTZ NOT NULL,
	locked_until TIMESTAMPTZ,
	last_error   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(type, status, run_at);
CREATE INDEX IF NOT EXISTS idx_jobs_lead_id ON jobs(lead_id);
`

// Migrate creates the jobs table.
func (q *Postgres) Migrate(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "queue: postgres migrate")
}

var jobInsertColumns = []string{
	"id", "type", "lead_id", "payload", "status", "attempt", "max_attempts",
	"run_at", "created_at", "updated_at",
}

// Enqueue inserts jobs. A single job is inserted with ON CONFLICT DO NOTHING
// so a re-run stage does not duplicate its successor; batches are bulk
// loaded with COPY and must carry fresh ids.
func (q *Postgres) Enqueue(ctx context.Context, jobs ...model.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	now := q.now().UTC()

	if len(jobs) == 1 {
		row, err := jobRow(jobs[0], now)
		if err != nil {
			return err
		}
		_, err = q.pool.Exec(ctx,
			`INSERT INTO jobs (id, type, lead_id, payload, status, attempt, max_attempts, run_at, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (id) DO NOTHING`,
			row...,
		)
		return eris.Wrapf(err, "queue: insert job %s", jobs[0].ID)
	}

	rows := make([][]any, 0, len(jobs))
	for _, j := range jobs {
		row, err := jobRow(j, now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	if _, err := db.CopyFrom(ctx, q.pool, "jobs", jobInsertColumns, rows); err != nil {
		return eris.Wrap(err, "queue: copy jobs")
	}
	return nil
}

func jobRow(j model.Job, now time.Time) ([]any, error) {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return nil, eris.Wrapf(err, "queue: marshal payload for job %s", j.ID)
	}
	runAt := j.RunAt.UTC()
	if j.RunAt.IsZero() {
		runAt = now
	}
	return []any{
		j.ID, string(j.Type), j.LeadID, string(payload), string(model.JobStatusQueued),
		j.Attempt, j.MaxAttempts, runAt, now, now,
	}, nil
}

const jobColumns = `id, type, lead_id, payload, status, attempt, max_attempts, run_at, last_error, created_at, updated_at`

const claimSQL = `UPDATE jobs SET status = 'running', attempt = attempt + 1, locked_until = $3, updated_at = $2
WHERE id = (
	SELECT id FROM jobs
	WHERE type = $1
	  AND ((status = 'queued' AND run_at <= $2) OR (status = 'running' AND locked_until < $2))
	ORDER BY run_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

// Claim leases the next ready job of the type.
func (q *Postgres) Claim(ctx context.Context, jobType model.JobType, lease time.Duration) (*model.Job, error) {
	now := q.now().UTC()
	j, err := scanJob(q.pool.QueryRow(ctx, claimSQL, string(jobType), now, now.Add(lease)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "queue: claim %s", jobType)
	}
	return j, nil
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j       model.Job
		typ     string
		status  string
		payload []byte
	)
	if err := row.Scan(&j.ID, &typ, &j.LeadID, &payload, &status, &j.Attempt, &j.MaxAttempts,
		&j.RunAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Type = model.JobType(typ)
	j.Status = model.JobStatus(status)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, eris.Wrapf(err, "queue: decode payload for job %s", j.ID)
		}
	}
	return &j, nil
}

func (q *Postgres) Complete(ctx context.Context, id string) error {
	return q.exec(ctx, id, "complete",
		`UPDATE jobs SET status = 'succeeded', locked_until = NULL, updated_at = $2 WHERE id = $1`,
		id, q.now().UTC())
}

func (q *Postgres) Retry(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return q.exec(ctx, id, "retry",
		`UPDATE jobs SET status = 'queued', run_at = $2, last_error = $3, locked_until = NULL, updated_at = $4 WHERE id = $1`,
		id, runAt.UTC(), errMsg, q.now().UTC())
}

func (q *Postgres) Bury(ctx context.Context, id, errMsg string) error {
	return q.exec(ctx, id, "bury",
		`UPDATE jobs SET status = 'dead', last_error = $2, locked_until = NULL, updated_at = $3 WHERE id = $1`,
		id, errMsg, q.now().UTC())
}

func (q *Postgres) exec(ctx context.Context, id, op, sql string, args ...any) error {
	tag, err := q.pool.Exec(ctx, sql, args...)
	if err != nil {
		return eris.Wrapf(err, "queue: %s job %s", op, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotFound, "queue: %s job %s", op, id)
	}
	return nil
}

func (q *Postgres) Counts(ctx context.Context) (model.JobCounts, error) {
	rows, err := q.pool.Query(ctx, `SELECT type, status, COUNT(*) FROM jobs GROUP BY type, status`)
	if err != nil {
		return nil, eris.Wrap(err, "queue: count jobs")
	}
	defer rows.Close()

	counts := newCounts()
	for rows.Next() {
		var (
			typ, status string
			n           int64
		)
		if err := rows.Scan(&typ, &status, &n); err != nil {
			return nil, eris.Wrap(err, "queue: scan job count")
		}
		addCount(counts, model.JobType(typ), model.JobStatus(status), int(n))
	}
	return counts, eris.Wrap(rows.Err(), "queue: iterate job counts")
}

// Prune deletes succeeded and dead jobs last touched before now-olderThan.
func (q *Postgres) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := q.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ('succeeded', 'dead') AND updated_at < $1`,
		q.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, eris.Wrap(err, "queue: prune jobs")
	}
	return int(tag.RowsAffected()), nil
}
