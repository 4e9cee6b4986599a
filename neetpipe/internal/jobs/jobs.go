// Package jobs is a SQLite visibility-timeout queue of extraction requests.
//
// A claimed job stays invisible for the configured visibility window. If the
// worker finishes it is acked (state done, run id recorded); if it fails it
// becomes visible again until MaxAttempts is reached, then it is marked
// failed. A worker that dies mid-job simply lets the window expire and the
// job reappears for the next claim.
//
// Unlike a pure queue, acked rows are kept so Status can report the outcome
// of a job after the fact.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/neetextract/dbopen"
	"github.com/hazyhaar/neetextract/idgen"
)

var (
	// ErrEmpty is returned by Claim when no job is visible.
	ErrEmpty = errors.New("jobs: queue empty")
	// ErrNotFound is returned by Status for an unknown id.
	ErrNotFound = errors.New("jobs: not found")
)

// State is the lifecycle position of a job.
type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Schema creates the jobs table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    path        TEXT NOT NULL,
    state       TEXT NOT NULL CHECK(state IN ('queued','running','done','failed')) DEFAULT 'queued',
    run_id      TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT '',
    attempts    INTEGER NOT NULL DEFAULT 0,
    visible_at  INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_visible ON jobs(state, visible_at);
`

// Job is a row in the queue.
type Job struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	State     State     `json:"state"`
	RunID     string    `json:"runId,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Options configures queue behaviour.
type Options struct {
	// Visibility is how long a claimed job stays invisible. Default: 10m.
	Visibility time.Duration
	// PollInterval is the delay between claim attempts in Run. Default: 2s.
	PollInterval time.Duration
	// MaxAttempts is how many claims a job gets before it is marked
	// failed. Default: 3.
	MaxAttempts int
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Visibility <= 0 {
		o.Visibility = 10 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Queue is the queue handle.
type Queue struct {
	db   *sql.DB
	opts Options
	now  func() time.Time
}

// New creates a queue on an already-opened database and applies Schema.
func New(ctx context.Context, db *sql.DB, opts Options) (*Queue, error) {
	opts.defaults()
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("jobs: schema: %w", err)
	}
	return &Queue{db: db, opts: opts, now: time.Now}, nil
}

// Enqueue inserts an immediately visible job for the PDF at path.
func (q *Queue) Enqueue(ctx context.Context, path string) (*Job, error) {
	now := q.now()
	j := &Job{ID: idgen.Job(), Path: path, State: StateQueued, CreatedAt: now, UpdatedAt: now}
	_, err := dbopen.Exec(ctx, q.db,
		`INSERT INTO jobs (id, path, state, visible_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Path, string(j.State), now.UnixMilli(), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("jobs: enqueue: %w", err)
	}
	return j, nil
}

// Claim atomically picks the oldest visible job, marks it running and
// invisible for the visibility window, and returns it. A running job whose
// window expired is claimable again. Returns ErrEmpty when nothing is visible.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := q.now()
	var j *Job
	err := dbopen.Retry(ctx, func() error {
		var err error
		j, err = scanJob(q.db.QueryRowContext(ctx, claimSQL,
			now.Add(q.opts.Visibility).UnixMilli(), now.UnixMilli(), now.UnixMilli()))
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrEmpty
	}
	return j, err
}

const claimSQL = `
UPDATE jobs
SET state = 'running', visible_at = ?, attempts = attempts + 1, updated_at = ?
WHERE id = (
	SELECT id FROM jobs
	WHERE state IN ('queued','running') AND visible_at <= ?
	ORDER BY visible_at ASC, created_at ASC
	LIMIT 1
)
RETURNING ` + jobColumns

// Ack marks a job done and records the run that holds its result.
func (q *Queue) Ack(ctx context.Context, id, runID string) error {
	return q.finish(ctx, id, StateDone, runID, "")
}

// Fail records a failed attempt. The job becomes visible again after
// attempts × PollInterval unless it has used all its attempts, in which case
// it is marked failed.
func (q *Queue) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	now := q.now().UnixMilli()
	res, err := dbopen.Exec(ctx, q.db, `
		UPDATE jobs
		SET state = CASE WHEN attempts >= ? THEN 'failed' ELSE 'queued' END,
		    visible_at = ? + attempts * ?, error = ?, updated_at = ?
		WHERE id = ?`,
		q.opts.MaxAttempts, now, q.opts.PollInterval.Milliseconds(), msg, now, id,
	)
	if err != nil {
		return fmt.Errorf("jobs: fail %s: %w", id, err)
	}
	return expectOne(res)
}

func (q *Queue) finish(ctx context.Context, id string, state State, runID, msg string) error {
	res, err := dbopen.Exec(ctx, q.db,
		`UPDATE jobs SET state = ?, run_id = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(state), runID, msg, q.now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("jobs: %s %s: %w", state, id, err)
	}
	return expectOne(res)
}

// Status returns the current row of a job.
func (q *Queue) Status(ctx context.Context, id string) (*Job, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Pending returns the number of queued or running jobs.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE state IN ('queued','running')`).Scan(&n)
	return n, err
}

const jobColumns = `id, path, state, run_id, error, attempts, created_at, updated_at`

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	var state string
	var created, updated int64
	err := row.Scan(&j.ID, &j.Path, &state, &j.RunID, &j.Error, &j.Attempts, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: scan: %w", err)
	}
	j.State = State(state)
	j.CreatedAt = time.UnixMilli(created)
	j.UpdatedAt = time.UnixMilli(updated)
	return &j, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobs: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
