// Package store persists extraction runs and their questions in SQLite.
//
// A run is one ProcessFile call: the file it read, the file hash, the
// metadata, errors and warnings. Questions belong to a run and are keyed by
// (run_id, id); the question id alone repeats across runs.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hazyhaar/neetextract/dbopen"
	"github.com/hazyhaar/neetextract/idgen"
	"github.com/hazyhaar/neetextract/neetpipe/internal/parse"
)

var (
	// ErrNotFound is returned when a run or question does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a question id is already taken in a run.
	ErrConflict = errors.New("store: question already exists")
)

// Schema creates the runs and questions tables. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id             TEXT PRIMARY KEY,
    path           TEXT NOT NULL,
    sha256         TEXT NOT NULL DEFAULT '',
    config_hash    TEXT NOT NULL DEFAULT '',
    complete       INTEGER NOT NULL DEFAULT 0,
    metadata_json  TEXT NOT NULL DEFAULT '{}',
    errors_json    TEXT NOT NULL DEFAULT '[]',
    warnings_json  TEXT NOT NULL DEFAULT '[]',
    created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_sha256 ON runs(sha256, config_hash, created_at DESC);

CREATE TABLE IF NOT EXISTS questions (
    run_id          TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    id              TEXT NOT NULL,
    question_number INTEGER NOT NULL,
    question_text   TEXT NOT NULL,
    options_json    TEXT NOT NULL DEFAULT '{}',
    subject         TEXT NOT NULL,
    complexity      TEXT NOT NULL,
    has_math        INTEGER NOT NULL DEFAULT 0,
    has_image       INTEGER NOT NULL DEFAULT 0,
    correct_answer  TEXT NOT NULL DEFAULT '',
    explanation     TEXT NOT NULL DEFAULT '',
    page_number     INTEGER NOT NULL,
    confidence      REAL NOT NULL,
    source          TEXT NOT NULL,
    updated_at      INTEGER NOT NULL,
    PRIMARY KEY (run_id, id)
);
CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions(subject, confidence);
CREATE INDEX IF NOT EXISTS idx_questions_page ON questions(run_id, page_number, question_number);
`

// Store wraps the database holding runs and questions.
type Store struct {
	DB *sql.DB
}

// New creates a Store on an already-opened database and applies Schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Run is one stored extraction.
type Run struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	// ConfigHash fingerprints the settings the run was extracted with.
	ConfigHash string `json:"configHash"`
	// Complete is false for failed runs and runs cut short by a timeout or
	// page failures. Only complete runs are reused.
	Complete  bool            `json:"complete"`
	Metadata  json.RawMessage `json:"metadata"`
	Errors    []string        `json:"errors"`
	Warnings  []string        `json:"warnings"`
	Questions int             `json:"questionCount"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Record is a stored question with the run it belongs to.
type Record struct {
	RunID string `json:"runId"`
	parse.Question
}

// Filter selects questions. Zero fields match everything.
type Filter struct {
	RunID         string
	Subject       parse.Subject
	Page          int
	MinConfidence float64
	Limit         int
	Offset        int
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("store: hash: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("store: hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SaveRun inserts a run and its questions in one transaction. An empty
// run.ID is replaced by a fresh id; the id used is returned.
func (s *Store) SaveRun(ctx context.Context, run *Run, questions []parse.Question) (string, error) {
	if run.ID == "" {
		run.ID = idgen.Run()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	meta := run.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}
	errsJSON, err := marshalStrings(run.Errors)
	if err != nil {
		return "", err
	}
	warnJSON, err := marshalStrings(run.Warnings)
	if err != nil {
		return "", err
	}

	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, path, sha256, config_hash, complete, metadata_json, errors_json, warnings_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Path, run.SHA256, run.ConfigHash, run.Complete, string(meta), errsJSON, warnJSON, run.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("store: insert run: %w", err)
		}
		for i := range questions {
			if err := insertQuestion(ctx, tx, run.ID, &questions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	run.Questions = len(questions)
	return run.ID, nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx, runSelect+` WHERE r.id = ?`, id)
	return scanRun(row)
}

// FindRunByHash returns the most recent complete run of a file with the
// given SHA-256 extracted under configHash, or ErrNotFound.
func (s *Store) FindRunByHash(ctx context.Context, sha, configHash string) (*Run, error) {
	row := s.DB.QueryRowContext(ctx,
		runSelect+` WHERE r.sha256 = ? AND r.config_hash = ? AND r.complete = 1
		ORDER BY r.created_at DESC, r.id DESC LIMIT 1`, sha, configHash)
	return scanRun(row)
}

const runSelect = `SELECT r.id, r.path, r.sha256, r.config_hash, r.complete, r.metadata_json, r.errors_json, r.warnings_json, r.created_at,
	(SELECT COUNT(*) FROM questions q WHERE q.run_id = r.id)
	FROM runs r`

func scanRun(row *sql.Row) (*Run, error) {
	var r Run
	var meta, errsJSON, warnJSON string
	var created int64
	err := row.Scan(&r.ID, &r.Path, &r.SHA256, &r.ConfigHash, &r.Complete, &meta, &errsJSON, &warnJSON, &created, &r.Questions)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan run: %w", err)
	}
	r.Metadata = json.RawMessage(meta)
	if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
		return nil, fmt.Errorf("store: run errors: %w", err)
	}
	if err := json.Unmarshal([]byte(warnJSON), &r.Warnings); err != nil {
		return nil, fmt.Errorf("store: run warnings: %w", err)
	}
	r.CreatedAt = time.UnixMilli(created)
	return &r, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("store: marshal: %w", err)
	}
	return string(b), nil
}
