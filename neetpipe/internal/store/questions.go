package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hazyhaar/neetextract/dbopen"
	"github.com/hazyhaar/neetextract/neetpipe/internal/parse"
)

// ErrInvalid is returned when a question breaks the record invariants.
var ErrInvalid = errors.New("store: invalid question")

// Validate checks the invariants every stored question keeps: an id, 2 to
// 4 options keyed A..D, a known subject and a confidence in [0,1].
func Validate(q *parse.Question) error {
	var problems []string
	if q.ID == "" {
		problems = append(problems, "id is required")
	}
	if n := len(q.Options); n < 2 || n > 4 {
		problems = append(problems, fmt.Sprintf("%d options, want 2 to 4", n))
	}
	for k := range q.Options {
		if !slices.Contains(parse.OptionKeys, k) {
			problems = append(problems, fmt.Sprintf("option key %q", k))
		}
	}
	switch q.Subject {
	case parse.SubjectPhysics, parse.SubjectChemistry, parse.SubjectBiology:
	default:
		problems = append(problems, fmt.Sprintf("subject %q", q.Subject))
	}
	if q.Confidence < 0 || q.Confidence > 1 {
		problems = append(problems, fmt.Sprintf("confidence %v out of [0,1]", q.Confidence))
	}
	if q.CorrectAnswer != "" {
		if _, ok := q.Options[q.CorrectAnswer]; !ok {
			problems = append(problems, fmt.Sprintf("correct answer %q is not an option", q.CorrectAnswer))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func insertQuestion(ctx context.Context, tx *sql.Tx, runID string, q *parse.Question) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("store: marshal options: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO questions (run_id, id, question_number, question_text, options_json,
		subject, complexity, has_math, has_image, correct_answer, explanation,
		page_number, confidence, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, q.ID, q.QuestionNumber, q.QuestionText, string(opts),
		string(q.Subject), string(q.Complexity), q.HasMath, q.HasImage, q.CorrectAnswer, q.Explanation,
		q.PageNumber, q.Confidence, string(q.Source), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert question %s: %w", q.ID, err)
	}
	return nil
}

// CreateQuestion adds a question to an existing run.
func (s *Store) CreateQuestion(ctx context.Context, runID string, q *parse.Question) error {
	if err := Validate(q); err != nil {
		return err
	}
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&n); err != nil {
			return fmt.Errorf("store: lookup run: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM questions WHERE run_id = ? AND id = ?`, runID, q.ID).Scan(&n); err != nil {
			return fmt.Errorf("store: lookup question: %w", err)
		}
		if n > 0 {
			return ErrConflict
		}
		return insertQuestion(ctx, tx, runID, q)
	})
}

// GetQuestion retrieves one question of a run.
func (s *Store) GetQuestion(ctx context.Context, runID, id string) (*Record, error) {
	row := s.DB.QueryRowContext(ctx, questionSelect+` WHERE run_id = ? AND id = ?`, runID, id)
	return scanQuestion(row)
}

// UpdateQuestion replaces the stored fields of a question. The question is
// addressed by (runID, q.ID).
func (s *Store) UpdateQuestion(ctx context.Context, runID string, q *parse.Question) error {
	if err := Validate(q); err != nil {
		return err
	}
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("store: marshal options: %w", err)
	}
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE questions SET question_number = ?, question_text = ?, options_json = ?,
		subject = ?, complexity = ?, has_math = ?, has_image = ?, correct_answer = ?,
		explanation = ?, page_number = ?, confidence = ?, source = ?, updated_at = ?
		WHERE run_id = ? AND id = ?`,
		q.QuestionNumber, q.QuestionText, string(opts),
		string(q.Subject), string(q.Complexity), q.HasMath, q.HasImage, q.CorrectAnswer,
		q.Explanation, q.PageNumber, q.Confidence, string(q.Source), time.Now().UnixMilli(),
		runID, q.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update question: %w", err)
	}
	return expectOne(res)
}

// DeleteQuestion removes one question of a run.
func (s *Store) DeleteQuestion(ctx context.Context, runID, id string) error {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM questions WHERE run_id = ? AND id = ?`, runID, id)
	if err != nil {
		return fmt.Errorf("store: delete question: %w", err)
	}
	return expectOne(res)
}

// GetQuestions lists questions matching f, ordered by run, page and number.
// It returns an empty (non-nil) slice when nothing matches.
func (s *Store) GetQuestions(ctx context.Context, f Filter) ([]Record, error) {
	var where []string
	var args []any
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, string(f.Subject))
	}
	if f.Page > 0 {
		where = append(where, "page_number = ?")
		args = append(args, f.Page)
	}
	if f.MinConfidence > 0 {
		where = append(where, "confidence >= ?")
		args = append(args, f.MinConfidence)
	}

	query := questionSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY run_id, page_number, question_number, id"
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query questions: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

const questionSelect = `SELECT run_id, id, question_number, question_text, options_json,
	subject, complexity, has_math, has_image, correct_answer, explanation,
	page_number, confidence, source
	FROM questions`

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (*Record, error) {
	var r Record
	var opts, subject, complexity, source string
	err := row.Scan(&r.RunID, &r.ID, &r.QuestionNumber, &r.QuestionText, &opts,
		&subject, &complexity, &r.HasMath, &r.HasImage, &r.CorrectAnswer, &r.Explanation,
		&r.PageNumber, &r.Confidence, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan question: %w", err)
	}
	if err := json.Unmarshal([]byte(opts), &r.Options); err != nil {
		return nil, fmt.Errorf("store: question %s options: %w", r.ID, err)
	}
	r.Subject = parse.Subject(subject)
	r.Complexity = parse.Complexity(complexity)
	r.Source = parse.Source(source)
	return &r, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
