package neetpipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/neetextract/horosafe"
	"github.com/hazyhaar/neetextract/idgen"
	"github.com/hazyhaar/neetextract/neetpipe/internal/jobs"
	"github.com/hazyhaar/neetextract/neetpipe/internal/store"
)

// Service runs a Pipeline behind persistence: results are stored as runs,
// files can be queued for background extraction, and stored questions can
// be reviewed and corrected.
type Service struct {
	pipe      *Pipeline
	store     *store.Store
	queue     *jobs.Queue
	reprocess bool
	root      string
	logger    *slog.Logger
}

// StoredResult is a Result together with the run that holds it.
type StoredResult struct {
	RunID string `json:"runId"`
	// Reused is true when an earlier run of the same file content was
	// returned instead of processing again.
	Reused bool `json:"reused"`
	*Result
	QualityScore float64 `json:"qualityScore"`
}

// NewService creates the run store and job queue on db (schemas are
// applied) and binds them to p.
func NewService(ctx context.Context, p *Pipeline, db *sql.DB, dc DaemonConfig) (*Service, error) {
	dc.defaults()
	st, err := store.New(ctx, db)
	if err != nil {
		return nil, err
	}
	q, err := jobs.New(ctx, db, jobs.Options{
		Visibility:   dc.JobVisibility,
		PollInterval: dc.JobPollInterval,
		MaxAttempts:  dc.JobMaxAttempts,
		Logger:       p.logger,
	})
	if err != nil {
		return nil, err
	}
	return &Service{pipe: p, store: st, queue: q, reprocess: dc.Reprocess, root: dc.Root, logger: p.logger}, nil
}

// resolve maps a client-supplied path to a PDF under the served root.
func (s *Service) resolve(path string) (string, error) {
	return horosafe.PDFPath(s.root, path)
}

// Pipeline returns the wrapped pipeline.
func (s *Service) Pipeline() *Pipeline { return s.pipe }

// Process extracts the questions of the PDF at path and stores them. When
// reprocessing is off and a complete run of identical content under the
// same pipeline settings exists, that run is returned instead.
func (s *Service) Process(ctx context.Context, path string) (*StoredResult, error) {
	// Unreadable files have no hash and still produce a stored, failed run.
	sha, _ := store.HashFile(path)
	if sha != "" && !s.reprocess {
		run, err := s.store.FindRunByHash(ctx, sha, s.pipe.Fingerprint())
		switch {
		case err == nil:
			res, err := s.loadResult(ctx, run)
			if err != nil {
				return nil, err
			}
			s.logger.Info("neetpipe: reused stored run", "path", path, "run_id", run.ID)
			return &StoredResult{RunID: run.ID, Reused: true, Result: res, QualityScore: res.QualityScore()}, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	res := s.pipe.ProcessFile(ctx, path)
	runID, err := s.save(ctx, path, sha, res)
	if err != nil {
		return nil, err
	}
	return &StoredResult{RunID: runID, Result: res, QualityScore: res.QualityScore()}, nil
}

// SaveResult stores res as a new run of the file at path.
func (s *Service) SaveResult(ctx context.Context, path string, res *Result) (string, error) {
	sha, _ := store.HashFile(path)
	return s.save(ctx, path, sha, res)
}

func (s *Service) save(ctx context.Context, path, sha string, res *Result) (string, error) {
	meta, err := json.Marshal(res.Metadata)
	if err != nil {
		return "", fmt.Errorf("neetpipe: marshal metadata: %w", err)
	}
	return s.store.SaveRun(ctx, &store.Run{
		Path:       path,
		SHA256:     sha,
		ConfigHash: s.pipe.Fingerprint(),
		Complete:   res.Complete(),
		Metadata:   meta,
		Errors:     res.Errors,
		Warnings:   res.Warnings,
	}, res.Questions)
}

// Run returns a stored run and its current questions as a Result.
func (s *Service) Run(ctx context.Context, runID string) (*StoredResult, error) {
	if _, err := idgen.Parse(runID); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	res, err := s.loadResult(ctx, run)
	if err != nil {
		return nil, err
	}
	return &StoredResult{RunID: run.ID, Result: res, QualityScore: res.QualityScore()}, nil
}

func (s *Service) loadResult(ctx context.Context, run *store.Run) (*Result, error) {
	res := &Result{Errors: run.Errors, Warnings: run.Warnings}
	if err := json.Unmarshal(run.Metadata, &res.Metadata); err != nil {
		return nil, fmt.Errorf("neetpipe: run %s metadata: %w", run.ID, err)
	}
	recs, err := s.store.GetQuestions(ctx, store.Filter{RunID: run.ID})
	if err != nil {
		return nil, err
	}
	res.Questions = make([]Question, len(recs))
	for i, r := range recs {
		res.Questions[i] = r.Question
	}
	// Reviewed runs may have gained or lost questions since extraction.
	res.Metadata.QuestionsFound = len(res.Questions)
	res.Metadata.AverageConfidence = averageConfidence(res.Questions)
	res.Metadata.PagesWithQuestions = countPages(res.Questions)
	return res, nil
}

// Submit queues the PDF at path for background extraction.
func (s *Service) Submit(ctx context.Context, path string) (*jobs.Job, error) {
	j, err := s.queue.Enqueue(ctx, path)
	if err != nil {
		return nil, err
	}
	s.logger.Info("neetpipe: job queued", "id", j.ID, "path", path)
	return j, nil
}

// Job returns the state of a queued job.
func (s *Service) Job(ctx context.Context, id string) (*jobs.Job, error) {
	if _, err := idgen.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %v", jobs.ErrNotFound, err)
	}
	return s.queue.Status(ctx, id)
}

// RunWorker processes queued jobs until ctx is cancelled.
func (s *Service) RunWorker(ctx context.Context) {
	s.queue.Run(ctx, s.handleJob)
}

// handleJob processes one queued file. Document-level failures are stored
// as failed runs and acked: retrying an unreadable file does not help.
// Only storage errors send the job back to the queue.
func (s *Service) handleJob(ctx context.Context, j *jobs.Job) (string, error) {
	out, err := s.Process(ctx, j.Path)
	if err != nil {
		return "", err
	}
	return out.RunID, nil
}
