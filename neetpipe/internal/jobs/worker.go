package jobs

import (
	"context"
	"errors"
	"time"
)

// Handler processes a claimed job and returns the id of the stored run.
type Handler func(ctx context.Context, job *Job) (runID string, err error)

// Run polls for visible jobs and hands each one to handler, one at a time.
// It blocks until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	log := q.opts.Logger
	log.Info("jobs: worker started", "visibility", q.opts.Visibility, "poll", q.opts.PollInterval, "max_attempts", q.opts.MaxAttempts)

	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		q.Drain(ctx, handler)
		select {
		case <-ctx.Done():
			log.Info("jobs: worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Drain processes visible jobs until the queue is empty or ctx is done.
// It returns the number of jobs handled.
func (q *Queue) Drain(ctx context.Context, handler Handler) int {
	log := q.opts.Logger
	n := 0
	for ctx.Err() == nil {
		job, err := q.Claim(ctx)
		if errors.Is(err, ErrEmpty) {
			return n
		}
		if err != nil {
			log.Warn("jobs: claim failed", "error", err)
			return n
		}
		n++

		// Abandoned past the attempt budget: the previous holder died.
		if job.Attempts > q.opts.MaxAttempts {
			log.Warn("jobs: exceeded max attempts", "id", job.ID, "attempts", job.Attempts)
			if err := q.finish(context.WithoutCancel(ctx), job.ID, StateFailed, "", "exceeded max attempts"); err != nil {
				log.Warn("jobs: mark failed", "id", job.ID, "error", err)
			}
			continue
		}

		runID, err := handler(ctx, job)
		// Bookkeeping survives shutdown so a finished job is not redelivered.
		bg := context.WithoutCancel(ctx)
		if err != nil {
			log.Warn("jobs: handler failed", "id", job.ID, "path", job.Path, "attempt", job.Attempts, "error", err)
			if ferr := q.Fail(bg, job.ID, err); ferr != nil {
				log.Warn("jobs: record failure", "id", job.ID, "error", ferr)
			}
			continue
		}
		if err := q.Ack(bg, job.ID, runID); err != nil {
			log.Warn("jobs: ack", "id", job.ID, "error", err)
			continue
		}
		log.Info("jobs: done", "id", job.ID, "run_id", runID)
	}
	return n
}
