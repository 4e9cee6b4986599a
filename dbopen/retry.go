package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// The HTTP handlers and the job worker write to the same file. busy_timeout
// absorbs most contention; these retries cover what is left.
const (
	retryAttempts = 5
	retryBase     = 50 * time.Millisecond
	retryMax      = time.Second
)

// IsBusy reports whether err indicates an SQLite BUSY condition:
// SQLITE_BUSY, "database is locked" or "database table is locked".
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Retry calls fn until it succeeds, fails with a non-busy error, or the
// attempts run out. Waits double from 50 ms up to 1 s between attempts.
func Retry(ctx context.Context, fn func() error) error {
	wait := retryBase
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !IsBusy(err) {
			return err
		}
		if attempt == retryAttempts {
			return fmt.Errorf("dbopen: still busy after %d attempts: %w", retryAttempts, err)
		}
		if cerr := sleepCtx(ctx, wait); cerr != nil {
			return errors.Join(err, cerr)
		}
		wait = min(2*wait, retryMax)
	}
}

// RunTx executes fn inside a transaction, retried as a whole on SQLITE_BUSY.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return Retry(ctx, func() error { return runOnce(ctx, db, fn) })
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec executes a statement, retried on SQLITE_BUSY.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := Retry(ctx, func() error {
		var err error
		res, err = db.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
