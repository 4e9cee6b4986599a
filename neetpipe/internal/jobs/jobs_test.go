package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/neetextract/dbopen"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(t *testing.T, opts Options) (*Queue, *clock) {
	t.Helper()
	q, err := New(context.Background(), dbopen.OpenMemory(t), opts)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	c := &clock{t: time.UnixMilli(1_700_000_000_000)}
	q.now = c.now
	return q, c
}

func TestEnqueueClaimAck(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()

	j, err := q.Enqueue(ctx, "/exams/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(j.ID, "job_") || j.State != StateQueued {
		t.Fatalf("enqueued: %+v", j)
	}

	claimed, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if claimed.ID != j.ID || claimed.State != StateRunning || claimed.Attempts != 1 {
		t.Fatalf("claimed: %+v", claimed)
	}

	// WHY: A claimed job is invisible until its window expires.
	if _, err := q.Claim(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("second claim: got %v, want ErrEmpty", err)
	}

	if err := q.Ack(ctx, j.ID, "run_1"); err != nil {
		t.Fatal(err)
	}
	st, err := q.Status(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	if st.State != StateDone || st.RunID != "run_1" {
		t.Fatalf("status: %+v", st)
	}
	if n, _ := q.Pending(ctx); n != 0 {
		t.Fatalf("pending: got %d, want 0", n)
	}
}

func TestClaim_Empty(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	if _, err := q.Claim(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("got %v, want ErrEmpty", err)
	}
}

func TestClaim_OldestFirst(t *testing.T) {
	q, c := newTestQueue(t, Options{})
	ctx := context.Background()
	first, _ := q.Enqueue(ctx, "/a.pdf")
	c.advance(time.Millisecond)
	q.Enqueue(ctx, "/b.pdf")

	got, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != first.ID {
		t.Fatalf("claimed %s, want oldest %s", got.Path, first.Path)
	}
}

func TestVisibilityExpiry(t *testing.T) {
	// WHAT: A running job whose holder vanished reappears after the window.
	q, c := newTestQueue(t, Options{Visibility: time.Minute})
	ctx := context.Background()
	j, _ := q.Enqueue(ctx, "/a.pdf")

	if _, err := q.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	c.advance(59 * time.Second)
	if _, err := q.Claim(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("before expiry: got %v", err)
	}
	c.advance(2 * time.Second)
	again, err := q.Claim(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != j.ID || again.Attempts != 2 {
		t.Fatalf("reclaimed: %+v", again)
	}
}

func TestFail_RetryThenFailed(t *testing.T) {
	q, c := newTestQueue(t, Options{MaxAttempts: 2, PollInterval: time.Second})
	ctx := context.Background()
	j, _ := q.Enqueue(ctx, "/a.pdf")

	q.Claim(ctx)
	if err := q.Fail(ctx, j.ID, errors.New("boom")); err != nil {
		t.Fatal(err)
	}
	st, _ := q.Status(ctx, j.ID)
	if st.State != StateQueued || st.Error != "boom" {
		t.Fatalf("after first failure: %+v", st)
	}

	// WHY: Retries back off by attempts × poll interval.
	if _, err := q.Claim(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("claim during backoff: got %v", err)
	}
	c.advance(time.Second)
	if _, err := q.Claim(ctx); err != nil {
		t.Fatal(err)
	}
	q.Fail(ctx, j.ID, errors.New("boom again"))

	st, _ = q.Status(ctx, j.ID)
	if st.State != StateFailed || st.Attempts != 2 || st.Error != "boom again" {
		t.Fatalf("after last attempt: %+v", st)
	}
	c.advance(time.Hour)
	if _, err := q.Claim(ctx); !errors.Is(err, ErrEmpty) {
		t.Fatalf("failed job claimable: %v", err)
	}
}

func TestStatus_NotFound(t *testing.T) {
	q, _ := newTestQueue(t, Options{})
	ctx := context.Background()
	if _, err := q.Status(ctx, "job_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if err := q.Ack(ctx, "job_missing", "run_1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ack: got %v, want ErrNotFound", err)
	}
	if err := q.Fail(ctx, "job_missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("fail: got %v, want ErrNotFound", err)
	}
}

func TestDrain(t *testing.T) {
	q, _ := newTestQueue(t, Options{MaxAttempts: 1})
	ctx := context.Background()
	ok, _ := q.Enqueue(ctx, "/good.pdf")
	bad, _ := q.Enqueue(ctx, "/bad.pdf")

	var seen []string
	n := q.Drain(ctx, func(_ context.Context, j *Job) (string, error) {
		seen = append(seen, j.Path)
		if j.Path == "/bad.pdf" {
			return "", errors.New("unreadable")
		}
		return "run_" + j.ID, nil
	})
	if n != 2 || len(seen) != 2 {
		t.Fatalf("handled %d (%v), want 2", n, seen)
	}

	st, _ := q.Status(ctx, ok.ID)
	if st.State != StateDone || st.RunID != "run_"+ok.ID {
		t.Errorf("good job: %+v", st)
	}
	st, _ = q.Status(ctx, bad.ID)
	if st.State != StateFailed || st.Error != "unreadable" {
		t.Errorf("bad job: %+v", st)
	}
}

func TestDrain_AbandonedPastBudget(t *testing.T) {
	// WHAT: A job reclaimed after its holder died too often is marked failed
	// without running the handler.
	q, c := newTestQueue(t, Options{MaxAttempts: 1, Visibility: time.Second})
	ctx := context.Background()
	j, _ := q.Enqueue(ctx, "/a.pdf")
	q.Claim(ctx)
	c.advance(2 * time.Second)

	called := false
	q.Drain(ctx, func(context.Context, *Job) (string, error) {
		called = true
		return "", nil
	})
	if called {
		t.Fatal("handler ran for a job past its attempt budget")
	}
	st, _ := q.Status(ctx, j.ID)
	if st.State != StateFailed {
		t.Fatalf("state: got %s, want failed", st.State)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	q, _ := newTestQueue(t, Options{PollInterval: 5 * time.Millisecond})
	q.now = time.Now
	ctx, cancel := context.WithCancel(context.Background())
	j, _ := q.Enqueue(ctx, "/a.pdf")

	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(context.Context, *Job) (string, error) { return "run_x", nil })
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		st, err := q.Status(context.Background(), j.ID)
		if err == nil && st.State == StateDone {
			break
		}
		select {
		case <-deadline:
			t.Fatal("job not processed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
