// Package poll implements the deadline-driven polling loop shared by the
// login, model and query flows.
//
// Every loop re-reads the wall clock on each iteration, so a slow observation
// shortens the remaining budget instead of extending it.
package poll

import (
	"context"
	"errors"
	"time"
)

// ErrDeadline is returned by Until when the deadline passes before the
// condition is met.
var ErrDeadline = errors.New("poll: deadline exceeded")

// Condition is evaluated once per tick. Returning done=true stops the loop
// successfully; a non-nil error stops it with that error.
type Condition func(ctx context.Context) (done bool, err error)

// Until evaluates cond immediately and then every interval until it reports
// done, fails, the context is cancelled, or deadline passes. The condition is
// always evaluated one last time at the deadline.
func Until(ctx context.Context, deadline time.Time, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}

	for {
		done, err := cond(ctx)
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrDeadline
		}

		wait := interval
		if remaining < wait {
			wait = remaining
		}

		if err := Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Within is Until with a deadline of now+timeout.
func Within(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	return Until(ctx, time.Now().Add(timeout), interval, cond)
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
