// Package concurrency bounds outbound fan-out concurrency per kernel
// (spec.md §5 Backpressure: "implementations should cap per-kernel
// outbound fan-out"). The teacher bounds batch-step concurrency with
// golang.org/x/sync/errgroup's SetLimit; dispatch fan-out has no
// result to join on and no first-error-cancels-the-rest semantics, so
// this wraps the sibling golang.org/x/sync/semaphore package instead,
// acquiring one slot per delivery goroutine and releasing it on
// completion.
package concurrency

import (
	"context"

	"golang.org/x/sync/semaphore"
)

type Limiter struct {
	sem *semaphore.Weighted
}

func NewLimiter(max int) *Limiter {
	if max <= 0 {
		max = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(max))}
}

// Go runs fn on its own goroutine once a slot is free, blocking the
// caller until one is. If ctx is cancelled before a slot frees up, fn
// never runs.
func (l *Limiter) Go(ctx context.Context, fn func()) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return
	}
	go func() {
		defer l.sem.Release(1)
		fn()
	}()
}
