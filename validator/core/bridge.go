package core

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Bridge runs blocking calls on a small bounded set of workers so the round loop
// only ever waits on a context-bounded result.
type Bridge struct {
	sem *semaphore.Weighted
}

// NewBridge creates a bridge with the given number of workers.
func NewBridge(workers int64) *Bridge {
	if workers < 1 {
		workers = 1
	}
	return &Bridge{sem: semaphore.NewWeighted(workers)}
}

type outcome[T any] struct {
	val T
	err error
}

// Await runs fn with a context bounded by timeout and waits for it.
// When the deadline passes first, Await returns the context error and fn keeps its
// worker until it observes the cancellation.
func Await[T any](ctx context.Context, b *Bridge, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer b.sem.Release(1)
		v, err := fn(ctx)
		done <- outcome[T]{val: v, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// AwaitErr is Await for calls that only return an error.
func AwaitErr(ctx context.Context, b *Bridge, timeout time.Duration, fn func(ctx context.Context) error) error {
	_, err := Await(ctx, b, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
