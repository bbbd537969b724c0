// Package concurrency provides the bounded, per-ecosystem worker pool that
// fans resolution and enrichment work out across packages while keeping
// each Package record owned by exactly one goroutine at a time.
package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxConcurrency is the per-ecosystem concurrency cap from §5.
const DefaultMaxConcurrency = 16

// Pool runs a bounded number of jobs concurrently and collects the first
// error, cancelling the remaining jobs' context on failure.
type Pool struct {
	max int
}

// New returns a Pool capped at max concurrent jobs. max <= 0 falls back to
// DefaultMaxConcurrency.
func New(max int) *Pool {
	if max <= 0 {
		max = DefaultMaxConcurrency
	}
	return &Pool{max: max}
}

// Run executes fn(ctx, item) for every item in items, at most p.max at a
// time, and returns the first error encountered (if any). Each fn
// invocation owns its item exclusively; no two goroutines are given the
// same item concurrently.
func Run[T any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.max)

	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
