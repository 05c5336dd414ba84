package concurrent

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item with at most workers goroutines and returns the
// results in input order. Per-item errors are collected in the matching slot
// of errs instead of aborting the other items. workers <= 0 means GOMAXPROCS.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, item T) (R, error)) (results []R, errs []error) {
	results = make([]R, len(items))
	errs = make([]error, len(items))
	if len(items) == 0 {
		return results, errs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(workers, len(items)))
	for i, item := range items {
		g.Go(func() error {
			results[i], errs[i] = fn(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// ForEach runs fn for every item with at most workers goroutines and returns
// the first error. Remaining items see a cancelled context after a failure.
func ForEach[T any](ctx context.Context, items []T, workers int, fn func(ctx context.Context, item T) error) error {
	if len(items) == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit(workers, len(items)))
	for _, item := range items {
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}

func limit(workers, n int) int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return min(workers, n)
}
