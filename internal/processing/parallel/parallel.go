// Package parallel splits independent row or column work into contiguous
// chunks run on an errgroup.
//
//	err := parallel.For(ctx, height, func(start, end int) error {
//	    for y := start; y < end; y++ {
//	        processRow(y)
//	    }
//	    return nil
//	})
//
// Cancellation is cooperative: ctx is checked before each chunk starts, never
// in the middle of one.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minChunk keeps tiny images on a single goroutine.
const minChunk = 16

type workersKey struct{}

// WithWorkers returns a child of ctx that limits For to n goroutines.
// Values below one are treated as one.
func WithWorkers(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, workersKey{}, max(n, 1))
}

// Workers returns the number of goroutines For will use under ctx:
// the WithWorkers limit if set, GOMAXPROCS otherwise.
func Workers(ctx context.Context) int {
	if n, ok := ctx.Value(workersKey{}).(int); ok {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// For runs fn over [0, n) split into contiguous [start, end) ranges. It
// blocks until every chunk finishes and returns the first error, or the
// context error if ctx was cancelled before a chunk started.
func For(ctx context.Context, n int, fn func(start, end int) error) error {
	if n <= 0 {
		return ctx.Err()
	}

	workers := min(Workers(ctx), (n+minChunk-1)/minChunk)
	if workers <= 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(0, n)
	}

	chunkSize := (n + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(start, end)
		})
	}
	return g.Wait()
}
