package bus

import (
	"context"

	"golang.org/x/sync/errgroup"

	"relay/internal/dispatch/message"
)

// BatchResult is the per-item outcome of a batch dispatch. Err carries the
// item's *Failure when its dispatch failed; failures are isolated and never
// abort sibling items.
type BatchResult struct {
	Query  message.Query
	Result any
	Err    error
}

// DispatchBatch dispatches the queries concurrently, at most limit at a time
// (limit <= 0 means unbounded). Results are returned in input order. The
// caller's context still cancels in-flight items individually.
func (b *QueryBus) DispatchBatch(ctx context.Context, queries []message.Query, limit int) []BatchResult {
	results := make([]BatchResult, len(queries))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, q := range queries {
		g.Go(func() error {
			result, err := b.Dispatch(ctx, q)
			results[i] = BatchResult{Query: q, Result: result, Err: err}
			return nil
		})
	}

	// Closures always return nil; per-item failures live in results.
	_ = g.Wait()
	return results
}
