// Package admin implements the bulk workflows behind the admin dashboard:
// consent reminders and verification decisions over many targets at once,
// with per-item outcomes instead of all-or-nothing semantics.
package admin

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// defaultParallelism bounds concurrent unit operations in a batch.
const defaultParallelism = 8

// Failure is one target that did not complete, with a human-readable reason.
type Failure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// BulkResult partitions a batch into per-item outcomes. One target's failure
// never aborts the rest of the batch.
type BulkResult struct {
	Successful []string  `json:"successful"`
	Failed     []Failure `json:"failed"`
}

// RunBulk executes fn once per target with bounded parallelism and collects
// every outcome. fn errors are recorded, never propagated; only context
// cancellation stops the batch early.
func RunBulk(ctx context.Context, targets []string, fn func(ctx context.Context, target string) error) BulkResult {
	var (
		mu     sync.Mutex
		result BulkResult
	)
	result.Successful = make([]string, 0, len(targets))
	result.Failed = make([]Failure, 0)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultParallelism)
	for _, target := range targets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, Failure{Target: target, Reason: err.Error()})
				mu.Unlock()
				return nil
			}
			err := fn(ctx, target)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, Failure{Target: target, Reason: err.Error()})
			} else {
				result.Successful = append(result.Successful, target)
			}
			return nil
		})
	}
	_ = g.Wait()
	return result
}
