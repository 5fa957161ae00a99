package backtest

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Sweep runs base once per seed, at most concurrency runs at a time. Runs
// share no state; opts apply to every engine. Results are returned in seed
// order. The first error cancels the remaining runs: a run stopped that way
// keeps its partial result, and seeds that never started are left nil.
func Sweep(ctx context.Context, base Config, seeds []int64, concurrency int, logger *slog.Logger, opts ...Option) ([]*Result, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*Result, len(seeds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cfg := base
			cfg.Seed = seed
			e, err := NewEngine(cfg, logger, opts...)
			if err != nil {
				return fmt.Errorf("backtest: sweep seed %d: %w", seed, err)
			}
			res, err := e.Run(ctx)
			results[i] = res
			if err != nil {
				return fmt.Errorf("backtest: sweep seed %d: %w", seed, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// SeedRange returns n consecutive seeds starting at first.
func SeedRange(first int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = first + int64(i)
	}
	return out
}
