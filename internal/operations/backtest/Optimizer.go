package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"StockBacktester/internal/models"
	"StockBacktester/internal/services/cache"
	"StockBacktester/internal/services/strategy"
)

// Grid maps a parameter name to the values to try.
type Grid map[string][]float64

// Optimizer runs an exhaustive grid search, one engine run per combination.
type Optimizer struct {
	registry *strategy.Registry
	cache    *cache.IndicatorCache
	config   Config
}

func NewOptimizer(registry *strategy.Registry, c *cache.IndicatorCache, config Config) *Optimizer {
	return &Optimizer{registry: registry, cache: c, config: config}
}

// Combinations expands grid over base. Keys are walked in sorted order and
// the last key varies fastest.
func Combinations(base strategy.Params, grid Grid) ([]strategy.Params, error) {
	keys := make([]string, 0, len(grid))
	for key, values := range grid {
		if len(values) == 0 {
			return nil, fmt.Errorf("axis %q is empty: %w", key, ErrInvalidGrid)
		}
		for _, v := range values {
			probe := base.Clone()
			if err := probe.Set(key, v); err != nil {
				return nil, fmt.Errorf("axis %q: %w: %w", key, ErrInvalidGrid, err)
			}
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []strategy.Params
	var generate func(k int, current strategy.Params)
	generate = func(k int, current strategy.Params) {
		if k == len(keys) {
			out = append(out, current)
			return
		}
		for _, v := range grid[keys[k]] {
			next := current.Clone()
			_ = next.Set(keys[k], v)
			generate(k+1, next)
		}
	}
	generate(0, base.Clone())
	return out, nil
}

// GridSearch validates the grid and the strategies, then backtests every
// combination in parallel. Results come back in enumeration order.
func (o *Optimizer) GridSearch(ctx context.Context, symbol string, bars []models.Bar, base strategy.Params, grid Grid) ([]*Result, error) {
	combos, err := Combinations(base, grid)
	if err != nil {
		return nil, err
	}
	if err := o.registry.Resolve(base.Entry, base.Exits); err != nil {
		return nil, err
	}

	workers := o.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*Result, len(combos))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, params := range combos {
		i, params := i, params
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := NewEngine(o.registry, o.cache).Quiet().Run(symbol, bars, params)
			if err != nil {
				return fmt.Errorf("combination %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SortByProfit orders results by net profit, best first. Ties keep their
// enumeration order.
func SortByProfit(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Profit > results[j].Profit
	})
}
