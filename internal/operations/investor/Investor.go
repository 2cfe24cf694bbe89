package investor

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"StockBacktester/internal/models"
	"StockBacktester/internal/operations/backtest"
	"StockBacktester/internal/services/cache"
	"StockBacktester/internal/services/strategy"
)

// BarSource loads daily bars of one symbol in date order.
type BarSource interface {
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// Config tunes Invest.
type Config struct {
	Workers  int // <= 0 means one per CPU
	Lookback int // warm-up days loaded before entryDate
	Options  Options
}

func NewConfig() Config {
	return Config{Lookback: DefaultLookback, Options: DefaultOptions()}
}

type Investor struct {
	source   BarSource
	registry *strategy.Registry
	cache    *cache.IndicatorCache
	config   Config
	now      func() time.Time
}

func NewInvestor(source BarSource, registry *strategy.Registry, c *cache.IndicatorCache, config Config) *Investor {
	if config.Lookback <= 0 {
		config.Lookback = DefaultLookback
	}
	return &Investor{
		source:   source,
		registry: registry,
		cache:    c,
		config:   config,
		now:      time.Now,
	}
}

// Invest backtests every code with params and simulates one shared
// balance over the results. A zero entryDate starts on January 1 of the
// current year, a zero exitDate ends today and capital <= 0 means
// DefaultCapital. Codes without bars are skipped.
func (inv *Investor) Invest(ctx context.Context, codes []string, capital float64, params strategy.Params) (*Report, error) {
	params = params.Clone()
	now := inv.now()
	if params.EntryDate.IsZero() {
		params.EntryDate = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	}
	if params.ExitDate.IsZero() {
		params.ExitDate = models.StartOfDay(now)
	}
	if capital <= 0 {
		capital = DefaultCapital
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invest: %w", err)
	}
	if err := inv.registry.Resolve(params.Entry, params.Exits); err != nil {
		return nil, fmt.Errorf("invest: %w", err)
	}
	if err := inv.config.Options.withFees(params.Fees).Validate(); err != nil {
		return nil, fmt.Errorf("invest: %w", err)
	}

	workers := inv.config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	from := params.EntryDate.AddDate(0, 0, -inv.config.Lookback)
	to := params.ExitDate.Add(24 * time.Hour)

	results := make([]*backtest.Result, len(codes))
	loaded := make([][]models.Bar, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, code := range codes {
		i, code := i, code
		g.Go(func() error {
			bars, err := inv.source.Bars(gctx, code, from, to)
			if err != nil {
				return fmt.Errorf("load bars for %s: %w", code, err)
			}
			if len(bars) == 0 {
				log.Printf("invest: no bars for %s, skipping", code)
				return nil
			}
			res, err := backtest.NewEngine(inv.registry, inv.cache).Quiet().Run(code, bars, params)
			if err != nil {
				return err
			}
			results[i] = res
			loaded[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("invest: %w", err)
	}

	bars := make(map[string][]models.Bar, len(codes))
	kept := make([]*backtest.Result, 0, len(results))
	for i, res := range results {
		if res == nil {
			continue
		}
		kept = append(kept, res)
		bars[res.Symbol] = loaded[i]
	}

	report, err := Simulate(kept, bars, capital, params, inv.config.Options)
	if err != nil {
		return nil, fmt.Errorf("invest: %w", err)
	}
	report.Summary.CodeCount = len(codes)
	log.Printf("invest: %d codes, %d trades, final money %s, total profit %s",
		len(codes), report.Summary.TradeCount, report.Summary.FinalMoney.StringFixed(2), report.Summary.TotalProfit.StringFixed(2))
	return report, nil
}
