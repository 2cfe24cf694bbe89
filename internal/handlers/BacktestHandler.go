package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"StockBacktester/config"
	"StockBacktester/internal/models"
	"StockBacktester/internal/operations/backtest"
	"StockBacktester/internal/operations/investor"
	"StockBacktester/internal/services/cache"
	"StockBacktester/internal/services/strategy"
)

// ResultSink persists runs and reads them back.
type ResultSink interface {
	SaveBacktest(ctx context.Context, res *backtest.Result) (*models.BacktestRun, error)
	SavePortfolio(ctx context.Context, codes []string, report *investor.Report) (*models.PortfolioRun, error)
	FindBacktest(ctx context.Context, id string) (*models.BacktestRun, error)
	FindPortfolio(ctx context.Context, id string) (*models.PortfolioRun, error)
}

// BacktestHandler wires bar loading, the engine, the optimizer, the
// investor and the result sink for the CLI. Reports go to out.
type BacktestHandler struct {
	source   investor.BarSource
	sink     ResultSink
	registry *strategy.Registry
	cache    *cache.IndicatorCache
	investor *investor.Investor
	config   backtest.Config
	lookback int
	out      io.Writer
	now      func() time.Time
}

// NewBacktestHandler builds the handler. sink may be nil, in which case
// nothing is stored.
func NewBacktestHandler(source investor.BarSource, sink ResultSink, registry *strategy.Registry, c *cache.IndicatorCache, cfg *config.Config, out io.Writer) *BacktestHandler {
	invConfig := InvestorConfig(cfg.Investor, cfg.Backtest.Workers)
	return &BacktestHandler{
		source:   source,
		sink:     sink,
		registry: registry,
		cache:    c,
		investor: investor.NewInvestor(source, registry, c, invConfig),
		config:   backtest.Config{Workers: cfg.Backtest.Workers},
		lookback: invConfig.Lookback,
		out:      out,
		now:      time.Now,
	}
}

// Backtest runs params over every symbol and stores each result.
func (h *BacktestHandler) Backtest(ctx context.Context, symbols []string, params strategy.Params) ([]*backtest.Result, error) {
	engine := backtest.NewEngine(h.registry, h.cache)
	var results []*backtest.Result
	for _, symbol := range symbols {
		bars, err := h.loadBars(ctx, symbol, params)
		if err != nil {
			return nil, err
		}
		if len(bars) == 0 {
			log.Printf("No bars for %s, skipping", symbol)
			continue
		}

		res, err := engine.Run(symbol, bars, params)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		h.printResult(res)

		if h.sink != nil {
			run, err := h.sink.SaveBacktest(ctx, res)
			if err != nil {
				return nil, fmt.Errorf("save backtest %s: %w", symbol, err)
			}
			fmt.Fprintf(h.out, "  saved as %s\n", run.ID)
		}
	}
	return results, nil
}

// GridSearch runs every grid combination for one symbol and prints the
// top results by profit. top <= 0 prints them all.
func (h *BacktestHandler) GridSearch(ctx context.Context, symbol string, params strategy.Params, grid backtest.Grid, top int) ([]*backtest.Result, error) {
	bars, err := h.loadBars(ctx, symbol, params)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s", symbol)
	}

	results, err := backtest.NewOptimizer(h.registry, h.cache, h.config).GridSearch(ctx, symbol, bars, params, grid)
	if err != nil {
		return nil, err
	}
	backtest.SortByProfit(results)

	fmt.Fprintf(h.out, "=== Grid search %s: %d combinations ===\n", symbol, len(results))
	for i, res := range results {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(h.out, "#%d %s\n", i+1, describeParams(res.Params, grid))
		h.printResult(res)
	}
	return results, nil
}

// Invest runs the portfolio simulation, prints the ledger and stores the run.
func (h *BacktestHandler) Invest(ctx context.Context, codes []string, capital float64, params strategy.Params) (*investor.Report, error) {
	report, err := h.investor.Invest(ctx, codes, capital, params)
	if err != nil {
		return nil, err
	}
	fmt.Fprintln(h.out, report.Ledger())

	if h.sink != nil {
		run, err := h.sink.SavePortfolio(ctx, codes, report)
		if err != nil {
			return nil, fmt.Errorf("save portfolio: %w", err)
		}
		fmt.Fprintf(h.out, "saved as %s\n", run.ID)
	}
	return report, nil
}

// Catalog prints the registered strategies.
func (h *BacktestHandler) Catalog() []strategy.Info {
	catalog := h.registry.Catalog()
	for _, info := range catalog {
		var roles []string
		if info.HasEntry {
			roles = append(roles, "entry")
		}
		if info.HasExit {
			roles = append(roles, "exit")
		}
		state := ""
		if !info.Enabled {
			state = " (disabled)"
		}
		fmt.Fprintf(h.out, "%-18s %-10s %s%s\n", info.Key, strings.Join(roles, "/"), info.Name, state)
	}
	return catalog
}

// Show prints a stored backtest or portfolio run.
func (h *BacktestHandler) Show(ctx context.Context, id string) error {
	if h.sink == nil {
		return fmt.Errorf("no result store configured")
	}
	run, err := h.sink.FindBacktest(ctx, id)
	if err != nil {
		return err
	}
	if run != nil {
		fmt.Fprintf(h.out, "%s %s/%s ma %d: trades %d, profit %.2f, win rate %.2f\n",
			run.Symbol, run.Entry, run.Exits, run.MA, run.TradeCount, run.Profit, run.WinRate)
		for _, t := range run.Trades {
			exit := "open"
			if t.ExitDate != nil {
				exit = t.ExitDate.Format(config.DateLayout)
			}
			fmt.Fprintf(h.out, "  %s -> %s  %.2f -> %.2f  %.2f  %s\n",
				t.EntryDate.Format(config.DateLayout), exit, t.EntryPrice, t.ExitPrice, t.Profit, t.ExitReason)
		}
		return nil
	}

	portfolio, err := h.sink.FindPortfolio(ctx, id)
	if err != nil {
		return err
	}
	if portfolio == nil {
		return fmt.Errorf("no run with id %s", id)
	}
	fmt.Fprintln(h.out, portfolio.Ledger)
	return nil
}

// loadBars loads the run window plus a warm-up lookback.
func (h *BacktestHandler) loadBars(ctx context.Context, symbol string, params strategy.Params) ([]models.Bar, error) {
	to := params.ExitDate
	if to.IsZero() {
		to = h.now()
	}
	to = models.StartOfDay(to).Add(24*time.Hour - time.Nanosecond)

	start := params.EntryDate
	if start.IsZero() {
		start = to
	}
	from := models.StartOfDay(start).AddDate(0, 0, -h.lookback)

	bars, err := h.source.Bars(ctx, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("load bars for %s: %w", symbol, err)
	}
	return bars, nil
}

func (h *BacktestHandler) printResult(res *backtest.Result) {
	fmt.Fprintf(h.out, "%s %s/%s: trades %d, profit %.2f, profit rate %.4f, win rate %.2f, pnl %.2f, expectation %.2f, max drawdown %.4f\n",
		res.Symbol,
		res.Params.Entry,
		strings.Join(res.Params.Exits, "+"),
		res.TradeCount,
		res.Profit,
		res.ProfitRate,
		res.WinRate,
		res.PnL,
		res.Expectation,
		res.MaxDrawdown)
	if open := res.OpenTrade(); open != nil {
		fmt.Fprintf(h.out, "  open since %s at %.2f\n", open.EntryDate.Format(config.DateLayout), open.EntryPrice)
	}
}

func describeParams(p strategy.Params, grid backtest.Grid) string {
	keys := make([]string, 0, len(grid))
	for key := range grid {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		v, _ := p.Get(key)
		parts = append(parts, key+"="+strconv.FormatFloat(v, 'f', -1, 64))
	}
	return strings.Join(parts, " ")
}
