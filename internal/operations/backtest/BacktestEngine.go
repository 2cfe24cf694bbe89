// backtest/engine.go

package backtest

import (
	"fmt"
	"log"
	"time"

	"StockBacktester/internal/models"
	"StockBacktester/internal/services/cache"
	"StockBacktester/internal/services/strategy"
)

// exitGrace lets a bar stamped later on the exit date still count.
const exitGrace = 12 * time.Hour

type Engine struct {
	registry *strategy.Registry
	cache    *cache.IndicatorCache
	quiet    bool
}

// NewEngine builds an engine over registry. c may be nil.
func NewEngine(registry *strategy.Registry, c *cache.IndicatorCache) *Engine {
	return &Engine{registry: registry, cache: c}
}

// Quiet turns off the per-run summary log line.
func (e *Engine) Quiet() *Engine {
	e.quiet = true
	return e
}

// Run drives one entry strategy and the exit strategies over bars, which
// must be in date order. At most one position is open at a time.
func (e *Engine) Run(symbol string, bars []models.Bar, params strategy.Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	if err := e.registry.Resolve(params.Entry, params.Exits); err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}

	in := strategy.NewInput(symbol, bars, params, e.cache)
	entry, err := e.registry.BuildEntry(params.Entry, in)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	exits := make([]strategy.ExitStrategy, 0, len(params.Exits))
	for _, key := range params.Exits {
		exit, err := e.registry.BuildExit(key, in)
		if err != nil {
			return nil, fmt.Errorf("backtest %s: %w", symbol, err)
		}
		exits = append(exits, exit)
	}

	var end time.Time
	if !params.ExitDate.IsZero() {
		end = params.ExitDate.Add(exitGrace)
	}

	var trades []*Trade
	pos := strategy.NewClosedPosition(symbol)
	for i, bar := range bars {
		if bar.Date.Before(params.EntryDate) || (!end.IsZero() && bar.Date.After(end)) {
			continue
		}

		if !pos.IsOpen() {
			if sig := entry.CheckEntry(i, pos); sig != nil {
				if opened := e.open(in, trades, i, sig); opened != nil {
					trades = append(trades, opened)
					pos = opened
				}
			}
		}

		if pos.IsOpen() {
			for _, exit := range exits {
				sig := exit.CheckExit(i, pos)
				if sig == nil {
					continue
				}
				if !sig.IsFullClose() {
					pos.AddPartial(i, bar, sig)
				} else if pos.Close(i, bar, sig.Reason) {
					pos = strategy.NewClosedPosition(symbol)
				}
				break
			}
		}
	}

	res := &Result{
		Symbol:    symbol,
		Params:    params,
		MA:        params.MA,
		StartDate: params.EntryDate,
		EndDate:   params.ExitDate,
		Trades:    trades,
		Metrics:   ComputeMetrics(trades),
	}
	if !e.quiet {
		log.Printf("backtest %s %s/%v: %d trades, profit %.2f, win rate %.2f",
			symbol, params.Entry, params.Exits, res.TradeCount, res.Profit, res.WinRate)
	}
	return res, nil
}

// open turns an entry signal into a trade, or returns nil when the attempt
// is a re-entry and re-entries are off.
func (e *Engine) open(in *strategy.Input, trades []*Trade, i int, sig *strategy.Signal) *Trade {
	bars, ma := in.Bars, in.Base.MA
	pos := strategy.OpenPosition(in.Symbol, i, bars[i], sig)

	if i >= 2 {
		prev2, prev1 := bars[i-2], bars[i-1]
		pos.Breakout = prev2.Close < ma[i-2] && prev1.Close > ma[i-1] && bars[i].Close > prev1.Close
		if n := len(trades); n > 0 {
			pos.Reentry = trades[n-1].IsOverheatExit() && prev2.Close > ma[i-2]
		}
	}

	if pos.Reentry && !in.Params.Reentry {
		return nil
	}
	return pos
}
