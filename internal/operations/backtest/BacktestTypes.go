// backtest/types.go

package backtest

import (
	"errors"
	"time"

	"StockBacktester/internal/services/strategy"
)

var ErrInvalidGrid = errors.New("invalid parameter grid")

// Trade is a position from entry to exit. The last trade of a run may
// still be open.
type Trade = strategy.Position

// Metrics summarize the closed trades of one run.
type Metrics struct {
	Profit      float64 `json:"profit"` // net
	GrossProfit float64 `json:"grossProfit"`
	Loss        float64 `json:"loss"`
	ProfitRate  float64 `json:"profitRate"` // sum of per-trade rates
	TradeCount  int     `json:"tradeCount"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"winRate"`

	BreakoutRate   float64 `json:"breakoutRate"`
	Reentry        int     `json:"reentry"`
	ReentryWins    int     `json:"reentryWins"`
	ReentryWinRate float64 `json:"reentryWinRate"`
	ReentryProfit  float64 `json:"reentryProfit"`

	PnL         float64 `json:"pnl"`
	Expectation float64 `json:"expectation"`
	MaxDrawdown float64 `json:"maxDrawdown"` // over cumulative profit rate, <= 0
}

// Result is the outcome of one Engine.Run.
type Result struct {
	Symbol    string
	Params    strategy.Params
	MA        int
	StartDate time.Time
	EndDate   time.Time
	Trades    []*Trade

	Metrics
}

// ClosedTrades filters out a trailing open trade.
func (r *Result) ClosedTrades() []*Trade {
	closed := make([]*Trade, 0, len(r.Trades))
	for _, t := range r.Trades {
		if !t.IsOpen() {
			closed = append(closed, t)
		}
	}
	return closed
}

// OpenTrade returns the trade still open at the end of the run, or nil.
func (r *Result) OpenTrade() *Trade {
	if n := len(r.Trades); n > 0 && r.Trades[n-1].IsOpen() {
		return r.Trades[n-1]
	}
	return nil
}

// Config tunes the optimizer.
type Config struct {
	// Workers bounds concurrent runs; <= 0 means one per CPU.
	Workers int
}

// NewConfig creates default config
func NewConfig() Config {
	return Config{Workers: 0}
}
