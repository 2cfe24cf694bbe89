package backtest

import (
	"math"

	"StockBacktester/internal/services/indicators"
	"StockBacktester/internal/services/strategy"
)

// ComputeMetrics aggregates the closed trades in order. Open trades are
// ignored, and a run without closed trades yields zero metrics. Profit
// sums are per share and keep strategy.PriceDecimals.
func ComputeMetrics(trades []*Trade) Metrics {
	var m Metrics
	var gross, loss, rateSum, reentryProfit float64
	breakouts := 0

	for _, t := range trades {
		if t.IsOpen() {
			continue
		}
		m.TradeCount++
		if t.Profit > 0 {
			gross += t.Profit
			m.Wins++
		} else if t.Profit < 0 {
			loss += t.Profit
		}
		rateSum += t.ProfitRate
		if t.Breakout {
			breakouts++
		}
		if t.Reentry {
			m.Reentry++
			reentryProfit += t.Profit
			if t.Profit > 0 {
				m.ReentryWins++
			}
		}
	}
	if m.TradeCount == 0 {
		return m
	}

	n := float64(m.TradeCount)
	winRate := float64(m.Wins) / n
	pnl := gross / math.Max(math.Abs(loss), 1)

	m.Profit = indicators.Round(gross+loss, strategy.PriceDecimals)
	m.GrossProfit = indicators.Round(gross, strategy.PriceDecimals)
	m.Loss = indicators.Round(loss, strategy.PriceDecimals)
	m.ProfitRate = indicators.Round(rateSum, 4)
	m.WinRate = indicators.Round(winRate, 2)
	m.BreakoutRate = indicators.Round(float64(breakouts)/n, 2)
	m.ReentryProfit = indicators.Round(reentryProfit, strategy.PriceDecimals)
	if m.Reentry > 0 {
		m.ReentryWinRate = indicators.Round(float64(m.ReentryWins)/float64(m.Reentry), 2)
	}
	m.PnL = indicators.Round(pnl, 2)
	m.Expectation = indicators.Round(pnl*winRate-(1-winRate), 2)
	m.MaxDrawdown = maxDrawdown(trades)
	return m
}

// maxDrawdown walks the cumulative profit rate of the closed trades and
// returns the deepest fall below a running peak.
func maxDrawdown(trades []*Trade) float64 {
	peak := math.Inf(-1)
	equity, worst := 0.0, 0.0
	for _, t := range trades {
		if t.IsOpen() {
			continue
		}
		equity += t.ProfitRate
		peak = math.Max(peak, equity)
		worst = math.Min(worst, equity-peak)
	}
	return indicators.Round(worst, 4)
}
