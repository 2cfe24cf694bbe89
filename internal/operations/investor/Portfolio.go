package investor

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"StockBacktester/internal/models"
	"StockBacktester/internal/operations/backtest"
	"StockBacktester/internal/services/strategy"
)

const dayLayout = "2006-01-02"

func dayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// portfolio is the state of one simulation.
type portfolio struct {
	opts     Options
	capital  decimal.Decimal
	balance  decimal.Decimal
	realized decimal.Decimal
	fees     decimal.Decimal
	peak     decimal.Decimal
	drawdown decimal.Decimal

	minBalance decimal.Decimal
	fraction   decimal.Decimal
	buyRate    decimal.Decimal
	sellRate   decimal.Decimal
	minFee     decimal.Decimal

	held   map[string]*Holding
	report *Report
}

func newPortfolio(capital float64, opts Options) *portfolio {
	c := decimal.NewFromFloat(capital)
	return &portfolio{
		opts:       opts,
		capital:    c,
		balance:    c,
		minBalance: decimal.NewFromFloat(opts.MinBalance),
		fraction:   decimal.NewFromFloat(opts.Fraction),
		buyRate:    decimal.NewFromFloat(opts.Fees.BuyRate),
		sellRate:   decimal.NewFromFloat(opts.Fees.SellRate),
		minFee:     decimal.NewFromFloat(opts.Fees.MinFee),
		held:       make(map[string]*Holding),
		report:     &Report{ByCode: make(map[string][]*Holding)},
	}
}

// Simulate replays the precomputed trades of results against one shared
// balance, stepping day by day from params.EntryDate to params.ExitDate
// inclusive. Results are visited in slice order each day, and a code can
// hold one position at a time. bars supplies the closes used to mark
// positions still open at the end.
func Simulate(results []*backtest.Result, bars map[string][]models.Bar, capital float64, params strategy.Params, opts Options) (*Report, error) {
	if params.EntryDate.IsZero() || params.ExitDate.IsZero() {
		return nil, fmt.Errorf("simulate: entry and exit dates are required")
	}
	if params.ExitDate.Before(params.EntryDate) {
		return nil, fmt.Errorf("simulate: exit date %s is before entry date %s",
			dayKey(params.ExitDate), dayKey(params.EntryDate))
	}
	if capital <= 0 {
		return nil, fmt.Errorf("simulate: capital must be positive, got %v", capital)
	}
	opts = opts.withFees(params.Fees)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	p := newPortfolio(capital, opts)
	p.report.Entry = params.Entry
	p.report.Exits = append([]string(nil), params.Exits...)
	p.report.Results = results

	entries := make([]map[string]*backtest.Trade, len(results))
	for i, res := range results {
		if res == nil {
			continue
		}
		entries[i] = make(map[string]*backtest.Trade, len(res.Trades))
		for _, t := range res.Trades {
			entries[i][dayKey(t.EntryDate)] = t
		}
	}

	first := models.StartOfDay(params.EntryDate)
	last := models.StartOfDay(params.ExitDate)
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := dayKey(day)
		for i, res := range results {
			if res == nil {
				continue
			}
			if h, ok := p.held[res.Symbol]; ok {
				if !h.trade.IsOpen() && dayKey(h.trade.ExitDate) == key {
					p.sell(h)
				}
				continue
			}
			if t, ok := entries[i][key]; ok {
				p.buy(res, t)
			}
		}
	}

	for _, res := range results {
		if res == nil {
			continue
		}
		if h, ok := p.held[res.Symbol]; ok {
			p.markToMarket(h, bars[res.Symbol], last)
		}
	}

	p.summarize(first, last, len(results))
	return p.report, nil
}

func (p *portfolio) buyCost(shares int64, price decimal.Decimal) (cost, fee decimal.Decimal) {
	cost = price.Mul(decimal.NewFromInt(shares))
	fee = decimal.Max(cost.Mul(p.buyRate), p.minFee).Round(2)
	return cost, fee
}

func (p *portfolio) buy(res *backtest.Result, t *backtest.Trade) {
	if p.balance.LessThan(p.minBalance) {
		return
	}
	price := decimal.NewFromFloat(t.EntryPrice)
	if !price.IsPositive() {
		return
	}

	var shares int64
	switch p.opts.Sizing {
	case SizingShares:
		shares = min(p.balance.Div(price).IntPart(), p.opts.MaxShares)
	default:
		budget := decimal.Min(p.balance, p.capital.Mul(p.fraction))
		shares = budget.Div(price).IntPart()
	}
	cost, fee := p.buyCost(shares, price)
	for shares > 0 && cost.Add(fee).GreaterThan(p.balance) {
		shares--
		cost, fee = p.buyCost(shares, price)
	}
	if shares <= 0 {
		return
	}

	p.balance = p.balance.Sub(cost).Sub(fee)
	p.fees = p.fees.Add(fee)

	h := &Holding{
		Code:         res.Symbol,
		MA:           res.MA,
		Amount:       shares,
		EntryDate:    t.EntryDate,
		EntryPrice:   price,
		EntryReason:  t.EntryReason,
		EntryBalance: p.balance,
		Fee:          fee,
		Breakout:     t.Breakout,
		Reentry:      t.Reentry,
		trade:        t,
	}
	p.held[res.Symbol] = h
	p.report.ByCode[res.Symbol] = append(p.report.ByCode[res.Symbol], h)
	p.report.Events = append(p.report.Events, Event{
		Type:    models.EventTypeBuy,
		Date:    t.EntryDate,
		Code:    res.Symbol,
		MA:      res.MA,
		Price:   price,
		Amount:  shares,
		Fee:     fee,
		Balance: p.balance,
		Reason:  t.EntryReason,
	})
}

// sell books the trade's exit at its fill price, the weighted average of
// any partial exits and the final close.
func (p *portfolio) sell(h *Holding) {
	t := h.trade
	amount := decimal.NewFromInt(h.Amount)
	fill := decimal.NewFromFloat(t.FillPrice())

	proceeds := amount.Mul(fill)
	fee := proceeds.Mul(p.sellRate).Round(2)
	profit := proceeds.Sub(amount.Mul(h.EntryPrice)).Round(2)

	p.balance = p.balance.Add(proceeds).Sub(fee)
	p.fees = p.fees.Add(fee)
	p.realized = p.realized.Add(profit)
	if p.realized.GreaterThan(p.peak) {
		p.peak = p.realized
	}
	if dd := p.realized.Sub(p.peak); dd.LessThan(p.drawdown) {
		p.drawdown = dd
	}

	reason := t.ExitReason
	if h.Reentry {
		reason += " (re-entry)"
	}
	h.Closed = true
	h.ExitDate = t.ExitDate
	h.ExitPrice = fill
	h.ExitReason = reason
	h.Profit = profit
	h.Fee = h.Fee.Add(fee)
	h.CumProfit = p.realized
	h.Balance = p.balance

	delete(p.held, h.Code)
	p.report.Closed = append(p.report.Closed, h)
	p.report.Events = append(p.report.Events, Event{
		Type:    models.EventTypeSell,
		Date:    t.ExitDate,
		Code:    h.Code,
		MA:      h.MA,
		Price:   h.ExitPrice,
		Amount:  h.Amount,
		Fee:     fee,
		Profit:  profit,
		Balance: p.balance,
		Reason:  reason,
	})
}

// markToMarket values h at the latest close on or before last. Without
// any such bar the entry price is used.
func (p *portfolio) markToMarket(h *Holding, bars []models.Bar, last time.Time) {
	price := h.EntryPrice
	limit := dayKey(last)
	for i := len(bars) - 1; i >= 0; i-- {
		if dayKey(bars[i].Date) <= limit {
			price = decimal.NewFromFloat(bars[i].Close)
			break
		}
	}
	amount := decimal.NewFromInt(h.Amount)
	h.MarketPrice = price
	h.Profit = amount.Mul(price.Sub(h.EntryPrice)).Round(2)
	p.report.Unclosed = append(p.report.Unclosed, h)
}

func (p *portfolio) summarize(first, last time.Time, codes int) {
	s := &p.report.Summary
	s.EntryDate = first
	s.ExitDate = last
	s.CodeCount = codes
	s.InitialMoney = p.capital
	s.FinalMoney = p.balance.Round(2)
	s.RealizedProfit = p.realized
	s.Fees = p.fees
	s.MaxDrawdown = p.drawdown

	for _, h := range p.report.Unclosed {
		s.UnrealizedProfit = s.UnrealizedProfit.Add(h.Profit)
		s.UnclosedValue = s.UnclosedValue.Add(h.MarketPrice.Mul(decimal.NewFromInt(h.Amount)))
	}
	s.UnclosedCount = len(p.report.Unclosed)
	s.TotalProfit = s.RealizedProfit.Add(s.UnrealizedProfit)
	s.NetProfit = s.TotalProfit.Sub(s.Fees)
	s.ProfitRate = ratio(s.TotalProfit, p.capital, 4)
	s.NetProfitRate = ratio(s.NetProfit, p.capital, 4)

	breakouts := 0
	for _, h := range p.report.Closed {
		s.TradeCount++
		switch {
		case h.Profit.IsPositive():
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(h.Profit)
		case h.Profit.IsNegative():
			s.Loss = s.Loss.Add(h.Profit)
		}
		if h.Breakout {
			breakouts++
		}
		if h.Reentry {
			s.Reentry++
			s.ReentryProfit = s.ReentryProfit.Add(h.Profit)
			if h.Profit.IsPositive() {
				s.ReentryWins++
			}
		}
	}
	if s.TradeCount == 0 {
		return
	}

	n := decimal.NewFromInt(int64(s.TradeCount))
	winRate := decimal.NewFromInt(int64(s.Wins)).Div(n)
	pnl := s.GrossProfit.Div(decimal.Max(s.Loss.Abs(), decimal.NewFromInt(1)))
	one := decimal.NewFromInt(1)

	s.WinRate = winRate.Round(2).InexactFloat64()
	s.BreakoutRate = ratio(decimal.NewFromInt(int64(breakouts)), n, 2)
	s.PnL = pnl.Round(2).InexactFloat64()
	s.Expectation = pnl.Mul(winRate).Sub(one.Sub(winRate)).Round(2).InexactFloat64()
	if s.Reentry > 0 {
		s.ReentryWinRate = ratio(decimal.NewFromInt(int64(s.ReentryWins)), decimal.NewFromInt(int64(s.Reentry)), 2)
	}
}

func ratio(a, b decimal.Decimal, places int32) float64 {
	if b.IsZero() {
		return 0
	}
	return a.Div(b).Round(places).InexactFloat64()
}
