package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"StockBacktester/internal/models"
	"StockBacktester/internal/services/cache"
	"StockBacktester/internal/services/indicators"
)

const (
	StatusOpen   = models.TradeStatusOpen
	StatusClosed = models.TradeStatusClosed

	// OverheatMarker tags exit reasons that allow a later re-entry.
	OverheatMarker = "overheat"

	// PriceDecimals is the precision of per-share prices and profits.
	// Crypto quotes routinely sit below one cent.
	PriceDecimals = 8
)

// EntryStrategy decides whether to open a position on bar index.
// A nil signal means no entry.
type EntryStrategy interface {
	CheckEntry(index int, pos *Position) *Signal
}

// ExitStrategy decides whether to close (fully or partially) an open
// position on bar index. A nil signal means hold.
type ExitStrategy interface {
	CheckExit(index int, pos *Position) *Signal
}

// Signal is what a strategy returns when it fires.
type Signal struct {
	Reason string

	// Status is empty or "closed" for a full close. Anything else, for
	// example "closed-50%", records a partial exit of Ratio.
	Status string
	Ratio  float64

	// Entry payload.
	Rule       string
	Day2Low    float64
	TakeProfit *TakeProfitPlan
	Confidence float64
}

// IsFullClose reports whether the signal closes the whole position.
func (s *Signal) IsFullClose() bool {
	return s.Status == "" || s.Status == StatusClosed
}

// PartialStatus renders the status tag of a partial exit, e.g. closed-5%.
func PartialStatus(pct float64) string {
	return StatusClosed + "-" + strconv.FormatFloat(indicators.Round(pct, 2), 'f', -1, 64) + "%"
}

// TakeProfitPlan scales out at two price levels.
type TakeProfitPlan struct {
	Profit1At   float64
	Scale1Ratio float64
	Profit2At   float64
	Scale2Ratio float64
}

type PartialExit struct {
	Date   time.Time
	Index  int
	Price  float64
	Ratio  float64
	Reason string
}

// Position is one trade from entry to exit. Besides the trade record it
// carries the scratch state of the exit strategies that manage it.
type Position struct {
	Symbol string
	Status string

	EntryIndex  int
	EntryDate   time.Time
	EntryPrice  float64
	EntryReason string
	Breakout    bool
	Reentry     bool
	Rule        string
	Day2Low     float64
	TakeProfit  *TakeProfitPlan

	PartialExits []PartialExit

	ExitIndex  int
	ExitDate   time.Time
	ExitPrice  float64
	ExitReason string
	Duration   float64 // days
	Profit     float64
	ProfitRate float64
	PnL        float64 // percent

	TrailingStop    float64
	TookProfit      bool
	TookProfit1     bool
	TookProfit2     bool
	SeenAboveMiddle bool
}

// NewClosedPosition is the idle state before any entry.
func NewClosedPosition(symbol string) *Position {
	return &Position{Symbol: symbol, Status: StatusClosed}
}

// OpenPosition starts a trade at bar index from an entry signal.
func OpenPosition(symbol string, index int, bar models.Bar, sig *Signal) *Position {
	return &Position{
		Symbol:      symbol,
		Status:      StatusOpen,
		EntryIndex:  index,
		EntryDate:   bar.Date,
		EntryPrice:  bar.Close,
		EntryReason: sig.Reason,
		Rule:        sig.Rule,
		Day2Low:     sig.Day2Low,
		TakeProfit:  sig.TakeProfit,
	}
}

func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// AddPartial records a partial fill at the bar close. The position stays open.
func (p *Position) AddPartial(index int, bar models.Bar, sig *Signal) {
	p.PartialExits = append(p.PartialExits, PartialExit{
		Date:   bar.Date,
		Index:  index,
		Price:  bar.Close,
		Ratio:  sig.Ratio,
		Reason: sig.Reason,
	})
}

// Close finalizes the trade at the bar close. Closing on the entry's own
// calendar day does nothing and returns false.
//
// Profit is per share, FillPrice minus EntryPrice, kept to PriceDecimals.
func (p *Position) Close(index int, bar models.Bar, reason string) bool {
	if !p.IsOpen() || models.SameDay(p.EntryDate, bar.Date) {
		return false
	}

	p.ExitIndex = index
	p.ExitDate = bar.Date
	p.ExitPrice = bar.Close
	p.Duration = indicators.Round(bar.Date.Sub(p.EntryDate).Hours()/24, 2)

	var reasons []string
	for _, pe := range p.PartialExits {
		reasons = append(reasons, fmt.Sprintf("%s: partial exit at %s: %s",
			pe.Date.Format("2006-01-02"), strconv.FormatFloat(pe.Price, 'f', -1, 64), pe.Reason))
	}

	profit := p.FillPrice() - p.EntryPrice
	p.Profit = indicators.Round(profit, PriceDecimals)
	p.ProfitRate = p.rate(profit)
	p.PnL = indicators.Round(p.ProfitRate*100, 2)

	p.ExitReason = strings.Join(append(reasons, reason), "\n")
	p.Status = StatusClosed
	return true
}

// FillPrice is the average per-share exit price. Each partial fill adds
// its ratio of (price-entry) and the unfilled remainder, with the filled
// ratio clamped to [0,1], is valued at ExitPrice.
func (p *Position) FillPrice() float64 {
	if len(p.PartialExits) == 0 {
		return p.ExitPrice
	}
	filled, gain := 0.0, 0.0
	for _, pe := range p.PartialExits {
		filled += pe.Ratio
		gain += pe.Ratio * (pe.Price - p.EntryPrice)
	}
	filled = min(1, max(0, filled))
	return indicators.Round(p.EntryPrice+gain+(1-filled)*(p.ExitPrice-p.EntryPrice), PriceDecimals)
}

func (p *Position) rate(profit float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return indicators.Round(profit/p.EntryPrice, 4)
}

// IsOverheatExit reports whether the trade was closed by an overheat exit.
func (p *Position) IsOverheatExit() bool {
	return strings.Contains(p.ExitReason, OverheatMarker)
}

// Base holds the series every strategy of a run shares.
type Base struct {
	MA       indicators.Series
	VolumeMA indicators.Series
	MASlope  indicators.Series
}

// Input is what a strategy is built from.
type Input struct {
	Symbol string
	Bars   []models.Bar
	Params Params
	Base   Base
	Cache  *cache.IndicatorCache
}

// NewInput computes the base series for bars under params. c may be nil.
func NewInput(symbol string, bars []models.Bar, params Params, c *cache.IndicatorCache) *Input {
	ma := indicators.SMA(models.Closes(bars), params.MA)
	return &Input{
		Symbol: symbol,
		Bars:   bars,
		Params: params,
		Base: Base{
			MA:       ma,
			VolumeMA: indicators.SMA(models.Volumes(bars), params.VolumeMA),
			MASlope:  indicators.Slope(ma, params.Slope),
		},
		Cache: c,
	}
}

// Indicator resolves cfg through the cache when one is attached.
func (in *Input) Indicator(cfg indicators.Config) (*indicators.Frame, error) {
	if in.Cache != nil {
		return in.Cache.GetOrCompute(in.Symbol, in.Bars, cfg)
	}
	return indicators.Compute(in.Bars, cfg)
}
