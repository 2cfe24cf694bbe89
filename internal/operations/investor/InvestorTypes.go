package investor

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"StockBacktester/internal/operations/backtest"
	"StockBacktester/internal/services/strategy"
)

const (
	DefaultCapital  = 2000000
	DefaultLookback = 400 // calendar days of warm-up before entryDate
)

var ErrInvalidOptions = errors.New("invalid investor options")

// Sizing picks how many shares a buy takes.
type Sizing string

const (
	// SizingFraction spends min(balance, capital*Fraction).
	SizingFraction Sizing = "fraction"
	// SizingShares buys as many shares as the balance allows, capped at MaxShares.
	SizingShares Sizing = "shares"
)

// Options is the allocation policy of a simulation.
type Options struct {
	Sizing     Sizing
	Fraction   float64
	MaxShares  int64
	MinBalance float64 // no buys below this balance
	Fees       strategy.Fees
}

func DefaultOptions() Options {
	return Options{
		Sizing:     SizingFraction,
		Fraction:   0.25,
		MaxShares:  1000,
		MinBalance: 3000,
		Fees: strategy.Fees{
			BuyRate:  0.000855,
			SellRate: 0.002655,
			MinFee:   20,
		},
	}
}

func (o Options) Validate() error {
	switch o.Sizing {
	case SizingFraction:
		if o.Fraction <= 0 || o.Fraction > 1 {
			return fmt.Errorf("%w: fraction %v must be in (0,1]", ErrInvalidOptions, o.Fraction)
		}
	case SizingShares:
		if o.MaxShares <= 0 {
			return fmt.Errorf("%w: maxShares must be positive", ErrInvalidOptions)
		}
	default:
		return fmt.Errorf("%w: unknown sizing %q", ErrInvalidOptions, o.Sizing)
	}
	if o.MinBalance < 0 || o.Fees.BuyRate < 0 || o.Fees.SellRate < 0 || o.Fees.MinFee < 0 {
		return fmt.Errorf("%w: negative balance floor or fee", ErrInvalidOptions)
	}
	return nil
}

// withFees overlays the non-zero fields of f.
func (o Options) withFees(f strategy.Fees) Options {
	if f.BuyRate > 0 {
		o.Fees.BuyRate = f.BuyRate
	}
	if f.SellRate > 0 {
		o.Fees.SellRate = f.SellRate
	}
	if f.MinFee > 0 {
		o.Fees.MinFee = f.MinFee
	}
	return o
}

// Holding is one trade the portfolio actually took.
type Holding struct {
	Code   string `json:"code"`
	MA     int    `json:"ma"`
	Amount int64  `json:"amount"`

	EntryDate    time.Time       `json:"entryDate"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	EntryReason  string          `json:"entryReason"`
	EntryBalance decimal.Decimal `json:"entryBalance"` // balance left after the buy

	Closed     bool            `json:"closed"`
	ExitDate   time.Time       `json:"exitDate,omitempty"`
	ExitPrice  decimal.Decimal `json:"exitPrice"`
	ExitReason string          `json:"exitReason,omitempty"`
	// MarketPrice is the mark-to-market close of a holding still open at the end.
	MarketPrice decimal.Decimal `json:"marketPrice"`

	Profit    decimal.Decimal `json:"profit"` // before fees
	Fee       decimal.Decimal `json:"fee"`    // buy plus sell
	CumProfit decimal.Decimal `json:"cumProfit"`
	Balance   decimal.Decimal `json:"balance"` // after the sell

	Breakout bool `json:"breakout"`
	Reentry  bool `json:"reentry"`

	trade *backtest.Trade
}

// Event is a buy or a sell, with the balance after it.
type Event struct {
	Type    string          `json:"type"` // models.EventTypeBuy or models.EventTypeSell
	Date    time.Time       `json:"date"`
	Code    string          `json:"code"`
	MA      int             `json:"ma"`
	Price   decimal.Decimal `json:"price"`
	Amount  int64           `json:"amount"`
	Fee     decimal.Decimal `json:"fee"`
	Profit  decimal.Decimal `json:"profit"`
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason"`
}

// Summary is the portfolio outcome.
type Summary struct {
	EntryDate    time.Time       `json:"entryDate"`
	ExitDate     time.Time       `json:"exitDate"`
	CodeCount    int             `json:"codeCount"`
	InitialMoney decimal.Decimal `json:"initialMoney"`
	FinalMoney   decimal.Decimal `json:"finalMoney"`

	RealizedProfit   decimal.Decimal `json:"realizedProfit"`
	UnrealizedProfit decimal.Decimal `json:"unrealizedProfit"`
	TotalProfit      decimal.Decimal `json:"totalProfit"`
	ProfitRate       float64         `json:"profitRate"`
	Fees             decimal.Decimal `json:"fees"`
	NetProfit        decimal.Decimal `json:"netProfit"`
	NetProfitRate    float64         `json:"netProfitRate"`

	TradeCount   int             `json:"tradeCount"`
	Wins         int             `json:"wins"`
	WinRate      float64         `json:"winRate"`
	GrossProfit  decimal.Decimal `json:"grossProfit"`
	Loss         decimal.Decimal `json:"loss"`
	PnL          float64         `json:"pnl"`
	Expectation  float64         `json:"expectation"`
	BreakoutRate float64         `json:"breakoutRate"`

	Reentry        int             `json:"reentry"`
	ReentryWins    int             `json:"reentryWins"`
	ReentryWinRate float64         `json:"reentryWinRate"`
	ReentryProfit  decimal.Decimal `json:"reentryProfit"`

	MaxDrawdown decimal.Decimal `json:"maxDrawdown"` // over cumulative realized profit, <= 0

	UnclosedCount int             `json:"unclosedCount"`
	UnclosedValue decimal.Decimal `json:"unclosedValue"`
}

// Report is what Invest and Simulate return.
type Report struct {
	Entry   string   `json:"entry"`
	Exits   []string `json:"exits"`
	Summary Summary  `json:"summary"`
	Events  []Event  `json:"events"`
	// ByCode groups the holdings of every code in buy order.
	ByCode   map[string][]*Holding `json:"byCode"`
	Closed   []*Holding            `json:"-"` // in sell order
	Unclosed []*Holding            `json:"-"`
	Results  []*backtest.Result    `json:"-"`
}
