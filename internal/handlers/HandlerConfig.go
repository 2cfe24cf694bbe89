package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"StockBacktester/config"
	"StockBacktester/internal/operations/backtest"
	"StockBacktester/internal/operations/investor"
	"StockBacktester/internal/services/strategy"
)

// ParamsFromConfig turns the backtest section into strategy params.
func ParamsFromConfig(c config.BacktestConfig) (strategy.Params, error) {
	entry, err := config.ParseDate(c.EntryDate)
	if err != nil {
		return strategy.Params{}, fmt.Errorf("entry date: %w", err)
	}
	exit, err := config.ParseDate(c.ExitDate)
	if err != nil {
		return strategy.Params{}, fmt.Errorf("exit date: %w", err)
	}

	p := strategy.Params{
		MA:         c.MA,
		Threshold:  c.Threshold,
		VolumeRate: c.VolumeRate,
		VolumeMA:   c.VolumeMA,
		Slope:      c.Slope,
		Breakout:   c.Breakout,
		Reentry:    c.Reentry,
		EntryDate:  entry,
		ExitDate:   exit,
		Entry:      c.Entry,
		Exits:      append([]string(nil), c.Exits...),
	}
	for name, value := range c.Extra {
		if err := p.Set(name, value); err != nil {
			return strategy.Params{}, err
		}
	}
	return p, p.Validate()
}

// InvestorConfig turns the investor section into investor settings.
func InvestorConfig(c config.InvestorConfig, workers int) investor.Config {
	cfg := investor.NewConfig()
	cfg.Workers = workers
	if c.Lookback > 0 {
		cfg.Lookback = c.Lookback
	}
	cfg.Options = investor.Options{
		Sizing:     investor.Sizing(c.Sizing),
		Fraction:   c.Fraction,
		MaxShares:  c.MaxShares,
		MinBalance: c.MinBalance,
		Fees: strategy.Fees{
			BuyRate:  c.Fees.BuyRate,
			SellRate: c.Fees.SellRate,
			MinFee:   c.Fees.MinFee,
		},
	}
	return cfg
}

// ParseGrid reads a grid such as "ma=10,20,30;threshold=0.005,0.01".
func ParseGrid(s string) (backtest.Grid, error) {
	grid := make(backtest.Grid)
	for _, axis := range strings.Split(s, ";") {
		axis = strings.TrimSpace(axis)
		if axis == "" {
			continue
		}
		name, list, ok := strings.Cut(axis, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("grid axis %q: want name=v1,v2: %w", axis, backtest.ErrInvalidGrid)
		}
		if _, dup := grid[name]; dup {
			return nil, fmt.Errorf("grid axis %q repeated: %w", name, backtest.ErrInvalidGrid)
		}
		var values []float64
		for _, raw := range strings.Split(list, ",") {
			if raw = strings.TrimSpace(raw); raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("grid axis %q: %w: %w", name, backtest.ErrInvalidGrid, err)
			}
			values = append(values, v)
		}
		grid[name] = values
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("empty grid: %w", backtest.ErrInvalidGrid)
	}
	return grid, nil
}
