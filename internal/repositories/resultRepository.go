package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"StockBacktester/internal/models"
	"StockBacktester/internal/operations/backtest"
	"StockBacktester/internal/operations/investor"
)

// ResultRepository stores backtest and portfolio runs.
type ResultRepository struct {
	db *gorm.DB
}

// NewResultRepository creates a new instance of ResultRepository
func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// SaveBacktest stores a backtest result with its trades in one transaction.
func (r *ResultRepository) SaveBacktest(ctx context.Context, res *backtest.Result) (*models.BacktestRun, error) {
	if res == nil {
		return nil, errors.New("result cannot be nil")
	}
	run, err := toBacktestRun(res)
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(run).Error; err != nil {
			return fmt.Errorf("create backtest run: %w", err)
		}
		if len(run.Trades) == 0 {
			return nil
		}
		if err := tx.Create(&run.Trades).Error; err != nil {
			return fmt.Errorf("create trades: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// SavePortfolio stores an investor report with its events in one transaction.
func (r *ResultRepository) SavePortfolio(ctx context.Context, codes []string, report *investor.Report) (*models.PortfolioRun, error) {
	if report == nil {
		return nil, errors.New("report cannot be nil")
	}
	run := toPortfolioRun(codes, report)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(run).Error; err != nil {
			return fmt.Errorf("create portfolio run: %w", err)
		}
		if len(run.Events) == 0 {
			return nil
		}
		if err := tx.Create(&run.Events).Error; err != nil {
			return fmt.Errorf("create portfolio events: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// FindBacktest retrieves a backtest run and its trades
func (r *ResultRepository) FindBacktest(ctx context.Context, id string) (*models.BacktestRun, error) {
	if id == "" {
		return nil, errors.New("invalid id")
	}
	var run models.BacktestRun
	err := r.db.WithContext(ctx).
		Preload("Trades", func(db *gorm.DB) *gorm.DB { return db.Order("entry_date ASC") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// FindPortfolio retrieves a portfolio run and its events
func (r *ResultRepository) FindPortfolio(ctx context.Context, id string) (*models.PortfolioRun, error) {
	if id == "" {
		return nil, errors.New("invalid id")
	}
	var run models.PortfolioRun
	err := r.db.WithContext(ctx).
		Preload("Events", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func toBacktestRun(res *backtest.Result) (*models.BacktestRun, error) {
	params, err := json.Marshal(res.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	run := &models.BacktestRun{
		ID:             uuid.NewString(),
		Symbol:         res.Symbol,
		Entry:          res.Params.Entry,
		Exits:          strings.Join(res.Params.Exits, ","),
		MA:             res.MA,
		Params:         string(params),
		StartDate:      res.StartDate,
		EndDate:        res.EndDate,
		Profit:         res.Profit,
		Loss:           res.Loss,
		ProfitRate:     res.ProfitRate,
		WinRate:        res.WinRate,
		PnL:            res.PnL,
		Expectation:    res.Expectation,
		MaxDrawdown:    res.MaxDrawdown,
		BreakoutRate:   res.BreakoutRate,
		Reentry:        res.Reentry,
		ReentryWinRate: res.ReentryWinRate,
		ReentryProfit:  res.ReentryProfit,
		TradeCount:     res.TradeCount,
	}

	run.Trades = make([]models.TradeRecord, 0, len(res.Trades))
	for _, t := range res.Trades {
		rec := models.TradeRecord{
			RunID:       run.ID,
			Symbol:      t.Symbol,
			Status:      t.Status,
			EntryDate:   t.EntryDate,
			EntryPrice:  t.EntryPrice,
			EntryReason: t.EntryReason,
			Breakout:    t.Breakout,
			Reentry:     t.Reentry,
		}
		if !t.IsOpen() {
			exit := t.ExitDate
			rec.ExitDate = &exit
			rec.ExitPrice = t.ExitPrice
			rec.ExitReason = t.ExitReason
			rec.Duration = t.Duration
			rec.Profit = t.Profit
			rec.ProfitRate = t.ProfitRate
			rec.PnL = t.PnL
		}
		run.Trades = append(run.Trades, rec)
	}
	return run, nil
}

func toPortfolioRun(codes []string, report *investor.Report) *models.PortfolioRun {
	s := report.Summary
	run := &models.PortfolioRun{
		ID:            uuid.NewString(),
		EntryDate:     s.EntryDate,
		ExitDate:      s.ExitDate,
		Codes:         strings.Join(codes, ","),
		InitialMoney:  s.InitialMoney.InexactFloat64(),
		FinalMoney:    s.FinalMoney.InexactFloat64(),
		TotalProfit:   s.TotalProfit.InexactFloat64(),
		NetProfit:     s.NetProfit.InexactFloat64(),
		Fees:          s.Fees.InexactFloat64(),
		TradeCount:    s.TradeCount,
		WinRate:       s.WinRate,
		MaxDrawdown:   s.MaxDrawdown.InexactFloat64(),
		UnclosedCount: s.UnclosedCount,
		Ledger:        report.Ledger(),
	}

	run.Events = make([]models.PortfolioEvent, 0, len(report.Events))
	for _, ev := range report.Events {
		run.Events = append(run.Events, models.PortfolioEvent{
			RunID:   run.ID,
			Type:    ev.Type,
			Date:    ev.Date,
			Code:    ev.Code,
			Price:   ev.Price.InexactFloat64(),
			Amount:  ev.Amount,
			Fee:     ev.Fee.InexactFloat64(),
			Profit:  ev.Profit.InexactFloat64(),
			Balance: ev.Balance.InexactFloat64(),
			Reason:  ev.Reason,
		})
	}
	return run
}
