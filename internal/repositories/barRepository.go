package repositories

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"StockBacktester/internal/models"
)

const upsertBatchSize = 500

type BarRepository struct {
	db *gorm.DB
}

// NewBarRepository creates a new instance of BarRepository
func NewBarRepository(db *gorm.DB) *BarRepository {
	return &BarRepository{db: db}
}

// Upsert inserts bars, overwriting the prices of rows that already exist
// for the same symbol and day.
func (r *BarRepository) Upsert(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume", "diff"}),
		}).
		CreateInBatches(&bars, upsertBatchSize).Error
}

// Bars gets the bars of a symbol between from and to inclusive, oldest
// first. It implements investor.BarSource.
func (r *BarRepository) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}

	var bars []models.Bar
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND date BETWEEN ? AND ?", symbol, from, to).
		Order("date ASC").
		Find(&bars).Error
	toUTC(bars)

	log.Printf("Got %d bars for %s from %s to %s",
		len(bars),
		symbol,
		from.Format("2006-01-02"),
		to.Format("2006-01-02"))

	return bars, err
}

// Latest gets the most recent bar of a symbol, nil when there is none.
func (r *BarRepository) Latest(ctx context.Context, symbol string) (*models.Bar, error) {
	if symbol == "" {
		return nil, errors.New("invalid symbol")
	}

	var bar models.Bar
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("date DESC").
		First(&bar).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	bar.Date = bar.Date.UTC()
	return &bar, nil
}

// toUTC moves bar dates back to UTC. The driver returns timestamptz in the
// session zone, which can put midnight UTC on the previous calendar day.
func toUTC(bars []models.Bar) {
	for i := range bars {
		bars[i].Date = bars[i].Date.UTC()
	}
}
