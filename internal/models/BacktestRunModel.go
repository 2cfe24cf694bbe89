package models

import "time"

// BacktestRun is one persisted single-instrument backtest.
type BacktestRun struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)"`
	Symbol    string    `gorm:"index;not null"`
	Entry     string    `gorm:"not null"`
	Exits     string    `gorm:"not null"` // comma separated registry keys
	MA        int       `gorm:"not null"`
	Params    string    `gorm:"type:text"` // JSON encoded strategy params
	StartDate time.Time `gorm:"index"`
	EndDate   time.Time `gorm:"index"`

	Profit         float64 `gorm:"type:decimal(20,8)"`
	Loss           float64 `gorm:"type:decimal(20,8)"`
	ProfitRate     float64 `gorm:"type:decimal(20,8)"`
	WinRate        float64 `gorm:"type:decimal(20,8)"`
	PnL            float64 `gorm:"type:decimal(20,8)"`
	Expectation    float64 `gorm:"type:decimal(20,8)"`
	MaxDrawdown    float64 `gorm:"type:decimal(20,8)"`
	BreakoutRate   float64 `gorm:"type:decimal(20,8)"`
	Reentry        int
	ReentryWinRate float64 `gorm:"type:decimal(20,8)"`
	ReentryProfit  float64 `gorm:"type:decimal(20,8)"`
	TradeCount     int

	Trades []TradeRecord `gorm:"foreignKey:RunID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TradeRecord is one trade of a BacktestRun.
type TradeRecord struct {
	ID          uint      `gorm:"primaryKey"`
	RunID       string    `gorm:"index;not null;type:varchar(36)"`
	Symbol      string    `gorm:"index;not null"`
	Status      string    `gorm:"not null"`
	EntryDate   time.Time `gorm:"index;not null"`
	EntryPrice  float64   `gorm:"type:decimal(20,8);not null"`
	EntryReason string    `gorm:"type:text"`
	Breakout    bool
	Reentry     bool
	ExitDate    *time.Time `gorm:"index"`
	ExitPrice   float64    `gorm:"type:decimal(20,8)"`
	ExitReason  string     `gorm:"type:text"`
	Duration    float64
	Profit      float64 `gorm:"type:decimal(20,8)"`
	ProfitRate  float64 `gorm:"type:decimal(20,8)"`
	PnL         float64 `gorm:"type:decimal(20,8)"`
}

const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)
