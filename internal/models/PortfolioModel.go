package models

import (
	"time"
)

// PortfolioRun is one persisted investor simulation.
type PortfolioRun struct {
	ID            string    `gorm:"primaryKey;type:varchar(36)"`
	EntryDate     time.Time `gorm:"index;not null"`
	ExitDate      time.Time `gorm:"index;not null"`
	Codes         string    `gorm:"type:text"`
	InitialMoney  float64   `gorm:"type:decimal(20,2);not null"`
	FinalMoney    float64   `gorm:"type:decimal(20,2);not null"`
	TotalProfit   float64   `gorm:"type:decimal(20,2)"`
	NetProfit     float64   `gorm:"type:decimal(20,2)"`
	Fees          float64   `gorm:"type:decimal(20,2)"`
	TradeCount    int
	WinRate       float64 `gorm:"type:decimal(20,8)"`
	MaxDrawdown   float64 `gorm:"type:decimal(20,2)"`
	UnclosedCount int
	Ledger        string `gorm:"type:text"`

	Events []PortfolioEvent `gorm:"foreignKey:RunID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// PortfolioEvent is a buy or sell in a PortfolioRun.
type PortfolioEvent struct {
	ID      uint      `gorm:"primaryKey"`
	RunID   string    `gorm:"index;not null;type:varchar(36)"`
	Type    string    `gorm:"not null"`
	Date    time.Time `gorm:"index;not null"`
	Code    string    `gorm:"index;not null"`
	Price   float64   `gorm:"type:decimal(20,8);not null"`
	Amount  int64     `gorm:"not null"`
	Fee     float64   `gorm:"type:decimal(20,2)"`
	Profit  float64   `gorm:"type:decimal(20,2)"`
	Balance float64   `gorm:"type:decimal(20,2)"`
	Reason  string    `gorm:"type:text"`
}

const (
	EventTypeBuy  = "buy"
	EventTypeSell = "sell"
)
