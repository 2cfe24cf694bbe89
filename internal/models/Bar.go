package models

import (
	"time"
)

// Bar is one trading day of one instrument. It doubles as the daily_bars row.
type Bar struct {
	ID     uint      `gorm:"primaryKey" json:"-"`
	Symbol string    `gorm:"uniqueIndex:idx_bar_symbol_date;not null" json:"symbol"`
	Date   time.Time `gorm:"uniqueIndex:idx_bar_symbol_date;not null" json:"date"`
	Open   float64   `gorm:"type:decimal(20,8)" json:"open"`
	High   float64   `gorm:"type:decimal(20,8)" json:"high"`
	Low    float64   `gorm:"type:decimal(20,8)" json:"low"`
	Close  float64   `gorm:"type:decimal(20,8)" json:"close"`
	Volume float64   `gorm:"type:decimal(28,8)" json:"volume"`
	Diff   float64   `gorm:"type:decimal(20,8)" json:"diff"` // close minus previous close
}

// TableName sets the table name for Bar model
func (Bar) TableName() string {
	return "daily_bars"
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Closes extracts the close column.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Volumes extracts the volume column.
func Volumes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
