package handlers

import (
	"context"
	"log"

	"StockBacktester/internal/operations/bars"
)

// BarHandler keeps the bar store in sync with the exchange.
type BarHandler struct {
	syncer *bars.Syncer
}

func NewBarHandler(source bars.Source, store bars.Store, symbols []string, historyDays, workers int) *BarHandler {
	return &BarHandler{
		syncer: bars.NewSyncer(source, store, symbols, historyDays, workers),
	}
}

// Sync downloads the missing daily bars of every symbol.
func (h *BarHandler) Sync(ctx context.Context) error {
	stored, err := h.syncer.Sync(ctx)
	total := 0
	for _, n := range stored {
		total += n
	}
	log.Printf("Bar sync stored %d bars for %d symbols", total, len(stored))
	return err
}
