package bars

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"StockBacktester/internal/models"
)

// Source downloads daily bars, oldest first.
type Source interface {
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error)
}

// Store persists daily bars.
type Store interface {
	Latest(ctx context.Context, symbol string) (*models.Bar, error)
	Upsert(ctx context.Context, bars []models.Bar) error
}

// Syncer keeps the bar store current: a symbol without bars gets
// historyDays of history, otherwise the download resumes at its latest
// stored day, which is refreshed.
type Syncer struct {
	source      Source
	store       Store
	symbols     []string
	historyDays int
	workers     int
	now         func() time.Time
}

func NewSyncer(source Source, store Store, symbols []string, historyDays, workers int) *Syncer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Syncer{
		source:      source,
		store:       store,
		symbols:     symbols,
		historyDays: historyDays,
		workers:     workers,
		now:         time.Now,
	}
}

// Sync syncs every symbol concurrently. A failing symbol does not stop
// the others; the failures are joined into the returned error. The map
// holds the number of bars stored per synced symbol.
func (s *Syncer) Sync(ctx context.Context) (map[string]int, error) {
	var (
		mu     sync.Mutex
		stored = make(map[string]int, len(s.symbols))
		errs   []error
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, symbol := range s.symbols {
		symbol := symbol
		g.Go(func() error {
			n, err := s.SyncSymbol(ctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("Error syncing bars for %s: %v", symbol, err)
				errs = append(errs, err)
				return nil
			}
			stored[symbol] = n
			return nil
		})
	}
	_ = g.Wait()
	return stored, errors.Join(errs...)
}

// SyncSymbol downloads and stores the missing bars of one symbol.
func (s *Syncer) SyncSymbol(ctx context.Context, symbol string) (int, error) {
	latest, err := s.store.Latest(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("latest bar of %s: %w", symbol, err)
	}

	to := s.now().UTC()
	from := models.StartOfDay(to).AddDate(0, 0, -s.historyDays)
	if latest != nil {
		from = latest.Date
	}

	bars, err := s.source.DailyBars(ctx, symbol, from, to)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if latest != nil {
		chainDiff(&bars[0], latest)
	}

	if err := s.store.Upsert(ctx, bars); err != nil {
		return 0, fmt.Errorf("store %s: %w", symbol, err)
	}
	log.Printf("Synced %d daily bars for %s from %s to %s",
		len(bars),
		symbol,
		bars[0].Date.Format("2006-01-02"),
		bars[len(bars)-1].Date.Format("2006-01-02"))
	return len(bars), nil
}

// chainDiff sets the diff of the first downloaded bar from the stored
// history, since the download starts without a previous close.
func chainDiff(first *models.Bar, latest *models.Bar) {
	if models.SameDay(first.Date, latest.Date) {
		first.Diff = first.Close - (latest.Close - latest.Diff)
		return
	}
	first.Diff = first.Close - latest.Close
}
