package bars

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"StockBacktester/internal/models"
)

var now = time.Date(2024, 6, 10, 15, 0, 0, 0, time.UTC)

type request struct {
	from, to time.Time
}

type fakeSource struct {
	mu       sync.Mutex
	bars     map[string][]models.Bar
	errs     map[string]error
	requests map[string]request
}

func (f *fakeSource) DailyBars(_ context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requests == nil {
		f.requests = make(map[string]request)
	}
	f.requests[symbol] = request{from: from, to: to}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

type fakeStore struct {
	mu     sync.Mutex
	latest map[string]*models.Bar
	saved  map[string][]models.Bar
}

func (f *fakeStore) Latest(_ context.Context, symbol string) (*models.Bar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[symbol], nil
}

func (f *fakeStore) Upsert(_ context.Context, bars []models.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]models.Bar)
	}
	for _, b := range bars {
		f.saved[b.Symbol] = append(f.saved[b.Symbol], b)
	}
	return nil
}

func bar(symbol string, day int, close, diff float64) models.Bar {
	return models.Bar{Symbol: symbol, Date: time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC), Close: close, Diff: diff}
}

func newTestSyncer(source Source, store Store, symbols ...string) *Syncer {
	s := NewSyncer(source, store, symbols, 30, 2)
	s.now = func() time.Time { return now }
	return s
}

func TestSyncSymbolWindow(t *testing.T) {
	source := &fakeSource{bars: map[string][]models.Bar{
		"NEW": {bar("NEW", 9, 10, 0)},
		"OLD": {bar("OLD", 8, 12, 0), bar("OLD", 9, 13, 1)},
	}}
	store := &fakeStore{latest: map[string]*models.Bar{
		"OLD": ptr(bar("OLD", 8, 11, 0.5)),
	}}
	s := newTestSyncer(source, store)

	if _, err := s.SyncSymbol(context.Background(), "NEW"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC); !source.requests["NEW"].from.Equal(want) {
		t.Fatalf("expected a full history from %v, got %v", want, source.requests["NEW"].from)
	}

	n, err := s.SyncSymbol(context.Background(), "OLD")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 bars, got %d (%v)", n, err)
	}
	if !source.requests["OLD"].from.Equal(store.latest["OLD"].Date) {
		t.Fatalf("expected the download to resume at the latest day")
	}
	// refreshed day 8 chains onto the stored previous close 10.5
	if got := store.saved["OLD"][0].Diff; got != 1.5 {
		t.Fatalf("expected the refreshed diff 1.5, got %v", got)
	}
}

func TestChainDiffAfterGap(t *testing.T) {
	first := bar("X", 12, 20, 0)
	chainDiff(&first, ptr(bar("X", 9, 18, 1)))
	if first.Diff != 2 {
		t.Fatalf("expected diff 2 from the latest close, got %v", first.Diff)
	}
}

func TestSyncKeepsGoingOnFailure(t *testing.T) {
	errDown := errors.New("down")
	source := &fakeSource{
		bars: map[string][]models.Bar{
			"AAA": {bar("AAA", 9, 1, 0), bar("AAA", 10, 2, 1)},
			"CCC": nil,
		},
		errs: map[string]error{"BBB": errDown},
	}
	store := &fakeStore{}

	stored, err := newTestSyncer(source, store, "AAA", "BBB", "CCC").Sync(context.Background())
	if !errors.Is(err, errDown) {
		t.Fatalf("expected the BBB failure, got %v", err)
	}
	if stored["AAA"] != 2 {
		t.Fatalf("expected AAA synced, got %v", stored)
	}
	if n, ok := stored["CCC"]; !ok || n != 0 {
		t.Fatalf("expected CCC synced with no bars, got %v", stored)
	}
	if _, ok := stored["BBB"]; ok {
		t.Fatalf("BBB should not be reported as synced")
	}
}

func ptr(b models.Bar) *models.Bar {
	return &b
}
