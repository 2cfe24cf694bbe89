package cache

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"StockBacktester/internal/models"
	"StockBacktester/internal/services/indicators"
)

// Key identifies one cached indicator frame. ParamsHash covers the
// canonical indicator config and a fingerprint of the bars it ran over.
type Key struct {
	Symbol     string
	Kind       string
	ParamsHash uint64
	DateBucket string
}

type generation struct {
	day     string
	entries sync.Map // Key -> *indicators.Frame
}

// IndicatorCache memoizes indicator frames for the current calendar day.
// When the day changes the whole map is swapped out. Two goroutines missing
// on the same key both compute; the last store wins and both results are
// equal.
type IndicatorCache struct {
	current atomic.Pointer[generation]
	now     func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
}

// NewIndicatorCache returns an empty cache. now defaults to time.Now.
func NewIndicatorCache(now func() time.Time) *IndicatorCache {
	if now == nil {
		now = time.Now
	}
	c := &IndicatorCache{now: now}
	c.current.Store(&generation{day: c.today()})
	return c
}

func (c *IndicatorCache) today() string {
	return c.now().Format("2006-01-02")
}

// load returns the generation for today, swapping in a fresh one if the
// stored generation is stale.
func (c *IndicatorCache) load() *generation {
	today := c.today()
	for {
		g := c.current.Load()
		if g.day == today {
			return g
		}
		if c.current.CompareAndSwap(g, &generation{day: today}) {
			return c.current.Load()
		}
	}
}

// GetOrCompute returns the cached frame for cfg over bars or computes and
// stores it. Errors are not cached.
func (c *IndicatorCache) GetOrCompute(symbol string, bars []models.Bar, cfg indicators.Config) (*indicators.Frame, error) {
	g := c.load()
	key := Key{
		Symbol:     symbol,
		Kind:       cfg.Kind,
		ParamsHash: ParamsHash(cfg, bars),
		DateBucket: g.day,
	}

	if v, ok := g.entries.Load(key); ok {
		c.hits.Add(1)
		return v.(*indicators.Frame), nil
	}
	c.misses.Add(1)

	frame, err := indicators.Compute(bars, cfg)
	if err != nil {
		return nil, err
	}
	g.entries.Store(key, frame)
	return frame, nil
}

// Len counts the entries of the current day.
func (c *IndicatorCache) Len() int {
	n := 0
	c.load().entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Stats returns the hit and miss counters since construction.
func (c *IndicatorCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// ParamsHash hashes the canonical config together with every bar's date
// and OHLCV values, so a revised bar anywhere in the set changes the key.
func ParamsHash(cfg indicators.Config, bars []models.Bar) uint64 {
	h := fnv.New64a()
	h.Write([]byte(cfg.Key()))

	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	put(uint64(len(bars)))
	for _, b := range bars {
		put(uint64(b.Date.Unix()))
		put(math.Float64bits(b.Open))
		put(math.Float64bits(b.High))
		put(math.Float64bits(b.Low))
		put(math.Float64bits(b.Close))
		put(math.Float64bits(b.Volume))
	}
	return h.Sum64()
}
