package binance

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"StockBacktester/internal/models"
)

const (
	dailyInterval = "1d"
	pageLimit     = 1000 // the futures endpoint caps a page at 1500
	dayMs         = int64(24 * time.Hour / time.Millisecond)
)

type fetchFunc func(ctx context.Context, symbol string, startTime, endTime int64, limit int) ([]*futures.Kline, error)

// KlineClient reads daily futures klines as bars. It is a bar source for
// the investor and the input of the bar syncer.
type KlineClient struct {
	rateLimiter *rate.Limiter
	fetch       fetchFunc
	maxRetries  int
	backoff     time.Duration
}

func NewKlineClient(apiKey, secretKey string) *KlineClient {
	// Create custom HTTP client with timeouts
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	return &KlineClient{
		// 10 requests per second with burst of 20
		rateLimiter: rate.NewLimiter(rate.Limit(10), 20),
		fetch: func(ctx context.Context, symbol string, startTime, endTime int64, limit int) ([]*futures.Kline, error) {
			return futuresClient.NewKlinesService().
				Symbol(symbol).
				Interval(dailyInterval).
				StartTime(startTime).
				EndTime(endTime).
				Limit(limit).
				Do(ctx)
		},
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
	}
}

// getKlines fetches one page, retrying with exponential backoff.
func (c *KlineClient) getKlines(ctx context.Context, symbol string, startTime, endTime int64) ([]*futures.Kline, error) {
	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := c.fetch(ctx, symbol, startTime, endTime, pageLimit)
		if err == nil {
			return klines, nil
		}
		if attempt == c.maxRetries {
			return nil, fmt.Errorf("klines %s after %d attempts: %w", symbol, attempt+1, err)
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * c.backoff
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// DailyBars returns the daily bars of symbol opening in [from, to], oldest
// first. Pages are requested until the range is covered.
func (c *KlineClient) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	startMs := from.UnixMilli()
	endMs := to.UnixMilli()

	var bars []models.Bar
	prevClose := math.NaN()
	for startMs <= endMs {
		klines, err := c.getKlines(ctx, symbol, startMs, endMs)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			bar, err := klineToBar(symbol, k, prevClose)
			if err != nil {
				return nil, err
			}
			bars = append(bars, bar)
			prevClose = bar.Close
		}
		next := klines[len(klines)-1].OpenTime + dayMs
		if next <= startMs {
			break
		}
		startMs = next
	}
	return bars, nil
}

// Bars implements investor.BarSource.
func (c *KlineClient) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	return c.DailyBars(ctx, symbol, from, to)
}

// klineToBar converts a daily kline. Diff is the change from prevClose,
// zero for the first bar.
func klineToBar(symbol string, k *futures.Kline, prevClose float64) (models.Bar, error) {
	var fields [5]float64
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("kline %s at %d: %w", symbol, k.OpenTime, err)
		}
		fields[i] = v
	}

	bar := models.Bar{
		Symbol: symbol,
		Date:   models.StartOfDay(time.UnixMilli(k.OpenTime).UTC()),
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}
	if !math.IsNaN(prevClose) {
		bar.Diff = bar.Close - prevClose
	}
	return bar, nil
}
