package indicators

import (
	"fmt"
	"math"

	"StockBacktester/internal/models"
)

type BBandsService struct{}

type BBandsResult struct {
	Upper     Series
	Middle    Series
	Lower     Series
	Bandwidth Series // (upper - lower) / middle
}

func NewBBandsService() *BBandsService {
	return &BBandsService{}
}

// Calculate returns the bands around SMA(close, period) at k population
// standard deviations.
//
// Unlike the other calculators, which return absent values on short input,
// this one fails with ErrInsufficientData when len(bars) < period. Callers
// depend on that and it is kept on purpose.
func (s *BBandsService) Calculate(bars []models.Bar, period int, k float64) (*BBandsResult, error) {
	if period <= 0 {
		period = 20
	}
	if k == 0 {
		k = 2
	}
	if len(bars) < period {
		return nil, fmt.Errorf("bollinger bands need %d bars, got %d: %w", period, len(bars), ErrInsufficientData)
	}

	n := len(bars)
	closes := models.Closes(bars)
	middle := SMA(closes, period)
	res := &BBandsResult{
		Upper:     NewSeries(n),
		Middle:    middle,
		Lower:     NewSeries(n),
		Bandwidth: NewSeries(n),
	}

	for i := period - 1; i < n; i++ {
		sma := middle[i]
		squareSum := 0.0
		for _, price := range closes[i-period+1 : i+1] {
			diff := price - sma
			squareSum += diff * diff
		}
		stdDev := math.Sqrt(squareSum / float64(period))

		res.Upper[i] = sma + k*stdDev
		res.Lower[i] = sma - k*stdDev
		if sma != 0 {
			res.Bandwidth[i] = (res.Upper[i] - res.Lower[i]) / sma
		}
	}
	return res, nil
}
