package indicators

import (
	"math"

	"StockBacktester/internal/models"
)

type ATRService struct{}

type ATRResult struct {
	TR   Series
	ATR  Series
	NATR Series // ATR as a percentage of close
}

func NewATRService() *ATRService {
	return &ATRService{}
}

// TrueRange is max(H-L, |H-Cprev|, |L-Cprev|). The first bar has no range.
func TrueRange(bars []models.Bar) Series {
	out := NewSeries(len(bars))
	for i := 1; i < len(bars); i++ {
		out[i] = trueRange(bars[i], bars[i-1].Close)
	}
	return out
}

func trueRange(b models.Bar, prevClose float64) float64 {
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
}

// Calculate seeds a running sum with TR[1..period] and then applies
// Wilder's recurrence sum = sum - sum/period + TR. ATR is sum/period.
func (s *ATRService) Calculate(bars []models.Bar, period int) *ATRResult {
	if period <= 0 {
		period = 14
	}
	n := len(bars)
	tr := TrueRange(bars)
	res := &ATRResult{TR: tr, ATR: NewSeries(n), NATR: NewSeries(n)}
	if n <= period {
		return res
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	for i := period; i < n; i++ {
		if i > period {
			sum = sum - sum/float64(period) + tr[i]
		}
		atr := sum / float64(period)
		res.ATR[i] = atr
		if bars[i].Close != 0 {
			res.NATR[i] = atr / bars[i].Close * 100
		}
	}
	return res
}
