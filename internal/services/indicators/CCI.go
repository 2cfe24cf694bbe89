package indicators

import (
	"math"

	"StockBacktester/internal/models"
)

type CCIService struct{}

type CCIConfig struct {
	Period int
	Limit  float64
}

type CCIResult struct {
	CCI    Series
	Golden Flags // rises through -Limit
	Dead   Flags // falls through +Limit
}

func NewCCIService() *CCIService {
	return &CCIService{}
}

// Calculate computes (TP - SMA(TP)) / (0.015 * mean deviation).
// A flat window has zero deviation and yields 0.
func (s *CCIService) Calculate(bars []models.Bar, cfg CCIConfig) *CCIResult {
	if cfg.Period <= 0 {
		cfg.Period = 14
	}
	if cfg.Limit == 0 {
		cfg.Limit = 100
	}

	n := len(bars)
	tp := make([]float64, n)
	for i, b := range bars {
		tp[i] = (b.High + b.Low + b.Close) / 3
	}

	res := &CCIResult{CCI: NewSeries(n), Golden: make(Flags, n), Dead: make(Flags, n)}
	for i := cfg.Period - 1; i < n; i++ {
		window := tp[i-cfg.Period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(cfg.Period)

		dev := 0.0
		for _, v := range window {
			dev += math.Abs(v - mean)
		}
		dev /= float64(cfg.Period)

		if dev == 0 {
			res.CCI[i] = 0
			continue
		}
		res.CCI[i] = (tp[i] - mean) / (0.015 * dev)
	}

	for i := 1; i < n; i++ {
		prev, curr := res.CCI[i-1], res.CCI[i]
		if !allValid(prev, curr) {
			continue
		}
		res.Dead[i] = prev > cfg.Limit && curr <= cfg.Limit
		res.Golden[i] = prev < -cfg.Limit && curr >= -cfg.Limit
	}
	return res
}
