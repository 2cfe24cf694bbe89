package indicators

import (
	"math"

	"StockBacktester/internal/models"
)

type KDJService struct{}

type KDJConfig struct {
	Period int
	K      int
	D      int

	// Crossing bands. High is the overbought line a dead cross falls through.
	Low  float64
	Mid  float64
	High float64
}

type KDJResult struct {
	K      Series
	D      Series
	J      Series
	Golden Flags
	Dead   Flags
}

func DefaultKDJConfig() KDJConfig {
	return KDJConfig{Period: 9, K: 3, D: 3, Low: 20, Mid: 50, High: 80}
}

func NewKDJService() *KDJService {
	return &KDJService{}
}

// Calculate computes the stochastic K, D and J lines. K and D start at 50.
func (s *KDJService) Calculate(bars []models.Bar, cfg KDJConfig) *KDJResult {
	cfg = s.withDefaults(cfg)
	n := len(bars)
	res := &KDJResult{K: NewSeries(n), D: NewSeries(n), J: NewSeries(n)}

	prevK, prevD := 50.0, 50.0
	for i := cfg.Period - 1; i < n; i++ {
		highN, lowN := math.Inf(-1), math.Inf(1)
		for _, b := range bars[i-cfg.Period+1 : i+1] {
			highN = math.Max(highN, b.High)
			lowN = math.Min(lowN, b.Low)
		}

		rsv := 50.0
		if highN != lowN {
			rsv = (bars[i].Close - lowN) / (highN - lowN) * 100
		}

		k := (prevK*float64(cfg.K-1) + rsv) / float64(cfg.K)
		d := (prevD*float64(cfg.D-1) + k) / float64(cfg.D)
		res.K[i] = k
		res.D[i] = d
		res.J[i] = 3*k - 2*d
		prevK, prevD = k, d
	}

	res.Golden, res.Dead = DetectKDJCrossovers(res.K, cfg)
	return res
}

// DetectKDJCrossovers uses band crossings on K. Golden fires when K rises
// through the low band, or rises through the mid band while the highest K
// seen since the last golden is above the mid band. Dead fires when K falls
// through the high band.
func DetectKDJCrossovers(k Series, cfg KDJConfig) (golden, dead Flags) {
	golden = make(Flags, len(k))
	dead = make(Flags, len(k))

	lastTop := 0.0
	for i := 1; i < len(k); i++ {
		prev, curr := k[i-1], k[i]
		if !allValid(prev, curr) {
			continue
		}

		if curr > prev && curr > cfg.Low && prev <= cfg.Low {
			golden[i] = true
			lastTop = 0
		}
		if lastTop > cfg.Mid && curr > cfg.Mid && curr > prev && prev <= cfg.Mid {
			golden[i] = true
			lastTop = 0
		} else if curr > lastTop {
			lastTop = curr
		}

		if prev >= cfg.High && curr < cfg.High {
			dead[i] = true
		}
	}
	return golden, dead
}

func (s *KDJService) withDefaults(cfg KDJConfig) KDJConfig {
	def := DefaultKDJConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.K <= 0 {
		cfg.K = def.K
	}
	if cfg.D <= 0 {
		cfg.D = def.D
	}
	if cfg.Low == 0 {
		cfg.Low = def.Low
	}
	if cfg.Mid == 0 {
		cfg.Mid = def.Mid
	}
	if cfg.High == 0 {
		cfg.High = def.High
	}
	return cfg
}
