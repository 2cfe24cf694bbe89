package indicators

import (
	"StockBacktester/internal/models"
)

type RSIService struct{}

type RSIConfig struct {
	Period int
	Limit  float64 // overbought line
	Floor  float64 // oversold line
}

type RSIResult struct {
	RSI    Series
	Golden Flags // rises through Floor
	Dead   Flags // falls through Limit
	Bull   Flags // price falling while RSI and volume disagree
	Bear   Flags // price rising on weakening RSI and volume
}

func DefaultRSIConfig() RSIConfig {
	return RSIConfig{Period: 9, Limit: 80, Floor: 20}
}

func NewRSIService() *RSIService {
	return &RSIService{}
}

// Calculate uses Wilder smoothing seeded by the first period deltas.
// The first value sits at index Period.
func (s *RSIService) Calculate(bars []models.Bar, cfg RSIConfig) *RSIResult {
	cfg = s.withDefaults(cfg)
	n := len(bars)
	res := &RSIResult{
		RSI:    NewSeries(n),
		Golden: make(Flags, n),
		Dead:   make(Flags, n),
		Bull:   make(Flags, n),
		Bear:   make(Flags, n),
	}
	if n <= cfg.Period {
		return res
	}

	period := float64(cfg.Period)
	gains, losses := 0.0, 0.0
	for i := 1; i <= cfg.Period; i++ {
		diff := bars[i].Close - bars[i-1].Close
		if diff >= 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / period
	avgLoss := losses / period
	res.RSI[cfg.Period] = rsiValue(avgGain, avgLoss)

	for i := cfg.Period + 1; i < n; i++ {
		diff := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if diff > 0 {
			gain = diff
		} else {
			loss = -diff
		}
		avgGain = (avgGain*(period-1) + gain) / period
		avgLoss = (avgLoss*(period-1) + loss) / period
		res.RSI[i] = rsiValue(avgGain, avgLoss)
	}

	s.detectCrossovers(res, cfg)
	s.detectDivergence(bars, res)
	return res
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func (s *RSIService) detectCrossovers(res *RSIResult, cfg RSIConfig) {
	for i := 1; i < len(res.RSI); i++ {
		prev, curr := res.RSI[i-1], res.RSI[i]
		if !allValid(prev, curr) {
			continue
		}
		res.Dead[i] = prev >= cfg.Limit && curr < cfg.Limit
		res.Golden[i] = prev <= cfg.Floor && curr > cfg.Floor
	}
}

// detectDivergence looks at three-bar windows of price, RSI and volume.
func (s *RSIService) detectDivergence(bars []models.Bar, res *RSIResult) {
	r := res.RSI
	for i := 2; i < len(bars); i++ {
		if !allValid(r[i-2], r[i-1], r[i]) {
			continue
		}
		c0, c1, c2 := bars[i-2].Close, bars[i-1].Close, bars[i].Close
		v0, v1, v2 := bars[i-2].Volume, bars[i-1].Volume, bars[i].Volume

		volumeLower := v2 < v1 && v1 < v0
		priceHigher := c2 > c1 && c1 > c0
		priceLower := c2 < c1 && c1 < c0
		rsiLower := r[i] < r[i-1] && r[i-1] < r[i-2]
		rsiHigher := r[i] > r[i-1] && r[i] > r[i-2]

		res.Bear[i] = priceHigher && rsiLower && volumeLower
		res.Bull[i] = priceLower && rsiHigher && volumeLower
	}
}

func (s *RSIService) withDefaults(cfg RSIConfig) RSIConfig {
	def := DefaultRSIConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.Limit == 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Floor == 0 {
		cfg.Floor = def.Floor
	}
	return cfg
}
