package indicators

import (
	"math"

	"StockBacktester/internal/models"
)

type MACDService struct{}

type MACDConfig struct {
	Fast   int
	Slow   int
	Signal int
}

type MACDResult struct {
	DIF       Series
	DEA       Series
	Histogram Series // DIF - DEA rounded to 3 decimals

	Golden  Flags
	Dead    Flags
	SlopeUp Flags // 10-bar DIF slope is positive

	BullishDivergence Flags
	BearishDivergence Flags
	Score             Series // composite -100..100
}

const (
	macdSlopeWindow      = 10
	macdDivergenceMemory = 5
)

// DefaultMACDConfig returns the 12/26/9 periods.
func DefaultMACDConfig() MACDConfig {
	return MACDConfig{Fast: 12, Slow: 26, Signal: 9}
}

func NewMACDService() *MACDService {
	return &MACDService{}
}

// Calculate returns DIF, DEA, histogram and the derived signals.
// DEA is an EMA over the valid part of DIF, so it first appears at
// index (slow-1)+(signal-1).
func (s *MACDService) Calculate(bars []models.Bar, cfg MACDConfig) *MACDResult {
	cfg = s.withDefaults(cfg)
	closes := models.Closes(bars)
	n := len(closes)

	fastEMA := EMA(closes, cfg.Fast)
	slowEMA := EMA(closes, cfg.Slow)

	dif := NewSeries(n)
	for i := range dif {
		if allValid(fastEMA[i], slowEMA[i]) {
			dif[i] = fastEMA[i] - slowEMA[i]
		}
	}
	dea := EMA(dif, cfg.Signal)

	hist := NewSeries(n)
	for i := range hist {
		if allValid(dif[i], dea[i]) {
			hist[i] = Round(dif[i]-dea[i], 3)
		}
	}

	slopeUp := make(Flags, n)
	for i := macdSlopeWindow + 1; i < n; i++ {
		prev := dif[i-macdSlopeWindow]
		if allValid(dif[i], prev) && prev != 0 {
			slopeUp[i] = (dif[i]-prev)/macdSlopeWindow > 0
		}
	}

	golden, dead := DetectMACDCrossovers(dif, dea)
	bullish, bearish := s.detectDivergence(closes, hist)

	res := &MACDResult{
		DIF:               dif,
		DEA:               dea,
		Histogram:         hist,
		Golden:            golden,
		Dead:              dead,
		SlopeUp:           slopeUp,
		BullishDivergence: bullish,
		BearishDivergence: bearish,
	}
	res.Score = s.score(res)
	return res
}

// DetectMACDCrossovers flags golden crosses (DIF rises to or above DEA) and
// dead crosses (DIF falls to or below DEA). Both require DEA >= 0.
func DetectMACDCrossovers(dif, dea Series) (golden, dead Flags) {
	golden = make(Flags, len(dif))
	dead = make(Flags, len(dif))
	for i := 1; i < len(dif) && i < len(dea); i++ {
		if !allValid(dif[i-1], dea[i-1], dif[i], dea[i]) {
			continue
		}
		if dif[i-1] < dea[i-1] && dif[i] >= dea[i] && dea[i] >= 0 {
			golden[i] = true
		}
		if dif[i-1] > dea[i-1] && dif[i] <= dea[i] && dea[i] >= 0 {
			dead[i] = true
		}
	}
	return golden, dead
}

// detectDivergence compares consecutive histogram peaks (and troughs) with
// the closes at the same bars. An extreme is only known once the next bar
// prints, so the flag lands one bar after it.
func (s *MACDService) detectDivergence(closes []float64, hist Series) (bullish, bearish Flags) {
	n := len(hist)
	bullish = make(Flags, n)
	bearish = make(Flags, n)

	lastPeak, lastTrough := -1, -1
	for i := 1; i+1 < n; i++ {
		if !allValid(hist[i-1], hist[i], hist[i+1]) {
			continue
		}
		if hist[i] > 0 && hist[i] > hist[i-1] && hist[i] > hist[i+1] {
			if lastPeak >= 0 && closes[i] > closes[lastPeak] && hist[i] < hist[lastPeak] {
				bearish[i+1] = true
			}
			lastPeak = i
		}
		if hist[i] < 0 && hist[i] < hist[i-1] && hist[i] < hist[i+1] {
			if lastTrough >= 0 && closes[i] < closes[lastTrough] && hist[i] > hist[lastTrough] {
				bullish[i+1] = true
			}
			lastTrough = i
		}
	}
	return bullish, bearish
}

func (s *MACDService) score(r *MACDResult) Series {
	n := len(r.Histogram)
	out := NewSeries(n)
	for i := 0; i < n; i++ {
		if !r.Histogram.Valid(i) {
			continue
		}
		score := 0.0

		// Crosses on the confirming side of the zero axis count in full.
		if r.Golden[i] {
			w := 0.5
			if r.DIF[i] >= 0 {
				w = 1
			}
			score += 40 * w
		}
		if r.Dead[i] {
			w := 0.5
			if r.DIF[i] <= 0 {
				w = 1
			}
			score -= 40 * w
		}

		for j := i; j >= 0 && j > i-macdDivergenceMemory; j-- {
			if r.BullishDivergence[j] {
				score += 30
				break
			}
		}
		for j := i; j >= 0 && j > i-macdDivergenceMemory; j-- {
			if r.BearishDivergence[j] {
				score -= 30
				break
			}
		}

		if i >= 2 && allValid(r.Histogram[i-2], r.Histogram[i-1]) {
			d1 := r.Histogram[i] - r.Histogram[i-1]
			d0 := r.Histogram[i-1] - r.Histogram[i-2]
			if d1 > 0 && d0 <= 0 {
				score += 30
			} else if d1 < 0 && d0 >= 0 {
				score -= 30
			}
		}

		out[i] = math.Max(-100, math.Min(100, score))
	}
	return out
}

func (s *MACDService) withDefaults(cfg MACDConfig) MACDConfig {
	def := DefaultMACDConfig()
	if cfg.Fast <= 0 {
		cfg.Fast = def.Fast
	}
	if cfg.Slow <= 0 {
		cfg.Slow = def.Slow
	}
	if cfg.Signal <= 0 {
		cfg.Signal = def.Signal
	}
	return cfg
}
