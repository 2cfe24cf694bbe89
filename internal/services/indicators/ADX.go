package indicators

import (
	"math"
	"time"

	"StockBacktester/internal/models"
)

type ADXService struct{}

type ADXConfig struct {
	Period int

	// Weekly gates daily crosses on the ADX of the last completed ISO week.
	Weekly bool
	Strong float64 // weekly ADX that passes on its own
	Soft   float64 // weekly ADX that passes when rising
}

type ADXResult struct {
	PlusDI  Series
	MinusDI Series
	DX      Series
	ADX     Series
	Week    Series // weekly ADX visible to the bar, absent unless Weekly

	Golden Flags // +DI crosses above -DI
	Dead   Flags // -DI crosses above +DI
	Rising Flags
}

func DefaultADXConfig() ADXConfig {
	return ADXConfig{Period: 14, Strong: 25, Soft: 20}
}

func NewADXService() *ADXService {
	return &ADXService{}
}

func (s *ADXService) Calculate(bars []models.Bar, cfg ADXConfig) *ADXResult {
	cfg = s.withDefaults(cfg)
	res := s.calculate(bars, cfg.Period)
	if !cfg.Weekly {
		return res
	}

	weeks, index := aggregateWeeks(bars)
	weekly := s.calculate(weeks, cfg.Period)
	for i := range bars {
		// Only a finished week is visible to a daily bar.
		w := index[i] - 1
		curr := weekly.ADX.At(w)
		prev := weekly.ADX.At(w - 1)
		res.Week[i] = curr

		if !cfg.weekPasses(curr, prev) {
			res.Golden[i] = false
			res.Dead[i] = false
		}
	}
	return res
}

// weekPasses lets a daily cross through when the weekly ADX is at least
// Strong, or at least Soft and above the week before.
func (cfg ADXConfig) weekPasses(curr, prev float64) bool {
	if IsAbsent(curr) {
		return false
	}
	return curr >= cfg.Strong || (curr >= cfg.Soft && !IsAbsent(prev) && curr > prev)
}

func (s *ADXService) calculate(bars []models.Bar, period int) *ADXResult {
	n := len(bars)
	res := &ADXResult{
		PlusDI:  NewSeries(n),
		MinusDI: NewSeries(n),
		DX:      NewSeries(n),
		ADX:     NewSeries(n),
		Week:    NewSeries(n),
		Golden:  make(Flags, n),
		Dead:    make(Flags, n),
		Rising:  make(Flags, n),
	}
	if n <= period {
		return res
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
		tr[i] = trueRange(bars[i], bars[i-1].Close)
	}

	var smTR, smPlus, smMinus float64
	for i := 1; i <= period; i++ {
		smTR += tr[i]
		smPlus += plusDM[i]
		smMinus += minusDM[i]
	}

	p := float64(period)
	for i := period; i < n; i++ {
		if i > period {
			smTR = smTR - smTR/p + tr[i]
			smPlus = smPlus - smPlus/p + plusDM[i]
			smMinus = smMinus - smMinus/p + minusDM[i]
		}
		if smTR == 0 {
			continue
		}
		pdi := 100 * smPlus / smTR
		mdi := 100 * smMinus / smTR
		res.PlusDI[i] = pdi
		res.MinusDI[i] = mdi
		if pdi+mdi == 0 {
			res.DX[i] = 0
		} else {
			res.DX[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
		}
	}

	res.ADX = SMA(res.DX, period)

	for i := 1; i < n; i++ {
		if allValid(res.PlusDI[i-1], res.MinusDI[i-1], res.PlusDI[i], res.MinusDI[i]) {
			res.Golden[i] = res.PlusDI[i-1] <= res.MinusDI[i-1] && res.PlusDI[i] > res.MinusDI[i]
			res.Dead[i] = res.MinusDI[i-1] <= res.PlusDI[i-1] && res.MinusDI[i] > res.PlusDI[i]
		}
		if allValid(res.ADX[i-1], res.ADX[i]) {
			res.Rising[i] = res.ADX[i] > res.ADX[i-1]
		}
	}
	return res
}

// aggregateWeeks folds daily bars into ISO-week bars. index maps each daily
// bar to the position of its week in the returned slice.
func aggregateWeeks(bars []models.Bar) ([]models.Bar, []int) {
	var weeks []models.Bar
	index := make([]int, len(bars))
	lastKey := -1

	for i, b := range bars {
		y, w := b.Date.ISOWeek()
		key := y*100 + w
		if key != lastKey {
			weeks = append(weeks, models.Bar{
				Symbol: b.Symbol,
				Date:   weekStart(b.Date),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
			})
			lastKey = key
		} else {
			wk := &weeks[len(weeks)-1]
			wk.High = math.Max(wk.High, b.High)
			wk.Low = math.Min(wk.Low, b.Low)
			wk.Close = b.Close
			wk.Volume += b.Volume
		}
		index[i] = len(weeks) - 1
	}
	return weeks, index
}

func weekStart(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return models.StartOfDay(t).AddDate(0, 0, -(wd - 1))
}

func (s *ADXService) withDefaults(cfg ADXConfig) ADXConfig {
	def := DefaultADXConfig()
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.Strong == 0 {
		cfg.Strong = def.Strong
	}
	if cfg.Soft == 0 {
		cfg.Soft = def.Soft
	}
	return cfg
}
