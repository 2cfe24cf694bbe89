package indicators

import (
	"math"

	"StockBacktester/internal/models"
)

type SARService struct{}

type SARConfig struct {
	Step    float64
	MaxStep float64
}

type SARResult struct {
	SAR     Series
	Up      Flags // true while the trend is up
	Reverse Flags // the trend flipped on this bar
}

func NewSARService() *SARService {
	return &SARService{}
}

// Calculate runs the parabolic stop-and-reverse. The initial direction comes
// from the first two closes.
func (s *SARService) Calculate(bars []models.Bar, cfg SARConfig) *SARResult {
	if cfg.Step <= 0 {
		cfg.Step = 0.02
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = 0.2
	}

	n := len(bars)
	res := &SARResult{SAR: NewSeries(n), Up: make(Flags, n), Reverse: make(Flags, n)}
	if n < 2 {
		return res
	}

	up := bars[1].Close >= bars[0].Close
	var sar, ep float64
	if up {
		sar = bars[0].Low
		ep = math.Max(bars[0].High, bars[1].High)
	} else {
		sar = bars[0].High
		ep = math.Min(bars[0].Low, bars[1].Low)
	}
	af := cfg.Step
	res.SAR[1] = sar
	res.Up[1] = up

	for i := 2; i < n; i++ {
		sar = sar + af*(ep-sar)

		if up {
			// Never above the prior two lows.
			sar = math.Min(sar, math.Min(bars[i-1].Low, bars[i-2].Low))
			if bars[i].Low < sar {
				up = false
				sar = ep
				ep = bars[i].Low
				af = cfg.Step
				res.Reverse[i] = true
			} else if bars[i].High > ep {
				ep = bars[i].High
				af = math.Min(af+cfg.Step, cfg.MaxStep)
			}
		} else {
			sar = math.Max(sar, math.Max(bars[i-1].High, bars[i-2].High))
			if bars[i].High > sar {
				up = true
				sar = ep
				ep = bars[i].High
				af = cfg.Step
				res.Reverse[i] = true
			} else if bars[i].Low < ep {
				ep = bars[i].Low
				af = math.Min(af+cfg.Step, cfg.MaxStep)
			}
		}

		res.SAR[i] = sar
		res.Up[i] = up
	}
	return res
}
