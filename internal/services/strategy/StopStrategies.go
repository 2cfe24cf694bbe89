package strategy

import (
	"fmt"
	"math"
)

// DynamicStopExit combines a fixed stop loss, a fixed (optionally partial)
// take profit, a trailing stop under the running high and a maximum holding
// period. Every rule is off while its parameter is zero. The first rule that
// fires wins, in that order.
type DynamicStopExit struct {
	bars
	stopLossPct      float64
	takeProfitPct    float64
	partialProfitPct float64
	partialRatio     float64
	dynamicStopPct   float64
	maxHoldPeriod    float64 // days
}

func newDynamicStopExit(in *Input) (any, error) {
	s := &DynamicStopExit{
		bars:             bars{in},
		stopLossPct:      in.Params.Float("stopLossPct", 0),
		takeProfitPct:    in.Params.Float("takeProfitPct", 0),
		partialProfitPct: in.Params.Float("partialProfitPct", 0),
		partialRatio:     in.Params.Float("partialRatio", 0.5),
		dynamicStopPct:   in.Params.Float("dynamicStopPct", 0),
		maxHoldPeriod:    in.Params.Float("maxHoldPeriod", 0),
	}
	if s.partialRatio <= 0 || s.partialRatio > 1 {
		return nil, fmt.Errorf("partialRatio %v outside (0, 1]: %w", s.partialRatio, ErrInvalidParam)
	}
	return s, nil
}

func (s *DynamicStopExit) CheckExit(i int, pos *Position) *Signal {
	day := s.bar(i)
	entry := pos.EntryPrice

	// The trailing level ratchets on every bar, whichever rule fires.
	if s.dynamicStopPct > 0 {
		pos.TrailingStop = math.Max(pos.TrailingStop, day.High*(1-s.dynamicStopPct))
	}

	if s.stopLossPct > 0 && day.Close <= entry*(1-s.stopLossPct) {
		return &Signal{Reason: fmt.Sprintf("stop loss: %.2f below entry %.2f by %.2f%%", day.Close, entry, s.stopLossPct*100)}
	}

	if s.takeProfitPct > 0 {
		if s.partialProfitPct > 0 && !pos.TookProfit && day.Close >= entry*(1+s.partialProfitPct) {
			pos.TookProfit = true
			return &Signal{
				Reason: fmt.Sprintf("partial take profit: %.2f above entry %.2f by %.2f%%", day.Close, entry, s.partialProfitPct*100),
				Status: PartialStatus(s.partialProfitPct * 100),
				Ratio:  s.partialRatio,
			}
		}
		if day.Close >= entry*(1+s.takeProfitPct) {
			return &Signal{Reason: fmt.Sprintf("take profit: %.2f above entry %.2f by %.2f%%", day.Close, entry, s.takeProfitPct*100)}
		}
	}

	if s.dynamicStopPct > 0 && day.Close <= pos.TrailingStop {
		return &Signal{Reason: fmt.Sprintf("trailing stop: %.2f below %.2f, %.2f%% under the high", day.Close, pos.TrailingStop, s.dynamicStopPct*100)}
	}

	if s.maxHoldPeriod > 0 && day.Date.Sub(pos.EntryDate).Hours()/24 > s.maxHoldPeriod {
		return &Signal{Reason: fmt.Sprintf("time stop: held more than %g days", s.maxHoldPeriod)}
	}
	return nil
}
