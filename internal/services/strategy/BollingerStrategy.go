package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"StockBacktester/internal/models"
	"StockBacktester/internal/services/indicators"
)

const (
	RuleBBReversal = "bb-reversal"
	RuleBBBreakout = "bb-breakout"
)

// BBEntryExit trades Bollinger bands with two entry rules.
//
// Reversal: day 1 closes under the lower band, day 2 closes back inside and
// above day 1's high. The position carries day 2's low as a stop and scales
// out 50/50 at the middle and upper band seen at entry.
//
// Breakout: bandwidth is at or below its lookback percentile, day 1 closes
// above the upper band, day 2 holds above it and prints a short-term high.
type BBEntryExit struct {
	bars
	bands *indicators.Frame
	atr   indicators.Series

	bwLookback        int
	bwPercentile      float64
	shortHighLookback int
	atrMul            float64
}

func newBBEntryExit(in *Input) (any, error) {
	period := in.Params.MA
	if period <= 0 {
		period = 20
	}
	period = in.Params.Int("bbPeriod", period)

	s := &BBEntryExit{
		bars:              bars{in},
		bwLookback:        in.Params.Int("bwLookback", 100),
		bwPercentile:      in.Params.Float("bwPercentile", 20),
		shortHighLookback: in.Params.Int("shortHighLookback", 20),
		atrMul:            in.Params.Float("atrMul", 1),
	}

	bands, err := in.Indicator(indicators.Config{Kind: indicators.KindBB, Params: map[string]float64{
		"period": float64(period),
		"k":      in.Params.Float("bbK", 2),
	}})
	if errors.Is(err, indicators.ErrInsufficientData) {
		// Too short to trade; the strategy never fires.
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	atr, err := in.Indicator(indicators.Config{Kind: indicators.KindATR, Params: map[string]float64{"period": float64(period)}})
	if err != nil {
		return nil, err
	}
	s.bands = bands
	s.atr = atr.Series["atr"]
	return s, nil
}

func (s *BBEntryExit) band(name string, i int) float64 {
	return s.bands.Value(name, i)
}

func (s *BBEntryExit) CheckEntry(i int, pos *Position) *Signal {
	if pos.IsOpen() || s.bands == nil || i < 1 {
		return nil
	}
	if sig := s.reversal(i); sig != nil {
		return sig
	}
	return s.breakout(i)
}

func (s *BBEntryExit) reversal(i int) *Signal {
	d1, day := s.bar(i-1), s.bar(i)
	lower1, lower := s.band("lower", i-1), s.band("lower", i)
	if indicators.IsAbsent(lower1) || indicators.IsAbsent(lower) {
		return nil
	}
	if !(d1.Close < lower1 && day.Close > lower && day.Close > d1.High) {
		return nil
	}
	return &Signal{
		Rule:    RuleBBReversal,
		Reason:  "Bollinger reversal: closed under the lower band, recovered above the prior high",
		Day2Low: day.Low,
		TakeProfit: &TakeProfitPlan{
			Profit1At:   s.band("middle", i),
			Scale1Ratio: 0.5,
			Profit2At:   s.band("upper", i),
			Scale2Ratio: 0.5,
		},
	}
}

func (s *BBEntryExit) breakout(i int) *Signal {
	d1, day := s.bar(i-1), s.bar(i)
	upper1, upper := s.band("upper", i-1), s.band("upper", i)
	bw := s.band("bandwidth", i)
	if indicators.IsAbsent(upper1) || indicators.IsAbsent(upper) || indicators.IsAbsent(bw) {
		return nil
	}
	thresh, ok := s.bandwidthPercentile(i)
	if !ok || bw > thresh {
		return nil
	}
	high := s.rollingHigh(i, s.shortHighLookback)
	if d1.Close > upper1 && day.Close > upper && day.High >= high {
		return &Signal{
			Rule:   RuleBBBreakout,
			Reason: fmt.Sprintf("Bollinger breakout: bandwidth %.2f, two closes above upper %.2f, new high %.2f", bw, upper, high),
		}
	}
	return nil
}

// bandwidthPercentile returns the configured percentile of bandwidth over
// the lookback ending at i. Windows with under 80% coverage are skipped.
func (s *BBEntryExit) bandwidthPercentile(i int) (float64, bool) {
	n := s.bwLookback
	if n <= 0 || i+1 < n {
		return 0, false
	}
	window := make([]float64, 0, n)
	for j := i - n + 1; j <= i; j++ {
		if v := s.band("bandwidth", j); !indicators.IsAbsent(v) {
			window = append(window, v)
		}
	}
	if float64(len(window)) < float64(n)*0.8 {
		return 0, false
	}
	sort.Float64s(window)
	pos := int(math.Floor(s.bwPercentile / 100 * float64(len(window)-1)))
	return window[pos], true
}

func (s *BBEntryExit) rollingHigh(i, lookback int) float64 {
	high := math.Inf(-1)
	for j := max(0, i-lookback+1); j <= i; j++ {
		high = math.Max(high, s.bar(j).High)
	}
	return high
}

func (s *BBEntryExit) CheckExit(i int, pos *Position) *Signal {
	if !pos.IsOpen() || s.bands == nil || i < 1 {
		return nil
	}
	day, prev := s.bar(i), s.bar(i-1)
	middle, prevMiddle := s.band("middle", i), s.band("middle", i-1)

	if !indicators.IsAbsent(middle) && day.Close > middle {
		pos.SeenAboveMiddle = true
	}
	if pos.SeenAboveMiddle && !indicators.IsAbsent(middle) && !indicators.IsAbsent(prevMiddle) &&
		prev.Close < prevMiddle && day.Close < middle {
		return &Signal{Reason: fmt.Sprintf("two closes below the middle band %.2f", middle)}
	}

	if pos.Rule == RuleBBReversal {
		if atr := s.atr.At(i); !indicators.IsAbsent(atr) {
			stop := pos.EntryPrice - s.atrMul*atr
			if day.Close < stop {
				return &Signal{Reason: fmt.Sprintf("ATR x%g stop at %.2f", s.atrMul, stop)}
			}
		}
		if pos.Day2Low > 0 && day.Close < pos.Day2Low {
			return &Signal{Reason: fmt.Sprintf("broke day 2 low %.2f", pos.Day2Low)}
		}
	}

	// Targets wait for the day after entry, when a close can take effect.
	if plan := pos.TakeProfit; plan != nil && !models.SameDay(day.Date, pos.EntryDate) {
		if !pos.TookProfit1 && !indicators.IsAbsent(plan.Profit1At) && day.High >= plan.Profit1At {
			pos.TookProfit1 = true
			return &Signal{
				Reason: fmt.Sprintf("scale out %.0f%% at the middle band %.2f", plan.Scale1Ratio*100, plan.Profit1At),
				Status: PartialStatus(plan.Scale1Ratio * 100),
				Ratio:  plan.Scale1Ratio,
			}
		}
		if !pos.TookProfit2 && !indicators.IsAbsent(plan.Profit2At) && day.High >= plan.Profit2At {
			pos.TookProfit2 = true
			ratio := 1.0
			if pos.TookProfit1 {
				ratio = plan.Scale2Ratio
			}
			return &Signal{
				Reason: fmt.Sprintf("closed out at the upper band %.2f", plan.Profit2At),
				Status: StatusClosed,
				Ratio:  ratio,
			}
		}
	}
	return nil
}
