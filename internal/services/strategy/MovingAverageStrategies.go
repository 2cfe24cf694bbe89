package strategy

import (
	"fmt"

	"StockBacktester/internal/models"
	"StockBacktester/internal/services/indicators"
)

// bars gives strategies index access to the run's bars and base series.
type bars struct {
	in *Input
}

func (b bars) bar(i int) models.Bar {
	return b.in.Bars[i]
}

func (b bars) ma(i int) float64 {
	return b.in.Base.MA.At(i)
}

// aboveMA reports close > MA*(1+pct) on bar i; an absent MA is never passed.
func (b bars) aboveMA(i int, pct float64) bool {
	m := b.ma(i)
	return !indicators.IsAbsent(m) && b.bar(i).Close > m*(1+pct)
}

// TwoDaysUpEntry enters once two consecutive closes sit above the MA premium.
type TwoDaysUpEntry struct {
	bars
	threshold float64
}

func newTwoDaysUpEntry(in *Input) (any, error) {
	return &TwoDaysUpEntry{bars: bars{in}, threshold: in.Params.Threshold}, nil
}

func (s *TwoDaysUpEntry) CheckEntry(i int, pos *Position) *Signal {
	if i < s.in.Params.MA || pos.IsOpen() {
		return nil
	}
	if s.aboveMA(i, s.threshold) && s.aboveMA(i-1, s.threshold) {
		return &Signal{Reason: fmt.Sprintf("two days above MA x%.4f", 1+s.threshold)}
	}
	return nil
}

// TigerEntry buys when the close crosses above the MA. With Breakout set
// the previous close must already be above its MA and today must close
// higher, which filters one-day whipsaws.
type TigerEntry struct {
	bars
}

func newTigerEntry(in *Input) (any, error) {
	return &TigerEntry{bars{in}}, nil
}

func (s *TigerEntry) CheckEntry(i int, pos *Position) *Signal {
	if i < s.in.Params.MA || pos.IsOpen() {
		return nil
	}
	day, prev := s.bar(i), s.bar(i-1)
	if !s.aboveMA(i, 0) {
		return nil
	}
	if s.in.Params.Breakout && !(s.aboveMA(i-1, 0) && day.Close > prev.Close) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("MA breakout %.2f > %.2f", day.Close, s.ma(i))}
}

// BullTigerEntry is TigerEntry restricted to a bullish MA20/60/120 layout.
type BullTigerEntry struct {
	tiger *TigerEntry
	trend *indicators.Frame
}

func newBullTigerEntry(in *Input) (any, error) {
	trend, err := in.Indicator(indicators.Config{Kind: indicators.KindBullBear})
	if err != nil {
		return nil, err
	}
	return &BullTigerEntry{tiger: &TigerEntry{bars{in}}, trend: trend}, nil
}

func (s *BullTigerEntry) CheckEntry(i int, pos *Position) *Signal {
	sig := s.tiger.CheckEntry(i, pos)
	if sig == nil || !s.trend.Flag("bullish", i) {
		return nil
	}
	sig.Reason = "MA20>MA60 or MA20>MA120, " + sig.Reason
	return sig
}

// TigerExit closes after two closes below the MA. A position opened without
// a confirmed breakout is also stopped out if its second bar after entry
// closes below the MA.
type TigerExit struct {
	bars
	threshold float64
}

func newTigerExit(in *Input) (any, error) {
	return &TigerExit{bars: bars{in}, threshold: in.Params.Threshold}, nil
}

func (s *TigerExit) CheckExit(i int, pos *Position) *Signal {
	if i < 1 {
		return nil
	}
	day, prev := s.bar(i), s.bar(i-1)
	m, pm := s.ma(i), s.ma(i-1)
	if !indicators.IsAbsent(m) && !pos.Breakout && i-pos.EntryIndex == 2 && day.Close < m {
		return &Signal{Reason: fmt.Sprintf("fake breakout, back below MA: %.2f < %.2f", day.Close, m)}
	}
	if indicators.IsAbsent(m) || indicators.IsAbsent(pm) {
		return nil
	}
	floor := m * (1 - s.threshold)
	if day.Close < floor && prev.Close < pm {
		return &Signal{Reason: fmt.Sprintf("two days below MA: %.2f < %.2f", day.Close, floor)}
	}
	return nil
}

// MaCrossEntryExit trades the ma1/ma2 cross with ma3 as the trend line.
type MaCrossEntryExit struct {
	bars
	ma1, ma2, ma3 indicators.Series
	periods       [3]int
	rsi           *indicators.Frame
	rsiThreshold  float64
}

func newMaCrossEntryExit(in *Input) (any, error) {
	s := &MaCrossEntryExit{
		bars:         bars{in},
		periods:      [3]int{in.Params.Int("ma1", 5), in.Params.Int("ma2", 10), in.Params.Int("ma3", 60)},
		rsiThreshold: in.Params.Float("rsiThreshold", 0),
	}
	lines := make([]indicators.Series, 3)
	for k, period := range s.periods {
		f, err := in.Indicator(indicators.Config{Kind: indicators.KindSMA, Params: map[string]float64{"period": float64(period)}})
		if err != nil {
			return nil, err
		}
		lines[k] = f.Series["value"]
	}
	s.ma1, s.ma2, s.ma3 = lines[0], lines[1], lines[2]

	rsi, err := in.Indicator(indicators.Config{Kind: indicators.KindRSI})
	if err != nil {
		return nil, err
	}
	s.rsi = rsi
	return s, nil
}

func (s *MaCrossEntryExit) CheckEntry(i int, pos *Position) *Signal {
	if i < 1 || pos.IsOpen() {
		return nil
	}
	if !s.ma1.Valid(i) || !s.ma2.Valid(i) || !s.ma3.Valid(i) ||
		!s.ma1.Valid(i-1) || !s.ma2.Valid(i-1) || !s.ma3.Valid(i-1) {
		return nil
	}

	rsi := s.rsi.Value("rsi", i)
	if s.rsiThreshold > 0 && !indicators.IsAbsent(rsi) && rsi > s.rsiThreshold {
		return nil
	}

	day, prev := s.bar(i), s.bar(i-1)
	golden := s.ma1[i-1] <= s.ma2[i-1] && s.ma1[i] > s.ma2[i] && day.Close >= s.ma3[i]
	if !golden {
		// Recovery: back above the trend line while ma1 stays above ma2.
		golden = prev.Close < s.ma3[i-1] && s.ma1[i-1] > s.ma2[i-1] && s.ma1[i] > s.ma2[i] && day.Close >= s.ma3[i]
	}
	if !golden {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("golden cross: ma%d > ma%d and %.2f >= %.2f RSI: %.2f",
		s.periods[0], s.periods[1], day.Close, s.ma3[i], rsi)}
}

func (s *MaCrossEntryExit) CheckExit(i int, pos *Position) *Signal {
	if i < 1 {
		return nil
	}
	if !s.ma1.Valid(i) || !s.ma2.Valid(i) || !s.ma1.Valid(i-1) || !s.ma2.Valid(i-1) {
		return nil
	}
	if s.ma1[i-1] >= s.ma2[i-1] && s.ma1[i] < s.ma2[i] {
		return &Signal{Reason: fmt.Sprintf("dead cross: ma%d < ma%d", s.periods[0], s.periods[1])}
	}

	day, prev := s.bar(i), s.bar(i-1)
	if s.ma3.Valid(i) && s.ma3.Valid(i-1) && prev.Close < s.ma3[i-1] && day.Close < s.ma3[i] {
		return &Signal{Reason: fmt.Sprintf("two days below ma%d: %.2f < %.2f", s.periods[2], day.Close, s.ma3[i])}
	}
	return nil
}
