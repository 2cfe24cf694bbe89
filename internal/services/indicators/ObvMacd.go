package indicators

import (
	"fmt"
	"math"

	"StockBacktester/internal/models"
)

// OBV MACD: an on-balance-volume "shadow price" smoothed into a MACD-like
// line against a slow EMA of close, then tracked by an adaptive channel and
// a pivot detector.

const (
	TrendBullish = "bullish"
	TrendBearish = "bearish"
	TrendNeutral = "neutral"

	SignalBuy  = "buy"
	SignalSell = "sell"
	SignalHold = "hold"

	PivotResistance = "resistance"
	PivotSupport    = "support"
	PivotNone       = "none"

	obvZeroThreshold = 0.001
)

type ObvMacdOptions struct {
	WindowLen      int    // stdev window for the high-low spread and OBV deviation
	VLen           int    // OBV smoothing length
	ObvLength      int    // EMA length over the shadow price
	MAType         string // EMA, DEMA or TEMA
	MALength       int
	SlowLength     int
	SlopeLength    int
	TChannelPeriod int
	PivotPeriod    int
}

type ObvMacdPoint struct {
	OBV       float64
	Shadow    float64
	Out       float64
	ObvEMA    float64
	ObvMA     float64
	SlowMA    float64
	MACD      float64
	Slope     float64
	Intercept float64
	TT1       float64 // regression projection of MACD

	Channel    float64
	ChannelDev float64
	Direction  int // 1 up, -1 down, 0 flat
	SignalUp   bool
	SignalDown bool

	PivotHigh float64
	PivotLow  float64
}

type ObvMacdSignal struct {
	Trend      string
	Signal     string
	Source     string
	Confidence float64
	MACD       float64
	Pivot      string
}

type ObvMacdResult struct {
	Points  []ObvMacdPoint
	Signals []ObvMacdSignal
}

func DefaultObvMacdOptions() ObvMacdOptions {
	return ObvMacdOptions{
		WindowLen:      28,
		VLen:           14,
		ObvLength:      1,
		MAType:         "DEMA",
		MALength:       9,
		SlowLength:     26,
		SlopeLength:    2,
		TChannelPeriod: 50,
		PivotPeriod:    50,
	}
}

// Validate rejects unknown MA types and lengths below their minimum.
func (o ObvMacdOptions) Validate() error {
	switch o.MAType {
	case "EMA", "DEMA", "TEMA":
	default:
		return fmt.Errorf("unsupported ma type %q: %w", o.MAType, ErrInvalidConfig)
	}

	checks := []struct {
		name  string
		value int
		min   int
	}{
		{"windowLen", o.WindowLen, 2},
		{"vLen", o.VLen, 2},
		{"obvLength", o.ObvLength, 1},
		{"maLength", o.MALength, 1},
		{"slowLength", o.SlowLength, 1},
		{"slopeLength", o.SlopeLength, 2},
		{"tChannelPeriod", o.TChannelPeriod, 5},
		{"pivotPeriod", o.PivotPeriod, 5},
	}
	for _, c := range checks {
		if c.value < c.min {
			return fmt.Errorf("%s must be >= %d, got %d: %w", c.name, c.min, c.value, ErrInvalidConfig)
		}
	}
	return nil
}

type ObvMacdService struct{}

func NewObvMacdService() *ObvMacdService {
	return &ObvMacdService{}
}

func (s *ObvMacdService) Calculate(bars []models.Bar, opts ObvMacdOptions) (*ObvMacdResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n := len(bars)
	res := &ObvMacdResult{Points: make([]ObvMacdPoint, n), Signals: make([]ObvMacdSignal, n)}
	if n == 0 {
		return res, nil
	}

	obv, shadow, out := s.shadowPrice(bars, opts)
	obvEMA := EMA(out, opts.ObvLength)
	obvMA, err := MovingAverage(opts.MAType, obvEMA, opts.MALength)
	if err != nil {
		return nil, err
	}
	slowMA := EMA(models.Closes(bars), opts.SlowLength)

	macd := NewSeries(n)
	for i := range macd {
		if allValid(obvMA[i], slowMA[i]) {
			macd[i] = obvMA[i] - slowMA[i]
		}
	}

	slope, intercept := linearRegression(macd, opts.SlopeLength)
	tt1 := NewSeries(n)
	for i := range tt1 {
		if allValid(slope[i], intercept[i]) {
			tt1[i] = intercept[i] + slope[i]*float64(opts.SlopeLength)
		}
	}

	ch := tChannels(tt1, opts.TChannelPeriod)
	pivotHigh, pivotLow := pivots(tt1, opts.PivotPeriod)

	for i := 0; i < n; i++ {
		res.Points[i] = ObvMacdPoint{
			OBV:        obv[i],
			Shadow:     shadow[i],
			Out:        out[i],
			ObvEMA:     obvEMA[i],
			ObvMA:      obvMA[i],
			SlowMA:     slowMA[i],
			MACD:       macd[i],
			Slope:      slope[i],
			Intercept:  intercept[i],
			TT1:        tt1[i],
			Channel:    ch.line[i],
			ChannelDev: ch.dev[i],
			Direction:  ch.direction[i],
			SignalUp:   ch.up[i],
			SignalDown: ch.down[i],
			PivotHigh:  pivotHigh[i],
			PivotLow:   pivotLow[i],
		}
	}
	for i := 0; i < n; i++ {
		res.Signals[i] = s.classify(bars, res.Points, i)
	}
	return res, nil
}

func (s *ObvMacdService) shadowPrice(bars []models.Bar, opts ObvMacdOptions) (obv []float64, shadow, out Series) {
	n := len(bars)
	obv = make([]float64, n)
	for i := 1; i < n; i++ {
		diff := bars[i].Close - bars[i-1].Close
		switch {
		case diff > 0:
			obv[i] = obv[i-1] + bars[i].Volume
		case diff < 0:
			obv[i] = obv[i-1] - bars[i].Volume
		default:
			obv[i] = obv[i-1]
		}
	}

	spread := make([]float64, n)
	for i, b := range bars {
		spread[i] = b.High - b.Low
	}
	priceSpread := rollingStdev(spread, opts.WindowLen)

	smooth := SMA(obv, opts.VLen)
	deviation := NewSeries(n)
	for i := range deviation {
		if smooth.Valid(i) {
			deviation[i] = obv[i] - smooth[i]
		}
	}
	vSpread := rollingStdev(deviation, opts.WindowLen)

	shadow = NewSeries(n)
	out = NewSeries(n)
	for i := 0; i < n; i++ {
		if !allValid(vSpread[i], priceSpread[i], deviation[i]) || vSpread[i] == 0 {
			continue
		}
		sh := deviation[i] / vSpread[i] * priceSpread[i]
		shadow[i] = sh
		if sh > 0 {
			out[i] = bars[i].High + sh
		} else {
			out[i] = bars[i].Low + sh
		}
	}
	return obv, shadow, out
}

// rollingStdev is the population standard deviation over a trailing window.
func rollingStdev(values []float64, length int) Series {
	out := NewSeries(len(values))
	mean := SMA(values, length)
	for i := length - 1; i < len(values); i++ {
		if !mean.Valid(i) {
			continue
		}
		sq := 0.0
		for _, v := range values[i-length+1 : i+1] {
			d := v - mean[i]
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(length))
	}
	return out
}

// linearRegression fits y over x = 1..length ending at each bar.
func linearRegression(series Series, length int) (slope, intercept Series) {
	n := len(series)
	slope = NewSeries(n)
	intercept = NewSeries(n)

	for i := length - 1; i < n; i++ {
		var sumX, sumY, sumXX, sumXY float64
		valid := true
		for j := 0; j < length; j++ {
			y := series[i-length+1+j]
			if IsAbsent(y) {
				valid = false
				break
			}
			x := float64(j + 1)
			sumX += x
			sumY += y
			sumXX += x * x
			sumXY += x * y
		}
		if !valid {
			continue
		}

		l := float64(length)
		denom := l*sumXX - sumX*sumX
		if denom == 0 {
			continue
		}
		sl := (l*sumXY - sumX*sumY) / denom
		slope[i] = sl
		intercept[i] = sumY/l - sl*sumX/l + sl
	}
	return slope, intercept
}

type channel struct {
	line      Series
	dev       Series
	direction []int
	up        Flags
	down      Flags
}

// tChannels follows src with a step line that only moves when src escapes
// the mean absolute step size of the trailing window. A direction flip that
// moves less than a tenth of that size is not signalled.
func tChannels(src Series, period int) channel {
	n := len(src)
	ch := channel{
		line:      NewSeries(n),
		dev:       NewSeries(n),
		direction: make([]int, n),
		up:        make(Flags, n),
		down:      make(Flags, n),
	}

	for i := 0; i < n; i++ {
		v := src[i]
		if IsAbsent(v) {
			if i > 0 {
				ch.line[i] = ch.line[i-1]
				ch.dev[i] = ch.dev[i-1]
				ch.direction[i] = ch.direction[i-1]
			}
			continue
		}

		prevLine := v
		if i > 0 && ch.line.Valid(i-1) {
			prevLine = ch.line[i-1]
		}

		sum, count := 0.0, 0
		for j := max(0, i-period+1); j <= i; j++ {
			if IsAbsent(src[j]) {
				continue
			}
			if j == 0 {
				count++
				continue
			}
			if ch.line.Valid(j - 1) {
				sum += math.Abs(src[j] - ch.line[j-1])
				count++
			}
		}
		step := math.Abs(v)
		if count > 0 {
			step = sum / float64(count)
		}

		curr := prevLine
		if v > prevLine+step || v < prevLine-step {
			curr = v
		}
		ch.line[i] = curr

		if i == 0 || !ch.line.Valid(i-1) {
			ch.dev[i] = step
			continue
		}

		if curr != ch.line[i-1] || !ch.dev.Valid(i-1) {
			ch.dev[i] = step
		} else {
			ch.dev[i] = ch.dev[i-1]
		}

		diff := curr - ch.line[i-1]
		switch {
		case diff > 0:
			ch.direction[i] = 1
		case diff < 0:
			ch.direction[i] = -1
		default:
			ch.direction[i] = ch.direction[i-1]
		}

		if ch.direction[i] != ch.direction[i-1] && math.Abs(diff) > step*0.1 {
			ch.up[i] = ch.direction[i] == 1
			ch.down[i] = ch.direction[i] == -1
		}
	}
	return ch
}

// pivots marks a local extreme of series that is also the extreme of the
// trailing period window. It needs the following bar, so it is reported on
// that bar.
func pivots(series Series, period int) (highs, lows Series) {
	n := len(series)
	highs = NewSeries(n)
	lows = NewSeries(n)

	for i := 1; i+1 < n; i++ {
		v := series[i]
		if !allValid(series[i-1], v, series[i+1]) {
			continue
		}
		isMax, isMin := true, true
		for j := max(0, i-period+1); j <= i; j++ {
			vv := series[j]
			if IsAbsent(vv) {
				continue
			}
			if vv > v {
				isMax = false
			}
			if vv < v {
				isMin = false
			}
		}
		if isMax && v > series[i-1] && v > series[i+1] {
			highs[i+1] = v
		}
		if isMin && v < series[i-1] && v < series[i+1] {
			lows[i+1] = v
		}
	}
	return highs, lows
}

func (s *ObvMacdService) classify(bars []models.Bar, points []ObvMacdPoint, i int) ObvMacdSignal {
	p := points[i]
	sig := ObvMacdSignal{Trend: TrendNeutral, Pivot: PivotNone, MACD: p.MACD}
	switch p.Direction {
	case 1:
		sig.Trend = TrendBullish
	case -1:
		sig.Trend = TrendBearish
	}
	if !IsAbsent(p.PivotHigh) {
		sig.Pivot = PivotResistance
	} else if !IsAbsent(p.PivotLow) {
		sig.Pivot = PivotSupport
	}

	crossUp, crossDown := false, false
	if i > 0 && allValid(points[i-1].MACD, p.MACD) {
		prev := points[i-1].MACD
		crossUp = prev <= obvZeroThreshold && p.MACD > obvZeroThreshold
		crossDown = prev >= -obvZeroThreshold && p.MACD < -obvZeroThreshold
	}

	switch {
	case crossUp && p.SignalUp:
		sig.Signal, sig.Source = SignalBuy, "MACD + rising channel"
	case crossDown && p.SignalDown:
		sig.Signal, sig.Source = SignalSell, "MACD + falling channel"
	case crossUp:
		sig.Signal, sig.Source = SignalBuy, "MACD crossed above zero"
	case crossDown:
		sig.Signal, sig.Source = SignalSell, "MACD crossed below zero"
	case p.SignalUp:
		sig.Signal, sig.Source = SignalBuy, "rising channel"
	case p.SignalDown:
		sig.Signal, sig.Source = SignalSell, "falling channel"
	default:
		sig.Signal, sig.Source = SignalHold, "no signal"
	}

	conf := 0.5
	if !IsAbsent(p.MACD) {
		conf += math.Min(math.Abs(p.MACD)/2, 1) * 0.2
		if (p.Direction == 1 && p.MACD > 0) || (p.Direction == -1 && p.MACD < 0) {
			conf += 0.15
		}
	}
	if sig.Pivot != PivotNone {
		conf += 0.1
	}
	if (crossUp && p.SignalUp) || (crossDown && p.SignalDown) {
		conf += 0.15
	}
	if i > 0 && bars[i].Volume > 0 && bars[i-1].Volume > 0 && bars[i].Volume > bars[i-1].Volume*1.2 {
		conf += 0.1
	}
	sig.Confidence = math.Max(0, math.Min(conf, 1))
	return sig
}
