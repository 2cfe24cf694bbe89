package indicators

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"StockBacktester/internal/models"
)

const (
	KindSMA       = "sma"
	KindEMA       = "ema"
	KindDEMA      = "dema"
	KindTEMA      = "tema"
	KindMACD      = "macd"
	KindKDJ       = "kdj"
	KindRSI       = "rsi"
	KindCCI       = "cci"
	KindADX       = "adx"
	KindATR       = "atr"
	KindSAR       = "sar"
	KindBB        = "bb"
	KindObvMacd   = "obvmacd"
	KindBullBear  = "bullbear"
	KindExitAlert = "exitalert"
)

var maTypes = []string{"EMA", "DEMA", "TEMA"}

// Config names one indicator computation. Source picks the bar column for
// the moving averages and defaults to close.
type Config struct {
	Kind   string
	Source string
	Params map[string]float64
}

// Frame is the keyed output of one computation, index-aligned with the bars.
type Frame struct {
	Kind   string
	Series map[string]Series
	Flags  map[string]Flags
	Labels map[string][]string
}

func newFrame(kind string) *Frame {
	return &Frame{
		Kind:   kind,
		Series: make(map[string]Series),
		Flags:  make(map[string]Flags),
		Labels: make(map[string][]string),
	}
}

// Value returns series name at i, Absent if either is missing.
func (f *Frame) Value(name string, i int) float64 {
	if f == nil {
		return Absent
	}
	return f.Series[name].At(i)
}

// Flag returns flag name at i, false if either is missing.
func (f *Frame) Flag(name string, i int) bool {
	if f == nil {
		return false
	}
	return f.Flags[name].At(i)
}

// Label returns label name at i, "" if either is missing.
func (f *Frame) Label(name string, i int) string {
	if f == nil {
		return ""
	}
	l := f.Labels[name]
	if i < 0 || i >= len(l) {
		return ""
	}
	return l[i]
}

// Param returns the named parameter or def.
func (c Config) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}

func (c Config) intParam(name string, def int) int {
	return int(c.Param(name, float64(def)))
}

// Key is a canonical rendering of the config, stable across map ordering.
func (c Config) Key() string {
	names := make([]string, 0, len(c.Params))
	for name := range c.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(c.Kind)
	b.WriteByte('|')
	b.WriteString(c.Source)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(c.Params[name], 'g', -1, 64))
	}
	return b.String()
}

// Compute runs the indicator described by cfg over bars.
func Compute(bars []models.Bar, cfg Config) (*Frame, error) {
	f := newFrame(cfg.Kind)

	switch cfg.Kind {
	case KindSMA, KindEMA, KindDEMA, KindTEMA:
		values, err := sourceColumn(bars, cfg.Source)
		if err != nil {
			return nil, err
		}
		period := cfg.intParam("period", 20)
		switch cfg.Kind {
		case KindSMA:
			f.Series["value"] = SMA(values, period)
		case KindEMA:
			f.Series["value"] = EMA(values, period)
		case KindDEMA:
			f.Series["value"] = DEMA(values, period)
		case KindTEMA:
			f.Series["value"] = TEMA(values, period)
		}

	case KindMACD:
		r := NewMACDService().Calculate(bars, MACDConfig{
			Fast:   cfg.intParam("fast", 12),
			Slow:   cfg.intParam("slow", 26),
			Signal: cfg.intParam("signal", 9),
		})
		f.Series["dif"] = r.DIF
		f.Series["dea"] = r.DEA
		f.Series["histogram"] = r.Histogram
		f.Series["score"] = r.Score
		f.Flags["golden"] = r.Golden
		f.Flags["dead"] = r.Dead
		f.Flags["slopeUp"] = r.SlopeUp
		f.Flags["bullishDivergence"] = r.BullishDivergence
		f.Flags["bearishDivergence"] = r.BearishDivergence

	case KindKDJ:
		def := DefaultKDJConfig()
		r := NewKDJService().Calculate(bars, KDJConfig{
			Period: cfg.intParam("period", def.Period),
			K:      cfg.intParam("k", def.K),
			D:      cfg.intParam("d", def.D),
			Low:    cfg.Param("low", def.Low),
			Mid:    cfg.Param("mid", def.Mid),
			High:   cfg.Param("high", def.High),
		})
		f.Series["k"] = r.K
		f.Series["d"] = r.D
		f.Series["j"] = r.J
		f.Flags["golden"] = r.Golden
		f.Flags["dead"] = r.Dead

	case KindRSI:
		def := DefaultRSIConfig()
		r := NewRSIService().Calculate(bars, RSIConfig{
			Period: cfg.intParam("period", def.Period),
			Limit:  cfg.Param("limit", def.Limit),
			Floor:  cfg.Param("floor", def.Floor),
		})
		f.Series["rsi"] = r.RSI
		f.Flags["golden"] = r.Golden
		f.Flags["dead"] = r.Dead
		f.Flags["bull"] = r.Bull
		f.Flags["bear"] = r.Bear

	case KindCCI:
		r := NewCCIService().Calculate(bars, CCIConfig{
			Period: cfg.intParam("period", 14),
			Limit:  cfg.Param("limit", 100),
		})
		f.Series["cci"] = r.CCI
		f.Flags["golden"] = r.Golden
		f.Flags["dead"] = r.Dead

	case KindADX:
		def := DefaultADXConfig()
		r := NewADXService().Calculate(bars, ADXConfig{
			Period: cfg.intParam("period", def.Period),
			Weekly: cfg.Param("weekly", 0) != 0,
			Strong: cfg.Param("strong", def.Strong),
			Soft:   cfg.Param("soft", def.Soft),
		})
		f.Series["plusDi"] = r.PlusDI
		f.Series["minusDi"] = r.MinusDI
		f.Series["dx"] = r.DX
		f.Series["adx"] = r.ADX
		f.Series["week"] = r.Week
		f.Flags["golden"] = r.Golden
		f.Flags["dead"] = r.Dead
		f.Flags["rising"] = r.Rising

	case KindATR:
		r := NewATRService().Calculate(bars, cfg.intParam("period", 14))
		f.Series["tr"] = r.TR
		f.Series["atr"] = r.ATR
		f.Series["natr"] = r.NATR

	case KindSAR:
		r := NewSARService().Calculate(bars, SARConfig{
			Step:    cfg.Param("step", 0.02),
			MaxStep: cfg.Param("maxStep", 0.2),
		})
		f.Series["sar"] = r.SAR
		f.Flags["up"] = r.Up
		f.Flags["reverse"] = r.Reverse

	case KindBB:
		r, err := NewBBandsService().Calculate(bars, cfg.intParam("period", 20), cfg.Param("k", 2))
		if err != nil {
			return nil, err
		}
		f.Series["upper"] = r.Upper
		f.Series["middle"] = r.Middle
		f.Series["lower"] = r.Lower
		f.Series["bandwidth"] = r.Bandwidth

	case KindObvMacd:
		opts := DefaultObvMacdOptions()
		opts.WindowLen = cfg.intParam("windowLen", opts.WindowLen)
		opts.VLen = cfg.intParam("vLen", opts.VLen)
		opts.ObvLength = cfg.intParam("obvLength", opts.ObvLength)
		opts.MALength = cfg.intParam("maLength", opts.MALength)
		opts.SlowLength = cfg.intParam("slowLength", opts.SlowLength)
		opts.SlopeLength = cfg.intParam("slopeLength", opts.SlopeLength)
		opts.TChannelPeriod = cfg.intParam("tChannelPeriod", opts.TChannelPeriod)
		opts.PivotPeriod = cfg.intParam("pivotPeriod", opts.PivotPeriod)
		if t, ok := cfg.Params["maType"]; ok {
			idx := int(t)
			if idx < 0 || idx >= len(maTypes) {
				return nil, fmt.Errorf("maType %v out of range: %w", t, ErrInvalidConfig)
			}
			opts.MAType = maTypes[idx]
		}

		r, err := NewObvMacdService().Calculate(bars, opts)
		if err != nil {
			return nil, err
		}
		n := len(bars)
		macd, conf, tt1 := NewSeries(n), NewSeries(n), NewSeries(n)
		signal, trend, source := make([]string, n), make([]string, n), make([]string, n)
		for i := range r.Points {
			macd[i] = r.Points[i].MACD
			tt1[i] = r.Points[i].TT1
			conf[i] = r.Signals[i].Confidence
			signal[i] = r.Signals[i].Signal
			trend[i] = r.Signals[i].Trend
			source[i] = r.Signals[i].Source
		}
		f.Series["macd"] = macd
		f.Series["tt1"] = tt1
		f.Series["confidence"] = conf
		f.Labels["signal"] = signal
		f.Labels["trend"] = trend
		f.Labels["source"] = source

	case KindBullBear:
		r := BullBear(bars)
		f.Series["ma20"] = r.MA20
		f.Series["ma60"] = r.MA60
		f.Series["ma120"] = r.MA120
		f.Flags["bullish"] = r.Bullish
		f.Flags["bullishTurn"] = r.BullishTurn
		f.Flags["bearishTurn"] = r.BearishTurn

	case KindExitAlert:
		f.Series["score"] = ExitAlert(bars)

	default:
		return nil, fmt.Errorf("%q: %w", cfg.Kind, ErrUnknownIndicator)
	}
	return f, nil
}

func sourceColumn(bars []models.Bar, source string) ([]float64, error) {
	out := make([]float64, len(bars))
	for i, b := range bars {
		switch source {
		case "", "close":
			out[i] = b.Close
		case "open":
			out[i] = b.Open
		case "high":
			out[i] = b.High
		case "low":
			out[i] = b.Low
		case "volume":
			out[i] = b.Volume
		default:
			return nil, fmt.Errorf("unknown source %q: %w", source, ErrInvalidConfig)
		}
	}
	return out, nil
}
