package indicators

import (
	"errors"
	"testing"

	"StockBacktester/internal/models"
)

func matchSeries(t *testing.T, name string, got, want Series) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: expected %d values, got %d", name, len(want), len(got))
	}
	for i := range want {
		if IsAbsent(want[i]) {
			if !IsAbsent(got[i]) {
				t.Fatalf("%s[%d]: expected absent, got %v", name, i, got[i])
			}
			continue
		}
		if !almostEqual(got[i], want[i]) {
			t.Fatalf("%s[%d]: expected %v, got %v", name, i, want[i], got[i])
		}
	}
}

func onlyAt(t *testing.T, name string, flags Flags, at ...int) {
	t.Helper()
	want := make(map[int]bool, len(at))
	for _, i := range at {
		want[i] = true
	}
	for i, f := range flags {
		if f != want[i] {
			t.Fatalf("%s[%d] = %v", name, i, f)
		}
	}
}

func TestDoubleAndTripleEMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6}
	tests := []struct {
		name string
		got  Series
		want Series
	}{
		{"ema", EMA(values, 2), Series{Absent, 1.5, 2.5, 3.5, 4.5, 5.5}},
		{"dema", DEMA(values, 2), Series{Absent, Absent, 3, 4, 5, 6}},
		{"tema", TEMA(values, 2), Series{Absent, Absent, Absent, 4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matchSeries(t, tt.name, tt.got, tt.want)
		})
	}

	got, err := MovingAverage("TEMA", values, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matchSeries(t, "TEMA", got, tests[2].want)
	if _, err := MovingAverage("wma", values, 2); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestMACDDivergence(t *testing.T) {
	tests := []struct {
		name        string
		closes      []float64
		hist        Series
		wantBullish int
		wantBearish int
	}{
		{"lower peak on a higher close", []float64{10, 10, 10, 12, 10}, Series{0, 1, 0, 0.5, 0}, -1, 4},
		{"higher trough on a lower close", []float64{10, 10, 10, 8, 10}, Series{0, -1, 0, -0.5, 0}, 4, -1},
		{"peaks that confirm the close", []float64{10, 10, 10, 12, 10}, Series{0, 0.5, 0, 1, 0}, -1, -1},
		{"troughs that confirm the close", []float64{10, 10, 10, 8, 10}, Series{0, -0.5, 0, -1, 0}, -1, -1},
		{"absent neighbours are skipped", []float64{10, 10, 10, 12, 10}, Series{0, 1, 0, 0.5, Absent}, -1, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bullish, bearish := NewMACDService().detectDivergence(tt.closes, tt.hist)
			for i := range tt.hist {
				if bullish[i] != (i == tt.wantBullish) {
					t.Fatalf("bullish[%d] = %v", i, bullish[i])
				}
				if bearish[i] != (i == tt.wantBearish) {
					t.Fatalf("bearish[%d] = %v", i, bearish[i])
				}
			}
		})
	}
}

func flatMACD(n int) *MACDResult {
	zeros := func() Series { return make(Series, n) }
	return &MACDResult{
		DIF:               zeros(),
		DEA:               zeros(),
		Histogram:         zeros(),
		Golden:            make(Flags, n),
		Dead:              make(Flags, n),
		SlopeUp:           make(Flags, n),
		BullishDivergence: make(Flags, n),
		BearishDivergence: make(Flags, n),
	}
}

func TestMACDScore(t *testing.T) {
	const at = 7
	tests := []struct {
		name  string
		setup func(r *MACDResult)
		want  float64
	}{
		{"nothing happening", func(r *MACDResult) {}, 0},
		{"golden above zero", func(r *MACDResult) { r.Golden[at], r.DIF[at] = true, 0.5 }, 40},
		{"golden below zero", func(r *MACDResult) { r.Golden[at], r.DIF[at] = true, -0.5 }, 20},
		{"dead below zero", func(r *MACDResult) { r.Dead[at], r.DIF[at] = true, -0.5 }, -40},
		{"dead above zero", func(r *MACDResult) { r.Dead[at], r.DIF[at] = true, 0.5 }, -20},
		{"bullish divergence inside memory", func(r *MACDResult) { r.BullishDivergence[3] = true }, 30},
		{"bullish divergence past memory", func(r *MACDResult) { r.BullishDivergence[2] = true }, 0},
		{"bearish divergence today", func(r *MACDResult) { r.BearishDivergence[at] = true }, -30},
		{"histogram turns up", func(r *MACDResult) { r.Histogram[6] = -1 }, 30},
		{"histogram turns down", func(r *MACDResult) { r.Histogram[6] = 1 }, -30},
		{"bullish parts add up", func(r *MACDResult) {
			r.Golden[at], r.DIF[at] = true, 0.5
			r.BullishDivergence[5] = true
			r.Histogram[6] = -1
		}, 100},
		{"opposing parts cancel", func(r *MACDResult) {
			r.Golden[at], r.DIF[at] = true, 0.5
			r.BearishDivergence[4] = true
			r.Histogram[6] = 1
		}, -20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := flatMACD(at + 1)
			tt.setup(r)
			score := NewMACDService().score(r)
			if !almostEqual(score[at], tt.want) {
				t.Fatalf("expected score %v, got %v", tt.want, score[at])
			}
		})
	}

	r := flatMACD(3)
	r.Histogram[0] = Absent
	if score := NewMACDService().score(r); score.Valid(0) {
		t.Fatalf("expected no score without a histogram, got %v", score[0])
	}
}

func TestRSIKnownValues(t *testing.T) {
	tests := []struct {
		name       string
		closes     []float64
		want       Series
		wantGolden int
		wantDead   int
	}{
		{"mixed deltas", []float64{100, 90, 110, 111}, Series{Absent, Absent, 100 - 100.0/3, 68.75}, -1, -1},
		{"rises through the floor", []float64{10, 8, 6, 7}, Series{Absent, Absent, 0, 100 - 100/1.5}, 3, -1},
		{"falls through the limit", []float64{10, 12, 14, 13}, Series{Absent, Absent, 100, 100 - 100.0/3}, -1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewRSIService().Calculate(makeBars(tt.closes), RSIConfig{Period: 2, Limit: 80, Floor: 20})
			matchSeries(t, "rsi", res.RSI, tt.want)
			for i := range tt.closes {
				if res.Golden[i] != (i == tt.wantGolden) {
					t.Fatalf("golden[%d] = %v", i, res.Golden[i])
				}
				if res.Dead[i] != (i == tt.wantDead) {
					t.Fatalf("dead[%d] = %v", i, res.Dead[i])
				}
			}
		})
	}
}

// Wilder smoothing moves RSI with every close, so divergence windows are
// checked against prepared RSI values.
func TestRSIDivergence(t *testing.T) {
	tests := []struct {
		name     string
		closes   []float64
		volumes  []float64
		rsi      Series
		wantBull bool
		wantBear bool
	}{
		{"bear on fading rsi and volume", []float64{10, 11, 12}, []float64{300, 200, 100}, Series{70, 65, 60}, false, true},
		{"bear needs falling volume", []float64{10, 11, 12}, []float64{300, 300, 100}, Series{70, 65, 60}, false, false},
		{"bear needs rsi falling twice", []float64{10, 11, 12}, []float64{300, 200, 100}, Series{70, 72, 60}, false, false},
		{"bull on a higher rsi", []float64{12, 11, 10}, []float64{300, 200, 100}, Series{30, 25, 35}, true, false},
		{"bull needs rsi above both", []float64{12, 11, 10}, []float64{300, 200, 100}, Series{30, 40, 35}, false, false},
		{"bull needs a falling close", []float64{12, 11, 11}, []float64{300, 200, 100}, Series{30, 25, 35}, false, false},
		{"absent rsi is skipped", []float64{10, 11, 12}, []float64{300, 200, 100}, Series{Absent, 65, 60}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := makeBars(tt.closes)
			for i := range bars {
				bars[i].Volume = tt.volumes[i]
			}
			res := &RSIResult{RSI: tt.rsi, Bull: make(Flags, 3), Bear: make(Flags, 3)}
			NewRSIService().detectDivergence(bars, res)
			if res.Bull[2] != tt.wantBull || res.Bear[2] != tt.wantBear {
				t.Fatalf("expected bull=%v bear=%v, got bull=%v bear=%v", tt.wantBull, tt.wantBear, res.Bull[2], res.Bear[2])
			}
		})
	}
}

func TestCCIKnownValues(t *testing.T) {
	// makeBars puts the typical price on the close.
	closes := []float64{10, 10, 10, 13, 13, 10, 7, 7, 10}
	res := NewCCIService().Calculate(makeBars(closes), CCIConfig{Period: 3, Limit: 80})

	matchSeries(t, "cci", res.CCI, Series{Absent, Absent, 0, 100, 50, -100, -100, -50, 100})
	onlyAt(t, "dead", res.Dead, 4)
	onlyAt(t, "golden", res.Golden, 7)
}

func TestADXKnownValues(t *testing.T) {
	bars := []models.Bar{
		{High: 10, Low: 8, Close: 9},
		{High: 12, Low: 9, Close: 11},
		{High: 13, Low: 10, Close: 12},
		{High: 12, Low: 7, Close: 8},
		{High: 11, Low: 6, Close: 7},
		{High: 15, Low: 7, Close: 14},
	}
	res := NewADXService().Calculate(bars, ADXConfig{Period: 2})

	matchSeries(t, "+di", res.PlusDI, Series{Absent, Absent, 50, 18.75, 75.0 / 9, 35})
	matchSeries(t, "-di", res.MinusDI, Series{Absent, Absent, 0, 37.5, 250.0 / 9, 10})
	matchSeries(t, "dx", res.DX, Series{Absent, Absent, 100, 100.0 / 3, 700.0 / 13, 500.0 / 9})
	matchSeries(t, "adx", res.ADX, Series{Absent, Absent, Absent, 200.0 / 3, 3400.0 / 78, 12800.0 / 234})
	onlyAt(t, "dead", res.Dead, 3)
	onlyAt(t, "golden", res.Golden, 5)
	onlyAt(t, "rising", res.Rising, 5)
}

func TestADXWeekGate(t *testing.T) {
	cfg := DefaultADXConfig()
	tests := []struct {
		name string
		curr float64
		prev float64
		want bool
	}{
		{"strong on its own", 30, Absent, true},
		{"exactly strong", 25, 40, true},
		{"soft and rising", 22, 21, true},
		{"exactly soft and rising", 20, 19, true},
		{"soft but falling", 22, 23, false},
		{"soft without a prior week", 22, Absent, false},
		{"weak and rising", 19, 10, false},
		{"no finished week", Absent, 30, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.weekPasses(tt.curr, tt.prev); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSARReversal(t *testing.T) {
	// bars span close-1 to close+1
	res := NewSARService().Calculate(makeBars([]float64{10, 11, 12, 13, 8, 9, 16}), SARConfig{})

	matchSeries(t, "sar", res.SAR, Series{Absent, 9, 9, 9.16, 14, 14, 7})
	wantUp := []bool{false, true, true, true, false, false, true}
	for i, up := range wantUp {
		if res.Up[i] != up {
			t.Fatalf("up[%d] = %v", i, res.Up[i])
		}
	}
	onlyAt(t, "reverse", res.Reverse, 4, 6)
}

func obvPoint(macd float64, dir int) ObvMacdPoint {
	return ObvMacdPoint{MACD: macd, Direction: dir, PivotHigh: Absent, PivotLow: Absent}
}

func TestObvMacdClassify(t *testing.T) {
	tests := []struct {
		name       string
		prev       ObvMacdPoint
		curr       ObvMacdPoint
		volume     float64
		wantSignal string
		wantSource string
		wantTrend  string
		wantPivot  string
		wantConf   float64
	}{
		{
			name: "cross up on a rising channel",
			prev: obvPoint(-0.5, 1),
			curr: func() ObvMacdPoint { p := obvPoint(1, 1); p.SignalUp = true; return p }(),
			wantSignal: SignalBuy, wantSource: "MACD + rising channel", wantTrend: TrendBullish, wantPivot: PivotNone,
			wantConf: 0.9,
		},
		{
			name: "cross down alone",
			prev: obvPoint(0.5, 0),
			curr: obvPoint(-1, 0),
			wantSignal: SignalSell, wantSource: "MACD crossed below zero", wantTrend: TrendNeutral, wantPivot: PivotNone,
			wantConf: 0.6,
		},
		{
			name: "inside the zero band",
			prev: obvPoint(0, 0),
			curr: obvPoint(0.0005, 0),
			wantSignal: SignalHold, wantSource: "no signal", wantTrend: TrendNeutral, wantPivot: PivotNone,
			wantConf: 0.50005,
		},
		{
			name: "falling channel at a resistance pivot",
			prev: obvPoint(-1, -1),
			curr: func() ObvMacdPoint { p := obvPoint(-1, -1); p.SignalDown = true; p.PivotHigh = 2; return p }(),
			wantSignal: SignalSell, wantSource: "falling channel", wantTrend: TrendBearish, wantPivot: PivotResistance,
			wantConf: 0.85,
		},
		{
			name:   "volume surge without a signal",
			prev:   obvPoint(0.5, 0),
			curr:   obvPoint(0.5, 0),
			volume: 1500,
			wantSignal: SignalHold, wantSource: "no signal", wantTrend: TrendNeutral, wantPivot: PivotNone,
			wantConf: 0.65,
		},
		{
			name: "support pivot with absent macd",
			prev: obvPoint(Absent, 0),
			curr: func() ObvMacdPoint { p := obvPoint(Absent, 0); p.PivotLow = -2; return p }(),
			wantSignal: SignalHold, wantSource: "no signal", wantTrend: TrendNeutral, wantPivot: PivotSupport,
			wantConf: 0.6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := makeBars([]float64{10, 10})
			bars[0].Volume = 1000
			bars[1].Volume = 1000
			if tt.volume > 0 {
				bars[1].Volume = tt.volume
			}
			sig := NewObvMacdService().classify(bars, []ObvMacdPoint{tt.prev, tt.curr}, 1)
			if sig.Signal != tt.wantSignal || sig.Source != tt.wantSource {
				t.Fatalf("expected %s (%s), got %s (%s)", tt.wantSignal, tt.wantSource, sig.Signal, sig.Source)
			}
			if sig.Trend != tt.wantTrend || sig.Pivot != tt.wantPivot {
				t.Fatalf("expected trend %s pivot %s, got %s %s", tt.wantTrend, tt.wantPivot, sig.Trend, sig.Pivot)
			}
			if !almostEqual(sig.Confidence, tt.wantConf) {
				t.Fatalf("expected confidence %v, got %v", tt.wantConf, sig.Confidence)
			}
		})
	}
}

func TestExitAlertScores(t *testing.T) {
	flat := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = 10
		}
		return out
	}
	steps := func(first, second float64) []float64 {
		out := make([]float64, 21)
		for i := range out {
			out[i] = first
			if i > 10 {
				out[i] = second
			}
		}
		return out
	}

	tests := []struct {
		name string
		bars []models.Bar
		at   int
		want float64
	}{
		// closes sit on MA20, so no bar holds above it
		{"flat tape", makeBars(flat(21)), 20, 1},
		// MA20 is 10.5 and the last ten closes sit 14% under it
		{"breakdown", makeBars(steps(12, 9)), 20, 1},
		{"fresh advance", makeBars(steps(9, 12)), 20, 0},
		{"widening range", func() []models.Bar {
			bars := makeBars(flat(41))
			for i := 21; i < len(bars); i++ {
				bars[i].High, bars[i].Low = 12, 8
			}
			return bars
		}(), 40, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExitAlert(tt.bars)
			if got.Valid(exitAlertMAPeriod - 1) {
				t.Fatalf("expected warm-up absent before %d", exitAlertMAPeriod)
			}
			if got[tt.at] != tt.want {
				t.Fatalf("expected score %v, got %v", tt.want, got[tt.at])
			}
		})
	}
}

func TestBullBearTurns(t *testing.T) {
	closes := make([]float64, 123)
	for i := range closes {
		closes[i] = 100
	}
	closes[120], closes[121], closes[122] = 120, 60, 140

	res := BullBear(makeBars(closes))
	tests := []struct {
		i           int
		ma20, ma60  float64
		ma120       float64
		bullish     bool
		bullishTurn bool
		bearishTurn bool
	}{
		{119, 100, 100, 100, false, false, false},
		{120, 101, 6020.0 / 60, 12020.0 / 120, true, true, false},
		{121, 99, 5980.0 / 60, 11980.0 / 120, false, false, true},
		{122, 101, 6020.0 / 60, 12020.0 / 120, true, true, false},
	}
	for _, tt := range tests {
		if !almostEqual(res.MA20[tt.i], tt.ma20) || !almostEqual(res.MA60[tt.i], tt.ma60) || !almostEqual(res.MA120[tt.i], tt.ma120) {
			t.Fatalf("bar %d: got MA20=%v MA60=%v MA120=%v", tt.i, res.MA20[tt.i], res.MA60[tt.i], res.MA120[tt.i])
		}
		if res.Bullish[tt.i] != tt.bullish || res.BullishTurn[tt.i] != tt.bullishTurn || res.BearishTurn[tt.i] != tt.bearishTurn {
			t.Fatalf("bar %d: got bullish=%v turn=%v bearish turn=%v", tt.i, res.Bullish[tt.i], res.BullishTurn[tt.i], res.BearishTurn[tt.i])
		}
	}
	for i := 0; i < 119; i++ {
		if res.BullishTurn[i] || res.BearishTurn[i] {
			t.Fatalf("turn flagged before MA120 at %d", i)
		}
	}
}
