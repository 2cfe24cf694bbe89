package strategy

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"StockBacktester/internal/models"
	"StockBacktester/internal/services/indicators"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func barsFromCloses(closes ...float64) []models.Bar {
	out := make([]models.Bar, len(closes))
	for i, c := range closes {
		out[i] = models.Bar{
			Symbol: "TEST",
			Date:   day0.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}

func testParams(ma int) Params {
	p := DefaultParams()
	p.MA = ma
	return p
}

func openAt(index int, bars []models.Bar) *Position {
	return OpenPosition("TEST", index, bars[index], &Signal{Reason: "test entry"})
}

func TestCatalog(t *testing.T) {
	catalog := NewRegistry().Catalog()
	if len(catalog) != 17 {
		t.Fatalf("expected 17 strategies, got %d", len(catalog))
	}
	for i := 1; i < len(catalog); i++ {
		if catalog[i-1].Key >= catalog[i].Key {
			t.Fatalf("catalog not sorted at %d", i)
		}
	}
	for _, info := range catalog {
		if info.Key == "MaCrossEntryExit" && !(info.HasEntry && info.HasExit) {
			t.Fatalf("MaCrossEntryExit should have both capabilities")
		}
		if !info.Enabled {
			t.Fatalf("%s should be enabled", info.Key)
		}
	}
}

func TestRegistryErrors(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Descriptor{
		Key:      "PartialEntry",
		HasEntry: true,
		New:      func(*Input) (any, error) { return nil, nil },
	})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	in := NewInput("TEST", barsFromCloses(1, 2, 3), testParams(2), nil)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"unknown", func() error { _, err := r.Lookup("Nope"); return err }, ErrUnknownStrategy},
		{"disabled", func() error { _, err := r.Build("PartialEntry", in); return err }, ErrStrategyDisabled},
		{"exit as entry", func() error { _, err := r.BuildEntry("TigerExit", in); return err }, ErrNoCapability},
		{"entry as exit", func() error { _, err := r.BuildExit("TigerEntry", in); return err }, ErrNoCapability},
		{"resolve unknown exit", func() error { return r.Resolve("TigerEntry", []string{"Nope"}) }, ErrUnknownStrategy},
		{"resolve entry-only exit", func() error { return r.Resolve("TigerEntry", []string{"MacdEntry"}) }, ErrNoCapability},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if err := r.Resolve("MaCrossEntryExit", []string{"MaCrossEntryExit", "RsiHotExit"}); err != nil {
		t.Fatalf("unexpected resolve error: %v", err)
	}
}

func TestParamsSet(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		wantErr bool
	}{
		{"ma", 10, false},
		{"ma", 0, true},
		{"ma", 2.5, true},
		{"threshold", -0.1, true},
		{"threshold", 0.01, false},
		{"breakout", 1, false},
		{"reentry", 2, true},
		{"volumeRate", 0, true},
		{"stopLossPct", 0.05, false},
		{"stopLossPct", math.NaN(), true},
	}
	for _, tt := range tests {
		p := DefaultParams()
		err := p.Set(tt.name, tt.value)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Set(%s, %v): wantErr %v, got %v", tt.name, tt.value, tt.wantErr, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidParam) {
			t.Fatalf("expected ErrInvalidParam, got %v", err)
		}
	}

	p := DefaultParams()
	if err := p.Set("stopLossPct", 0.05); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := p.Clone()
	c.Extra["stopLossPct"] = 0.1
	c.Exits[0] = "RsiHotExit"
	if p.Float("stopLossPct", 0) != 0.05 || p.Exits[0] != "TigerExit" {
		t.Fatalf("clone shares state with the original")
	}

	for name, want := range map[string]float64{"ma": 20, "breakout": 1, "threshold": 0.005, "stopLossPct": 0.05} {
		if got, ok := p.Get(name); !ok || got != want {
			t.Fatalf("Get(%s): expected %v, got %v (%v)", name, want, got, ok)
		}
	}
	if _, ok := p.Get("missing"); ok {
		t.Fatalf("Get should report unknown extras")
	}
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	p.EntryDate = day0.AddDate(0, 1, 0)
	p.ExitDate = day0
	if err := p.Validate(); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam for an inverted window, got %v", err)
	}
	p = DefaultParams()
	p.Exits = nil
	if err := p.Validate(); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("expected ErrInvalidParam without exits, got %v", err)
	}
}

func TestPositionClose(t *testing.T) {
	bars := barsFromCloses(100, 110, 120, 95)

	t.Run("same day is a no-op", func(t *testing.T) {
		pos := openAt(0, bars)
		if pos.Close(0, bars[0], "x") {
			t.Fatalf("closing on the entry day should do nothing")
		}
		if !pos.IsOpen() {
			t.Fatalf("position should still be open")
		}
	})

	t.Run("plain close", func(t *testing.T) {
		pos := openAt(0, bars)
		if !pos.Close(3, bars[3], "out") {
			t.Fatalf("expected the close to apply")
		}
		if pos.Profit != -5 || pos.ProfitRate != -0.05 || pos.PnL != -5 {
			t.Fatalf("got profit %v rate %v pnl %v", pos.Profit, pos.ProfitRate, pos.PnL)
		}
		if pos.Duration != 3 || pos.ExitReason != "out" {
			t.Fatalf("got duration %v reason %q", pos.Duration, pos.ExitReason)
		}
	})

	t.Run("partial weighting", func(t *testing.T) {
		pos := openAt(0, bars)
		pos.AddPartial(1, bars[1], &Signal{Reason: "half", Status: "closed-50%", Ratio: 0.5})
		pos.Close(2, bars[2], "rest")
		if pos.Profit != 15 || pos.ProfitRate != 0.15 || pos.PnL != 15 {
			t.Fatalf("got profit %v rate %v pnl %v", pos.Profit, pos.ProfitRate, pos.PnL)
		}
		lines := strings.Split(pos.ExitReason, "\n")
		if len(lines) != 2 || lines[1] != "rest" || !strings.Contains(lines[0], "half") {
			t.Fatalf("unexpected exit reason %q", pos.ExitReason)
		}
	})

	t.Run("filled ratio is clamped", func(t *testing.T) {
		pos := openAt(0, bars)
		pos.AddPartial(1, bars[1], &Signal{Ratio: 0.7})
		pos.AddPartial(1, bars[1], &Signal{Ratio: 0.7})
		pos.Close(3, bars[3], "rest")
		if pos.Profit != 14 {
			t.Fatalf("expected no remainder after overfill, got %v", pos.Profit)
		}
	})

	t.Run("sub-cent prices keep their precision", func(t *testing.T) {
		tests := []struct {
			name       string
			entry      float64
			exit       float64
			wantProfit float64
			wantRate   float64
			wantPnL    float64
		}{
			{"gain under a cent", 0.08123, 0.0899, 0.00867, 0.1067, 10.67},
			{"loss under half a cent", 0.004, 0.003, -0.001, -0.25, -25},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				small := barsFromCloses(tt.entry, tt.exit)
				pos := openAt(0, small)
				pos.Close(1, small[1], "out")
				if pos.Profit != tt.wantProfit || pos.ProfitRate != tt.wantRate || pos.PnL != tt.wantPnL {
					t.Fatalf("got profit %v rate %v pnl %v", pos.Profit, pos.ProfitRate, pos.PnL)
				}
				if pos.FillPrice() != tt.exit {
					t.Fatalf("expected fill %v, got %v", tt.exit, pos.FillPrice())
				}
			})
		}
	})

	t.Run("fill price weights partials", func(t *testing.T) {
		small := barsFromCloses(0.5, 0.7, 0.4)
		pos := openAt(0, small)
		pos.AddPartial(1, small[1], &Signal{Reason: "half", Status: "closed-50%", Ratio: 0.5})
		pos.Close(2, small[2], "rest")
		// 0.5 + 0.5*(0.7-0.5) + 0.5*(0.4-0.5)
		if pos.FillPrice() != 0.55 || pos.Profit != 0.05 || pos.ProfitRate != 0.1 {
			t.Fatalf("got fill %v profit %v rate %v", pos.FillPrice(), pos.Profit, pos.ProfitRate)
		}
	})
}

func TestTigerEntry(t *testing.T) {
	bars := barsFromCloses(10, 10, 10, 9, 12)

	p := testParams(3)
	p.Breakout = false
	s, _ := newTigerEntry(NewInput("TEST", bars, p, nil))
	entry := s.(*TigerEntry)
	closed := NewClosedPosition("TEST")
	if entry.CheckEntry(3, closed) != nil {
		t.Fatalf("close under MA should not enter")
	}
	if entry.CheckEntry(4, closed) == nil {
		t.Fatalf("expected entry on the cross above MA")
	}
	if entry.CheckEntry(4, openAt(3, bars)) != nil {
		t.Fatalf("no entry while a position is open")
	}

	p.Breakout = true
	s, _ = newTigerEntry(NewInput("TEST", bars, p, nil))
	if s.(*TigerEntry).CheckEntry(4, closed) != nil {
		t.Fatalf("breakout rule needs the prior close above MA")
	}
}

func TestTigerExitFakeBreakout(t *testing.T) {
	bars := barsFromCloses(10, 10, 11, 11, 9)
	s, _ := newTigerExit(NewInput("TEST", bars, testParams(3), nil))
	exit := s.(*TigerExit)

	pos := openAt(2, bars)
	if exit.CheckExit(4, pos) == nil {
		t.Fatalf("expected a fake breakout stop two bars after entry")
	}
	pos.Breakout = true
	if exit.CheckExit(4, pos) != nil {
		t.Fatalf("a confirmed breakout needs two closes below MA")
	}
}

func TestDynamicStopExit(t *testing.T) {
	tests := []struct {
		name   string
		extra  map[string]float64
		closes []float64
		fireAt int
		want   string
	}{
		{"stop loss", map[string]float64{"stopLossPct": 0.03}, []float64{100, 99, 96}, 2, "stop loss"},
		{"take profit", map[string]float64{"takeProfitPct": 0.1}, []float64{100, 105, 111}, 2, "take profit"},
		{"trailing stop", map[string]float64{"dynamicStopPct": 0.05}, []float64{100, 119, 113}, 2, "trailing stop"},
		{"time stop", map[string]float64{"maxHoldPeriod": 2}, []float64{100, 100, 100, 100}, 3, "time stop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := barsFromCloses(tt.closes...)
			p := testParams(2)
			p.Extra = tt.extra
			s, err := newDynamicStopExit(NewInput("TEST", bars, p, nil))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			exit := s.(*DynamicStopExit)
			pos := openAt(0, bars)
			for i := 1; i < len(bars); i++ {
				sig := exit.CheckExit(i, pos)
				if i < tt.fireAt && sig != nil {
					t.Fatalf("unexpected signal at %d: %s", i, sig.Reason)
				}
				if i == tt.fireAt && (sig == nil || !strings.HasPrefix(sig.Reason, tt.want)) {
					t.Fatalf("expected %q at %d, got %+v", tt.want, i, sig)
				}
			}
		})
	}
}

func TestDynamicStopPartialTakeProfit(t *testing.T) {
	bars := barsFromCloses(100, 106, 107, 111)
	p := testParams(2)
	p.Extra = map[string]float64{"takeProfitPct": 0.1, "partialProfitPct": 0.05}
	s, _ := newDynamicStopExit(NewInput("TEST", bars, p, nil))
	exit := s.(*DynamicStopExit)
	pos := openAt(0, bars)

	sig := exit.CheckExit(1, pos)
	if sig == nil || sig.IsFullClose() || sig.Status != "closed-5%" || sig.Ratio != 0.5 {
		t.Fatalf("expected a 50%% partial tagged closed-5%%, got %+v", sig)
	}
	if sig := exit.CheckExit(2, pos); sig != nil {
		t.Fatalf("partial should fire once, got %+v", sig)
	}
	if sig := exit.CheckExit(3, pos); sig == nil || !sig.IsFullClose() {
		t.Fatalf("expected the full take profit, got %+v", sig)
	}
}

func TestRsiHotExitIsOverheat(t *testing.T) {
	bars := barsFromCloses(10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 15)
	s, err := newRsiHotExit(NewInput("TEST", bars, testParams(3), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := openAt(5, bars)
	sig := s.(*RsiHotExit).CheckExit(11, pos)
	if sig == nil {
		t.Fatalf("expected an RSI dead cross exit")
	}
	pos.Close(11, bars[11], sig.Reason)
	if !pos.IsOverheatExit() {
		t.Fatalf("exit reason %q should carry the overheat marker", sig.Reason)
	}
}

func TestBBTakeProfitPlan(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 10
	}
	bars := barsFromCloses(closes...)
	bars[22].High = 11.5
	bars[23].High = 12.5

	s, err := newBBEntryExit(NewInput("TEST", bars, testParams(20), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bb := s.(*BBEntryExit)
	pos := openAt(21, bars)
	pos.TakeProfit = &TakeProfitPlan{Profit1At: 11, Scale1Ratio: 0.5, Profit2At: 12, Scale2Ratio: 0.5}

	first := bb.CheckExit(22, pos)
	if first == nil || first.IsFullClose() || first.Ratio != 0.5 {
		t.Fatalf("expected a half exit at the middle target, got %+v", first)
	}
	second := bb.CheckExit(23, pos)
	if second == nil || !second.IsFullClose() || second.Ratio != 0.5 {
		t.Fatalf("expected the remaining half at the upper target, got %+v", second)
	}
}

func TestBBTargetsSkipEntryDay(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 10
	}
	bars := barsFromCloses(closes...)
	bars[21].High = 12.5
	bars[22].High = 12.5

	s, err := newBBEntryExit(NewInput("TEST", bars, testParams(20), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bb := s.(*BBEntryExit)
	pos := openAt(21, bars)
	pos.TakeProfit = &TakeProfitPlan{Profit1At: 13, Scale1Ratio: 0.5, Profit2At: 12, Scale2Ratio: 0.5}

	if sig := bb.CheckExit(21, pos); sig != nil || pos.TookProfit2 {
		t.Fatalf("upper target fired on the entry day: %+v", sig)
	}
	sig := bb.CheckExit(22, pos)
	if sig == nil || !sig.IsFullClose() || sig.Ratio != 1 {
		t.Fatalf("expected the full upper band exit the next day, got %+v", sig)
	}
	if !pos.Close(22, bars[22], sig.Reason) {
		t.Fatalf("expected the close to apply")
	}
}

func TestBBShortInputNeverFires(t *testing.T) {
	bars := barsFromCloses(10, 9, 11)
	s, err := newBBEntryExit(NewInput("TEST", bars, testParams(20), nil))
	if err != nil {
		t.Fatalf("short input should not fail construction: %v", err)
	}
	bb := s.(*BBEntryExit)
	for i := range bars {
		if bb.CheckEntry(i, NewClosedPosition("TEST")) != nil || bb.CheckExit(i, openAt(0, bars)) != nil {
			t.Fatalf("unexpected signal at %d", i)
		}
	}
}

func TestBBBreakoutNeedsSqueeze(t *testing.T) {
	squeeze := indicators.Series{9, 5, 4, 3, 2, 1}
	tests := []struct {
		name       string
		closes     []float64
		bandwidth  indicators.Series
		percentile float64
		wantFire   bool
	}{
		{"squeeze breaks out", []float64{10, 10, 10, 10, 12, 13}, squeeze, 20, true},
		{"bandwidth above the percentile", []float64{10, 10, 10, 10, 12, 13}, indicators.Series{9, 1, 2, 3, 4, 5}, 20, false},
		{"median percentile admits it", []float64{10, 10, 10, 10, 12, 13}, indicators.Series{9, 1, 2, 3, 4, 3}, 50, true},
		{"thin bandwidth history", []float64{10, 10, 10, 10, 12, 13},
			indicators.Series{indicators.Absent, indicators.Absent, indicators.Absent, 2, 1.5, 1}, 20, false},
		{"first close still inside", []float64{10, 10, 10, 10, 10.5, 13}, squeeze, 20, false},
		{"no new short-term high", []float64{10, 10, 10, 14, 12, 13}, squeeze, 20, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := NewInput("TEST", barsFromCloses(tt.closes...), testParams(20), nil)
			bb := &BBEntryExit{
				bars: bars{in},
				bands: &indicators.Frame{Series: map[string]indicators.Series{
					"upper":     {11, 11, 11, 11, 11, 11},
					"bandwidth": tt.bandwidth,
				}},
				bwLookback:        5,
				bwPercentile:      tt.percentile,
				shortHighLookback: 3,
			}
			sig := bb.CheckEntry(5, NewClosedPosition("TEST"))
			if !tt.wantFire {
				if sig != nil {
					t.Fatalf("unexpected entry: %+v", sig)
				}
				return
			}
			if sig == nil || sig.Rule != RuleBBBreakout {
				t.Fatalf("expected a breakout entry, got %+v", sig)
			}
		})
	}
}

func TestSarExitOnDownwardReversal(t *testing.T) {
	tape := barsFromCloses(10, 11, 12, 13, 8, 9, 16)
	s, err := newSarExit(NewInput("TEST", tape, testParams(20), nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	exit := s.(*SarExit)
	pos := openAt(1, tape)
	for i := range tape {
		sig := exit.CheckExit(i, pos)
		if i != 4 {
			if sig != nil {
				t.Fatalf("unexpected exit at %d: %s", i, sig.Reason)
			}
			continue
		}
		if sig == nil || !strings.Contains(sig.Reason, "14.00") {
			t.Fatalf("expected the reversal exit at the prior high, got %+v", sig)
		}
	}
}

func TestObvMacdEntryExit(t *testing.T) {
	frame := &indicators.Frame{
		Series: map[string]indicators.Series{
			"confidence": {0.9, 0.9, 0.9, 0.6, 0.55, 0.75, 0.8, 0.9},
		},
		Labels: map[string][]string{
			"signal": {"buy", "buy", "buy", "buy", "buy", "sell", "sell", "hold"},
			"trend":  {"bullish", "bullish", "bearish", "neutral", "bullish", "bearish", "bullish", "neutral"},
			"source": {"a", "rising channel", "b", "MACD crossed above zero", "c", "falling channel", "d", "e"},
		},
	}
	s := &ObvMacdEntryExit{frame: frame, minConfidence: 0.6}

	tests := []struct {
		name      string
		i         int
		wantEntry bool
		wantExit  bool
	}{
		{"first bar is skipped", 0, false, false},
		{"confident buy with the trend", 1, true, false},
		{"buy against a bearish trend", 2, false, false},
		{"buy at the confidence floor", 3, true, false},
		{"buy under the confidence floor", 4, false, false},
		{"confident sell with the trend", 5, false, true},
		{"sell against a bullish trend", 6, false, false},
		{"hold", 7, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := s.CheckEntry(tt.i, NewClosedPosition("TEST"))
			exit := s.CheckExit(tt.i, nil)
			if (entry != nil) != tt.wantEntry || (exit != nil) != tt.wantExit {
				t.Fatalf("expected entry=%v exit=%v, got %+v and %+v", tt.wantEntry, tt.wantExit, entry, exit)
			}
			for _, sig := range []*Signal{entry, exit} {
				if sig == nil {
					continue
				}
				if sig.Confidence != frame.Series["confidence"][tt.i] || !strings.Contains(sig.Reason, frame.Labels["source"][tt.i]) {
					t.Fatalf("signal does not carry the classifier output: %+v", sig)
				}
			}
		})
	}

	tape := barsFromCloses(10, 11)
	if sig := s.CheckEntry(1, openAt(0, tape)); sig != nil {
		t.Fatalf("no entry while a position is open, got %+v", sig)
	}
}

func TestEveryBuiltinRuns(t *testing.T) {
	closes := make([]float64, 160)
	for i := range closes {
		closes[i] = 100 + 12*math.Sin(float64(i)/7) + float64(i)*0.1
	}
	bars := barsFromCloses(closes...)
	r := NewRegistry()
	in := NewInput("TEST", bars, testParams(20), nil)

	for _, info := range r.Catalog() {
		s, err := r.Build(info.Key, in)
		if err != nil {
			t.Fatalf("%s: %v", info.Key, err)
		}
		entry, isEntry := s.(EntryStrategy)
		exit, isExit := s.(ExitStrategy)
		if isEntry != info.HasEntry || isExit != info.HasExit {
			t.Fatalf("%s: capabilities do not match the descriptor", info.Key)
		}
		for i := range bars {
			if isEntry {
				entry.CheckEntry(i, NewClosedPosition("TEST"))
			}
			if isExit {
				exit.CheckExit(i, openAt(0, bars))
			}
		}
	}
}
