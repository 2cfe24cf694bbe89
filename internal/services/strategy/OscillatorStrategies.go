package strategy

import (
	"fmt"

	"StockBacktester/internal/services/indicators"
)

// RsiHotExit closes when RSI falls back through its overbought line. Its
// reason carries OverheatMarker so the engine can flag a later re-entry.
type RsiHotExit struct {
	rsi *indicators.Frame
}

func newRsiHotExit(in *Input) (any, error) {
	rsi, err := in.Indicator(indicators.Config{Kind: indicators.KindRSI, Params: map[string]float64{
		"period": in.Params.Float("rsiPeriod", 9),
		"limit":  in.Params.Float("rsiLimit", 80),
	}})
	if err != nil {
		return nil, err
	}
	return &RsiHotExit{rsi: rsi}, nil
}

func (s *RsiHotExit) CheckExit(i int, _ *Position) *Signal {
	if !s.rsi.Flag("dead", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("RSI %s exit: %.2f", OverheatMarker, s.rsi.Value("rsi", i))}
}

// RsiExit closes when the short RSI crosses below the long RSI.
type RsiExit struct {
	short, long       indicators.Series
	shortLen, longLen int
}

func newRsiExit(in *Input) (any, error) {
	s := &RsiExit{shortLen: in.Params.Int("rsiShort", 5), longLen: in.Params.Int("rsiLong", 10)}
	short, err := in.Indicator(indicators.Config{Kind: indicators.KindRSI, Params: map[string]float64{"period": float64(s.shortLen)}})
	if err != nil {
		return nil, err
	}
	long, err := in.Indicator(indicators.Config{Kind: indicators.KindRSI, Params: map[string]float64{"period": float64(s.longLen)}})
	if err != nil {
		return nil, err
	}
	s.short, s.long = short.Series["rsi"], long.Series["rsi"]
	return s, nil
}

func (s *RsiExit) CheckExit(i int, _ *Position) *Signal {
	if i < 1 || !s.short.Valid(i) || !s.short.Valid(i-1) || !s.long.Valid(i) || !s.long.Valid(i-1) {
		return nil
	}
	if s.short[i-1] >= s.long[i-1] && s.short[i] < s.long[i] {
		return &Signal{Reason: fmt.Sprintf("RSI(%d/%d) dead cross: %.2f < %.2f", s.shortLen, s.longLen, s.short[i], s.long[i])}
	}
	return nil
}

func adxConfig(in *Input) indicators.Config {
	return indicators.Config{Kind: indicators.KindADX, Params: map[string]float64{
		"period": in.Params.Float("adxPeriod", 14),
		"weekly": in.Params.Float("adxWeekly", 0),
	}}
}

func adxNote(f *indicators.Frame, i int) string {
	note := fmt.Sprintf("day: %.2f", f.Value("adx", i))
	if w := f.Value("week", i); !indicators.IsAbsent(w) {
		note += fmt.Sprintf(" / week: %.2f", w)
	}
	if f.Flag("rising", i) {
		note += ", trend strengthening"
	}
	return note
}

// AdxEntry buys on a DMI golden cross, optionally gated by weekly ADX.
type AdxEntry struct {
	adx *indicators.Frame
}

func newAdxEntry(in *Input) (any, error) {
	adx, err := in.Indicator(adxConfig(in))
	if err != nil {
		return nil, err
	}
	return &AdxEntry{adx: adx}, nil
}

func (s *AdxEntry) CheckEntry(i int, pos *Position) *Signal {
	if i < 1 || pos.IsOpen() || !s.adx.Flag("golden", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("DMI golden cross %.2f > %.2f, %s",
		s.adx.Value("plusDi", i), s.adx.Value("minusDi", i), adxNote(s.adx, i))}
}

// AdxExit sells on a DMI dead cross.
type AdxExit struct {
	adx *indicators.Frame
}

func newAdxExit(in *Input) (any, error) {
	adx, err := in.Indicator(adxConfig(in))
	if err != nil {
		return nil, err
	}
	return &AdxExit{adx: adx}, nil
}

func (s *AdxExit) CheckExit(i int, _ *Position) *Signal {
	if i < 1 || !s.adx.Flag("dead", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("DMI dead cross %.2f > %.2f, %s",
		s.adx.Value("minusDi", i), s.adx.Value("plusDi", i), adxNote(s.adx, i))}
}

type MacdEntry struct {
	macd *indicators.Frame
}

func newMacdEntry(in *Input) (any, error) {
	macd, err := in.Indicator(indicators.Config{Kind: indicators.KindMACD})
	if err != nil {
		return nil, err
	}
	return &MacdEntry{macd: macd}, nil
}

func (s *MacdEntry) CheckEntry(i int, pos *Position) *Signal {
	if i < 1 || pos.IsOpen() || !s.macd.Flag("golden", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("MACD golden cross, score %.0f", s.macd.Value("score", i))}
}

type MacdExit struct {
	macd *indicators.Frame
}

func newMacdExit(in *Input) (any, error) {
	macd, err := in.Indicator(indicators.Config{Kind: indicators.KindMACD})
	if err != nil {
		return nil, err
	}
	return &MacdExit{macd: macd}, nil
}

func (s *MacdExit) CheckExit(i int, _ *Position) *Signal {
	if i < 1 || !s.macd.Flag("dead", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("MACD dead cross, score %.0f", s.macd.Value("score", i))}
}

// KdjExit sells when K falls through the overbought band.
type KdjExit struct {
	kdj *indicators.Frame
}

func newKdjExit(in *Input) (any, error) {
	kdj, err := in.Indicator(indicators.Config{Kind: indicators.KindKDJ, Params: map[string]float64{
		"high": in.Params.Float("kdjHigh", 80),
	}})
	if err != nil {
		return nil, err
	}
	return &KdjExit{kdj: kdj}, nil
}

func (s *KdjExit) CheckExit(i int, _ *Position) *Signal {
	if !s.kdj.Flag("dead", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("KDJ dead cross: K %.2f D %.2f", s.kdj.Value("k", i), s.kdj.Value("d", i))}
}

// CciExit sells when CCI falls back through +limit.
type CciExit struct {
	cci *indicators.Frame
}

func newCciExit(in *Input) (any, error) {
	cci, err := in.Indicator(indicators.Config{Kind: indicators.KindCCI, Params: map[string]float64{
		"period": in.Params.Float("cciPeriod", 14),
		"limit":  in.Params.Float("cciLimit", 100),
	}})
	if err != nil {
		return nil, err
	}
	return &CciExit{cci: cci}, nil
}

func (s *CciExit) CheckExit(i int, _ *Position) *Signal {
	if !s.cci.Flag("dead", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("CCI dead cross: %.2f", s.cci.Value("cci", i))}
}

// SarExit sells when the parabolic SAR flips to a downtrend.
type SarExit struct {
	sar *indicators.Frame
}

func newSarExit(in *Input) (any, error) {
	sar, err := in.Indicator(indicators.Config{Kind: indicators.KindSAR, Params: map[string]float64{
		"step":    in.Params.Float("sarStep", 0.02),
		"maxStep": in.Params.Float("sarMaxStep", 0.2),
	}})
	if err != nil {
		return nil, err
	}
	return &SarExit{sar: sar}, nil
}

func (s *SarExit) CheckExit(i int, _ *Position) *Signal {
	if !s.sar.Flag("reverse", i) || s.sar.Flag("up", i) {
		return nil
	}
	return &Signal{Reason: fmt.Sprintf("SAR reversed down at %.2f", s.sar.Value("sar", i))}
}
