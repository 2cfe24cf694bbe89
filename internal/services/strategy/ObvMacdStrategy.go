package strategy

import (
	"fmt"

	"StockBacktester/internal/services/indicators"
)

// ObvMacdEntryExit follows the OBV MACD classifier. It buys on a confident
// buy signal outside a bearish trend and sells on a confident sell signal
// outside a bullish trend.
type ObvMacdEntryExit struct {
	frame         *indicators.Frame
	minConfidence float64
}

func newObvMacdEntryExit(in *Input) (any, error) {
	frame, err := in.Indicator(indicators.Config{Kind: indicators.KindObvMacd, Params: map[string]float64{
		"maType":     in.Params.Float("maType", 1),
		"maLength":   in.Params.Float("maLength", 9),
		"slowLength": in.Params.Float("slowLength", 26),
	}})
	if err != nil {
		return nil, err
	}
	return &ObvMacdEntryExit{frame: frame, minConfidence: in.Params.Float("minConfidence", 0.6)}, nil
}

func (s *ObvMacdEntryExit) CheckEntry(i int, pos *Position) *Signal {
	if i < 1 || pos.IsOpen() {
		return nil
	}
	return s.match(i, indicators.SignalBuy, indicators.TrendBullish)
}

func (s *ObvMacdEntryExit) CheckExit(i int, _ *Position) *Signal {
	if i < 1 {
		return nil
	}
	return s.match(i, indicators.SignalSell, indicators.TrendBearish)
}

func (s *ObvMacdEntryExit) match(i int, want, trend string) *Signal {
	if s.frame.Label("signal", i) != want {
		return nil
	}
	conf := s.frame.Value("confidence", i)
	if indicators.IsAbsent(conf) || conf < s.minConfidence {
		return nil
	}
	t := s.frame.Label("trend", i)
	if t != trend && t != indicators.TrendNeutral {
		return nil
	}
	source := s.frame.Label("source", i)
	return &Signal{
		Reason:     fmt.Sprintf("OBV MACD %s signal: %s (%.2f)", want, source, conf),
		Confidence: conf,
	}
}
