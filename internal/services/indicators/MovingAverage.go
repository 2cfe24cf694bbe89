package indicators

// SMA computes a simple moving average. A window containing an absent value
// yields an absent result.
func SMA(values []float64, period int) Series {
	out := NewSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for _, v := range values[i-period+1 : i+1] {
			if IsAbsent(v) {
				valid = false
				break
			}
			sum += v
		}
		if valid {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average seeded with the simple average
// of the first period valid values. Leading absent values are skipped, so an
// EMA of an EMA re-seeds over its valid suffix.
func EMA(values []float64, period int) Series {
	out := NewSeries(len(values))
	if period <= 0 {
		return out
	}

	k := multiplier(period)
	seeded := false
	count := 0
	sum := 0.0
	ema := 0.0

	for i, v := range values {
		if IsAbsent(v) {
			continue
		}
		if !seeded {
			sum += v
			count++
			if count == period {
				ema = sum / float64(period)
				seeded = true
				out[i] = ema
			}
			continue
		}
		ema = v*k + ema*(1-k)
		out[i] = ema
	}
	return out
}

// DEMA is 2*EMA1 - EMA2 where EMA2 is the EMA of EMA1.
func DEMA(values []float64, period int) Series {
	ema1 := EMA(values, period)
	ema2 := EMA(ema1, period)

	out := NewSeries(len(values))
	for i := range out {
		if allValid(ema1[i], ema2[i]) {
			out[i] = 2*ema1[i] - ema2[i]
		}
	}
	return out
}

// TEMA is 3*(EMA1 - EMA2) + EMA3.
func TEMA(values []float64, period int) Series {
	ema1 := EMA(values, period)
	ema2 := EMA(ema1, period)
	ema3 := EMA(ema2, period)

	out := NewSeries(len(values))
	for i := range out {
		if allValid(ema1[i], ema2[i], ema3[i]) {
			out[i] = 3*(ema1[i]-ema2[i]) + ema3[i]
		}
	}
	return out
}

// MovingAverage selects an average by name: "ema", "dema" or "tema".
func MovingAverage(kind string, values []float64, period int) (Series, error) {
	switch kind {
	case "ema", "EMA":
		return EMA(values, period), nil
	case "dema", "DEMA":
		return DEMA(values, period), nil
	case "tema", "TEMA":
		return TEMA(values, period), nil
	}
	return nil, ErrInvalidConfig
}

// Slope is (v[i] - v[i-n]) / n.
func Slope(values Series, n int) Series {
	out := NewSeries(len(values))
	if n <= 0 {
		return out
	}
	for i := n; i < len(values); i++ {
		if allValid(values[i], values[i-n]) {
			out[i] = (values[i] - values[i-n]) / float64(n)
		}
	}
	return out
}

func multiplier(period int) float64 {
	return 2.0 / float64(period+1)
}
