package indicators

import (
	"math"

	"StockBacktester/internal/models"
)

const (
	exitAlertMAPeriod  = 20
	exitAlertATRPeriod = 20
)

// ExitAlert scores each bar 0..3 on signs of a fading trend: no two-day
// holds above MA20 in the last 20 bars, a 10-bar average bias below -3%,
// and an ATR change above 20% versus 20 bars earlier. Scores of 2 or more
// are worth acting on.
func ExitAlert(bars []models.Bar) Series {
	n := len(bars)
	out := NewSeries(n)
	closes := models.Closes(bars)
	ma := SMA(closes, exitAlertMAPeriod)

	for i := exitAlertMAPeriod; i < n; i++ {
		m := ma[i]
		if IsAbsent(m) || m == 0 {
			continue
		}

		bias := 0.0
		for j := i - 9; j <= i; j++ {
			bias += (closes[j] - m) / m * 100
		}
		bias /= 10

		holds := 0
		for j := i - exitAlertMAPeriod + 2; j <= i; j++ {
			if closes[j-1] > m && closes[j] > m {
				holds++
			}
		}

		atrNow := SimpleATR(bars[:i+1], exitAlertATRPeriod)
		change := 0.0
		if i-20 >= exitAlertATRPeriod {
			atrPrev := SimpleATR(bars[:i-20+1], exitAlertATRPeriod)
			if atrPrev != 0 {
				change = (atrNow - atrPrev) / atrPrev * 100
			}
		}

		score := 0.0
		if holds == 0 {
			score++
		}
		if bias < -3 {
			score++
		}
		if math.Abs(change) > 20 {
			score++
		}
		out[i] = score
	}
	return out
}

// SimpleATR is the plain average of the last period true ranges.
func SimpleATR(bars []models.Bar, period int) float64 {
	if period <= 0 || len(bars) < 2 {
		return 0
	}
	var trs []float64
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1].Close))
	}
	if len(trs) > period {
		trs = trs[len(trs)-period:]
	}
	sum := 0.0
	for _, v := range trs {
		sum += v
	}
	return sum / float64(period)
}
