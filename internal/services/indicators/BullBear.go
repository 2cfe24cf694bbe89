package indicators

import "StockBacktester/internal/models"

type BullBearResult struct {
	MA20  Series
	MA60  Series
	MA120 Series

	Bullish     Flags // MA20 above MA60 or MA120
	BullishTurn Flags
	BearishTurn Flags
}

// BullBear classifies each bar by the 20/60/120 moving averages and marks
// the bars where that classification flips.
func BullBear(bars []models.Bar) *BullBearResult {
	closes := models.Closes(bars)
	n := len(bars)
	res := &BullBearResult{
		MA20:        SMA(closes, 20),
		MA60:        SMA(closes, 60),
		MA120:       SMA(closes, 120),
		Bullish:     make(Flags, n),
		BullishTurn: make(Flags, n),
		BearishTurn: make(Flags, n),
	}

	for i := 0; i < n; i++ {
		res.Bullish[i] = res.MA20[i] > res.MA60[i] || res.MA20[i] > res.MA120[i]
	}

	seenBull := false
	for i := 1; i < n; i++ {
		if !res.MA120.Valid(i) || !res.MA120.Valid(i-1) {
			continue
		}
		now, was := res.Bullish[i], res.Bullish[i-1]
		if now && (!seenBull || !was) {
			res.BullishTurn[i] = true
			seenBull = true
		}
		if !now && was {
			res.BearishTurn[i] = true
		}
	}
	return res
}
