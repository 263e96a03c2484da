package marketdata

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const tradingDaysPerYear = 252

// SMA is the mean of the last window closes. ok is false when fewer than
// window closes are available.
func SMA(closes []float64, window int) (float64, bool) {
	if window <= 0 || len(closes) < window {
		return 0, false
	}
	return stat.Mean(closes[len(closes)-window:], nil), true
}

// EMA seeds with the first close and smooths with alpha = 2/(span+1).
func EMA(closes []float64, span int) (float64, bool) {
	series := emaSeries(closes, span)
	if series == nil {
		return 0, false
	}
	return series[len(series)-1], true
}

func emaSeries(closes []float64, span int) []float64 {
	if span <= 0 || len(closes) < span {
		return nil
	}
	alpha := 2 / float64(span+1)
	out := make([]float64, len(closes))
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = alpha*closes[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI uses simple averages of the last period gains and losses. A window
// without losses reads 100.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	deltas := make([]float64, len(closes)-1)
	floats.SubTo(deltas, closes[1:], closes[:len(closes)-1])
	window := deltas[len(deltas)-period:]

	var gain, loss float64
	for _, d := range window {
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD is EMA(12) minus EMA(26) at the last close.
func MACD(closes []float64) (float64, bool) {
	fast := emaSeries(closes, 12)
	slow := emaSeries(closes, 26)
	if fast == nil || slow == nil {
		return 0, false
	}
	return fast[len(fast)-1] - slow[len(slow)-1], true
}

// GoldenCross reports SMA50 crossing above SMA200 on the last bar.
func GoldenCross(closes []float64) bool {
	if len(closes) < 201 {
		return false
	}
	prev := closes[:len(closes)-1]
	prev50, _ := SMA(prev, 50)
	prev200, _ := SMA(prev, 200)
	cur50, _ := SMA(closes, 50)
	cur200, _ := SMA(closes, 200)
	return prev50 <= prev200 && cur50 > cur200
}

// Volatility is the annualized standard deviation of daily simple returns.
func Volatility(closes []float64) (float64, bool) {
	if len(closes) < 3 {
		return 0, false
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	if len(returns) < 2 {
		return 0, false
	}
	return stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear), true
}
