package indicator

import "math"

// sma is the simple average of the last period values.
func sma(data []float64, period int) (float64, bool) {
	if period <= 0 || len(data) < period {
		return 0, false
	}
	var sum float64
	for _, v := range data[len(data)-period:] {
		sum += v
	}
	return sum / float64(period), true
}

// ema seeds with the simple average of the first period values and then
// smooths with 2/(period+1) over the rest of the series.
func ema(data []float64, period int) (float64, bool) {
	if period <= 0 || len(data) < period {
		return 0, false
	}
	k := 2 / float64(period+1)
	var seed float64
	for _, v := range data[:period] {
		seed += v
	}
	e := seed / float64(period)
	for _, v := range data[period:] {
		e = v*k + e*(1-k)
	}
	return e, true
}

// rsiContrarian is (50-RSI)/50 over the last period changes, using simple
// averages of gains and losses. Zero when the window holds no losses.
func rsiContrarian(prices []float64, period int) (float64, bool) {
	if len(prices) <= period {
		return 0, false
	}
	window := prices[len(prices)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		ch := window[i] - window[i-1]
		if ch > 0 {
			gains += ch
		} else {
			losses += -ch
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss <= 0 {
		return 0, true
	}
	rsi := 100 - 100/(1+avgGain/avgLoss)
	return (50 - rsi) / 50, true
}

// stochasticContrarian is (50-%K)/50 over the last period closes.
func stochasticContrarian(prices []float64, period int) (float64, bool) {
	if len(prices) < period {
		return 0, false
	}
	window := prices[len(prices)-period:]
	lo, hi := window[0], window[0]
	for _, p := range window {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	current := prices[len(prices)-1]
	k := 50.0
	if hi > lo {
		k = 100 * (current - lo) / (hi - lo)
	}
	return (50 - k) / 50, true
}

// populationStdDev of the last period values around mean.
func populationStdDev(data []float64, period int, mean float64) float64 {
	var sq float64
	for _, v := range data[len(data)-period:] {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(period))
}

// obvTrend accumulates on-balance volume over the last period bars and
// returns the final OBV relative to the mean of the running values.
func obvTrend(prices, volumes []float64, period int) (float64, bool) {
	if len(prices) < period || len(volumes) < period || len(prices) < 2 {
		return 0, false
	}
	start := len(prices) - period
	if start < 1 {
		start = 1
	}
	var obv, sum float64
	for i := start; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			obv += volumes[i]
		case prices[i] < prices[i-1]:
			obv -= volumes[i]
		}
		sum += obv
	}
	mean := sum / float64(period)
	if mean == 0 {
		return 0, false
	}
	return (obv - mean) / math.Abs(mean), true
}

// moneyFlow is the simplified Chaikin Money Flow: each bar in the window
// counts +1 when it closed above the previous day's close of the whole
// series, else -1, weighted by volume.
func moneyFlow(prices, volumes []float64, period int) (float64, bool) {
	if len(prices) < period || len(volumes) < period || len(prices) < 2 {
		return 0, false
	}
	prev := prices[len(prices)-2]
	var flow, volSum float64
	for i := len(prices) - period; i < len(prices); i++ {
		sign := -1.0
		if prices[i]-prev > 0 {
			sign = 1
		}
		flow += sign * volumes[i]
		volSum += volumes[i]
	}
	if volSum <= 0 {
		return 0, false
	}
	return flow / volSum, true
}

// averageMove is the mean absolute day-over-day close change over the last
// period days, normalized by the current price.
func averageMove(prices []float64, period int) (float64, bool) {
	if len(prices) <= period {
		return 0, false
	}
	var sum float64
	for i := len(prices) - period; i < len(prices); i++ {
		sum += math.Abs(prices[i] - prices[i-1])
	}
	current := prices[len(prices)-1]
	if current <= 0 {
		return 0, false
	}
	return sum / float64(period) / current, true
}
