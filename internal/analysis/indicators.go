package analysis

import "math"

// SMA returns the simple moving average of the last period values.
// Returns 0 when fewer than period values are available.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// EMASeries returns the exponential moving average at every point of values.
// The recurrence is seeded with the first value: ema = v*k + prev*(1-k), k = 2/(period+1).
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// EMA returns the last value of EMASeries.
func EMA(values []float64, period int) float64 {
	series := EMASeries(values, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

// RSI computes the relative strength index over the last period deltas using simple
// averages. Fewer than period+1 values returns the neutral 50; zero average loss returns 100.
func RSI(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 50
	}

	var gains, losses float64
	start := len(values) - period
	for i := start; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return clamp(100-(100/(1+rs)), 0, 100)
}

// MACD holds the MACD line, its signal line and the histogram.
type MACD struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// ComputeMACD computes fast EMA - slow EMA as a series and its signal EMA over that series.
func ComputeMACD(values []float64, fast, slow, signal int) MACD {
	if len(values) == 0 {
		return MACD{}
	}

	fastSeries := EMASeries(values, fast)
	slowSeries := EMASeries(values, slow)

	line := make([]float64, len(values))
	for i := range values {
		line[i] = fastSeries[i] - slowSeries[i]
	}

	value := line[len(line)-1]
	sig := EMA(line, signal)

	return MACD{
		Value:     value,
		Signal:    sig,
		Histogram: value - sig,
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
