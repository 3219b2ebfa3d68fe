// Package candles provides the OHLCV model and the sources that supply ordered
// candle series to the analyzers.
package candles

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnorderedSeries = errors.New("candle series is not strictly ascending by timestamp")
	ErrUnknownInterval = errors.New("unknown candle interval")
)

// Candle is a single OHLCV bar. Values are never mutated after construction.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// BodySize returns |close - open|.
func (c Candle) BodySize() float64 {
	if c.Close > c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// Source supplies ordered candle series for a symbol and timeframe.
type Source interface {
	Fetch(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
}

// Validate checks that a series is strictly ascending with no duplicate timestamps.
func Validate(series []Candle) error {
	for i := 1; i < len(series); i++ {
		if !series[i].Timestamp.After(series[i-1].Timestamp) {
			return ErrUnorderedSeries
		}
	}
	return nil
}

// Closes extracts the close prices of a series.
func Closes(series []Candle) []float64 {
	out := make([]float64, len(series))
	for i, c := range series {
		out[i] = c.Close
	}
	return out
}

// IntervalDuration maps an interval label ("1m", "15m", "1h", "15M") to its duration.
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m", "1M":
		return time.Minute, nil
	case "5m", "5M":
		return 5 * time.Minute, nil
	case "15m", "15M":
		return 15 * time.Minute, nil
	case "30m", "30M":
		return 30 * time.Minute, nil
	case "1h", "1H", "H1":
		return time.Hour, nil
	case "4h", "4H", "H4":
		return 4 * time.Hour, nil
	case "1d", "1D", "D1":
		return 24 * time.Hour, nil
	}
	return 0, ErrUnknownInterval
}
