package analysis

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"bot-fleet-engine/internal/candles"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// seriesFromCloses builds candles with a 1-point range around each close and constant volume
func seriesFromCloses(closes []float64) []candles.Candle {
	out := make([]candles.Candle, len(closes))
	for i, c := range closes {
		out[i] = candles.Candle{
			Timestamp: baseTime.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// TestAscendingSeriesIsBullish tests 25 strictly ascending closes
func TestAscendingSeriesIsBullish(t *testing.T) {
	analyzer := NewTrendMomentumAnalyzer(DefaultTrendConfig())

	result := analyzer.Analyze(seriesFromCloses(linear(25, 100, 1)))

	if result.Trend != TrendBullish {
		t.Errorf("Expected bullish trend, got %s", result.Trend)
	}
	if result.RSI <= 50 {
		t.Errorf("Expected RSI > 50, got %f", result.RSI)
	}
	if result.MomentumDirection != TrendBullish {
		t.Errorf("Expected bullish momentum, got %s", result.MomentumDirection)
	}
}

// TestDescendingSeriesIsBearish tests a long falling series that uses both SMAs
func TestDescendingSeriesIsBearish(t *testing.T) {
	analyzer := NewTrendMomentumAnalyzer(DefaultTrendConfig())

	result := analyzer.Analyze(seriesFromCloses(linear(60, 200, -1)))

	if result.Trend != TrendBearish {
		t.Errorf("Expected bearish trend, got %s", result.Trend)
	}
	if result.RSI != 0 {
		t.Errorf("Expected RSI 0 for only losses, got %f", result.RSI)
	}
	if result.MomentumDirection != TrendBearish {
		t.Errorf("Expected bearish momentum, got %s", result.MomentumDirection)
	}
}

// TestShortSeriesDefaults tests the neutral fallbacks for short windows
func TestShortSeriesDefaults(t *testing.T) {
	analyzer := NewTrendMomentumAnalyzer(DefaultTrendConfig())

	result := analyzer.Analyze(seriesFromCloses(linear(10, 100, 1)))
	if result.Trend != TrendNeutral {
		t.Errorf("Expected neutral trend below 20 candles, got %s", result.Trend)
	}
	if result.RSI != 50 {
		t.Errorf("Expected RSI 50 below 15 candles, got %f", result.RSI)
	}

	empty := analyzer.Analyze(nil)
	if empty.Trend != TrendNeutral || empty.RSI != 50 || empty.MomentumStrength != 0 {
		t.Errorf("Expected neutral zero result for empty input, got %+v", empty)
	}
}

// TestRSIBounds tests that RSI always stays within [0,100]
func TestRSIBounds(t *testing.T) {
	src := candles.NewSyntheticSource(candles.SyntheticConfig{Seed: 99, Volatility: 0.05})
	for i := 0; i < 20; i++ {
		series, err := src.Fetch(context.Background(), "XAUUSD", "1h", 15+i*10)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		rsi := RSI(candles.Closes(series), 14)
		if rsi < 0 || rsi > 100 || math.IsNaN(rsi) {
			t.Errorf("RSI out of bounds: %f", rsi)
		}
	}
}

// TestRSIFlatSeries tests that zero average loss returns 100
func TestRSIFlatSeries(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 50
	}
	if rsi := RSI(closes, 14); rsi != 100 {
		t.Errorf("Expected RSI 100 for flat series, got %f", rsi)
	}
}

// TestEMASeedAndRecurrence tests the seeded EMA recurrence
func TestEMASeedAndRecurrence(t *testing.T) {
	series := EMASeries([]float64{1, 2}, 3) // k = 0.5
	if series[0] != 1 {
		t.Errorf("Expected seed 1, got %f", series[0])
	}
	if series[1] != 1.5 {
		t.Errorf("Expected 1.5, got %f", series[1])
	}
	if EMA(nil, 3) != 0 {
		t.Error("Expected 0 for empty input")
	}
}

// TestMACDUsesSignalSeries tests that the signal line is an EMA over the MACD series
func TestMACDUsesSignalSeries(t *testing.T) {
	closes := linear(40, 100, 1)
	macd := ComputeMACD(closes, 12, 26, 9)

	fast := EMASeries(closes, 12)
	slow := EMASeries(closes, 26)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = fast[i] - slow[i]
	}
	expectedSignal := EMA(line, 9)

	if macd.Signal != expectedSignal {
		t.Errorf("Expected signal %f, got %f", expectedSignal, macd.Signal)
	}
	if macd.Signal == macd.Value {
		t.Error("Signal line should lag the MACD line on a rising series")
	}
	if math.Abs(macd.Histogram-(macd.Value-macd.Signal)) > 1e-12 {
		t.Errorf("Expected histogram %f, got %f", macd.Value-macd.Signal, macd.Histogram)
	}
}

// TestConstantSeriesMACDIsZero tests MACD on a flat series
func TestConstantSeriesMACDIsZero(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 10
	}
	macd := ComputeMACD(closes, 12, 26, 9)
	if math.Abs(macd.Value) > 1e-9 || math.Abs(macd.Signal) > 1e-9 || math.Abs(macd.Histogram) > 1e-9 {
		t.Errorf("Expected zero MACD, got %+v", macd)
	}
}

// TestTrendAnalyzerIdempotent tests that repeated analysis is identical
func TestTrendAnalyzerIdempotent(t *testing.T) {
	src := candles.NewSyntheticSource(candles.SyntheticConfig{Seed: 5})
	series, _ := src.Fetch(context.Background(), "XAUUSD", "1h", 200)

	analyzer := NewTrendMomentumAnalyzer(DefaultTrendConfig())
	first := analyzer.Analyze(series)
	second := analyzer.Analyze(series)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical results, got %+v and %+v", first, second)
	}
	if first.MomentumStrength < 0 || first.MomentumStrength > 1 {
		t.Errorf("Momentum strength out of range: %f", first.MomentumStrength)
	}
}

// TestEngineRunMergesResults tests the parallel engine against direct calls
func TestEngineRunMergesResults(t *testing.T) {
	src := candles.NewSyntheticSource(candles.SyntheticConfig{Seed: 11})
	series, _ := src.Fetch(context.Background(), "XAUUSD", "1h", 120)

	engine := NewEngine(nil, nil)
	snap, err := engine.Run(context.Background(), "XAUUSD", "1h", series)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	direct := NewTrendMomentumAnalyzer(DefaultTrendConfig()).Analyze(series)
	if !reflect.DeepEqual(snap.Trend, direct) {
		t.Errorf("Expected merged trend %+v, got %+v", direct, snap.Trend)
	}
	structure := NewStructureAnalyzer(DefaultStructureConfig()).Analyze(series)
	if !reflect.DeepEqual(snap.Structure, structure) {
		t.Error("Merged structure differs from direct analysis")
	}
	if snap.LastClose != series[len(series)-1].Close {
		t.Errorf("Expected last close %f, got %f", series[len(series)-1].Close, snap.LastClose)
	}
}

// TestEngineRunCancelled tests that a cancelled context aborts the run
func TestEngineRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(nil, nil)
	if _, err := engine.Run(ctx, "XAUUSD", "1h", seriesFromCloses(linear(30, 1, 1))); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
