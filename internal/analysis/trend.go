package analysis

import (
	"math"

	"bot-fleet-engine/internal/candles"
)

// TrendDirection represents a directional judgment
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// TrendMomentumResult is the per-window output of the TrendMomentumAnalyzer
type TrendMomentumResult struct {
	Trend             TrendDirection `json:"trend"`
	RSI               float64        `json:"rsi"`
	MACD              MACD           `json:"macd"`
	MomentumStrength  float64        `json:"momentum_strength"` // 0.0 to 1.0
	MomentumDirection TrendDirection `json:"momentum_direction"`
}

// TrendConfig holds indicator periods
type TrendConfig struct {
	ShortSMA   int
	LongSMA    int
	RSIPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
}

// DefaultTrendConfig returns the standard periods
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		ShortSMA:   20,
		LongSMA:    50,
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
	}
}

// TrendMomentumAnalyzer classifies trend and momentum over a candle window
type TrendMomentumAnalyzer struct {
	config TrendConfig
}

// NewTrendMomentumAnalyzer creates a new analyzer. Zero periods take their defaults.
func NewTrendMomentumAnalyzer(config TrendConfig) *TrendMomentumAnalyzer {
	def := DefaultTrendConfig()
	if config.ShortSMA <= 0 {
		config.ShortSMA = def.ShortSMA
	}
	if config.LongSMA <= 0 {
		config.LongSMA = def.LongSMA
	}
	if config.RSIPeriod <= 0 {
		config.RSIPeriod = def.RSIPeriod
	}
	if config.MACDFast <= 0 {
		config.MACDFast = def.MACDFast
	}
	if config.MACDSlow <= 0 {
		config.MACDSlow = def.MACDSlow
	}
	if config.MACDSignal <= 0 {
		config.MACDSignal = def.MACDSignal
	}
	return &TrendMomentumAnalyzer{config: config}
}

// Analyze performs trend and momentum analysis. Short windows yield neutral defaults.
func (a *TrendMomentumAnalyzer) Analyze(series []candles.Candle) TrendMomentumResult {
	closes := candles.Closes(series)

	result := TrendMomentumResult{
		Trend:             a.DetermineTrend(closes),
		RSI:               RSI(closes, a.config.RSIPeriod),
		MomentumDirection: TrendNeutral,
	}
	if len(closes) == 0 {
		return result
	}

	result.MACD = ComputeMACD(closes, a.config.MACDFast, a.config.MACDSlow, a.config.MACDSignal)
	result.MomentumStrength = clamp(math.Abs(result.MACD.Histogram), 0, 1)
	if result.MACD.Value > result.MACD.Signal {
		result.MomentumDirection = TrendBullish
	} else {
		result.MomentumDirection = TrendBearish
	}

	return result
}

// DetermineTrend compares the last close with the short and long SMAs.
// Without enough data for the long SMA it falls back to the short one and
// only the close/short comparison decides.
func (a *TrendMomentumAnalyzer) DetermineTrend(closes []float64) TrendDirection {
	if len(closes) < a.config.ShortSMA {
		return TrendNeutral
	}

	last := closes[len(closes)-1]
	short := SMA(closes, a.config.ShortSMA)

	hasLong := len(closes) >= a.config.LongSMA
	long := short
	if hasLong {
		long = SMA(closes, a.config.LongSMA)
	}

	switch {
	case last > short && (short > long || !hasLong):
		return TrendBullish
	case last < short && (short < long || !hasLong):
		return TrendBearish
	}
	return TrendNeutral
}
