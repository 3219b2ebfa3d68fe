package analysis

import (
	"math"
	"sort"
	"time"

	"bot-fleet-engine/internal/candles"
)

// SwingKind marks a swing point as a high or a low
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint represents a significant price level
type SwingPoint struct {
	Price     float64   `json:"price"`
	Kind      SwingKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Index     int       `json:"index"`
	Strength  float64   `json:"strength"` // 0.0 to 1.0, volume relative
}

// FibLevel is one retracement level
type FibLevel struct {
	Percentage float64 `json:"percentage"`
	Price      float64 `json:"price"`
}

// FibonacciLevels anchors retracements between the window extremes
type FibonacciLevels struct {
	SwingHigh float64    `json:"swing_high"`
	SwingLow  float64    `json:"swing_low"`
	Direction string     `json:"direction"` // "uptrend" or "downtrend"
	Levels    []FibLevel `json:"levels"`
}

// FibonacciRatios are the canonical retracement percentages
var FibonacciRatios = []float64{0, 23.6, 38.2, 50, 61.8, 78.6, 100}

// LevelKind marks a key level as support or resistance
type LevelKind string

const (
	LevelSupport    LevelKind = "support"
	LevelResistance LevelKind = "resistance"
)

// KeyLevel is a confirmed local extremum ranked by touch count
type KeyLevel struct {
	Price     float64   `json:"price"`
	Kind      LevelKind `json:"kind"`
	Strength  float64   `json:"strength"`
	Touches   int       `json:"touches"`
	Timestamp time.Time `json:"timestamp"`
}

// StructureResult is the output of the StructureAnalyzer
type StructureResult struct {
	Bias              TrendDirection  `json:"bias"`
	SwingPoints       []SwingPoint    `json:"swing_points"`
	Fibonacci         FibonacciLevels `json:"fibonacci"`
	KeyLevels         []KeyLevel      `json:"key_levels"`
	StructureStrength float64         `json:"structure_strength"`
}

// StructureConfig holds window sizes for structure detection
type StructureConfig struct {
	SwingLookback  int     // candles on each side for swing points
	LevelLookback  int     // candles on each side for key levels
	TouchTolerance float64 // fraction of price, 0.001 = 0.1%
	MaxKeyLevels   int
	BiasSwings     int // most recent swings of each kind used for bias
}

// DefaultStructureConfig returns the standard structure windows
func DefaultStructureConfig() StructureConfig {
	return StructureConfig{
		SwingLookback:  5,
		LevelLookback:  2,
		TouchTolerance: 0.001,
		MaxKeyLevels:   5,
		BiasSwings:     3,
	}
}

// StructureAnalyzer detects swings, bias, Fibonacci levels and key levels
type StructureAnalyzer struct {
	config StructureConfig
}

// NewStructureAnalyzer creates a new structure analyzer
func NewStructureAnalyzer(config StructureConfig) *StructureAnalyzer {
	def := DefaultStructureConfig()
	if config.SwingLookback <= 0 {
		config.SwingLookback = def.SwingLookback
	}
	if config.LevelLookback <= 0 {
		config.LevelLookback = def.LevelLookback
	}
	if config.TouchTolerance <= 0 {
		config.TouchTolerance = def.TouchTolerance
	}
	if config.MaxKeyLevels <= 0 {
		config.MaxKeyLevels = def.MaxKeyLevels
	}
	if config.BiasSwings < 2 {
		config.BiasSwings = def.BiasSwings
	}
	return &StructureAnalyzer{config: config}
}

// Analyze performs the full structure analysis
func (sa *StructureAnalyzer) Analyze(series []candles.Candle) StructureResult {
	swings := sa.FindSwingPoints(series)

	return StructureResult{
		Bias:              sa.DetermineBias(swings),
		SwingPoints:       swings,
		Fibonacci:         sa.FibonacciLevels(series),
		KeyLevels:         sa.KeyLevels(series),
		StructureStrength: sa.StructureStrength(swings),
	}
}

// FindSwingPoints returns strict local extrema over the lookback window, ordered by time
func (sa *StructureAnalyzer) FindSwingPoints(series []candles.Candle) []SwingPoint {
	lookback := sa.config.SwingLookback
	if len(series) < lookback*2+1 {
		return nil
	}

	avgVolume := averageVolume(series)
	var swings []SwingPoint

	for i := lookback; i < len(series)-lookback; i++ {
		current := series[i]
		isHigh, isLow := true, true

		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if series[j].High >= current.High {
				isHigh = false
			}
			if series[j].Low <= current.Low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		strength := swingStrength(current.Volume, avgVolume)
		if isHigh {
			swings = append(swings, SwingPoint{
				Price: current.High, Kind: SwingHigh, Timestamp: current.Timestamp, Index: i, Strength: strength,
			})
		}
		if isLow {
			swings = append(swings, SwingPoint{
				Price: current.Low, Kind: SwingLow, Timestamp: current.Timestamp, Index: i, Strength: strength,
			})
		}
	}

	sort.SliceStable(swings, func(a, b int) bool {
		return swings[a].Timestamp.Before(swings[b].Timestamp)
	})
	return swings
}

// DetermineBias reads the most recent swing highs and lows.
// Strictly rising highs and lows is bullish, strictly falling both is bearish.
func (sa *StructureAnalyzer) DetermineBias(swings []SwingPoint) TrendDirection {
	var highs, lows []float64
	for _, s := range swings {
		if s.Kind == SwingHigh {
			highs = append(highs, s.Price)
		} else {
			lows = append(lows, s.Price)
		}
	}

	highs = lastN(highs, sa.config.BiasSwings)
	lows = lastN(lows, sa.config.BiasSwings)
	if len(highs) < 2 || len(lows) < 2 {
		return TrendNeutral
	}

	if strictlyIncreasing(highs) && strictlyIncreasing(lows) {
		return TrendBullish
	}
	if strictlyDecreasing(highs) && strictlyDecreasing(lows) {
		return TrendBearish
	}
	return TrendNeutral
}

// FibonacciLevels anchors retracements at the window's max high and min low
func (sa *StructureAnalyzer) FibonacciLevels(series []candles.Candle) FibonacciLevels {
	if len(series) < 2 {
		return FibonacciLevels{Direction: "uptrend", Levels: []FibLevel{}}
	}

	high, low := series[0].High, series[0].Low
	for _, c := range series[1:] {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	diff := high - low

	levels := make([]FibLevel, 0, len(FibonacciRatios))
	for _, pct := range FibonacciRatios {
		price := high - diff*pct/100
		switch pct {
		case 0:
			price = high
		case 100:
			price = low
		}
		levels = append(levels, FibLevel{Percentage: pct, Price: price})
	}

	return FibonacciLevels{
		SwingHigh: high,
		SwingLow:  low,
		Direction: "uptrend",
		Levels:    levels,
	}
}

// KeyLevels finds extrema confirmed by neighbours on each side and ranks them by touches
func (sa *StructureAnalyzer) KeyLevels(series []candles.Candle) []KeyLevel {
	w := sa.config.LevelLookback
	if len(series) < w*2+1 {
		return []KeyLevel{}
	}

	var levels []KeyLevel
	for i := w; i < len(series)-w; i++ {
		isHigh, isLow := true, true
		for j := i - w; j <= i+w; j++ {
			if j == i {
				continue
			}
			if series[j].High >= series[i].High {
				isHigh = false
			}
			if series[j].Low <= series[i].Low {
				isLow = false
			}
		}
		if isHigh {
			levels = append(levels, sa.newKeyLevel(series, series[i].High, LevelResistance, series[i].Timestamp))
		}
		if isLow {
			levels = append(levels, sa.newKeyLevel(series, series[i].Low, LevelSupport, series[i].Timestamp))
		}
	}

	// Strongest first, most recent first on ties
	sort.SliceStable(levels, func(a, b int) bool {
		if levels[a].Strength != levels[b].Strength {
			return levels[a].Strength > levels[b].Strength
		}
		return levels[a].Timestamp.After(levels[b].Timestamp)
	})

	if len(levels) > sa.config.MaxKeyLevels {
		levels = levels[:sa.config.MaxKeyLevels]
	}
	if levels == nil {
		levels = []KeyLevel{}
	}
	return levels
}

func (sa *StructureAnalyzer) newKeyLevel(series []candles.Candle, price float64, kind LevelKind, ts time.Time) KeyLevel {
	tolerance := math.Abs(price) * sa.config.TouchTolerance
	touches := 0
	for _, c := range series {
		if math.Abs(c.High-price) <= tolerance || math.Abs(c.Low-price) <= tolerance {
			touches++
		}
	}
	return KeyLevel{
		Price:     price,
		Kind:      kind,
		Strength:  math.Min(1, float64(touches)/5),
		Touches:   touches,
		Timestamp: ts,
	}
}

// StructureStrength is the mean swing strength, 0 with no swings
func (sa *StructureAnalyzer) StructureStrength(swings []SwingPoint) float64 {
	if len(swings) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range swings {
		sum += s.Strength
	}
	return clamp(sum/float64(len(swings)), 0, 1)
}

func swingStrength(volume, avgVolume float64) float64 {
	if avgVolume <= 0 {
		return 0.4
	}
	return clamp(0.6*volume/avgVolume+0.4, 0, 1)
}

func averageVolume(series []candles.Candle) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range series {
		sum += c.Volume
	}
	return sum / float64(len(series))
}

func lastN(values []float64, n int) []float64 {
	if len(values) > n {
		return values[len(values)-n:]
	}
	return values
}

func strictlyIncreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] <= values[i-1] {
			return false
		}
	}
	return true
}

func strictlyDecreasing(values []float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] >= values[i-1] {
			return false
		}
	}
	return true
}
