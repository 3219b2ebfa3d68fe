package confluence

import (
	"fmt"

	"bot-fleet-engine/internal/analysis"
	"bot-fleet-engine/internal/candles"
	"bot-fleet-engine/internal/strategy"
)

// StrategyConfig configures the analysis-driven strategy
type StrategyConfig struct {
	Symbol         string
	Timeframe      string
	MinScore       float64
	RiskPoints     float64
	RewardMultiple float64
	Quantity       float64
}

// DefaultStrategyConfig returns defaults for the analysis-driven strategy
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Symbol:         "XAUUSD",
		Timeframe:      "1H",
		MinScore:       0.70,
		RiskPoints:     15,
		RewardMultiple: 2,
		Quantity:       0.01,
	}
}

// Strategy trades in the direction of aligned trend and structure
// once the confluence score clears MinScore. It is a drop-in strategy.Strategy.
type Strategy struct {
	config      StrategyConfig
	trend       *analysis.TrendMomentumAnalyzer
	structure   *analysis.StructureAnalyzer
	synthesizer *Synthesizer
}

var _ strategy.Strategy = (*Strategy)(nil)

// NewStrategy creates a confluence strategy. A nil synthesizer uses the defaults.
func NewStrategy(config StrategyConfig, synth *Synthesizer) *Strategy {
	if synth == nil {
		synth = NewSynthesizer()
	}
	return &Strategy{
		config:      config,
		trend:       analysis.NewTrendMomentumAnalyzer(analysis.DefaultTrendConfig()),
		structure:   analysis.NewStructureAnalyzer(analysis.DefaultStructureConfig()),
		synthesizer: synth,
	}
}

func (s *Strategy) Name() string {
	return fmt.Sprintf("Confluence-%s-%s", s.config.Symbol, s.config.Timeframe)
}

// Decide enters at the last close in the aligned direction
func (s *Strategy) Decide(series []candles.Candle) (*strategy.Signal, bool) {
	if len(series) == 0 {
		return nil, false
	}

	tm := s.trend.Analyze(series)
	st := s.structure.Analyze(series)
	assessment := s.synthesizer.Evaluate(tm, st)
	if !assessment.Aligned || assessment.Score < s.config.MinScore {
		return nil, false
	}

	direction := strategy.Sell
	if assessment.Direction == analysis.TrendBullish {
		direction = strategy.Buy
	}
	last := series[len(series)-1]
	stopLoss, takeProfit := strategy.Bracket(direction, last.Close, s.config.RiskPoints, s.config.RewardMultiple)

	return &strategy.Signal{
		Symbol:     s.config.Symbol,
		Direction:  direction,
		EntryPrice: last.Close,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Confidence: assessment.Score,
		Quantity:   s.config.Quantity,
		Timeframe:  s.config.Timeframe,
		Timestamp:  s.synthesizer.now(),
		Source:     "Confluence: " + assessment.Grade,
	}, true
}
