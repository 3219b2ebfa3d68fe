package confluence

import (
	"fmt"
	"math"
	"time"

	"bot-fleet-engine/internal/analysis"
	"bot-fleet-engine/internal/strategy"
)

// Thresholds gate the elevated signal path
type Thresholds struct {
	MinScore       float64 // confluence score floor
	MinStrength    float64 // structure strength floor
	MinConfidence  float64 // computed confidence floor
	MaxConfidence  float64 // confidence cap
	RiskPoints     float64
	RewardMultiple float64
	Quantity       float64
	Timeframe      string
}

// DefaultThresholds returns the elevated path defaults
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinScore:       0.85,
		MinStrength:    0.80,
		MinConfidence:  0.90,
		MaxConfidence:  0.98,
		RiskPoints:     5,
		RewardMultiple: 3,
		Quantity:       0.02,
		Timeframe:      "15M",
	}
}

// Assessment is a graded confluence score with its reasoning
type Assessment struct {
	Score      float64                 `json:"score"`
	Grade      string                  `json:"grade"`      // "A+", "A", "B+", "B", "C", "D", "F"
	Confidence string                  `json:"confidence"` // "Very High" .. "Very Low"
	Direction  analysis.TrendDirection `json:"direction"`
	Aligned    bool                    `json:"aligned"` // trend agrees with structure bias
	Reasoning  []string                `json:"reasoning"`
}

// ElevatedInput is everything the elevated path needs for one bot
type ElevatedInput struct {
	Symbol     string
	EntryPrice float64 // reference price with jitter already applied
	BotName    string
	WinRate    float64 // 0-100
	Trend      analysis.TrendMomentumResult
	Structure  analysis.StructureResult
}

// Synthesizer combines trend/momentum and structure results into a confluence score
type Synthesizer struct {
	// Weights for the three factors (must sum to 1.0)
	structureWeight float64
	momentumWeight  float64
	strengthWeight  float64

	thresholds Thresholds
	now        func() time.Time
}

// NewSynthesizer creates a synthesizer with default weights and thresholds
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{
		structureWeight: 0.40, // trend agrees with structure bias
		momentumWeight:  0.30, // trend agrees with momentum direction
		strengthWeight:  0.30, // raw structure strength
		thresholds:      DefaultThresholds(),
		now:             time.Now,
	}
}

// Score returns the confluence score in [0,1]
func (s *Synthesizer) Score(tm analysis.TrendMomentumResult, st analysis.StructureResult) float64 {
	score := 0.0
	if tm.Trend != analysis.TrendNeutral && tm.Trend == st.Bias {
		score += s.structureWeight
	}
	if tm.Trend != analysis.TrendNeutral && tm.Trend == tm.MomentumDirection {
		score += s.momentumWeight
	}
	score += st.StructureStrength * s.strengthWeight

	return math.Max(0, math.Min(1, score))
}

// Evaluate scores the pair and grades the result
func (s *Synthesizer) Evaluate(tm analysis.TrendMomentumResult, st analysis.StructureResult) Assessment {
	a := Assessment{
		Score:     s.Score(tm, st),
		Direction: analysis.TrendNeutral,
		Reasoning: make([]string, 0, 3),
	}

	if tm.Trend != analysis.TrendNeutral && tm.Trend == st.Bias {
		a.Aligned = true
		a.Direction = tm.Trend
		a.Reasoning = append(a.Reasoning, fmt.Sprintf("Trend and structure agree (%s)", tm.Trend))
	}
	if tm.Trend != analysis.TrendNeutral && tm.Trend == tm.MomentumDirection {
		a.Reasoning = append(a.Reasoning, "Momentum confirms trend")
	}
	if st.StructureStrength >= s.thresholds.MinStrength {
		a.Reasoning = append(a.Reasoning, fmt.Sprintf("Strong structure (%.2f)", st.StructureStrength))
	}

	a.Grade = scoreToGrade(a.Score)
	a.Confidence = scoreToConfidence(a.Score)
	return a
}

// ElevatedSignal emits a high-conviction signal only when every threshold holds
func (s *Synthesizer) ElevatedSignal(in ElevatedInput) (strategy.Signal, bool) {
	t := s.thresholds

	if in.Trend.Trend == analysis.TrendNeutral || in.Trend.Trend != in.Structure.Bias {
		return strategy.Signal{}, false
	}
	score := s.Score(in.Trend, in.Structure)
	if score < t.MinScore {
		return strategy.Signal{}, false
	}
	if in.Structure.StructureStrength < t.MinStrength {
		return strategy.Signal{}, false
	}

	confidence := math.Min(t.MaxConfidence, score*in.Structure.StructureStrength*(in.WinRate/100))
	if confidence < t.MinConfidence {
		return strategy.Signal{}, false
	}

	direction := strategy.Sell
	if in.Trend.Trend == analysis.TrendBullish {
		direction = strategy.Buy
	}
	stopLoss, takeProfit := strategy.Bracket(direction, in.EntryPrice, t.RiskPoints, t.RewardMultiple)

	return strategy.Signal{
		Symbol:     in.Symbol,
		Direction:  direction,
		EntryPrice: in.EntryPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Confidence: confidence,
		Quantity:   t.Quantity,
		Timeframe:  t.Timeframe,
		Timestamp:  s.now(),
		Source:     "GODMODE-AI: " + in.BotName,
	}, true
}

// Thresholds returns the active elevated path thresholds
func (s *Synthesizer) Thresholds() Thresholds {
	return s.thresholds
}

// SetThresholds replaces the elevated path thresholds.
// Unreachable thresholds are accepted; they simply never emit a signal.
func (s *Synthesizer) SetThresholds(t Thresholds) {
	s.thresholds = t
}

// SetWeights allows custom weight configuration
func (s *Synthesizer) SetWeights(structure, momentum, strength float64) error {
	if structure < 0 || momentum < 0 || strength < 0 {
		return fmt.Errorf("weights must be non-negative, got %.2f/%.2f/%.2f", structure, momentum, strength)
	}
	total := structure + momentum + strength
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("weights must sum to 1.0, got %.2f", total)
	}

	s.structureWeight = structure
	s.momentumWeight = momentum
	s.strengthWeight = strength
	return nil
}

// scoreToGrade converts numerical score to letter grade
func scoreToGrade(score float64) string {
	switch {
	case score >= 0.90:
		return "A+"
	case score >= 0.85:
		return "A"
	case score >= 0.75:
		return "B+"
	case score >= 0.70:
		return "B"
	case score >= 0.60:
		return "C"
	case score >= 0.50:
		return "D"
	}
	return "F"
}

func scoreToConfidence(score float64) string {
	switch {
	case score >= 0.85:
		return "Very High"
	case score >= 0.75:
		return "High"
	case score >= 0.60:
		return "Medium"
	case score >= 0.45:
		return "Low"
	}
	return "Very Low"
}
