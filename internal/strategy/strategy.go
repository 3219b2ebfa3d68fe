package strategy

import (
	"fmt"
	"time"

	"bot-fleet-engine/internal/candles"
)

// Strategy decides whether a candle window warrants a trade
type Strategy interface {
	// Name returns the strategy name
	Name() string

	// Decide returns a signal and true when conditions are met.
	// A false return is the normal negative result, not an error.
	Decide(series []candles.Candle) (*Signal, bool)
}

// Direction is the side of a trading signal
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// Signal represents a trading signal. It is created once and consumed once by an executor.
type Signal struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Confidence float64   `json:"confidence"`
	Quantity   float64   `json:"quantity"`
	Timeframe  string    `json:"timeframe"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

// Bracket computes stop loss and take profit around an entry.
// Buys stop below and take profit above, sells mirror it.
func Bracket(direction Direction, entry, riskPoints, rewardMultiple float64) (stopLoss, takeProfit float64) {
	if direction == Buy {
		return entry - riskPoints, entry + riskPoints*rewardMultiple
	}
	return entry + riskPoints, entry - riskPoints*rewardMultiple
}

// RiskLevel is a bot's configured appetite for risk
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskExtreme RiskLevel = "extreme"
)

// ParseRiskLevel returns the risk level for s, medium when s is unknown
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh, RiskExtreme:
		return RiskLevel(s)
	}
	return RiskMedium
}

// RiskPoints maps a risk level to its stop distance
func RiskPoints(level RiskLevel) float64 {
	switch level {
	case RiskLow:
		return 10
	case RiskMedium:
		return 15
	default:
		return 20
	}
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s @ %.4f (SL %.4f, TP %.4f, conf %.2f)",
		s.Direction, s.Symbol, s.EntryPrice, s.StopLoss, s.TakeProfit, s.Confidence)
}
