package strategy

import (
	"fmt"
	"math"
	"time"

	"bot-fleet-engine/internal/candles"
)

// BotProfile is the slice of bot state a per-bot strategy reads
type BotProfile struct {
	Name             string
	WinRate          float64 // 0-100
	LearningProgress float64 // 0-100
	RiskLevel        RiskLevel
}

// PerBotConfig configures the per-bot signal path
type PerBotConfig struct {
	MinLearningProgress float64
	MinConfidence       float64
	MaxConfidence       float64
	RewardMultiple      float64
	Quantity            float64
	EntryJitter         float64
	Timeframe           string
}

// DefaultPerBotConfig returns the per-bot signal defaults
func DefaultPerBotConfig() PerBotConfig {
	return PerBotConfig{
		MinLearningProgress: 75,
		MinConfidence:       0.70,
		MaxConfidence:       0.95,
		RewardMultiple:      1.5,
		Quantity:            0.01,
		EntryJitter:         2,
		Timeframe:           "15M",
	}
}

// PerBotStrategy derives a signal from a bot's own track record.
// The direction is a coin flip; confidence scales with win rate and learning progress.
type PerBotStrategy struct {
	config  PerBotConfig
	prices  *PriceBook
	profile BotProfile
	now     func() time.Time
}

// NewPerBotStrategy creates an unbound per-bot strategy. Bind it to a bot with ForBot.
func NewPerBotStrategy(config PerBotConfig, prices *PriceBook) *PerBotStrategy {
	if prices == nil {
		prices = NewPriceBook(nil, nil, nil)
	}
	return &PerBotStrategy{config: config, prices: prices, now: time.Now}
}

// ForBot returns a copy of the strategy bound to profile
func (s *PerBotStrategy) ForBot(profile BotProfile) *PerBotStrategy {
	bound := *s
	bound.profile = profile
	return &bound
}

func (s *PerBotStrategy) Name() string {
	return fmt.Sprintf("PerBot-%s", s.profile.Name)
}

// Confidence is min(winRate * learningProgress, MaxConfidence) with both as fractions
func (s *PerBotStrategy) Confidence() float64 {
	return math.Min(s.profile.WinRate/100*(s.profile.LearningProgress/100), s.config.MaxConfidence)
}

// Decide ignores the candles; the per-bot path is driven by bot metrics only
func (s *PerBotStrategy) Decide(_ []candles.Candle) (*Signal, bool) {
	if s.profile.LearningProgress < s.config.MinLearningProgress {
		return nil, false
	}

	confidence := s.Confidence()
	if confidence < s.config.MinConfidence {
		return nil, false
	}

	symbol := s.prices.Symbol()
	direction := Sell
	if s.prices.Coin() {
		direction = Buy
	}
	entry := s.prices.Entry(symbol, s.config.EntryJitter)
	stopLoss, takeProfit := Bracket(direction, entry, RiskPoints(s.profile.RiskLevel), s.config.RewardMultiple)

	return &Signal{
		Symbol:     symbol,
		Direction:  direction,
		EntryPrice: entry,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Confidence: confidence,
		Quantity:   s.config.Quantity,
		Timeframe:  s.config.Timeframe,
		Timestamp:  s.now(),
		Source:     "AI Bot: " + s.profile.Name,
	}, true
}
