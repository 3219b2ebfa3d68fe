package fleet

import (
	"math"
	"math/rand"
	"time"

	"bot-fleet-engine/internal/database"
	"bot-fleet-engine/internal/strategy"
)

// Status is a bot's lifecycle state
type Status string

const (
	StatusDeployed Status = "deployed"
	StatusLearning Status = "learning"
	StatusTrading  Status = "trading"
	StatusPaused   Status = "paused"
	StatusError    Status = "error"
)

// ParseStatus returns the status for s, deployed when s is unknown
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusDeployed, StatusLearning, StatusTrading, StatusPaused, StatusError:
		return Status(s)
	}
	return StatusDeployed
}

// BotTrade is one trade made by a bot. Pending trades carry P&L 0 until settled.
type BotTrade struct {
	ID         string             `json:"id"`
	BotID      string             `json:"bot_id"`
	Symbol     string             `json:"symbol"`
	Action     strategy.Direction `json:"action"`
	Quantity   float64            `json:"quantity"`
	Price      float64            `json:"price"`
	ProfitLoss float64            `json:"profit_loss"`
	Pending    bool               `json:"pending"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Bot is one deployed trading bot. The Manager owns every Bot; callers get copies.
type Bot struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Type             string             `json:"type"`
	Strategy         string             `json:"strategy"`
	RiskLevel        strategy.RiskLevel `json:"risk_level"`
	Status           Status             `json:"status"`
	DeployedAt       time.Time          `json:"deployed_at"`
	LastActivity     time.Time          `json:"last_activity"`
	LearningProgress float64            `json:"learning_progress"` // 0-100
	WinRate          float64            `json:"win_rate"`          // 0-100
	TotalProfit      float64            `json:"total_profit"`
	TradeCount       int                `json:"trade_count"`
	Wins             int                `json:"wins"`
	Trades           []BotTrade         `json:"trades"`
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// addTrade appends a trade and refreshes the derived counters.
// maxHistory bounds the in-memory trade list; counters keep the full history.
func (b *Bot) addTrade(t BotTrade, maxHistory int) {
	b.Trades = append(b.Trades, t)
	if maxHistory > 0 && len(b.Trades) > maxHistory {
		b.Trades = append([]BotTrade(nil), b.Trades[len(b.Trades)-maxHistory:]...)
	}
	b.TradeCount++
	b.TotalProfit += t.ProfitLoss
	if !t.Pending && t.ProfitLoss > 0 {
		b.Wins++
	}
	b.refreshWinRate()
	b.LastActivity = t.Timestamp
}

// settle fills in the P&L of a pending trade
func (b *Bot) settle(tradeID string, pnl float64) (BotTrade, error) {
	for i := range b.Trades {
		t := &b.Trades[i]
		if t.ID != tradeID {
			continue
		}
		if !t.Pending {
			return *t, ErrTradeSettled
		}
		t.ProfitLoss = pnl
		t.Pending = false
		b.TotalProfit += pnl
		if pnl > 0 {
			b.Wins++
		}
		b.refreshWinRate()
		return *t, nil
	}
	return BotTrade{}, ErrTradeNotFound
}

func (b *Bot) refreshWinRate() {
	if b.TradeCount == 0 {
		b.WinRate = 0
		return
	}
	b.WinRate = clamp(float64(b.Wins)/float64(b.TradeCount)*100, 0, 100)
}

// advance applies one fast-processing tick and reports whether the status changed
func (b *Bot) advance(cfg Config, rng *rand.Rand, now time.Time) (Status, bool) {
	from := b.Status

	switch b.Status {
	case StatusDeployed:
		b.Status = StatusLearning
	case StatusLearning:
		if b.LearningProgress < 100 {
			b.LearningProgress = clamp(b.LearningProgress+uniform(rng, cfg.TickLearnMin, cfg.TickLearnMax), 0, 100)
		}
		if b.LearningProgress >= cfg.PromotionProgress {
			b.Status = StatusTrading
		}
	case StatusTrading:
	default:
		return from, false
	}

	b.LastActivity = now
	return from, b.Status != from
}

// learn applies one learning cycle. No metric ever decreases.
func (b *Bot) learn(cfg Config, rng *rand.Rand) {
	if b.LearningProgress < 100 {
		b.LearningProgress = clamp(b.LearningProgress+uniform(rng, cfg.CycleLearnMin, cfg.CycleLearnMax), 0, 100)
	}
	if b.LearningProgress > cfg.WinRateNudgeProgress && b.WinRate < cfg.WinRateNudgeCeiling {
		b.WinRate = clamp(math.Min(b.WinRate+uniform(rng, 0, cfg.WinRateNudgeMax), cfg.WinRateCap), 0, 100)
	}
}

// routeFromPause returns the status a resumed bot goes back to
func (b *Bot) routeFromPause(cfg Config) Status {
	if b.LearningProgress >= cfg.PromotionProgress {
		return StatusTrading
	}
	return StatusLearning
}

func (b *Bot) clone() Bot {
	c := *b
	c.Trades = append([]BotTrade(nil), b.Trades...)
	return c
}

func (b *Bot) profile() strategy.BotProfile {
	return strategy.BotProfile{
		Name:             b.Name,
		WinRate:          b.WinRate,
		LearningProgress: b.LearningProgress,
		RiskLevel:        b.RiskLevel,
	}
}

func riskScore(level strategy.RiskLevel) float64 {
	switch level {
	case strategy.RiskLow:
		return 0.25
	case strategy.RiskHigh:
		return 0.75
	case strategy.RiskExtreme:
		return 1.0
	default:
		return 0.5
	}
}

func (b *Bot) toState(now time.Time) database.BotState {
	var avgTradeTime float64
	if b.TradeCount > 0 {
		avgTradeTime = now.Sub(b.DeployedAt).Seconds() / float64(b.TradeCount)
	}

	return database.BotState{
		ID:              b.ID,
		BotName:         b.Name,
		BotType:         b.Type,
		Strategy:        b.Strategy,
		RiskLevel:       string(b.RiskLevel),
		Status:          string(b.Status),
		CurrentStrategy: database.DefaultCurrentStrategy,
		Metrics: database.BotMetrics{
			TotalTrades:      b.TradeCount,
			WinRate:          b.WinRate,
			ProfitLoss:       b.TotalProfit,
			AverageTradeTime: avgTradeTime,
			RiskScore:        riskScore(b.RiskLevel),
			LearningProgress: b.LearningProgress / 100,
		},
		DeployedAt:  b.DeployedAt,
		LastUpdated: now,
		IsActive:    true,
	}
}

func (t BotTrade) toRecord() database.TradeRecord {
	return database.TradeRecord{
		ID:         t.ID,
		BotID:      t.BotID,
		Symbol:     t.Symbol,
		Action:     string(t.Action),
		Quantity:   t.Quantity,
		Price:      t.Price,
		ProfitLoss: t.ProfitLoss,
		Pending:    t.Pending,
		ExecutedAt: t.Timestamp,
	}
}

// botFromState rebuilds a bot from its persisted record. Trade history is not restored.
func botFromState(s database.BotState, cfg Config) *Bot {
	b := &Bot{
		ID:               s.ID,
		Name:             s.BotName,
		Type:             s.BotType,
		Strategy:         s.Strategy,
		RiskLevel:        strategy.ParseRiskLevel(s.RiskLevel),
		Status:           ParseStatus(s.Status),
		DeployedAt:       s.DeployedAt,
		LastActivity:     s.LastUpdated,
		LearningProgress: clamp(s.Metrics.LearningProgress*100, 0, 100),
		WinRate:          clamp(s.Metrics.WinRate, 0, 100),
		TotalProfit:      s.Metrics.ProfitLoss,
		TradeCount:       s.Metrics.TotalTrades,
	}
	if b.Type == "" {
		b.Type = DefaultBotType
	}
	if b.Strategy == "" {
		b.Strategy = s.CurrentStrategy
	}
	if b.TradeCount < 0 {
		b.TradeCount = 0
	}
	b.Wins = int(math.Round(b.WinRate / 100 * float64(b.TradeCount)))

	if b.Status == StatusTrading && b.LearningProgress < cfg.PromotionProgress {
		b.Status = StatusLearning
	}
	return b
}
