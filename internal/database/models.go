package database

import "time"

// DefaultCurrentStrategy is the strategy label stored for every bot record
const DefaultCurrentStrategy = "Adaptive Learning"

// BotMetrics is the performance block of a persisted bot record
type BotMetrics struct {
	TotalTrades      int     `json:"total_trades"`
	WinRate          float64 `json:"win_rate"` // 0-100
	ProfitLoss       float64 `json:"profit_loss"`
	AverageTradeTime float64 `json:"average_trade_time"` // seconds
	RiskScore        float64 `json:"risk_score"`
	LearningProgress float64 `json:"learning_progress"` // 0.0 to 1.0
}

// BotState is the persisted snapshot of one bot
type BotState struct {
	ID              string     `json:"id"`
	BotName         string     `json:"bot_name"`
	BotType         string     `json:"bot_type"`
	Strategy        string     `json:"strategy"`
	RiskLevel       string     `json:"risk_level"`
	Status          string     `json:"status"`
	CurrentStrategy string     `json:"current_strategy"`
	Metrics         BotMetrics `json:"metrics"`
	DeployedAt      time.Time  `json:"deployed_at"`
	LastUpdated     time.Time  `json:"last_updated"`
	IsActive        bool       `json:"is_active"`
}

// TradeRecord is the persisted form of one bot trade
type TradeRecord struct {
	ID         string    `json:"id"`
	BotID      string    `json:"bot_id"`
	Symbol     string    `json:"symbol"`
	Action     string    `json:"action"` // buy, sell
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	ProfitLoss float64   `json:"profit_loss"`
	Pending    bool      `json:"pending"`
	ExecutedAt time.Time `json:"executed_at"`
}

// TradeSummary aggregates persisted trades per bot
type TradeSummary struct {
	BotID       string  `json:"bot_id"`
	BotName     string  `json:"bot_name"`
	Trades      int     `json:"trades"`
	Wins        int     `json:"wins"`
	Pending     int     `json:"pending"`
	TotalPnL    float64 `json:"total_pnl"`
	AveragePnL  float64 `json:"average_pnl"`
	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"`
}
