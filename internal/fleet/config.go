package fleet

import (
	"time"

	"bot-fleet-engine/internal/strategy"
)

// DefaultBotType is the type given to bots deployed or loaded without one
const DefaultBotType = "AI Bot"

// Config holds the fleet tuning constants. The simulation constants are
// defaults carried over from the fleet's original behavior, not trading advice.
type Config struct {
	// Fast processing
	TradeProbability  float64  `json:"trade_probability"` // per trading/learning bot per tick
	TickLearnMin      float64  `json:"tick_learn_min"`
	TickLearnMax      float64  `json:"tick_learn_max"`
	PromotionProgress float64  `json:"promotion_progress"` // learning -> trading
	TradeSymbols      []string `json:"trade_symbols"`
	TradeQuantityMin  float64  `json:"trade_quantity_min"`
	TradeQuantityMax  float64  `json:"trade_quantity_max"`
	TradePriceMin     float64  `json:"trade_price_min"`
	TradePriceMax     float64  `json:"trade_price_max"`
	TradePnLMin       float64  `json:"trade_pnl_min"`
	TradePnLMax       float64  `json:"trade_pnl_max"`
	MaxTradeHistory   int      `json:"max_trade_history"` // per bot, in memory

	// Learning cycle
	CycleLearnMin        float64 `json:"cycle_learn_min"`
	CycleLearnMax        float64 `json:"cycle_learn_max"`
	WinRateNudgeProgress float64 `json:"win_rate_nudge_progress"` // nudge only above this progress
	WinRateNudgeCeiling  float64 `json:"win_rate_nudge_ceiling"`  // nudge only below this win rate
	WinRateNudgeMax      float64 `json:"win_rate_nudge_max"`
	WinRateCap           float64 `json:"win_rate_cap"`

	// Trade execution
	QualifyingProgress float64               `json:"qualifying_progress"`
	MaxTradesPerCycle  int                   `json:"max_trades_per_cycle"`
	ExecutionDelay     time.Duration         `json:"execution_delay"`
	PerBot             strategy.PerBotConfig `json:"per_bot"`

	// Deep analysis and the elevated path
	AnalysisSymbol      string        `json:"analysis_symbol"`
	AnalysisTimeframe   string        `json:"analysis_timeframe"`
	AnalysisCandles     int           `json:"analysis_candles"`
	MinEngineHealth     float64       `json:"min_engine_health"`
	EliteWinRate        float64       `json:"elite_win_rate"`
	EliteProgress       float64       `json:"elite_progress"`
	MaxElevatedTrades   int           `json:"max_elevated_trades"`
	ElevatedDelay       time.Duration `json:"elevated_delay"`
	ElevatedJitter      float64       `json:"elevated_jitter"`
	ElevatedLabelPrefix string        `json:"elevated_label_prefix"`
}

// DefaultConfig returns the fleet defaults
func DefaultConfig() Config {
	return Config{
		TradeProbability:  0.15,
		TickLearnMin:      0.1,
		TickLearnMax:      0.5,
		PromotionProgress: 50,
		TradeSymbols:      []string{"EURUSD", "GBPJPY", "USDJPY", "AUDUSD", "USDCAD", "NZDUSD"},
		TradeQuantityMin:  0.1,
		TradeQuantityMax:  2.0,
		TradePriceMin:     1.0,
		TradePriceMax:     200.0,
		TradePnLMin:       -50,
		TradePnLMax:       150,
		MaxTradeHistory:   500,

		CycleLearnMin:        0.2,
		CycleLearnMax:        1.0,
		WinRateNudgeProgress: 75,
		WinRateNudgeCeiling:  85,
		WinRateNudgeMax:      0.5,
		WinRateCap:           90,

		QualifyingProgress: 75,
		MaxTradesPerCycle:  3,
		ExecutionDelay:     5 * time.Second,
		PerBot:             strategy.DefaultPerBotConfig(),

		AnalysisSymbol:      "XAUUSD",
		AnalysisTimeframe:   "1h",
		AnalysisCandles:     720,
		MinEngineHealth:     90,
		EliteWinRate:        80,
		EliteProgress:       90,
		MaxElevatedTrades:   3,
		ElevatedDelay:       3 * time.Second,
		ElevatedJitter:      1,
		ElevatedLabelPrefix: "GODMODE-",
	}
}
