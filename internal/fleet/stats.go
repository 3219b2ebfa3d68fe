package fleet

// Statistics is a fold over every bot in the fleet
type Statistics struct {
	TotalBots       int     `json:"total_bots"`
	TotalProfitLoss float64 `json:"total_profit_loss"`
	TotalTrades     int     `json:"total_trades"`
	TotalWins       int     `json:"total_wins"`
	OverallWinRate  float64 `json:"overall_win_rate"` // 0-100
	ActiveBots      int     `json:"active_bots"`      // neither paused nor in error
	DeployedBots    int     `json:"deployed_bots"`
	LearningBots    int     `json:"learning_bots"`
	TradingBots     int     `json:"trading_bots"`
	PausedBots      int     `json:"paused_bots"`
	ErrorBots       int     `json:"error_bots"`
}

func computeStatistics(bots []*Bot) Statistics {
	var s Statistics
	s.TotalBots = len(bots)

	for _, b := range bots {
		s.TotalProfitLoss += b.TotalProfit
		s.TotalTrades += b.TradeCount
		s.TotalWins += b.Wins

		switch b.Status {
		case StatusDeployed:
			s.DeployedBots++
		case StatusLearning:
			s.LearningBots++
		case StatusTrading:
			s.TradingBots++
		case StatusPaused:
			s.PausedBots++
		case StatusError:
			s.ErrorBots++
		}
	}

	s.ActiveBots = s.TotalBots - s.PausedBots - s.ErrorBots
	if s.TotalTrades > 0 {
		s.OverallWinRate = float64(s.TotalWins) / float64(s.TotalTrades) * 100
	}
	return s
}

// byStatus returns bot counts keyed by status name
func (s Statistics) byStatus() map[string]int {
	return map[string]int{
		string(StatusDeployed): s.DeployedBots,
		string(StatusLearning): s.LearningBots,
		string(StatusTrading):  s.TradingBots,
		string(StatusPaused):   s.PausedBots,
		string(StatusError):    s.ErrorBots,
	}
}
