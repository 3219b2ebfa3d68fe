package backtest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"bot-fleet-engine/internal/candles"
	"bot-fleet-engine/internal/strategy"
)

var ErrNotEnoughCandles = errors.New("not enough candles for warmup")

// Exit reasons
const (
	ExitStopLoss   = "stop_loss"
	ExitTakeProfit = "take_profit"
	ExitTimeout    = "timeout"
	ExitEnd        = "backtest_end"
)

// Config controls a backtest run
type Config struct {
	InitialCapital   float64
	Commission       float64 // fraction of notional per side, e.g. 0.0004
	PositionFraction float64 // share of equity committed per trade
	Warmup           int     // bars before the first decision
	Window           int     // bars passed to the strategy per decision, 0 passes all history
	MaxHoldBars      int     // 0 holds until stop, target or end
}

// DefaultConfig returns the default backtest settings
func DefaultConfig() Config {
	return Config{
		InitialCapital:   10000,
		Commission:       0.0004,
		PositionFraction: 0.10,
		Warmup:           50,
		Window:           200,
	}
}

// Engine replays a candle series through a strategy
type Engine struct {
	config Config
}

// Result contains backtest performance metrics
type Result struct {
	Strategy      string              `json:"strategy"`
	Candles       int                 `json:"candles"`
	TotalTrades   int                 `json:"total_trades"`
	WinningTrades int                 `json:"winning_trades"`
	LosingTrades  int                 `json:"losing_trades"`
	WinRate       float64             `json:"win_rate"`
	TotalProfit   float64             `json:"total_profit"`
	TotalLoss     float64             `json:"total_loss"`
	NetProfit     float64             `json:"net_profit"`
	ROI           float64             `json:"roi"`
	MaxDrawdown   float64             `json:"max_drawdown"`
	AverageWin    float64             `json:"average_win"`
	AverageLoss   float64             `json:"average_loss"`
	ProfitFactor  float64             `json:"profit_factor"`
	SharpeRatio   float64             `json:"sharpe_ratio"`
	Trades        []Trade             `json:"trades"`
	EquityCurve   []EquityPoint       `json:"equity_curve"`
	ExitStats     map[string]ExitStat `json:"exit_stats"`
}

// Trade is a single simulated round trip
type Trade struct {
	EntryTime  time.Time          `json:"entry_time"`
	ExitTime   time.Time          `json:"exit_time"`
	EntryPrice float64            `json:"entry_price"`
	ExitPrice  float64            `json:"exit_price"`
	Quantity   float64            `json:"quantity"`
	Direction  strategy.Direction `json:"direction"`
	ProfitLoss float64            `json:"profit_loss"`
	PLPercent  float64            `json:"pl_percent"`
	StopLoss   float64            `json:"stop_loss"`
	TakeProfit float64            `json:"take_profit"`
	ExitReason string             `json:"exit_reason"`
	Confidence float64            `json:"confidence"`
	bars       int
}

// EquityPoint is the account balance after a closed trade
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// ExitStat aggregates trades by how they closed
type ExitStat struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	NetProfit float64 `json:"net_profit"`
}

// NewEngine creates a backtest engine. Zero fields take the defaults.
func NewEngine(config Config) *Engine {
	def := DefaultConfig()
	if config.InitialCapital <= 0 {
		config.InitialCapital = def.InitialCapital
	}
	if config.Commission < 0 {
		config.Commission = 0
	}
	if config.PositionFraction <= 0 || config.PositionFraction > 1 {
		config.PositionFraction = def.PositionFraction
	}
	if config.Warmup <= 0 {
		config.Warmup = def.Warmup
	}
	if config.Window < 0 {
		config.Window = 0
	}
	return &Engine{config: config}
}

// Run walks the series bar by bar. At most one position is open at a time.
// Stops are checked before targets when a bar spans both.
func (e *Engine) Run(series []candles.Candle, strat strategy.Strategy) (*Result, error) {
	if len(series) <= e.config.Warmup {
		return nil, fmt.Errorf("%w: have %d, need more than %d", ErrNotEnoughCandles, len(series), e.config.Warmup)
	}
	if err := candles.Validate(series); err != nil {
		return nil, err
	}

	result := &Result{
		Strategy:    strat.Name(),
		Candles:     len(series),
		Trades:      make([]Trade, 0),
		EquityCurve: make([]EquityPoint, 0),
		ExitStats:   make(map[string]ExitStat),
	}

	equity := e.config.InitialCapital
	var open *Trade

	closeTrade := func(bar candles.Candle, price float64, reason string) {
		e.settle(open, bar.Timestamp, price, reason)
		equity += open.ProfitLoss
		result.Trades = append(result.Trades, *open)
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: bar.Timestamp, Equity: equity})

		stat := result.ExitStats[reason]
		stat.Trades++
		if open.ProfitLoss > 0 {
			stat.Wins++
		}
		stat.NetProfit += open.ProfitLoss
		result.ExitStats[reason] = stat
		open = nil
	}

	for i := e.config.Warmup; i < len(series); i++ {
		bar := series[i]

		if open != nil {
			open.bars++
			if price, reason, hit := exitHit(open, bar); hit {
				closeTrade(bar, price, reason)
			} else if e.config.MaxHoldBars > 0 && open.bars >= e.config.MaxHoldBars {
				closeTrade(bar, bar.Close, ExitTimeout)
			}
		}

		if open == nil {
			start := 0
			if e.config.Window > 0 && i+1 > e.config.Window {
				start = i + 1 - e.config.Window
			}
			signal, ok := strat.Decide(series[start : i+1])
			if !ok || signal == nil || signal.EntryPrice <= 0 {
				continue
			}
			open = &Trade{
				EntryTime:  bar.Timestamp,
				EntryPrice: signal.EntryPrice,
				Quantity:   equity * e.config.PositionFraction / signal.EntryPrice,
				Direction:  signal.Direction,
				StopLoss:   signal.StopLoss,
				TakeProfit: signal.TakeProfit,
				Confidence: signal.Confidence,
			}
		}
	}

	if open != nil {
		last := series[len(series)-1]
		closeTrade(last, last.Close, ExitEnd)
	}

	e.calculateMetrics(result, equity)
	return result, nil
}

// exitHit reports whether the bar touched the stop or the target
func exitHit(t *Trade, bar candles.Candle) (float64, string, bool) {
	if t.Direction == strategy.Buy {
		if t.StopLoss > 0 && bar.Low <= t.StopLoss {
			return t.StopLoss, ExitStopLoss, true
		}
		if t.TakeProfit > 0 && bar.High >= t.TakeProfit {
			return t.TakeProfit, ExitTakeProfit, true
		}
		return 0, "", false
	}
	if t.StopLoss > 0 && bar.High >= t.StopLoss {
		return t.StopLoss, ExitStopLoss, true
	}
	if t.TakeProfit > 0 && bar.Low <= t.TakeProfit {
		return t.TakeProfit, ExitTakeProfit, true
	}
	return 0, "", false
}

func (e *Engine) settle(t *Trade, at time.Time, price float64, reason string) {
	t.ExitTime = at
	t.ExitPrice = price
	t.ExitReason = reason

	priceDiff := price - t.EntryPrice
	if t.Direction == strategy.Sell {
		priceDiff = -priceDiff
	}
	commission := (t.EntryPrice*t.Quantity + price*t.Quantity) * e.config.Commission
	t.ProfitLoss = priceDiff*t.Quantity - commission
	t.PLPercent = priceDiff / t.EntryPrice * 100
}

func (e *Engine) calculateMetrics(result *Result, finalEquity float64) {
	result.TotalTrades = len(result.Trades)

	for _, trade := range result.Trades {
		if trade.ProfitLoss > 0 {
			result.WinningTrades++
			result.TotalProfit += trade.ProfitLoss
		} else {
			result.LosingTrades++
			result.TotalLoss += math.Abs(trade.ProfitLoss)
		}
	}

	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100
	}
	if result.WinningTrades > 0 {
		result.AverageWin = result.TotalProfit / float64(result.WinningTrades)
	}
	if result.LosingTrades > 0 {
		result.AverageLoss = result.TotalLoss / float64(result.LosingTrades)
	}

	result.NetProfit = finalEquity - e.config.InitialCapital
	result.ROI = result.NetProfit / e.config.InitialCapital * 100

	if result.TotalLoss > 0 {
		result.ProfitFactor = result.TotalProfit / result.TotalLoss
	}

	result.MaxDrawdown = maxDrawdown(e.config.InitialCapital, result.EquityCurve)
	result.SharpeRatio = sharpeRatio(result.Trades)
}

// maxDrawdown returns the largest peak-to-trough drop in percent
func maxDrawdown(initial float64, curve []EquityPoint) float64 {
	peak := initial
	worst := 0.0
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - point.Equity) / peak * 100; dd > worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio is the per-trade mean return over its standard deviation, risk-free rate 0
func sharpeRatio(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}

	total := 0.0
	for _, trade := range trades {
		total += trade.PLPercent
	}
	mean := total / float64(len(trades))

	variance := 0.0
	for _, trade := range trades {
		diff := trade.PLPercent - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(trades)))
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}

// PrintResults writes a human readable summary
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintf(w, "=== BACKTEST RESULTS (%s, %d candles) ===\n", result.Strategy, result.Candles)
	fmt.Fprintf(w, "Total Trades: %d\n", result.TotalTrades)
	fmt.Fprintf(w, "Winning Trades: %d (%.1f%%)\n", result.WinningTrades, result.WinRate)
	fmt.Fprintf(w, "Losing Trades: %d\n", result.LosingTrades)
	fmt.Fprintf(w, "Net Profit: %.2f\n", result.NetProfit)
	fmt.Fprintf(w, "ROI: %.2f%%\n", result.ROI)
	fmt.Fprintf(w, "Profit Factor: %.2f\n", result.ProfitFactor)
	fmt.Fprintf(w, "Max Drawdown: %.2f%%\n", result.MaxDrawdown)
	fmt.Fprintf(w, "Average Win: %.2f\n", result.AverageWin)
	fmt.Fprintf(w, "Average Loss: %.2f\n", result.AverageLoss)
	fmt.Fprintf(w, "Sharpe Ratio: %.2f\n", result.SharpeRatio)

	if len(result.ExitStats) > 0 {
		fmt.Fprintln(w, "\n=== EXITS ===")
		for _, reason := range []string{ExitTakeProfit, ExitStopLoss, ExitTimeout, ExitEnd} {
			if stat, ok := result.ExitStats[reason]; ok {
				fmt.Fprintf(w, "%s: %d trades, %d wins, net %.2f\n", reason, stat.Trades, stat.Wins, stat.NetProfit)
			}
		}
	}
}
