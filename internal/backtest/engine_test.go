package backtest

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"bot-fleet-engine/internal/candles"
	"bot-fleet-engine/internal/confluence"
	"bot-fleet-engine/internal/strategy"
)

// scriptedStrategy signals when the decision window reaches a given length
type scriptedStrategy struct {
	signals map[int]strategy.Signal
	calls   int
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) Decide(series []candles.Candle) (*strategy.Signal, bool) {
	s.calls++
	sig, ok := s.signals[len(series)]
	if !ok {
		return nil, false
	}
	return &sig, true
}

func makeSeries(closes ...float64) []candles.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]candles.Candle, len(closes))
	for i, c := range closes {
		series[i] = candles.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c + 0.5,
			Low:       c - 0.5,
			Close:     c,
			Volume:    1000,
		}
	}
	return series
}

func testEngine(maxHold int) *Engine {
	return NewEngine(Config{
		InitialCapital:   10000,
		Commission:       0,
		PositionFraction: 0.10,
		Warmup:           5,
		MaxHoldBars:      maxHold,
	})
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestRunTakeProfit tests a long position closed at its target
func TestRunTakeProfit(t *testing.T) {
	series := makeSeries(100, 100, 100, 100, 100, 100, 101, 103, 103)
	strat := &scriptedStrategy{signals: map[int]strategy.Signal{
		6: {Direction: strategy.Buy, EntryPrice: 100, StopLoss: 98, TakeProfit: 103},
	}}

	result, err := testEngine(0).Run(series, strat)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.TotalTrades != 1 {
		t.Fatalf("Expected 1 trade, got %d", result.TotalTrades)
	}
	trade := result.Trades[0]
	if trade.ExitReason != ExitTakeProfit {
		t.Errorf("Expected take_profit exit, got %s", trade.ExitReason)
	}
	if !approx(trade.ProfitLoss, 30) {
		t.Errorf("Expected P&L 30, got %f", trade.ProfitLoss)
	}
	if !approx(result.NetProfit, 30) {
		t.Errorf("Expected net profit 30, got %f", result.NetProfit)
	}
	if result.WinRate != 100 {
		t.Errorf("Expected win rate 100, got %f", result.WinRate)
	}
	if result.ExitStats[ExitTakeProfit].Trades != 1 {
		t.Errorf("Expected one take_profit exit stat, got %+v", result.ExitStats)
	}
	if result.MaxDrawdown != 0 {
		t.Errorf("Expected no drawdown, got %f", result.MaxDrawdown)
	}
}

// TestRunShortStopLoss tests a short position stopped out
func TestRunShortStopLoss(t *testing.T) {
	series := makeSeries(100, 100, 100, 100, 100, 100, 101, 102, 102)
	strat := &scriptedStrategy{signals: map[int]strategy.Signal{
		6: {Direction: strategy.Sell, EntryPrice: 100, StopLoss: 102, TakeProfit: 94},
	}}

	result, err := testEngine(0).Run(series, strat)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if result.TotalTrades != 1 || result.LosingTrades != 1 {
		t.Fatalf("Expected 1 losing trade, got %d/%d", result.TotalTrades, result.LosingTrades)
	}
	if result.Trades[0].ExitReason != ExitStopLoss {
		t.Errorf("Expected stop_loss exit, got %s", result.Trades[0].ExitReason)
	}
	if !approx(result.NetProfit, -20) {
		t.Errorf("Expected net profit -20, got %f", result.NetProfit)
	}
	if !approx(result.MaxDrawdown, 0.2) {
		t.Errorf("Expected drawdown 0.2%%, got %f", result.MaxDrawdown)
	}
}

// TestRunClosesAtEnd tests that an open position is closed on the last bar
func TestRunClosesAtEnd(t *testing.T) {
	series := makeSeries(100, 100, 100, 100, 100, 100, 102, 104, 105)
	strat := &scriptedStrategy{signals: map[int]strategy.Signal{
		6: {Direction: strategy.Buy, EntryPrice: 100, StopLoss: 50, TakeProfit: 200},
	}}

	result, err := testEngine(0).Run(series, strat)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.Trades) != 1 || result.Trades[0].ExitReason != ExitEnd {
		t.Fatalf("Expected one backtest_end trade, got %+v", result.Trades)
	}
	if !approx(result.Trades[0].ProfitLoss, 50) {
		t.Errorf("Expected P&L 50, got %f", result.Trades[0].ProfitLoss)
	}
}

// TestRunTimeout tests the maximum holding period
func TestRunTimeout(t *testing.T) {
	series := makeSeries(100, 100, 100, 100, 100, 100, 101, 101, 101, 101)
	strat := &scriptedStrategy{signals: map[int]strategy.Signal{
		6: {Direction: strategy.Buy, EntryPrice: 100, StopLoss: 50, TakeProfit: 200},
	}}

	result, err := testEngine(2).Run(series, strat)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(result.Trades) != 1 || result.Trades[0].ExitReason != ExitTimeout {
		t.Fatalf("Expected one timeout trade, got %+v", result.Trades)
	}
	if !result.Trades[0].ExitTime.Equal(series[7].Timestamp) {
		t.Errorf("Expected exit at bar 7, got %v", result.Trades[0].ExitTime)
	}
}

// TestRunCommission tests that fees reduce P&L on both sides
func TestRunCommission(t *testing.T) {
	series := makeSeries(100, 100, 100, 100, 100, 100, 101, 103, 103)
	strat := &scriptedStrategy{signals: map[int]strategy.Signal{
		6: {Direction: strategy.Buy, EntryPrice: 100, StopLoss: 98, TakeProfit: 103},
	}}
	engine := NewEngine(Config{InitialCapital: 10000, Commission: 0.001, PositionFraction: 0.10, Warmup: 5})

	result, err := engine.Run(series, strat)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// 30 gross, fees (1000 + 1030) * 0.001
	if !approx(result.Trades[0].ProfitLoss, 30-2.03) {
		t.Errorf("Expected P&L 27.97, got %f", result.Trades[0].ProfitLoss)
	}
}

// TestRunNotEnoughCandles tests the warmup guard
func TestRunNotEnoughCandles(t *testing.T) {
	_, err := testEngine(0).Run(makeSeries(100, 100, 100), &scriptedStrategy{})
	if !errors.Is(err, ErrNotEnoughCandles) {
		t.Errorf("Expected ErrNotEnoughCandles, got %v", err)
	}
}

// TestRunWindow tests that the strategy sees at most Window bars
func TestRunWindow(t *testing.T) {
	series := makeSeries(100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	var longest int
	strat := &windowProbe{seen: &longest}

	engine := NewEngine(Config{Warmup: 2, Window: 4})
	if _, err := engine.Run(series, strat); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if longest != 4 {
		t.Errorf("Expected longest window 4, got %d", longest)
	}
}

type windowProbe struct {
	seen *int
}

func (w *windowProbe) Name() string { return "probe" }

func (w *windowProbe) Decide(series []candles.Candle) (*strategy.Signal, bool) {
	if len(series) > *w.seen {
		*w.seen = len(series)
	}
	return nil, false
}

// TestRunConfluenceStrategy tests a full replay of the confluence strategy over synthetic data
func TestRunConfluenceStrategy(t *testing.T) {
	src := candles.NewSyntheticSource(candles.SyntheticConfig{Seed: 11})
	series, err := src.Fetch(context.Background(), "XAUUSD", "1h", 300)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	strat := confluence.NewStrategy(confluence.DefaultStrategyConfig(), nil)
	result, err := NewEngine(DefaultConfig()).Run(series, strat)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Strategy != strat.Name() {
		t.Errorf("Expected strategy %s, got %s", strat.Name(), result.Strategy)
	}
	if result.WinningTrades+result.LosingTrades != result.TotalTrades {
		t.Errorf("Expected wins+losses = total, got %d+%d != %d", result.WinningTrades, result.LosingTrades, result.TotalTrades)
	}

	var buf bytes.Buffer
	PrintResults(&buf, result)
	if !strings.Contains(buf.String(), "BACKTEST RESULTS") {
		t.Errorf("Expected summary header, got %q", buf.String())
	}
}
