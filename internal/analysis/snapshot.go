package analysis

import (
	"context"
	"time"

	"bot-fleet-engine/internal/candles"

	"golang.org/x/sync/errgroup"
)

// Snapshot is the merged output of both analyzers over one candle window
type Snapshot struct {
	Symbol    string              `json:"symbol"`
	Timeframe string              `json:"timeframe"`
	Candles   int                 `json:"candles"`
	LastClose float64             `json:"last_close"`
	Trend     TrendMomentumResult `json:"trend"`
	Structure StructureResult     `json:"structure"`
	Timestamp time.Time           `json:"timestamp"`
}

// Engine runs the trend/momentum and structure analyzers side by side
type Engine struct {
	trend     *TrendMomentumAnalyzer
	structure *StructureAnalyzer
}

// NewEngine creates an analysis engine from the two analyzers
func NewEngine(trend *TrendMomentumAnalyzer, structure *StructureAnalyzer) *Engine {
	if trend == nil {
		trend = NewTrendMomentumAnalyzer(DefaultTrendConfig())
	}
	if structure == nil {
		structure = NewStructureAnalyzer(DefaultStructureConfig())
	}
	return &Engine{trend: trend, structure: structure}
}

// Run analyzes the window on two goroutines and merges both results into one Snapshot.
// The window is only read, never modified.
func (e *Engine) Run(ctx context.Context, symbol, timeframe string, series []candles.Candle) (Snapshot, error) {
	snap := Snapshot{
		Symbol:    symbol,
		Timeframe: timeframe,
		Candles:   len(series),
		Timestamp: time.Now(),
	}
	if len(series) > 0 {
		snap.LastClose = series[len(series)-1].Close
	}

	var (
		trend     TrendMomentumResult
		structure StructureResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		trend = e.trend.Analyze(series)
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		structure = e.structure.Analyze(series)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	snap.Trend = trend
	snap.Structure = structure
	return snap, nil
}
