package candles

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// SyntheticSource generates random-walk candles for development and testing.
type SyntheticSource struct {
	mu         sync.Mutex
	rng        *rand.Rand
	prices     map[string]float64
	volatility float64
	now        func() time.Time
}

// SyntheticConfig configures the random walk.
type SyntheticConfig struct {
	Seed       int64
	Volatility float64 // per-bar fractional move, e.g. 0.002
	BasePrices map[string]float64
	Now        func() time.Time
}

// NewSyntheticSource creates a synthetic candle source
func NewSyntheticSource(cfg SyntheticConfig) *SyntheticSource {
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.002 // 0.2% per bar
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	prices := map[string]float64{
		"XAUUSD": 2375.0,
		"EURUSD": 1.0850,
		"GBPUSD": 1.2650,
		"USDJPY": 148.50,
	}
	for symbol, price := range cfg.BasePrices {
		prices[symbol] = price
	}

	return &SyntheticSource{
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		prices:     prices,
		volatility: cfg.Volatility,
		now:        cfg.Now,
	}
}

// Fetch returns limit candles ending at the current time, oldest first.
// The walk continues from the last close of the previous call for the same symbol.
func (s *SyntheticSource) Fetch(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step, err := IntervalDuration(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		price = 2000.0
	}

	end := s.now().Truncate(step)
	start := end.Add(-time.Duration(limit) * step)

	series := make([]Candle, limit)
	for i := 0; i < limit; i++ {
		move := price * (s.rng.Float64()*2 - 1) * s.volatility
		open := price
		close := open + move
		wick := math.Abs(move) * 0.5

		series[i] = Candle{
			Timestamp: start.Add(time.Duration(i) * step),
			Open:      open,
			High:      math.Max(open, close) + wick,
			Low:       math.Min(open, close) - wick,
			Close:     close,
			Volume:    1000 + s.rng.Float64()*4000,
		}
		price = close
	}
	s.prices[symbol] = price

	return series, nil
}
