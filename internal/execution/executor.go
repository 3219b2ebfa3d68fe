// Package execution holds the trade execution collaborators used by the fleet.
package execution

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bot-fleet-engine/internal/circuit"
	"bot-fleet-engine/internal/logging"
	"bot-fleet-engine/internal/strategy"
)

// Executor places a trade for a signal. False means not executed; ordinary
// rejection is never an error.
type Executor interface {
	Execute(ctx context.Context, signal strategy.Signal, botLabel string) bool
}

// Fill is a simulated execution
type Fill struct {
	ID       string          `json:"id"`
	BotLabel string          `json:"bot_label"`
	Signal   strategy.Signal `json:"signal"`
	FilledAt time.Time       `json:"filled_at"`
}

// PaperExecutor fills every signal at its entry price
type PaperExecutor struct {
	logger   zerolog.Logger
	mu       sync.Mutex
	fills    []Fill
	maxFills int
}

// NewPaperExecutor creates a paper executor keeping the last maxFills fills
func NewPaperExecutor(logger zerolog.Logger, maxFills int) *PaperExecutor {
	if maxFills <= 0 {
		maxFills = 500
	}
	return &PaperExecutor{
		logger:   logger.With().Str("component", "PaperExecutor").Logger(),
		maxFills: maxFills,
	}
}

// Execute records a simulated fill
func (p *PaperExecutor) Execute(ctx context.Context, signal strategy.Signal, botLabel string) bool {
	if ctx.Err() != nil {
		return false
	}

	fill := Fill{
		ID:       uuid.New().String(),
		BotLabel: botLabel,
		Signal:   signal,
		FilledAt: time.Now(),
	}

	p.mu.Lock()
	p.fills = append(p.fills, fill)
	if len(p.fills) > p.maxFills {
		p.fills = p.fills[len(p.fills)-p.maxFills:]
	}
	p.mu.Unlock()

	l := logging.TradeContext(p.logger, botLabel, signal.Symbol, string(signal.Direction), signal.Quantity, signal.EntryPrice)
	l.Info().
		Str("fill_id", fill.ID).
		Float64("stop_loss", signal.StopLoss).
		Float64("take_profit", signal.TakeProfit).
		Float64("confidence", signal.Confidence).
		Msg("Paper trade filled")
	return true
}

// Fills returns a copy of the recorded fills, oldest first
func (p *PaperExecutor) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}

// GuardedExecutor puts a circuit breaker in front of another executor
type GuardedExecutor struct {
	inner   Executor
	breaker *circuit.CircuitBreaker
	logger  zerolog.Logger
}

// NewGuardedExecutor wraps inner with breaker
func NewGuardedExecutor(inner Executor, breaker *circuit.CircuitBreaker, logger zerolog.Logger) *GuardedExecutor {
	return &GuardedExecutor{
		inner:   inner,
		breaker: breaker,
		logger:  logger.With().Str("component", "GuardedExecutor").Logger(),
	}
}

// Execute runs the inner executor if the breaker allows it
func (g *GuardedExecutor) Execute(ctx context.Context, signal strategy.Signal, botLabel string) bool {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn().Err(err).Str("bot", botLabel).Str("symbol", signal.Symbol).Msg("Execution blocked")
		return false
	}

	if g.inner.Execute(ctx, signal, botLabel) {
		g.breaker.RecordSuccess()
		return true
	}

	g.breaker.RecordFailure("execution rejected for " + botLabel)
	return false
}

// Breaker returns the guarding breaker
func (g *GuardedExecutor) Breaker() *circuit.CircuitBreaker {
	return g.breaker
}
