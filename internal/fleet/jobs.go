package fleet

import (
	"time"

	"bot-fleet-engine/internal/scheduler"
)

// Scheduler groups. PauseAll stops processing and trading; analysis and
// persistence keep running.
const (
	GroupProcessing  = "processing"
	GroupTrading     = "trading"
	GroupAnalysis    = "analysis"
	GroupPersistence = "persistence"
)

// JobConfig holds the fleet job intervals
type JobConfig struct {
	FastProcessing time.Duration `json:"fast_processing"`
	LearningCycle  time.Duration `json:"learning_cycle"`
	Persistence    time.Duration `json:"persistence"`
	TradeExecution time.Duration `json:"trade_execution"`
	TradeJitter    time.Duration `json:"trade_jitter"`
	DeepAnalysis   time.Duration `json:"deep_analysis"`
}

// DefaultJobConfig returns the standard job cadence
func DefaultJobConfig() JobConfig {
	return JobConfig{
		FastProcessing: 2 * time.Second,
		LearningCycle:  30 * time.Second,
		Persistence:    60 * time.Second,
		TradeExecution: 30 * time.Second,
		TradeJitter:    30 * time.Second,
		DeepAnalysis:   120 * time.Second,
	}
}

// Jobs returns the five recurring fleet jobs bound to m
func Jobs(m *Manager, cfg JobConfig) []scheduler.Job {
	return []scheduler.Job{
		{Name: "fast_processing", Interval: cfg.FastProcessing, Group: GroupProcessing, Run: m.Tick},
		{Name: "learning_cycle", Interval: cfg.LearningCycle, Group: GroupProcessing, Run: m.LearningCycle},
		{Name: "persistence", Interval: cfg.Persistence, Group: GroupPersistence, Run: m.PersistAll},
		{Name: "trade_execution", Interval: cfg.TradeExecution, Jitter: cfg.TradeJitter, Group: GroupTrading, Run: m.ExecuteTrades},
		{Name: "deep_analysis", Interval: cfg.DeepAnalysis, Group: GroupAnalysis, Run: m.DeepAnalysis, RunOnStart: true},
	}
}
