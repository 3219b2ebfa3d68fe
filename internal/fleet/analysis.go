package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"bot-fleet-engine/internal/analysis"
	"bot-fleet-engine/internal/confluence"
	"bot-fleet-engine/internal/events"
	"bot-fleet-engine/internal/notification"
)

// AnalysisReport is the outcome of one deep analysis run
type AnalysisReport struct {
	Timestamp       time.Time                    `json:"timestamp"`
	Symbol          string                       `json:"symbol"`
	Timeframe       string                       `json:"timeframe"`
	Trend           analysis.TrendMomentumResult `json:"trend"`
	Structure       analysis.StructureResult     `json:"structure"`
	Confluence      confluence.Assessment        `json:"confluence"`
	Grade           string                       `json:"grade"`
	EngineHealth    float64                      `json:"engine_health"`    // 0-100
	AnalysisQuality float64                      `json:"analysis_quality"` // 0-1
	SignalsEmitted  int                          `json:"signals_emitted"`
	TradesExecuted  int                          `json:"trades_executed"`
	Error           string                       `json:"error,omitempty"`
}

// engineHealth scores the collaborators the elevated path depends on
func (m *Manager) engineHealth(fetchFailed bool) float64 {
	health := 100.0
	if m.breaker != nil && m.breaker.IsOpen() {
		health -= 40
	}
	m.mu.Lock()
	if m.lastSaveFailed {
		health -= 20
	}
	m.mu.Unlock()
	if fetchFailed {
		health -= 20
	}
	return clamp(health, 0, 100)
}

// DeepAnalysis runs the TA pipeline on the analysis symbol and, when the engine is
// healthy and confluence is strong, executes elevated signals for the elite bots.
func (m *Manager) DeepAnalysis(ctx context.Context) error {
	m.mu.Lock()
	empty := len(m.order) == 0
	m.mu.Unlock()
	if empty {
		return nil
	}

	cfg := m.config
	report := AnalysisReport{
		Timestamp: m.now(),
		Symbol:    cfg.AnalysisSymbol,
		Timeframe: cfg.AnalysisTimeframe,
	}

	series, err := m.source.Fetch(ctx, cfg.AnalysisSymbol, cfg.AnalysisTimeframe, cfg.AnalysisCandles)
	if err != nil {
		report.EngineHealth = m.engineHealth(true)
		report.Error = err.Error()
		m.storeReport(report)
		m.logger.Warn().Err(err).Str("symbol", cfg.AnalysisSymbol).Msg("Deep analysis candle fetch failed")
		return fmt.Errorf("failed to fetch candles for %s: %w", cfg.AnalysisSymbol, err)
	}

	snap, err := m.engine.Run(ctx, cfg.AnalysisSymbol, cfg.AnalysisTimeframe, series)
	if err != nil {
		report.EngineHealth = m.engineHealth(false)
		report.Error = err.Error()
		m.storeReport(report)
		return fmt.Errorf("analysis failed for %s: %w", cfg.AnalysisSymbol, err)
	}
	m.prices.SetPrice(cfg.AnalysisSymbol, snap.LastClose)

	assessment := m.synth.Evaluate(snap.Trend, snap.Structure)
	health := m.engineHealth(false)

	report.Trend = snap.Trend
	report.Structure = snap.Structure
	report.Confluence = assessment
	report.Grade = assessment.Grade
	report.EngineHealth = health
	report.AnalysisQuality = assessment.Score*0.4 + snap.Structure.StructureStrength*0.3 + health/100*0.3

	m.mu.Lock()
	elevate := m.tradingEnabled && !m.fleetPaused && m.executor != nil &&
		health >= cfg.MinEngineHealth && assessment.Score >= m.synth.Thresholds().MinScore
	m.mu.Unlock()

	if elevate {
		signals, executed, err := m.executeElevated(ctx, snap)
		report.SignalsEmitted = signals
		report.TradesExecuted = executed
		if err != nil {
			report.Error = err.Error()
		}
	}

	m.storeReport(report)
	m.updateSystemStatus(health)

	m.logger.Info().
		Str("symbol", report.Symbol).
		Str("trend", string(snap.Trend.Trend)).
		Str("bias", string(snap.Structure.Bias)).
		Float64("confluence", assessment.Score).
		Str("grade", report.Grade).
		Float64("engine_health", health).
		Int("trades", report.TradesExecuted).
		Msg("Deep analysis completed")
	return nil
}

// executeElevated runs the elevated signal path for up to MaxElevatedTrades elite bots
func (m *Manager) executeElevated(ctx context.Context, snap analysis.Snapshot) (signals, executed int, err error) {
	cfg := m.config

	type elite struct {
		id, name string
		winRate  float64
	}
	m.mu.Lock()
	var elites []elite
	for _, id := range m.order {
		b := m.bots[id]
		if b.Status == StatusTrading && b.WinRate >= cfg.EliteWinRate && b.LearningProgress >= cfg.EliteProgress {
			elites = append(elites, elite{id: id, name: b.Name, winRate: b.WinRate})
		}
	}
	m.mu.Unlock()

	sort.SliceStable(elites, func(i, j int) bool { return elites[i].winRate > elites[j].winRate })
	if len(elites) > cfg.MaxElevatedTrades {
		elites = elites[:cfg.MaxElevatedTrades]
	}

	for _, e := range elites {
		symbol := m.prices.Symbol()
		signal, ok := m.synth.ElevatedSignal(confluence.ElevatedInput{
			Symbol:     symbol,
			EntryPrice: m.prices.Entry(symbol, cfg.ElevatedJitter),
			BotName:    e.name,
			WinRate:    e.winRate,
			Trend:      snap.Trend,
			Structure:  snap.Structure,
		})
		if !ok {
			continue
		}
		if signals > 0 {
			if err := m.sleeper.Sleep(ctx, cfg.ElevatedDelay); err != nil {
				return signals, executed, err
			}
		}
		if err := m.executionAllowed(e.id); err != nil {
			if errors.Is(err, errTradingHalted) {
				m.logger.Info().Int("executed", executed).Msg("Trading halted, stopping elevated path")
				return signals, executed, nil
			}
			continue
		}
		signals++
		if m.executeSignal(ctx, e.id, cfg.ElevatedLabelPrefix+e.name, signal, "godmode") {
			executed++
		}
	}
	return signals, executed, nil
}

// ActivateGodmode enables trading and runs a deep analysis immediately
func (m *Manager) ActivateGodmode(ctx context.Context) (AnalysisReport, error) {
	m.mu.Lock()
	if m.executor == nil {
		m.mu.Unlock()
		return AnalysisReport{}, fmt.Errorf("no executor configured")
	}
	if m.fleetPaused {
		m.mu.Unlock()
		return AnalysisReport{}, fmt.Errorf("fleet is paused")
	}
	m.tradingEnabled = true
	m.status = SystemGodmode
	m.mu.Unlock()

	m.publishSystemStatus(SystemGodmode)
	m.notifier.Notify("GODMODE activated", notification.SeverityInfo)
	if err := m.DeepAnalysis(ctx); err != nil {
		return AnalysisReport{}, err
	}
	report, _ := m.LatestAnalysis()
	return report, nil
}

func (m *Manager) storeReport(report AnalysisReport) {
	m.mu.Lock()
	r := report
	m.latest = &r
	m.mu.Unlock()

	m.metrics.SetAnalysis(report.EngineHealth, report.AnalysisQuality)
	m.bus.Publish(events.Event{
		Type: events.EventAnalysisCompleted,
		Data: map[string]interface{}{
			"symbol":           report.Symbol,
			"timeframe":        report.Timeframe,
			"trend":            string(report.Trend.Trend),
			"bias":             string(report.Structure.Bias),
			"confluence":       report.Confluence.Score,
			"grade":            report.Grade,
			"engine_health":    report.EngineHealth,
			"analysis_quality": report.AnalysisQuality,
			"trades_executed":  report.TradesExecuted,
			"error":            report.Error,
		},
	})
}

// updateSystemStatus derives the system status after an analysis run
func (m *Manager) updateSystemStatus(health float64) {
	m.mu.Lock()
	prev := m.status
	next := prev
	switch {
	case m.fleetPaused || prev == SystemPaused || prev == SystemError:
	case health >= m.config.MinEngineHealth && m.tradingEnabled && len(m.order) > 0:
		next = SystemGodmode
	case m.tradingEnabled:
		next = SystemTrading
	default:
		next = SystemRunning
	}
	m.status = next
	m.mu.Unlock()

	if next != prev {
		m.publishSystemStatus(next)
	}
}
