// Package metrics exposes fleet, scheduler, and execution metrics to Prometheus.
// A nil *Registry is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the fleet engine
type Registry struct {
	reg *prometheus.Registry

	// Scheduler metrics
	JobRuns     *prometheus.CounterVec
	JobSkips    *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	// Trade metrics
	Trades       *prometheus.CounterVec
	TradeFailure *prometheus.CounterVec
	Signals      *prometheus.CounterVec

	// Persistence metrics
	PersistenceFailures *prometheus.CounterVec

	// Fleet gauges
	BotsByStatus    *prometheus.GaugeVec
	FleetProfitLoss prometheus.Gauge
	FleetWinRate    prometheus.Gauge
	EngineHealth    prometheus.Gauge
	AnalysisQuality prometheus.Gauge
}

// NewRegistry creates a registry with every fleet metric registered
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_job_runs_total",
				Help: "Total number of scheduled job runs by job and result",
			},
			[]string{"job", "result"},
		),

		JobSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_job_skips_total",
				Help: "Runs skipped because the previous run was still in flight",
			},
			[]string{"job"},
		),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fleet_job_duration_seconds",
				Help:    "Duration of scheduled job runs in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"job"},
		),

		Trades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_trades_total",
				Help: "Trades recorded by origin (simulated, executed, godmode)",
			},
			[]string{"origin"},
		),

		TradeFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_trade_failures_total",
				Help: "Trade executions rejected by the execution collaborator",
			},
			[]string{"origin"},
		),

		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_signals_total",
				Help: "Trading signals generated by source",
			},
			[]string{"source"},
		),

		PersistenceFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleet_persistence_failures_total",
				Help: "Failed persistence operations by operation",
			},
			[]string{"operation"},
		),

		BotsByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fleet_bots",
				Help: "Number of bots by lifecycle status",
			},
			[]string{"status"},
		),

		FleetProfitLoss: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_profit_loss",
				Help: "Total profit and loss across the fleet",
			},
		),

		FleetWinRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_win_rate_percent",
				Help: "Overall fleet win rate (0-100)",
			},
		),

		EngineHealth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_engine_health",
				Help: "Engine health of the latest deep analysis (0-100)",
			},
		),

		AnalysisQuality: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleet_analysis_quality",
				Help: "Quality of the latest deep analysis (0.0 to 1.0)",
			},
		),
	}

	r.reg.MustRegister(
		r.JobRuns, r.JobSkips, r.JobDuration,
		r.Trades, r.TradeFailure, r.Signals,
		r.PersistenceFailures,
		r.BotsByStatus, r.FleetProfitLoss, r.FleetWinRate, r.EngineHealth, r.AnalysisQuality,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Gatherer returns the underlying gatherer
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns the /metrics HTTP handler
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveJob records one job run
func (r *Registry) ObserveJob(job string, d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.JobRuns.WithLabelValues(job, result).Inc()
	r.JobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// RecordSkip records a run skipped because the previous one was still running
func (r *Registry) RecordSkip(job string) {
	if r == nil {
		return
	}
	r.JobSkips.WithLabelValues(job).Inc()
}

// RecordTrade records a trade by origin
func (r *Registry) RecordTrade(origin string) {
	if r == nil {
		return
	}
	r.Trades.WithLabelValues(origin).Inc()
}

// RecordTradeFailure records a rejected execution
func (r *Registry) RecordTradeFailure(origin string) {
	if r == nil {
		return
	}
	r.TradeFailure.WithLabelValues(origin).Inc()
}

// RecordSignal records a generated signal
func (r *Registry) RecordSignal(source string) {
	if r == nil {
		return
	}
	r.Signals.WithLabelValues(source).Inc()
}

// RecordPersistenceFailure records a failed persistence call
func (r *Registry) RecordPersistenceFailure(operation string) {
	if r == nil {
		return
	}
	r.PersistenceFailures.WithLabelValues(operation).Inc()
}

// SetFleet updates the fleet gauges
func (r *Registry) SetFleet(byStatus map[string]int, profitLoss, winRate float64) {
	if r == nil {
		return
	}
	r.BotsByStatus.Reset()
	for status, n := range byStatus {
		r.BotsByStatus.WithLabelValues(status).Set(float64(n))
	}
	r.FleetProfitLoss.Set(profitLoss)
	r.FleetWinRate.Set(winRate)
}

// SetAnalysis updates the deep analysis gauges
func (r *Registry) SetAnalysis(health, quality float64) {
	if r == nil {
		return
	}
	r.EngineHealth.Set(health)
	r.AnalysisQuality.Set(quality)
}
