// Package fleet owns the deployed bots and drives their lifecycle:
// deployed -> learning -> trading, with pause/resume and error states.
//
// Every mutation happens under a single lock on the Manager. Calls to the
// persistence, execution, and notification collaborators happen outside it.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bot-fleet-engine/internal/analysis"
	"bot-fleet-engine/internal/candles"
	"bot-fleet-engine/internal/circuit"
	"bot-fleet-engine/internal/confluence"
	"bot-fleet-engine/internal/database"
	"bot-fleet-engine/internal/events"
	"bot-fleet-engine/internal/metrics"
	"bot-fleet-engine/internal/notification"
	"bot-fleet-engine/internal/strategy"
)

var (
	ErrBotNotFound   = errors.New("bot not found")
	ErrTradeNotFound = errors.New("trade not found")
	ErrTradeSettled  = errors.New("trade already settled")
	ErrNotPaused     = errors.New("bot is not paused")
	ErrInvalidBot    = errors.New("invalid bot")

	errTradingHalted = errors.New("trading halted")
	errBotNotTrading = errors.New("bot is not trading")
)

// SystemStatus is the fleet-wide status
type SystemStatus string

const (
	SystemInitializing SystemStatus = "initializing"
	SystemLoading      SystemStatus = "loading"
	SystemRunning      SystemStatus = "running"
	SystemTrading      SystemStatus = "trading"
	SystemGodmode      SystemStatus = "godmode"
	SystemPaused       SystemStatus = "paused"
	SystemError        SystemStatus = "error"
)

// Persistence stores bot records. Failures are logged and retried on the next persistence run.
type Persistence interface {
	LoadAll(ctx context.Context) ([]database.BotState, error)
	Save(ctx context.Context, state database.BotState) error
	SaveTrade(ctx context.Context, trade database.TradeRecord) error
	Delete(ctx context.Context, id string) error
}

// Reconnector is implemented by persistence backends that fall back to a
// degraded mode and need a nudge to return to their primary store.
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// Executor places trades
type Executor interface {
	Execute(ctx context.Context, signal strategy.Signal, botLabel string) bool
}

// Notifier delivers fire-and-forget operator notifications
type Notifier interface {
	Notify(message string, severity notification.Severity)
}

// Controller pauses and resumes scheduler job groups
type Controller interface {
	PauseGroup(name string) error
	ResumeGroup(name string) error
}

// Analyzer runs the TA pipeline over a candle window
type Analyzer interface {
	Run(ctx context.Context, symbol, timeframe string, series []candles.Candle) (analysis.Snapshot, error)
}

// Sleeper waits between trade executions
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Dependencies are the Manager's collaborators. Every field is optional.
type Dependencies struct {
	Persistence Persistence
	Executor    Executor
	Notifier    Notifier
	Bus         *events.EventBus
	Candles     candles.Source
	Metrics     *metrics.Registry
	Breaker     *circuit.CircuitBreaker
	Prices      *strategy.PriceBook
	Synthesizer *confluence.Synthesizer
	Engine      Analyzer
	Sleeper     Sleeper
	Rand        *rand.Rand
	Now         func() time.Time
}

// DeployRequest describes a new bot
type DeployRequest struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Strategy  string `json:"strategy"`
	RiskLevel string `json:"risk_level"`
}

// Manager owns the fleet of bots
type Manager struct {
	config Config
	logger zerolog.Logger

	persistence Persistence
	executor    Executor
	notifier    Notifier
	bus         *events.EventBus
	source      candles.Source
	metrics     *metrics.Registry
	breaker     *circuit.CircuitBreaker
	prices      *strategy.PriceBook
	perBot      *strategy.PerBotStrategy
	synth       *confluence.Synthesizer
	engine      Analyzer
	sleeper     Sleeper
	now         func() time.Time

	mu             sync.Mutex
	bots           map[string]*Bot
	order          []string // deployment order
	rng            *rand.Rand
	status         SystemStatus
	tradingEnabled bool
	fleetPaused    bool
	controller     Controller
	lastSaveFailed bool
	latest         *AnalysisReport
}

// NewManager creates a fleet manager. Nil collaborators degrade to no-ops,
// and a nil candle source falls back to synthetic candles.
func NewManager(cfg Config, deps Dependencies, logger zerolog.Logger) *Manager {
	if deps.Persistence == nil {
		deps.Persistence = nopPersistence{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Candles == nil {
		deps.Candles = candles.NewSyntheticSource(candles.SyntheticConfig{})
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Prices == nil {
		deps.Prices = strategy.NewPriceBook(nil, nil, rand.New(rand.NewSource(deps.Rand.Int63())))
	}
	if deps.Synthesizer == nil {
		deps.Synthesizer = confluence.NewSynthesizer()
	}
	if deps.Engine == nil {
		deps.Engine = analysis.NewEngine(nil, nil)
	}
	if deps.Sleeper == nil {
		deps.Sleeper = timerSleeper{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Manager{
		config:         cfg,
		logger:         logger.With().Str("component", "FleetManager").Logger(),
		persistence:    deps.Persistence,
		executor:       deps.Executor,
		notifier:       deps.Notifier,
		bus:            deps.Bus,
		source:         deps.Candles,
		metrics:        deps.Metrics,
		breaker:        deps.Breaker,
		prices:         deps.Prices,
		perBot:         strategy.NewPerBotStrategy(cfg.PerBot, deps.Prices),
		synth:          deps.Synthesizer,
		engine:         deps.Engine,
		sleeper:        deps.Sleeper,
		now:            deps.Now,
		bots:           make(map[string]*Bot),
		rng:            deps.Rand,
		status:         SystemInitializing,
		tradingEnabled: deps.Executor != nil,
	}
}

// SetController wires the scheduler that runs the fleet jobs
func (m *Manager) SetController(c Controller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controller = c
}

// ============================================================================
// LOAD / DEPLOY / LIFECYCLE
// ============================================================================

// Load replaces the fleet with the active bots from persistence
func (m *Manager) Load(ctx context.Context) error {
	m.setStatus(SystemLoading)

	states, err := m.persistence.LoadAll(ctx)
	if err != nil {
		m.setStatus(SystemError)
		m.metrics.RecordPersistenceFailure("load")
		m.bus.PublishError(events.EventPersistenceFailed, "load", "Failed to load persisted bots", err)
		m.notifier.Notify(fmt.Sprintf("Failed to load persisted bots: %v", err), notification.SeverityCritical)
		return fmt.Errorf("failed to load bots: %w", err)
	}

	m.mu.Lock()
	m.bots = make(map[string]*Bot, len(states))
	m.order = m.order[:0]
	loaded := make([]*Bot, 0, len(states))
	for _, st := range states {
		if !st.IsActive || st.ID == "" {
			continue
		}
		if _, dup := m.bots[st.ID]; dup {
			continue
		}
		b := botFromState(st, m.config)
		m.bots[b.ID] = b
		loaded = append(loaded, b)
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].DeployedAt.Before(loaded[j].DeployedAt) })
	for _, b := range loaded {
		m.order = append(m.order, b.ID)
	}
	stats := m.publishStatsLocked()
	m.mu.Unlock()

	m.setStatus(SystemRunning)
	m.logger.Info().Int("bots", stats.TotalBots).Msg("Loaded persistent bots")
	return nil
}

// Deploy adds a new bot in the deployed state
func (m *Manager) Deploy(ctx context.Context, req DeployRequest) (Bot, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Bot{}, fmt.Errorf("%w: name is required", ErrInvalidBot)
	}

	now := m.now()
	b := &Bot{
		ID:           uuid.New().String(),
		Name:         name,
		Type:         req.Type,
		Strategy:     req.Strategy,
		RiskLevel:    strategy.ParseRiskLevel(strings.ToLower(req.RiskLevel)),
		Status:       StatusDeployed,
		DeployedAt:   now,
		LastActivity: now,
	}
	if b.Type == "" {
		b.Type = DefaultBotType
	}
	if b.Strategy == "" {
		b.Strategy = database.DefaultCurrentStrategy
	}

	m.mu.Lock()
	m.bots[b.ID] = b
	m.order = append(m.order, b.ID)
	state := b.toState(now)
	out := b.clone()
	m.publishStatsLocked()
	m.mu.Unlock()

	m.save(ctx, state)
	m.bus.Publish(events.Event{
		Type: events.EventBotDeployed,
		Data: map[string]interface{}{
			"bot_id":     b.ID,
			"name":       b.Name,
			"type":       b.Type,
			"strategy":   b.Strategy,
			"risk_level": string(b.RiskLevel),
		},
	})
	m.logger.Info().Str("bot_id", b.ID).Str("name", b.Name).Msg("Bot deployed")
	return out, nil
}

// Pause moves one bot to paused
func (m *Manager) Pause(ctx context.Context, id string) (Bot, error) {
	return m.transition(ctx, id, func(b *Bot) (Status, error) {
		return StatusPaused, nil
	})
}

// Resume routes a paused bot back to trading or learning by its learning progress
func (m *Manager) Resume(ctx context.Context, id string) (Bot, error) {
	return m.transition(ctx, id, func(b *Bot) (Status, error) {
		if b.Status != StatusPaused {
			return b.Status, ErrNotPaused
		}
		return b.routeFromPause(m.config), nil
	})
}

// MarkError moves one bot to the error state
func (m *Manager) MarkError(ctx context.Context, id, reason string) (Bot, error) {
	bot, err := m.transition(ctx, id, func(b *Bot) (Status, error) {
		return StatusError, nil
	})
	if err == nil {
		m.logger.Warn().Str("bot_id", id).Str("reason", reason).Msg("Bot moved to error state")
	}
	return bot, err
}

func (m *Manager) transition(ctx context.Context, id string, next func(b *Bot) (Status, error)) (Bot, error) {
	m.mu.Lock()
	b, ok := m.bots[id]
	if !ok {
		m.mu.Unlock()
		return Bot{}, fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}
	to, err := next(b)
	if err != nil {
		m.mu.Unlock()
		return Bot{}, fmt.Errorf("%w: %s", err, id)
	}
	from := b.Status
	b.Status = to
	now := m.now()
	state := b.toState(now)
	out := b.clone()
	m.publishStatsLocked()
	m.mu.Unlock()

	if from != to {
		m.bus.PublishBotStatus(id, out.Name, string(from), string(to))
	}
	m.save(ctx, state)
	return out, nil
}

// Remove deletes a bot immediately. Persistence deletion happens afterwards.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	b, ok := m.bots[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}
	delete(m.bots, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	name := b.Name
	m.publishStatsLocked()
	m.mu.Unlock()

	if err := m.persistence.Delete(ctx, id); err != nil {
		m.persistenceFailed("delete", id, err)
	}
	m.bus.Publish(events.Event{
		Type: events.EventBotRemoved,
		Data: map[string]interface{}{"bot_id": id, "name": name},
	})
	m.logger.Info().Str("bot_id", id).Str("name", name).Msg("Bot removed")
	return nil
}

// PauseAll pauses every bot and stops fast processing and trade execution immediately
func (m *Manager) PauseAll(ctx context.Context) {
	m.mu.Lock()
	controller := m.controller
	m.mu.Unlock()

	if controller != nil {
		for _, g := range []string{GroupProcessing, GroupTrading} {
			if err := controller.PauseGroup(g); err != nil {
				m.logger.Warn().Err(err).Str("group", g).Msg("Failed to pause job group")
			}
		}
	}

	m.mu.Lock()
	changed := make([]statusChange, 0, len(m.order))
	for _, id := range m.order {
		b := m.bots[id]
		if b.Status != StatusPaused {
			changed = append(changed, statusChange{id: id, name: b.Name, from: b.Status, to: StatusPaused})
			b.Status = StatusPaused
		}
	}
	m.fleetPaused = true
	m.tradingEnabled = false
	m.status = SystemPaused
	states := m.statesLocked()
	m.publishStatsLocked()
	m.mu.Unlock()

	m.publishChanges(changed)
	m.publishSystemStatus(SystemPaused)
	m.bus.Publish(events.Event{Type: events.EventFleetPaused, Data: map[string]interface{}{"bots": len(states)}})
	m.saveAll(ctx, states)
	m.logger.Info().Int("bots", len(states)).Msg("Fleet paused")
}

// ResumeAll routes every paused bot back by learning progress and restarts the paused jobs
func (m *Manager) ResumeAll(ctx context.Context) {
	m.mu.Lock()
	changed := make([]statusChange, 0, len(m.order))
	for _, id := range m.order {
		b := m.bots[id]
		if b.Status != StatusPaused {
			continue
		}
		to := b.routeFromPause(m.config)
		if b.Status != to {
			changed = append(changed, statusChange{id: id, name: b.Name, from: b.Status, to: to})
			b.Status = to
		}
	}
	m.fleetPaused = false
	m.tradingEnabled = m.executor != nil
	m.status = SystemRunning
	controller := m.controller
	states := m.statesLocked()
	m.publishStatsLocked()
	m.mu.Unlock()

	if controller != nil {
		for _, g := range []string{GroupProcessing, GroupTrading} {
			if err := controller.ResumeGroup(g); err != nil {
				m.logger.Warn().Err(err).Str("group", g).Msg("Failed to resume job group")
			}
		}
	}

	m.publishChanges(changed)
	m.publishSystemStatus(SystemRunning)
	m.bus.Publish(events.Event{Type: events.EventFleetResumed, Data: map[string]interface{}{"bots": len(states)}})
	m.saveAll(ctx, states)
	m.logger.Info().Int("bots", len(states)).Msg("Fleet resumed")
}

// ============================================================================
// SCHEDULED WORK
// ============================================================================

// Tick advances every bot one simulation step, then refreshes the fleet statistics
func (m *Manager) Tick(ctx context.Context) error {
	m.mu.Lock()
	if m.fleetPaused {
		m.mu.Unlock()
		return nil
	}

	now := m.now()
	var trades []BotTrade
	var changed []statusChange

	for _, id := range m.order {
		b := m.bots[id]
		if b.Status == StatusTrading || b.Status == StatusLearning {
			if m.rng.Float64() < m.config.TradeProbability {
				t := m.randomTradeLocked(b.ID, now)
				b.addTrade(t, m.config.MaxTradeHistory)
				trades = append(trades, t)
			}
		}
		if from, ok := b.advance(m.config, m.rng, now); ok {
			changed = append(changed, statusChange{id: id, name: b.Name, from: from, to: b.Status})
		}
	}
	m.publishStatsLocked()
	m.mu.Unlock()

	m.publishChanges(changed)
	for _, t := range trades {
		m.metrics.RecordTrade("simulated")
		m.bus.PublishTrade(events.EventTradeRecorded, t.BotID, t.ID, t.Symbol, string(t.Action), t.Quantity, t.Price, t.ProfitLoss)
		if err := m.persistence.SaveTrade(ctx, t.toRecord()); err != nil {
			m.persistenceFailed("save_trade", t.BotID, err)
		}
	}
	return nil
}

func (m *Manager) randomTradeLocked(botID string, now time.Time) BotTrade {
	cfg := m.config
	symbol := "EURUSD"
	if len(cfg.TradeSymbols) > 0 {
		symbol = cfg.TradeSymbols[m.rng.Intn(len(cfg.TradeSymbols))]
	}
	action := strategy.Sell
	if m.rng.Intn(2) == 0 {
		action = strategy.Buy
	}

	return BotTrade{
		ID:         uuid.New().String(),
		BotID:      botID,
		Symbol:     symbol,
		Action:     action,
		Quantity:   uniform(m.rng, cfg.TradeQuantityMin, cfg.TradeQuantityMax),
		Price:      uniform(m.rng, cfg.TradePriceMin, cfg.TradePriceMax),
		ProfitLoss: uniform(m.rng, cfg.TradePnLMin, cfg.TradePnLMax),
		Timestamp:  now,
	}
}

// LearningCycle applies one learning increment to every bot
func (m *Manager) LearningCycle(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fleetPaused {
		return nil
	}
	for _, id := range m.order {
		m.bots[id].learn(m.config, m.rng)
	}
	m.logger.Debug().Int("bots", len(m.order)).Msg("Learning cycle applied")
	return nil
}

// PersistAll snapshots every bot to persistence. Failures are counted, never fatal.
func (m *Manager) PersistAll(ctx context.Context) error {
	var reconnectErr error
	if r, ok := m.persistence.(Reconnector); ok {
		if reconnectErr = r.Reconnect(ctx); reconnectErr != nil {
			m.metrics.RecordPersistenceFailure("reconnect")
			m.bus.PublishError(events.EventPersistenceFailed, "reconnect", "Primary store unavailable", reconnectErr)
			m.logger.Warn().Err(reconnectErr).Msg("Primary store still unavailable, snapshot kept in fallback")
		}
	}

	m.mu.Lock()
	states := m.statesLocked()
	m.mu.Unlock()

	failed := m.saveAll(ctx, states)
	if reconnectErr != nil {
		m.mu.Lock()
		m.lastSaveFailed = true
		m.mu.Unlock()
		return fmt.Errorf("persistence degraded: %w", reconnectErr)
	}
	if failed > 0 {
		return fmt.Errorf("failed to persist %d of %d bots", failed, len(states))
	}
	return nil
}

// ExecuteTrades asks the first qualified bots for signals and executes them
func (m *Manager) ExecuteTrades(ctx context.Context) error {
	m.mu.Lock()
	if !m.tradingEnabled || m.fleetPaused || m.executor == nil {
		m.mu.Unlock()
		return nil
	}
	var candidates []strategy.BotProfile
	var ids []string
	for _, id := range m.order {
		b := m.bots[id]
		if b.Status == StatusTrading && b.LearningProgress >= m.config.QualifyingProgress {
			candidates = append(candidates, b.profile())
			ids = append(ids, id)
			if len(candidates) == m.config.MaxTradesPerCycle {
				break
			}
		}
	}
	m.mu.Unlock()

	if len(candidates) == 0 {
		return nil
	}
	m.logger.Info().Int("qualified", len(candidates)).Msg("Executing trades with qualified bots")

	attempts := 0
	for i, profile := range candidates {
		signal, ok := m.perBot.ForBot(profile).Decide(nil)
		if !ok {
			continue
		}
		if attempts > 0 {
			if err := m.sleeper.Sleep(ctx, m.config.ExecutionDelay); err != nil {
				return err
			}
		}
		if err := m.executionAllowed(ids[i]); err != nil {
			if errors.Is(err, errTradingHalted) {
				m.logger.Info().Int("attempted", attempts).Msg("Trading halted, stopping execution cycle")
				return nil
			}
			continue
		}
		attempts++
		m.executeSignal(ctx, ids[i], profile.Name, *signal, "executed")
	}
	return nil
}

// executionAllowed is checked under the lock right before every execution,
// so a fleet pause stops a cycle that is already running.
func (m *Manager) executionAllowed(botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.tradingEnabled || m.fleetPaused || m.executor == nil {
		return errTradingHalted
	}
	b, ok := m.bots[botID]
	if !ok || b.Status != StatusTrading {
		return errBotNotTrading
	}
	return nil
}

// executeSignal runs one execution and records a pending trade on success
func (m *Manager) executeSignal(ctx context.Context, botID, label string, signal strategy.Signal, origin string) bool {
	if err := m.executionAllowed(botID); err != nil {
		m.logger.Debug().Err(err).Str("bot", label).Msg("Execution skipped")
		return false
	}
	m.metrics.RecordSignal(origin)
	m.bus.PublishSignal(label, signal.Symbol, string(signal.Direction), signal.EntryPrice, signal.Confidence)

	if !m.executor.Execute(ctx, signal, label) {
		m.metrics.RecordTradeFailure(origin)
		m.bus.PublishTrade(events.EventTradeFailed, botID, "", signal.Symbol, string(signal.Direction), signal.Quantity, signal.EntryPrice, 0)
		m.notifier.Notify(fmt.Sprintf("Trade execution failed for %s: %s %s", label, signal.Direction, signal.Symbol), notification.SeverityWarning)
		m.logger.Warn().Str("bot", label).Str("symbol", signal.Symbol).Msg("Trade execution failed")
		return false
	}

	now := m.now()
	t := BotTrade{
		ID:        uuid.New().String(),
		BotID:     botID,
		Symbol:    signal.Symbol,
		Action:    signal.Direction,
		Quantity:  signal.Quantity,
		Price:     signal.EntryPrice,
		Pending:   true,
		Timestamp: now,
	}

	m.mu.Lock()
	b, ok := m.bots[botID]
	if !ok {
		m.mu.Unlock()
		m.logger.Warn().Str("bot_id", botID).Msg("Bot removed while its trade executed")
		return true
	}
	b.addTrade(t, m.config.MaxTradeHistory)
	state := b.toState(now)
	m.publishStatsLocked()
	m.mu.Unlock()

	m.metrics.RecordTrade(origin)
	m.bus.PublishTrade(events.EventTradeExecuted, botID, t.ID, t.Symbol, string(t.Action), t.Quantity, t.Price, 0)
	if err := m.persistence.SaveTrade(ctx, t.toRecord()); err != nil {
		m.persistenceFailed("save_trade", botID, err)
	}
	m.save(ctx, state)
	m.logger.Info().Str("bot", label).Str("trade_id", t.ID).Str("symbol", t.Symbol).Msg("Trade executed")
	return true
}

// SettleTrade back-fills the P&L of a pending trade once
func (m *Manager) SettleTrade(ctx context.Context, botID, tradeID string, pnl float64) (BotTrade, error) {
	m.mu.Lock()
	b, ok := m.bots[botID]
	if !ok {
		m.mu.Unlock()
		return BotTrade{}, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}
	t, err := b.settle(tradeID, pnl)
	if err != nil {
		m.mu.Unlock()
		return BotTrade{}, fmt.Errorf("%w: %s", err, tradeID)
	}
	state := b.toState(m.now())
	m.publishStatsLocked()
	m.mu.Unlock()

	m.bus.PublishTrade(events.EventTradeSettled, botID, t.ID, t.Symbol, string(t.Action), t.Quantity, t.Price, t.ProfitLoss)
	if err := m.persistence.SaveTrade(ctx, t.toRecord()); err != nil {
		m.persistenceFailed("save_trade", botID, err)
	}
	m.save(ctx, state)
	return t, nil
}

// ============================================================================
// READS
// ============================================================================

// Bots returns copies of every bot in deployment order
func (m *Manager) Bots() []Bot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Bot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.bots[id].clone())
	}
	return out
}

// Bot returns a copy of one bot
func (m *Manager) Bot(id string) (Bot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bots[id]
	if !ok {
		return Bot{}, fmt.Errorf("%w: %s", ErrBotNotFound, id)
	}
	return b.clone(), nil
}

// Statistics folds over every bot at read time
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return computeStatistics(m.botsLocked())
}

// SystemStatus returns the fleet-wide status
func (m *Manager) SystemStatus() SystemStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LatestAnalysis returns the most recent deep analysis report, if any
func (m *Manager) LatestAnalysis() (AnalysisReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latest == nil {
		return AnalysisReport{}, false
	}
	return *m.latest, true
}

// ============================================================================
// HELPERS
// ============================================================================

type statusChange struct {
	id, name string
	from, to Status
}

func (m *Manager) botsLocked() []*Bot {
	out := make([]*Bot, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.bots[id])
	}
	return out
}

func (m *Manager) statesLocked() []database.BotState {
	now := m.now()
	states := make([]database.BotState, 0, len(m.order))
	for _, id := range m.order {
		states = append(states, m.bots[id].toState(now))
	}
	return states
}

// publishStatsLocked recomputes the statistics and publishes them
func (m *Manager) publishStatsLocked() Statistics {
	stats := computeStatistics(m.botsLocked())
	m.metrics.SetFleet(stats.byStatus(), stats.TotalProfitLoss, stats.OverallWinRate)
	m.bus.Publish(events.Event{
		Type: events.EventFleetStats,
		Data: map[string]interface{}{
			"total_bots":        stats.TotalBots,
			"total_profit_loss": stats.TotalProfitLoss,
			"total_trades":      stats.TotalTrades,
			"overall_win_rate":  stats.OverallWinRate,
			"active_bots":       stats.ActiveBots,
			"trading_bots":      stats.TradingBots,
			"learning_bots":     stats.LearningBots,
			"paused_bots":       stats.PausedBots,
		},
	})
	return stats
}

func (m *Manager) publishChanges(changes []statusChange) {
	for _, c := range changes {
		m.bus.PublishBotStatus(c.id, c.name, string(c.from), string(c.to))
	}
}

func (m *Manager) setStatus(status SystemStatus) {
	m.mu.Lock()
	m.status = status
	m.mu.Unlock()
	m.publishSystemStatus(status)
}

func (m *Manager) publishSystemStatus(status SystemStatus) {
	m.bus.Publish(events.Event{
		Type: events.EventSystemStatus,
		Data: map[string]interface{}{"status": string(status)},
	})
}

func (m *Manager) save(ctx context.Context, state database.BotState) bool {
	err := m.persistence.Save(ctx, state)
	m.mu.Lock()
	m.lastSaveFailed = err != nil
	m.mu.Unlock()
	if err != nil {
		m.persistenceFailed("save", state.ID, err)
		return false
	}
	return true
}

func (m *Manager) saveAll(ctx context.Context, states []database.BotState) int {
	failed := 0
	for _, st := range states {
		if !m.save(ctx, st) {
			failed++
		}
	}
	if failed > 0 {
		m.mu.Lock()
		m.lastSaveFailed = true
		m.mu.Unlock()
	}
	return failed
}

func (m *Manager) persistenceFailed(op, botID string, err error) {
	m.metrics.RecordPersistenceFailure(op)
	m.bus.PublishError(events.EventPersistenceFailed, op, "Persistence failed for bot "+botID, err)
	m.logger.Warn().Err(err).Str("op", op).Str("bot_id", botID).Msg("Persistence failed, will retry on next snapshot")
}

type nopPersistence struct{}

func (nopPersistence) LoadAll(context.Context) ([]database.BotState, error)  { return nil, nil }
func (nopPersistence) Save(context.Context, database.BotState) error         { return nil }
func (nopPersistence) SaveTrade(context.Context, database.TradeRecord) error { return nil }
func (nopPersistence) Delete(context.Context, string) error                  { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(string, notification.Severity) {}
