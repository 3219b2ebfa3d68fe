package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// BotRepository persists bot state and trades in PostgreSQL
type BotRepository struct {
	db *DB
}

// NewBotRepository creates a new repository
func NewBotRepository(db *DB) *BotRepository {
	return &BotRepository{db: db}
}

// HealthCheck performs a database health check
func (r *BotRepository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// BOT STATES
// ============================================================================

const botStateColumns = `id, bot_name, bot_type, strategy, risk_level, status, current_strategy,
		       total_trades, win_rate, profit_loss, average_trade_time, risk_score, learning_progress,
		       deployed_at, last_updated, is_active`

// LoadAll returns every active bot record, oldest deployment first
func (r *BotRepository) LoadAll(ctx context.Context) ([]BotState, error) {
	query := `SELECT ` + botStateColumns + `
		FROM bot_states
		WHERE is_active = TRUE
		ORDER BY deployed_at ASC, id ASC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query bot states: %w", err)
	}
	defer rows.Close()

	var states []BotState
	for rows.Next() {
		state, err := scanBotState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bot state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// GetBotState retrieves one record by ID, active or not
func (r *BotRepository) GetBotState(ctx context.Context, id string) (*BotState, error) {
	query := `SELECT ` + botStateColumns + ` FROM bot_states WHERE id = $1`
	state, err := scanBotState(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Save upserts a bot record
func (r *BotRepository) Save(ctx context.Context, state BotState) error {
	if state.LastUpdated.IsZero() {
		state.LastUpdated = time.Now()
	}
	query := `
		INSERT INTO bot_states (id, bot_name, bot_type, strategy, risk_level, status, current_strategy,
			total_trades, win_rate, profit_loss, average_trade_time, risk_score, learning_progress,
			deployed_at, last_updated, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			bot_name = EXCLUDED.bot_name,
			bot_type = EXCLUDED.bot_type,
			strategy = EXCLUDED.strategy,
			risk_level = EXCLUDED.risk_level,
			status = EXCLUDED.status,
			current_strategy = EXCLUDED.current_strategy,
			total_trades = EXCLUDED.total_trades,
			win_rate = EXCLUDED.win_rate,
			profit_loss = EXCLUDED.profit_loss,
			average_trade_time = EXCLUDED.average_trade_time,
			risk_score = EXCLUDED.risk_score,
			learning_progress = EXCLUDED.learning_progress,
			last_updated = EXCLUDED.last_updated,
			is_active = EXCLUDED.is_active
	`
	m := state.Metrics
	_, err := r.db.Pool.Exec(ctx, query,
		state.ID, state.BotName, state.BotType, state.Strategy, state.RiskLevel, state.Status, state.CurrentStrategy,
		m.TotalTrades, m.WinRate, m.ProfitLoss, m.AverageTradeTime, m.RiskScore, m.LearningProgress,
		state.DeployedAt, state.LastUpdated, state.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save bot %s: %w", state.ID, err)
	}
	return nil
}

// Delete removes a bot record and its trades
func (r *BotRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Pool.Exec(ctx, `DELETE FROM bot_states WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete bot %s: %w", id, err)
	}
	return nil
}

func scanBotState(row pgx.Row) (BotState, error) {
	var s BotState
	err := row.Scan(
		&s.ID, &s.BotName, &s.BotType, &s.Strategy, &s.RiskLevel, &s.Status, &s.CurrentStrategy,
		&s.Metrics.TotalTrades, &s.Metrics.WinRate, &s.Metrics.ProfitLoss, &s.Metrics.AverageTradeTime,
		&s.Metrics.RiskScore, &s.Metrics.LearningProgress,
		&s.DeployedAt, &s.LastUpdated, &s.IsActive,
	)
	return s, err
}

// ============================================================================
// TRADES
// ============================================================================

// SaveTrade upserts a trade. Settling a pending trade rewrites its P&L once.
func (r *BotRepository) SaveTrade(ctx context.Context, trade TradeRecord) error {
	query := `
		INSERT INTO bot_trades (id, bot_id, symbol, action, quantity, price, profit_loss, pending, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			profit_loss = EXCLUDED.profit_loss,
			pending = EXCLUDED.pending
		WHERE bot_trades.pending = TRUE
	`
	_, err := r.db.Pool.Exec(ctx, query,
		trade.ID, trade.BotID, trade.Symbol, trade.Action, trade.Quantity, trade.Price,
		trade.ProfitLoss, trade.Pending, trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade %s: %w", trade.ID, err)
	}
	return nil
}

// ListTrades returns the most recent trades, optionally for one bot
func (r *BotRepository) ListTrades(ctx context.Context, botID string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, bot_id, symbol, action, quantity, price, profit_loss, pending, executed_at
		FROM bot_trades
		WHERE ($1 = '' OR bot_id = $1)
		ORDER BY executed_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.BotID, &t.Symbol, &t.Action, &t.Quantity, &t.Price,
			&t.ProfitLoss, &t.Pending, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// TradeSummaries aggregates trades per bot since the given time
func (r *BotRepository) TradeSummaries(ctx context.Context, since time.Time) ([]TradeSummary, error) {
	query := `
		SELECT t.bot_id, COALESCE(b.bot_name, ''),
		       COUNT(*) FILTER (WHERE NOT t.pending),
		       COUNT(*) FILTER (WHERE NOT t.pending AND t.profit_loss > 0),
		       COUNT(*) FILTER (WHERE t.pending),
		       COALESCE(SUM(t.profit_loss), 0),
		       COALESCE(AVG(t.profit_loss) FILTER (WHERE NOT t.pending), 0),
		       COALESCE(MAX(t.profit_loss), 0),
		       COALESCE(MIN(t.profit_loss), 0)
		FROM bot_trades t
		LEFT JOIN bot_states b ON b.id = t.bot_id
		WHERE t.executed_at >= $1
		GROUP BY t.bot_id, b.bot_name
		ORDER BY SUM(t.profit_loss) DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade summaries: %w", err)
	}
	defer rows.Close()

	var summaries []TradeSummary
	for rows.Next() {
		var s TradeSummary
		if err := rows.Scan(&s.BotID, &s.BotName, &s.Trades, &s.Wins, &s.Pending,
			&s.TotalPnL, &s.AveragePnL, &s.LargestWin, &s.LargestLoss); err != nil {
			return nil, fmt.Errorf("failed to scan trade summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
