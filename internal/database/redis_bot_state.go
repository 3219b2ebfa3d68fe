package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis key layout for bot state
const (
	// BotKeyPrefix format: fleet:bot:{id}
	BotKeyPrefix = "fleet:bot"

	// BotIndexKey is the set of every stored bot id
	BotIndexKey = "fleet:bots"

	// TradeKeyPrefix format: fleet:trades:{botID}, a hash keyed by trade id
	TradeKeyPrefix = "fleet:trades"

	// BotStateTTL keeps records of idle deployments around for a month
	BotStateTTL = 30 * 24 * time.Hour

	// DefaultTradeCacheLimit bounds the trades held in memory per bot
	DefaultTradeCacheLimit = 500
)

// ErrRedisWrite is returned when a record could only be kept in memory
var ErrRedisWrite = errors.New("redis write failed, record kept in memory")

// RedisBotStore stores bot state in Redis with an in-memory fallback
// when Redis is unavailable. A nil client runs memory-only.
//
// Trades are only held in memory while they cannot reach Redis, bounded per
// bot, and are pushed back on reconnect.
type RedisBotStore struct {
	client         *redis.Client
	logger         zerolog.Logger
	bots           map[string]BotState
	trades         map[string]map[string]TradeRecord // botID -> tradeID -> record
	tradeLimit     int
	cacheMu        sync.RWMutex
	redisAvailable atomic.Bool
}

// NewRedisBotStore creates a new store and probes Redis once
func NewRedisBotStore(ctx context.Context, client *redis.Client, logger zerolog.Logger) *RedisBotStore {
	s := &RedisBotStore{
		client:     client,
		logger:     logger.With().Str("component", "RedisBotStore").Logger(),
		bots:       make(map[string]BotState),
		trades:     make(map[string]map[string]TradeRecord),
		tradeLimit: DefaultTradeCacheLimit,
	}

	if client == nil {
		s.logger.Info().Msg("No Redis client provided, using in-memory store only")
		return s
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory store")
	} else {
		s.logger.Info().Msg("Redis connected")
		s.redisAvailable.Store(true)
	}
	return s
}

// SetTradeCacheLimit bounds the in-memory trades per bot. Values below 1 are ignored.
func (s *RedisBotStore) SetTradeCacheLimit(n int) {
	if n < 1 {
		return
	}
	s.cacheMu.Lock()
	s.tradeLimit = n
	for botID := range s.trades {
		s.trimTradesLocked(botID)
	}
	s.cacheMu.Unlock()
}

func botKey(id string) string {
	return fmt.Sprintf("%s:%s", BotKeyPrefix, id)
}

func tradeKey(botID string) string {
	return fmt.Sprintf("%s:%s", TradeKeyPrefix, botID)
}

func (s *RedisBotStore) useRedis() bool {
	return s.client != nil && s.redisAvailable.Load()
}

func (s *RedisBotStore) markUnavailable(op string, err error) {
	if s.redisAvailable.Swap(false) {
		s.logger.Warn().Err(err).Str("op", op).Msg("Redis error, falling back to in-memory store")
	}
}

// LoadAll returns every active bot record ordered by deployment time
func (s *RedisBotStore) LoadAll(ctx context.Context) ([]BotState, error) {
	if s.useRedis() {
		states, err := s.loadFromRedis(ctx)
		if err == nil {
			s.cacheMu.Lock()
			for _, st := range states {
				s.bots[st.ID] = st
			}
			s.cacheMu.Unlock()
			return filterActive(states), nil
		}
		s.markUnavailable("load", err)
	}

	s.cacheMu.RLock()
	states := make([]BotState, 0, len(s.bots))
	for _, st := range s.bots {
		states = append(states, st)
	}
	s.cacheMu.RUnlock()
	return filterActive(states), nil
}

func (s *RedisBotStore) loadFromRedis(ctx context.Context) ([]BotState, error) {
	ids, err := s.client.SMembers(ctx, BotIndexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	states := make([]BotState, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, botKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired, index is cleaned on next delete
		}
		if err != nil {
			return nil, err
		}
		var st BotState
		if err := json.Unmarshal(data, &st); err != nil {
			s.logger.Warn().Err(err).Str("bot_id", id).Msg("Skipping corrupt bot record")
			continue
		}
		states = append(states, st)
	}
	return states, nil
}

func filterActive(states []BotState) []BotState {
	active := make([]BotState, 0, len(states))
	for _, st := range states {
		if st.IsActive {
			active = append(active, st)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if !active[i].DeployedAt.Equal(active[j].DeployedAt) {
			return active[i].DeployedAt.Before(active[j].DeployedAt)
		}
		return active[i].ID < active[j].ID
	})
	return active
}

// Save stores a bot record. The in-memory copy is always updated.
func (s *RedisBotStore) Save(ctx context.Context, state BotState) error {
	if state.LastUpdated.IsZero() {
		state.LastUpdated = time.Now()
	}

	s.cacheMu.Lock()
	s.bots[state.ID] = state
	s.cacheMu.Unlock()

	if !s.useRedis() {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal bot state: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, botKey(state.ID), data, BotStateTTL)
	pipe.SAdd(ctx, BotIndexKey, state.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markUnavailable("save", err)
		return fmt.Errorf("%w: %v", ErrRedisWrite, err)
	}
	return nil
}

// SaveTrade stores a trade. A settled trade is never overwritten.
func (s *RedisBotStore) SaveTrade(ctx context.Context, trade TradeRecord) error {
	if !s.useRedis() {
		s.cacheTrade(trade)
		return nil
	}

	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	pipe := s.client.TxPipeline()
	if trade.Pending {
		pipe.HSetNX(ctx, tradeKey(trade.BotID), trade.ID, data)
	} else {
		pipe.HSet(ctx, tradeKey(trade.BotID), trade.ID, data)
	}
	pipe.Expire(ctx, tradeKey(trade.BotID), BotStateTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markUnavailable("save_trade", err)
		s.cacheTrade(trade)
		return fmt.Errorf("%w: %v", ErrRedisWrite, err)
	}

	s.cacheMu.Lock()
	if byID, ok := s.trades[trade.BotID]; ok {
		delete(byID, trade.ID)
	}
	s.cacheMu.Unlock()
	return nil
}

func (s *RedisBotStore) cacheTrade(trade TradeRecord) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	byID, ok := s.trades[trade.BotID]
	if !ok {
		byID = make(map[string]TradeRecord)
		s.trades[trade.BotID] = byID
	}
	if existing, ok := byID[trade.ID]; ok && !existing.Pending {
		return
	}
	byID[trade.ID] = trade
	s.trimTradesLocked(trade.BotID)
}

// trimTradesLocked drops the oldest settled trades first, then the oldest pending ones
func (s *RedisBotStore) trimTradesLocked(botID string) {
	byID := s.trades[botID]
	excess := len(byID) - s.tradeLimit
	if excess <= 0 {
		return
	}

	all := make([]TradeRecord, 0, len(byID))
	for _, t := range byID {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Pending != all[j].Pending {
			return !all[i].Pending
		}
		if !all[i].ExecutedAt.Equal(all[j].ExecutedAt) {
			return all[i].ExecutedAt.Before(all[j].ExecutedAt)
		}
		return all[i].ID < all[j].ID
	})
	for _, t := range all[:excess] {
		delete(byID, t.ID)
	}
}

// Delete removes a bot record and its trades
func (s *RedisBotStore) Delete(ctx context.Context, id string) error {
	s.cacheMu.Lock()
	delete(s.bots, id)
	delete(s.trades, id)
	s.cacheMu.Unlock()

	if !s.useRedis() {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, botKey(id), tradeKey(id))
	pipe.SRem(ctx, BotIndexKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.markUnavailable("delete", err)
		return fmt.Errorf("%w: %v", ErrRedisWrite, err)
	}
	return nil
}

// Trades returns the trades of one bot still held in memory, ordered by execution time
func (s *RedisBotStore) Trades(botID string) []TradeRecord {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	out := make([]TradeRecord, 0, len(s.trades[botID]))
	for _, t := range s.trades[botID] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out
}

// IsRedisAvailable returns whether Redis is currently in use
func (s *RedisBotStore) IsRedisAvailable() bool {
	return s.redisAvailable.Load()
}

// Reconnect retries Redis after a fallback. It is a no-op while Redis is in use
// or when the store runs memory-only.
func (s *RedisBotStore) Reconnect(ctx context.Context) error {
	if s.client == nil || s.redisAvailable.Load() {
		return nil
	}
	return s.CheckRedisConnection(ctx)
}

// CheckRedisConnection pings Redis and, on recovery, pushes the in-memory records back
func (s *RedisBotStore) CheckRedisConnection(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("no Redis client configured")
	}
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.redisAvailable.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}

	if !s.redisAvailable.Swap(true) {
		s.logger.Info().Msg("Redis connection recovered, syncing in-memory records")
		return s.syncCacheToRedis(ctx)
	}
	return nil
}

func (s *RedisBotStore) syncCacheToRedis(ctx context.Context) error {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	pipe := s.client.TxPipeline()
	for id, st := range s.bots {
		data, err := json.Marshal(st)
		if err != nil {
			continue
		}
		pipe.Set(ctx, botKey(id), data, BotStateTTL)
		pipe.SAdd(ctx, BotIndexKey, id)
	}
	for botID, byID := range s.trades {
		for tradeID, t := range byID {
			data, err := json.Marshal(t)
			if err != nil {
				continue
			}
			pipe.HSet(ctx, tradeKey(botID), tradeID, data)
		}
		pipe.Expire(ctx, tradeKey(botID), BotStateTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.redisAvailable.Store(false)
		return fmt.Errorf("failed to sync cache to redis: %w", err)
	}
	s.trades = make(map[string]map[string]TradeRecord)
	return nil
}
