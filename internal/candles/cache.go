package candles

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// CachedSource serves repeated fetches for the same window from memory
type CachedSource struct {
	inner  Source
	maxTTL time.Duration
	now    func() time.Time

	mu   sync.RWMutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	series    []Candle
	expiresAt time.Time
}

// NewCachedSource wraps inner. Entries live for the interval's TTL, capped at maxTTL.
func NewCachedSource(inner Source, maxTTL time.Duration) *CachedSource {
	return &CachedSource{
		inner:  inner,
		maxTTL: maxTTL,
		now:    time.Now,
		data:   make(map[string]cacheEntry),
	}
}

// Fetch returns the cached window when fresh, otherwise fetches and caches it
func (s *CachedSource) Fetch(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	key := fmt.Sprintf("%s:%s:%d", symbol, timeframe, limit)

	if series, ok := s.get(key); ok {
		return series, nil
	}

	series, err := s.inner.Fetch(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}

	s.set(key, series, s.ttl(timeframe))
	return series, nil
}

// ttl returns the cache lifetime for an interval
func (s *CachedSource) ttl(timeframe string) time.Duration {
	var ttl time.Duration
	switch timeframe {
	case "1m", "1M":
		ttl = 30 * time.Second
	case "5m", "5M":
		ttl = 2 * time.Minute
	case "15m", "15M":
		ttl = 5 * time.Minute
	case "1h", "1H", "H1":
		ttl = 30 * time.Minute
	case "4h", "4H", "H4":
		ttl = 2 * time.Hour
	case "1d", "1D", "D1":
		ttl = 12 * time.Hour
	default:
		ttl = time.Minute
	}
	if s.maxTTL > 0 && ttl > s.maxTTL {
		ttl = s.maxTTL
	}
	return ttl
}

func (s *CachedSource) get(key string) ([]Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok || s.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.series, true
}

func (s *CachedSource) set(key string, series []Candle, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, entry := range s.data {
		if now.After(entry.expiresAt) {
			delete(s.data, k)
		}
	}
	s.data[key] = cacheEntry{series: series, expiresAt: now.Add(ttl)}
}

// Len returns the number of cached windows
func (s *CachedSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
