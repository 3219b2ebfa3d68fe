package strategy

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultReferencePrices are the simulated quotes used when no feed is wired
var DefaultReferencePrices = map[string]float64{
	"XAUUSD": 2375.0,
	"EURUSD": 1.0850,
	"GBPUSD": 1.2650,
	"USDJPY": 148.50,
}

// DefaultSignalSymbols is the symbol universe for generated signals
var DefaultSignalSymbols = []string{"XAUUSD", "EURUSD", "GBPUSD", "USDJPY"}

const unknownSymbolPrice = 100.0

// PriceBook hands out reference prices and the randomness signal generators draw from.
// It is safe for concurrent use.
type PriceBook struct {
	mu      sync.Mutex
	rng     *rand.Rand
	prices  map[string]float64
	symbols []string
}

// NewPriceBook creates a price book. A nil rng is seeded from the clock.
func NewPriceBook(prices map[string]float64, symbols []string, rng *rand.Rand) *PriceBook {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(prices) == 0 {
		prices = DefaultReferencePrices
	}
	if len(symbols) == 0 {
		symbols = DefaultSignalSymbols
	}

	copied := make(map[string]float64, len(prices))
	for k, v := range prices {
		copied[k] = v
	}
	return &PriceBook{
		rng:     rng,
		prices:  copied,
		symbols: append([]string(nil), symbols...),
	}
}

// Price returns the reference price for symbol
func (p *PriceBook) Price(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if price, ok := p.prices[symbol]; ok {
		return price
	}
	return unknownSymbolPrice
}

// SetPrice updates a reference price, e.g. from the latest candle close
func (p *PriceBook) SetPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.prices[symbol] = price
	p.mu.Unlock()
}

// Entry returns the reference price shifted by a uniform jitter in [-jitter, jitter]
func (p *PriceBook) Entry(symbol string, jitter float64) float64 {
	base := p.Price(symbol)
	return base + p.Uniform(-jitter, jitter)
}

// Symbol picks a random symbol from the universe
func (p *PriceBook) Symbol() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.symbols[p.rng.Intn(len(p.symbols))]
}

// Uniform returns a value in [lo, hi)
func (p *PriceBook) Uniform(lo, hi float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.Float64()*(hi-lo)
}

// Coin returns true with probability 0.5
func (p *PriceBook) Coin() bool {
	return p.Uniform(0, 1) < 0.5
}
