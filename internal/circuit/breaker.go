package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"bot-fleet-engine/internal/events"
)

// ErrOpen is returned while the breaker refuses executions
var ErrOpen = errors.New("circuit breaker open")

// BreakerState represents the circuit breaker state
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Executions halted
	StateHalfOpen BreakerState = "half_open" // Testing recovery
)

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled                bool          `json:"enabled"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"` // Failed executions in a row before tripping
	Cooldown               time.Duration `json:"cooldown"`                 // Open duration before a trial execution
	MaxExecutionsPerMinute int           `json:"max_executions_per_minute"`
	MaxDailyExecutions     int           `json:"max_daily_executions"`
}

// DefaultCircuitBreakerConfig returns safe defaults
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Enabled:                true,
		MaxConsecutiveFailures: 5,
		Cooldown:               5 * time.Minute,
		MaxExecutionsPerMinute: 10,
		MaxDailyExecutions:     500,
	}
}

// CircuitBreaker stops trade executions after repeated collaborator failures
type CircuitBreaker struct {
	config              *CircuitBreakerConfig
	state               BreakerState
	consecutiveFailures int
	executionsMinute    int
	dailyExecutions     int
	totalTrips          int
	lastTripTime        time.Time
	minuteResetTime     time.Time
	dailyResetTime      time.Time
	tripReason          string
	trialInFlight       bool
	mu                  sync.RWMutex
	onTrip              func(reason string)
	onReset             func()
	bus                 *events.EventBus
	now                 func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	cb := &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
	cb.resetWindows(cb.now())
	return cb
}

// OnTrip sets callback for when breaker trips
func (cb *CircuitBreaker) OnTrip(handler func(reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = handler
}

// OnReset sets callback for when breaker resets
func (cb *CircuitBreaker) OnReset(handler func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = handler
}

// SetEventBus publishes state changes on bus
func (cb *CircuitBreaker) SetEventBus(bus *events.EventBus) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.bus = bus
}

// Allow reports whether an execution may proceed. The returned error wraps ErrOpen
// when the breaker is open, and describes the limit hit otherwise.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.Enabled {
		return nil
	}

	now := cb.now()
	cb.resetCountersIfNeeded(now)

	switch cb.state {
	case StateOpen:
		elapsed := now.Sub(cb.lastTripTime)
		if elapsed < cb.config.Cooldown {
			remaining := cb.config.Cooldown - elapsed
			return fmt.Errorf("%w: cooldown remaining %v (reason: %s)", ErrOpen, remaining.Round(time.Second), cb.tripReason)
		}
		// Cooldown passed, allow a single trial
		cb.state = StateHalfOpen
		cb.trialInFlight = false
	case StateHalfOpen:
		if cb.trialInFlight {
			return fmt.Errorf("%w: recovery trial in progress", ErrOpen)
		}
	}

	if cb.config.MaxExecutionsPerMinute > 0 && cb.executionsMinute >= cb.config.MaxExecutionsPerMinute {
		return fmt.Errorf("rate limit reached: %d executions/minute", cb.executionsMinute)
	}
	if cb.config.MaxDailyExecutions > 0 && cb.dailyExecutions >= cb.config.MaxDailyExecutions {
		return fmt.Errorf("daily execution limit reached: %d", cb.dailyExecutions)
	}

	if cb.state == StateHalfOpen {
		cb.trialInFlight = true
	}
	cb.executionsMinute++
	cb.dailyExecutions++
	return nil
}

// RecordSuccess records an accepted execution
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.Enabled {
		return
	}

	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.trialInFlight = false
		cb.tripReason = ""
		cb.notifyReset("recovered")
	}
}

// RecordFailure records a rejected or failed execution
func (cb *CircuitBreaker) RecordFailure(reason string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.config.Enabled {
		return
	}

	cb.consecutiveFailures++

	if cb.state == StateHalfOpen {
		cb.trip("recovery trial failed: " + reason)
		return
	}
	if cb.state == StateClosed && cb.consecutiveFailures >= cb.config.MaxConsecutiveFailures {
		cb.trip(fmt.Sprintf("consecutive failures: %d (last: %s)", cb.consecutiveFailures, reason))
	}
}

// trip opens the circuit breaker, called with mu held
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTripTime = cb.now()
	cb.tripReason = reason
	cb.trialInFlight = false
	cb.totalTrips++

	if cb.onTrip != nil {
		go cb.onTrip(reason)
	}

	cb.bus.Publish(events.Event{
		Type: events.EventCircuitBreaker,
		Data: map[string]interface{}{
			"state":                string(StateOpen),
			"action":               "tripped",
			"reason":               reason,
			"consecutive_failures": cb.consecutiveFailures,
		},
	})
}

// notifyReset is called with mu held
func (cb *CircuitBreaker) notifyReset(action string) {
	if cb.onReset != nil {
		go cb.onReset()
	}
	cb.bus.Publish(events.Event{
		Type: events.EventCircuitBreaker,
		Data: map[string]interface{}{
			"state":  string(StateClosed),
			"action": action,
		},
	})
}

func (cb *CircuitBreaker) resetCountersIfNeeded(now time.Time) {
	if now.After(cb.minuteResetTime) {
		cb.executionsMinute = 0
		cb.minuteResetTime = now.Add(time.Minute)
	}
	if now.After(cb.dailyResetTime) {
		cb.dailyExecutions = 0
		cb.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

func (cb *CircuitBreaker) resetWindows(now time.Time) {
	cb.minuteResetTime = now.Add(time.Minute)
	cb.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
}

// ForceReset manually closes the circuit breaker
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	cb.tripReason = ""
	cb.notifyReset("reset")
}

// GetState returns current breaker state
func (cb *CircuitBreaker) GetState() BreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// IsOpen reports whether executions are currently refused
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.GetState() == StateOpen
}

// GetStats returns current statistics
func (cb *CircuitBreaker) GetStats() map[string]interface{} {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return map[string]interface{}{
		"state":                string(cb.state),
		"consecutive_failures": cb.consecutiveFailures,
		"executions_minute":    cb.executionsMinute,
		"daily_executions":     cb.dailyExecutions,
		"total_trips":          cb.totalTrips,
		"trip_reason":          cb.tripReason,
		"last_trip_time":       cb.lastTripTime,
	}
}

// IsEnabled returns if circuit breaker is enabled
func (cb *CircuitBreaker) IsEnabled() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.config.Enabled
}

// SetEnabled enables or disables the circuit breaker
func (cb *CircuitBreaker) SetEnabled(enabled bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.config.Enabled = enabled
}
