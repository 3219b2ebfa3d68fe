package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the fleet
type EventType string

const (
	EventBotDeployed       EventType = "BOT_DEPLOYED"
	EventBotStatusChanged  EventType = "BOT_STATUS_CHANGED"
	EventBotRemoved        EventType = "BOT_REMOVED"
	EventTradeRecorded     EventType = "TRADE_RECORDED"
	EventTradeExecuted     EventType = "TRADE_EXECUTED"
	EventTradeFailed       EventType = "TRADE_FAILED"
	EventTradeSettled      EventType = "TRADE_SETTLED"
	EventSignalGenerated   EventType = "SIGNAL_GENERATED"
	EventFleetStats        EventType = "FLEET_STATS"
	EventAnalysisCompleted EventType = "ANALYSIS_COMPLETED"
	EventFleetPaused       EventType = "FLEET_PAUSED"
	EventFleetResumed      EventType = "FLEET_RESUMED"
	EventSystemStatus      EventType = "SYSTEM_STATUS"
	EventPersistenceFailed EventType = "PERSISTENCE_FAILED"
	EventCircuitBreaker    EventType = "CIRCUIT_BREAKER"
)

// Event represents a fleet event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions.
// A nil *EventBus is valid and drops every event.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers without blocking the publisher
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishBotStatus publishes a lifecycle transition
func (eb *EventBus) PublishBotStatus(botID, name, from, to string) {
	eb.Publish(Event{
		Type: EventBotStatusChanged,
		Data: map[string]interface{}{
			"bot_id": botID,
			"name":   name,
			"from":   from,
			"to":     to,
		},
	})
}

// PublishTrade publishes a trade event (recorded, executed or settled)
func (eb *EventBus) PublishTrade(eventType EventType, botID, tradeID, symbol, action string, quantity, price, pnl float64) {
	eb.Publish(Event{
		Type: eventType,
		Data: map[string]interface{}{
			"bot_id":      botID,
			"trade_id":    tradeID,
			"symbol":      symbol,
			"action":      action,
			"quantity":    quantity,
			"price":       price,
			"profit_loss": pnl,
		},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(botLabel, symbol, direction string, price, confidence float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"bot":        botLabel,
			"symbol":     symbol,
			"direction":  direction,
			"price":      price,
			"confidence": confidence,
		},
	})
}

// PublishError publishes a failure event of the given type
func (eb *EventBus) PublishError(eventType EventType, source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: eventType,
		Data: data,
	})
}
