package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"bot-fleet-engine/internal/circuit"
	"bot-fleet-engine/internal/strategy"
)

func testSignal() strategy.Signal {
	return strategy.Signal{
		Symbol:     "XAUUSD",
		Direction:  strategy.Buy,
		EntryPrice: 2375,
		StopLoss:   2360,
		TakeProfit: 2397.5,
		Confidence: 0.8,
		Quantity:   0.01,
		Timeframe:  "15M",
		Timestamp:  time.Now(),
		Source:     "AI Bot: Alpha",
	}
}

// mockExecutor returns a fixed result and counts calls
type mockExecutor struct {
	mu     sync.Mutex
	result bool
	calls  int
}

func (m *mockExecutor) Execute(ctx context.Context, signal strategy.Signal, botLabel string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result
}

// TestPaperExecutorRecordsFills tests fill recording and the retention cap
func TestPaperExecutorRecordsFills(t *testing.T) {
	p := NewPaperExecutor(zerolog.Nop(), 2)

	for i := 0; i < 3; i++ {
		if !p.Execute(context.Background(), testSignal(), "Alpha") {
			t.Fatal("Expected paper execution to succeed")
		}
	}

	fills := p.Fills()
	if len(fills) != 2 {
		t.Fatalf("Expected 2 retained fills, got %d", len(fills))
	}
	if fills[0].BotLabel != "Alpha" || fills[0].ID == "" {
		t.Errorf("Expected labelled fill with id, got %+v", fills[0])
	}
}

// TestPaperExecutorCancelledContext tests that a cancelled context is not filled
func TestPaperExecutorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if NewPaperExecutor(zerolog.Nop(), 0).Execute(ctx, testSignal(), "Alpha") {
		t.Error("Expected no fill on cancelled context")
	}
}

// TestGuardedExecutorTripsBreaker tests that repeated rejections open the breaker
func TestGuardedExecutorTripsBreaker(t *testing.T) {
	inner := &mockExecutor{result: false}
	cfg := circuit.DefaultCircuitBreakerConfig()
	cfg.MaxConsecutiveFailures = 2
	g := NewGuardedExecutor(inner, circuit.NewCircuitBreaker(cfg), zerolog.Nop())

	for i := 0; i < 4; i++ {
		g.Execute(context.Background(), testSignal(), "Alpha")
	}

	if inner.calls != 2 {
		t.Errorf("Expected 2 inner calls before the breaker opened, got %d", inner.calls)
	}
	if !g.Breaker().IsOpen() {
		t.Error("Expected breaker to be open")
	}
}

// TestGuardedExecutorPassesSuccess tests the pass-through path
func TestGuardedExecutorPassesSuccess(t *testing.T) {
	inner := &mockExecutor{result: true}
	g := NewGuardedExecutor(inner, circuit.NewCircuitBreaker(nil), zerolog.Nop())

	if !g.Execute(context.Background(), testSignal(), "Alpha") {
		t.Error("Expected execution to succeed")
	}
}

// TestWebhookExecutorPostsOrder tests the request shape
func TestWebhookExecutorPostsOrder(t *testing.T) {
	var got OrderRequest
	var auth, key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		key = r.Header.Get("Idempotency-Key")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	w := NewWebhookExecutor(WebhookConfig{URL: server.URL, Token: "secret", RequestsPerSec: 100}, zerolog.Nop())
	if !w.Execute(context.Background(), testSignal(), "GODMODE-Alpha") {
		t.Fatal("Expected execution to succeed")
	}

	if auth != "Bearer secret" {
		t.Errorf("Expected bearer token, got %q", auth)
	}
	if key == "" || key != got.ClientOrderID {
		t.Errorf("Expected idempotency key to match client order id, got %q vs %q", key, got.ClientOrderID)
	}
	if got.BotLabel != "GODMODE-Alpha" || got.Signal.Symbol != "XAUUSD" {
		t.Errorf("Unexpected order body: %+v", got)
	}
}

// TestWebhookExecutorRetriesServerErrors tests retry on 5xx with a stable client order id
func TestWebhookExecutorRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	keys := make(chan string, 3)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	w := NewWebhookExecutor(WebhookConfig{URL: server.URL, RequestsPerSec: 100, MaxRetryTime: 5 * time.Second}, zerolog.Nop())
	if !w.Execute(context.Background(), testSignal(), "Alpha") {
		t.Fatal("Expected execution to succeed after retry")
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
	if first, second := <-keys, <-keys; first != second {
		t.Errorf("Expected the same idempotency key on retry, got %q and %q", first, second)
	}
}

// TestWebhookExecutorClientErrorIsFinal tests that 4xx is not retried
func TestWebhookExecutorClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	w := NewWebhookExecutor(WebhookConfig{URL: server.URL, RequestsPerSec: 100}, zerolog.Nop())
	if w.Execute(context.Background(), testSignal(), "Alpha") {
		t.Error("Expected rejection")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}
