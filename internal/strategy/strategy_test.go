package strategy

import (
	"math"
	"math/rand"
	"strings"
	"testing"
)

func newTestBook(seed int64) *PriceBook {
	return NewPriceBook(nil, nil, rand.New(rand.NewSource(seed)))
}

// TestBracketBuyAndSell tests stop and target placement on both sides
func TestBracketBuyAndSell(t *testing.T) {
	sl, tp := Bracket(Buy, 100, 10, 1.5)
	if sl != 90 || tp != 115 {
		t.Errorf("Expected buy SL 90 TP 115, got %f %f", sl, tp)
	}

	sl, tp = Bracket(Sell, 100, 5, 3)
	if sl != 105 || tp != 85 {
		t.Errorf("Expected sell SL 105 TP 85, got %f %f", sl, tp)
	}
}

// TestRiskPoints tests the risk level mapping
func TestRiskPoints(t *testing.T) {
	tests := []struct {
		level    RiskLevel
		expected float64
	}{
		{RiskLow, 10},
		{RiskMedium, 15},
		{RiskHigh, 20},
		{RiskExtreme, 20},
	}
	for _, tt := range tests {
		if got := RiskPoints(tt.level); got != tt.expected {
			t.Errorf("RiskPoints(%s): expected %f, got %f", tt.level, tt.expected, got)
		}
	}

	if ParseRiskLevel("bogus") != RiskMedium {
		t.Error("Expected unknown risk level to default to medium")
	}
}

// TestPerBotRequiresLearningProgress tests the learning progress floor
func TestPerBotRequiresLearningProgress(t *testing.T) {
	s := NewPerBotStrategy(DefaultPerBotConfig(), newTestBook(1)).ForBot(BotProfile{
		Name: "Alpha", WinRate: 100, LearningProgress: 74.9, RiskLevel: RiskLow,
	})

	if _, ok := s.Decide(nil); ok {
		t.Error("Expected no signal below learning progress 75")
	}
}

// TestPerBotConfidenceFloor tests that low confidence yields no signal
func TestPerBotConfidenceFloor(t *testing.T) {
	s := NewPerBotStrategy(DefaultPerBotConfig(), newTestBook(1)).ForBot(BotProfile{
		Name: "Alpha", WinRate: 80, LearningProgress: 80, RiskLevel: RiskLow,
	})

	// 0.8 * 0.8 = 0.64
	if _, ok := s.Decide(nil); ok {
		t.Error("Expected no signal below confidence 0.70")
	}
}

// TestPerBotSignal tests a qualifying bot
func TestPerBotSignal(t *testing.T) {
	book := newTestBook(7)
	s := NewPerBotStrategy(DefaultPerBotConfig(), book).ForBot(BotProfile{
		Name: "Alpha", WinRate: 100, LearningProgress: 100, RiskLevel: RiskMedium,
	})

	sig, ok := s.Decide(nil)
	if !ok {
		t.Fatal("Expected a signal")
	}
	if sig.Confidence != 0.95 {
		t.Errorf("Expected confidence capped at 0.95, got %f", sig.Confidence)
	}
	if sig.Source != "AI Bot: Alpha" {
		t.Errorf("Expected source 'AI Bot: Alpha', got %s", sig.Source)
	}
	if sig.Quantity != 0.01 {
		t.Errorf("Expected quantity 0.01, got %f", sig.Quantity)
	}

	ref := book.Price(sig.Symbol)
	if math.Abs(sig.EntryPrice-ref) > 2 {
		t.Errorf("Entry %f too far from reference %f", sig.EntryPrice, ref)
	}

	risk := math.Abs(sig.EntryPrice - sig.StopLoss)
	reward := math.Abs(sig.TakeProfit - sig.EntryPrice)
	if math.Abs(risk-15) > 1e-9 || math.Abs(reward-22.5) > 1e-9 {
		t.Errorf("Expected risk 15 and reward 22.5, got %f and %f", risk, reward)
	}
}

// TestForBotDoesNotMutateBase tests that binding returns an independent copy
func TestForBotDoesNotMutateBase(t *testing.T) {
	base := NewPerBotStrategy(DefaultPerBotConfig(), newTestBook(1))
	a := base.ForBot(BotProfile{Name: "A"})
	b := base.ForBot(BotProfile{Name: "B"})

	if a.Name() == b.Name() {
		t.Error("Expected distinct bound strategies")
	}
	if !strings.HasSuffix(base.Name(), "-") {
		t.Errorf("Expected unbound name, got %s", base.Name())
	}
}

// TestPriceBook tests reference prices and updates
func TestPriceBook(t *testing.T) {
	book := newTestBook(1)

	if book.Price("XAUUSD") != 2375 {
		t.Errorf("Expected 2375, got %f", book.Price("XAUUSD"))
	}
	if book.Price("UNKNOWN") != 100 {
		t.Errorf("Expected 100 for unknown symbol, got %f", book.Price("UNKNOWN"))
	}

	book.SetPrice("XAUUSD", 2400)
	book.SetPrice("XAUUSD", -1)
	if book.Price("XAUUSD") != 2400 {
		t.Errorf("Expected 2400 after update, got %f", book.Price("XAUUSD"))
	}
	if DefaultReferencePrices["XAUUSD"] != 2375 {
		t.Error("SetPrice must not modify the default table")
	}

	for i := 0; i < 100; i++ {
		if v := book.Uniform(-1, 1); v < -1 || v >= 1 {
			t.Fatalf("Uniform out of range: %f", v)
		}
	}
}
