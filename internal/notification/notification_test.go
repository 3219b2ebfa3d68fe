package notification

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type mockNotifier struct {
	mu      sync.Mutex
	sent    []*Notification
	enabled bool
	err     error
}

func (m *mockNotifier) Send(n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.err
}

func (m *mockNotifier) Name() string    { return "mock" }
func (m *mockNotifier) IsEnabled() bool { return m.enabled }

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// TestNotifyFansOut tests delivery to enabled providers only
func TestNotifyFansOut(t *testing.T) {
	m := NewManager(zerolog.Nop())
	on := &mockNotifier{enabled: true}
	off := &mockNotifier{enabled: false}
	m.AddNotifier(on)
	m.AddNotifier(off)

	m.Notify("trade failed", SeverityWarning)
	m.Wait()

	if on.count() != 1 {
		t.Errorf("Expected 1 delivery to enabled notifier, got %d", on.count())
	}
	if off.count() != 0 {
		t.Errorf("Expected no delivery to disabled notifier, got %d", off.count())
	}
	if on.sent[0].Severity != SeverityWarning || on.sent[0].Message != "trade failed" {
		t.Errorf("Unexpected notification: %+v", on.sent[0])
	}
}

// TestNotifySwallowsErrors tests that provider failures never reach the caller
func TestNotifySwallowsErrors(t *testing.T) {
	m := NewManager(zerolog.Nop())
	failing := &mockNotifier{enabled: true, err: errors.New("down")}
	ok := &mockNotifier{enabled: true}
	m.AddNotifier(failing)
	m.AddNotifier(ok)

	m.Notify("hello", SeverityInfo)
	m.Wait()

	if ok.count() != 1 {
		t.Error("Expected delivery to continue after a failing provider")
	}
	if err := m.Send(&Notification{}); err == nil || !strings.Contains(err.Error(), "mock") {
		t.Errorf("Expected wrapped provider error from Send, got %v", err)
	}
}

// TestTelegramNotifier tests the Bot API calls made through the client library
func TestTelegramNotifier(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		form  = map[string]string{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		paths = append(paths, r.URL.Path)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"fleet","username":"fleet_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			io.WriteString(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	defer server.Close()

	tg := NewTelegramNotifier(TelegramConfig{BotToken: "tok", ChatID: "42", Enabled: true, APIURL: server.URL})
	if err := tg.Send(&Notification{Title: "T", Message: "M"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := tg.Send(&Notification{Title: "T2", Message: "M2"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	expected := []string{"/bottok/getMe", "/bottok/sendMessage", "/bottok/sendMessage"}
	if len(paths) != len(expected) {
		t.Fatalf("Expected calls %v, got %v", expected, paths)
	}
	for i := range expected {
		if paths[i] != expected[i] {
			t.Errorf("Call %d: expected %s, got %s", i, expected[i], paths[i])
		}
	}
	if form["chat_id"] != "42" {
		t.Errorf("Expected chat_id 42, got %v", form["chat_id"])
	}
	if !strings.Contains(form["text"], "T2") {
		t.Errorf("Expected text to contain title, got %q", form["text"])
	}

	if NewTelegramNotifier(TelegramConfig{Enabled: true}).IsEnabled() {
		t.Error("Expected notifier without token to be disabled")
	}
}

// TestTelegramNotifierAuthFailure tests that a rejected token surfaces as an error
func TestTelegramNotifierAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer server.Close()

	tg := NewTelegramNotifier(TelegramConfig{BotToken: "bad", ChatID: "42", Enabled: true, APIURL: server.URL})
	if err := tg.Send(&Notification{Title: "T", Message: "M"}); err == nil {
		t.Error("Expected error for rejected token")
	}
}

// TestDiscordNotifierStatus tests non-2xx handling
func TestDiscordNotifierStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	d := NewDiscordNotifier(DiscordConfig{WebhookURL: server.URL, Enabled: true})
	if err := d.Send(&Notification{Severity: SeverityCritical}); err == nil {
		t.Error("Expected error for 400 response")
	}
}
