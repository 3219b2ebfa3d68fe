package vault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"bot-fleet-engine/config"
)

// fakeVault serves a single KV v2 secret and the health endpoint
type fakeVault struct {
	mu     sync.Mutex
	data   map[string]interface{}
	sealed bool
	tokens []string
	paths  []string
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, r.Header.Get("X-Vault-Token"))
	f.paths = append(f.paths, r.URL.Path)

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v1/sys/health":
		json.NewEncoder(w).Encode(map[string]interface{}{
			"initialized": true,
			"sealed":      f.sealed,
			"standby":     false,
		})
	case "/v1/secret/data/bot-fleet/config":
		if f.data == nil {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"errors":[]}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data":     f.data,
				"metadata": map[string]interface{}{"version": 1},
			},
		})
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errors":[]}`))
	}
}

func newTestClient(t *testing.T, fv *fakeVault) *Client {
	t.Helper()
	srv := httptest.NewServer(fv)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    srv.URL,
		Token:      "s.test-token",
		MountPath:  "secret",
		SecretPath: "bot-fleet/config",
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return c
}

// TestOverlayReplacesSecrets tests that stored credentials replace config values
func TestOverlayReplacesSecrets(t *testing.T) {
	fv := &fakeVault{data: map[string]interface{}{
		KeyDBPassword:        "db-from-vault",
		KeyJWTSecret:         "jwt-from-vault",
		KeyTelegramBotToken:  "tg-from-vault",
		KeyWebhookToken:      "hook-from-vault",
		"unrelated":          "ignored",
		KeyDiscordWebhookURL: "",
	}}
	c := newTestClient(t, fv)

	cfg := config.Default()
	cfg.RedisConfig.Password = "redis-from-env"
	cfg.NotificationConfig.Discord.WebhookURL = "https://discord.example/hook"

	applied, err := c.Overlay(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := []string{KeyDBPassword, KeyJWTSecret, KeyTelegramBotToken, KeyWebhookToken}
	if !reflect.DeepEqual(applied, want) {
		t.Errorf("Expected applied %v, got %v", want, applied)
	}
	if cfg.DatabaseConfig.Password != "db-from-vault" {
		t.Errorf("Expected vault db password, got %s", cfg.DatabaseConfig.Password)
	}
	if cfg.AuthConfig.JWTSecret != "jwt-from-vault" {
		t.Errorf("Expected vault jwt secret, got %s", cfg.AuthConfig.JWTSecret)
	}
	if cfg.ExecutionConfig.WebhookToken != "hook-from-vault" {
		t.Errorf("Expected vault webhook token, got %s", cfg.ExecutionConfig.WebhookToken)
	}
	if cfg.RedisConfig.Password != "redis-from-env" {
		t.Errorf("Expected redis password untouched, got %s", cfg.RedisConfig.Password)
	}
	if cfg.NotificationConfig.Discord.WebhookURL != "https://discord.example/hook" {
		t.Errorf("Expected empty vault value to be ignored, got %s", cfg.NotificationConfig.Discord.WebhookURL)
	}

	if v, ok := c.Cached(KeyTelegramBotToken); !ok || v != "tg-from-vault" {
		t.Errorf("Expected cached telegram token, got %q", v)
	}

	fv.mu.Lock()
	defer fv.mu.Unlock()
	if len(fv.tokens) == 0 || fv.tokens[0] != "s.test-token" {
		t.Errorf("Expected vault token header, got %v", fv.tokens)
	}
}

// TestOverlayMissingSecret tests the not-found path
func TestOverlayMissingSecret(t *testing.T) {
	c := newTestClient(t, &fakeVault{})

	_, err := c.Overlay(context.Background(), config.Default())
	if !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("Expected ErrSecretNotFound, got %v", err)
	}
}

// TestDisabledClient tests that a disabled client leaves the config alone
func TestDisabledClient(t *testing.T) {
	c, err := NewClient(config.VaultConfig{})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	cfg := config.Default()
	cfg.DatabaseConfig.Password = "keep"
	applied, err := c.Overlay(context.Background(), cfg)
	if err != nil || len(applied) != 0 {
		t.Errorf("Expected no-op overlay, got %v, %v", applied, err)
	}
	if cfg.DatabaseConfig.Password != "keep" {
		t.Error("Expected config to be untouched")
	}
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Expected nil health for disabled client, got %v", err)
	}
}

// TestHealth tests sealed and unsealed health responses
func TestHealth(t *testing.T) {
	fv := &fakeVault{}
	c := newTestClient(t, fv)

	if err := c.Health(context.Background()); err != nil {
		t.Errorf("Expected healthy vault, got %v", err)
	}

	fv.mu.Lock()
	fv.sealed = true
	fv.mu.Unlock()
	if err := c.Health(context.Background()); err == nil {
		t.Error("Expected error for sealed vault")
	}
}
