package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// chdirTemp runs the test in an empty directory so no stray config.json or .env is read
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

// TestLoadDefaults tests that Load falls back to defaults without a file
func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.ServerConfig.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.ServerConfig.Port)
	}
	if cfg.SchedulerConfig.FastProcessing != 2*time.Second {
		t.Errorf("Expected 2s fast processing, got %v", cfg.SchedulerConfig.FastProcessing)
	}
	if cfg.ExecutionConfig.Mode != "paper" || cfg.CandlesConfig.Source != "synthetic" {
		t.Errorf("Unexpected modes %s/%s", cfg.ExecutionConfig.Mode, cfg.CandlesConfig.Source)
	}
}

// TestLoadFileThenEnv tests precedence: defaults < file < environment
func TestLoadFileThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "fleet.json")
	body := `{"server": {"port": 9000}, "analysis": {"symbol": "EURUSD"}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("ANALYSIS_SYMBOL", "GBPJPY")
	t.Setenv("SCHEDULER_DEEP_ANALYSIS", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.ServerConfig.Port != 9000 {
		t.Errorf("Expected file port 9000, got %d", cfg.ServerConfig.Port)
	}
	if cfg.AnalysisConfig.Symbol != "GBPJPY" {
		t.Errorf("Expected env symbol GBPJPY, got %s", cfg.AnalysisConfig.Symbol)
	}
	if cfg.AnalysisConfig.Timeframe != "1h" {
		t.Errorf("Expected default timeframe to survive the file, got %s", cfg.AnalysisConfig.Timeframe)
	}
	if cfg.SchedulerConfig.DeepAnalysis != 5*time.Minute {
		t.Errorf("Expected 5m deep analysis, got %v", cfg.SchedulerConfig.DeepAnalysis)
	}
}

// TestLoadDotEnv tests that .env values apply without overriding the process environment
func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	env := "WEB_PORT=7070\nLOG_LEVEL=DEBUG\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0644); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}
	t.Setenv("LOG_LEVEL", "WARN")
	t.Cleanup(func() { os.Unsetenv("WEB_PORT") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.ServerConfig.Port != 7070 {
		t.Errorf("Expected .env port 7070, got %d", cfg.ServerConfig.Port)
	}
	if cfg.LoggingConfig.Level != "WARN" {
		t.Errorf("Expected process env to win, got %s", cfg.LoggingConfig.Level)
	}
}

// TestLoadMalformedFile tests that a broken config file is an error, not a silent default
func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "broken.json")
	os.WriteFile(path, []byte("{not json"), 0644)
	t.Setenv("CONFIG_FILE", path)

	if _, err := Load(); err == nil {
		t.Error("Expected parse error")
	}
}

// TestValidate tests configuration validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"webhook without url", func(c *Config) { c.ExecutionConfig.Mode = "webhook" }, "webhook_url"},
		{"unknown mode", func(c *Config) { c.ExecutionConfig.Mode = "live" }, "execution.mode"},
		{"unknown source", func(c *Config) { c.CandlesConfig.Source = "csv" }, "candles.source"},
		{"auth without secret", func(c *Config) {
			c.AuthConfig.Enabled = true
			c.AuthConfig.AdminPasswordHash = "$2a$12$x"
		}, "jwt_secret"},
		{"bad port", func(c *Config) { c.ServerConfig.Port = 0 }, "port"},
		{"bad min score", func(c *Config) { c.AnalysisConfig.MinScore = 1.5 }, "min_score"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestOrigins tests CORS origin splitting
func TestOrigins(t *testing.T) {
	s := ServerConfig{AllowedOrigins: "https://a.example, https://b.example,,"}
	origins := s.Origins()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Errorf("Unexpected origins %v", origins)
	}
}

// TestValidateSecretsDeferredToVault tests that auth secrets are checked after the Vault overlay
func TestValidateSecretsDeferredToVault(t *testing.T) {
	cfg := Default()
	cfg.AuthConfig.Enabled = true
	cfg.VaultConfig.Enabled = true

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected secrets to be deferred with Vault enabled, got %v", err)
	}
	if err := cfg.ValidateSecrets(); err == nil {
		t.Error("Expected missing secrets to fail ValidateSecrets")
	}

	cfg.AuthConfig.JWTSecret = "from-vault"
	cfg.AuthConfig.AdminPasswordHash = "$2a$12$hash"
	if err := cfg.ValidateSecrets(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
