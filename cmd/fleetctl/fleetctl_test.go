package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"bot-fleet-engine/internal/auth"
	"bot-fleet-engine/internal/backtest"
	"bot-fleet-engine/internal/database"
)

// inTempDir runs the test from an empty directory so no config.json or .env is picked up
func inTempDir(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })
	t.Setenv("CONFIG_FILE", "")
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// TestHashPasswordFromStdin tests hashing a password read from stdin
func TestHashPasswordFromStdin(t *testing.T) {
	const password = "correct-Horse-battery-1"

	out, err := execute(t, password+"\n", "hash-password", "--cost", "4")
	if err != nil {
		t.Fatalf("hash-password failed: %v", err)
	}

	hash := strings.TrimSpace(out)
	if !auth.NewPasswordManager(4).VerifyPassword(password, hash) {
		t.Errorf("Expected printed hash to verify, got %q", hash)
	}
}

// TestHashPasswordRejectsWeak tests that the strength rules apply unless skipped
func TestHashPasswordRejectsWeak(t *testing.T) {
	if _, err := execute(t, "", "hash-password", "--password", "short", "--cost", "4"); err == nil {
		t.Error("Expected weak password to be rejected")
	}

	out, err := execute(t, "", "hash-password", "--password", "short", "--cost", "4", "--skip-strength-check")
	if err != nil {
		t.Fatalf("Expected skip flag to allow weak password, got %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "$2a$") {
		t.Errorf("Expected bcrypt hash, got %q", out)
	}
}

// TestHashPasswordEmptyStdin tests the error for missing input
func TestHashPasswordEmptyStdin(t *testing.T) {
	if _, err := execute(t, "", "hash-password"); err == nil {
		t.Error("Expected error for empty stdin")
	}
}

// TestAnalyzeSyntheticJSON tests the analyze command against the synthetic source
func TestAnalyzeSyntheticJSON(t *testing.T) {
	inTempDir(t)

	out, err := execute(t, "", "analyze", "--source", "synthetic", "--seed", "42",
		"--candles", "200", "--symbol", "EURUSD", "--format", "json")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}

	var report analyzeReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("Expected JSON output, got error %v: %s", err, out)
	}
	if report.Snapshot.Symbol != "EURUSD" {
		t.Errorf("Expected symbol EURUSD, got %s", report.Snapshot.Symbol)
	}
	if report.Snapshot.Candles != 200 {
		t.Errorf("Expected 200 candles, got %d", report.Snapshot.Candles)
	}
	if report.Confluence.Score < 0 || report.Confluence.Score > 1 {
		t.Errorf("Expected score in [0,1], got %f", report.Confluence.Score)
	}
	if report.Confluence.Grade == "" {
		t.Error("Expected a grade")
	}
}

// TestAnalyzeTable tests the default table output
func TestAnalyzeTable(t *testing.T) {
	inTempDir(t)

	out, err := execute(t, "", "analyze", "--seed", "7", "--candles", "120")
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	for _, want := range []string{"XAUUSD", "Structure bias", "Confluence"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

// TestAnalyzeValidation tests flag validation
func TestAnalyzeValidation(t *testing.T) {
	inTempDir(t)

	tests := []struct {
		name string
		args []string
	}{
		{"bad timeframe", []string{"analyze", "--timeframe", "7x"}},
		{"bad source", []string{"analyze", "--source", "ftp"}},
		{"bad format", []string{"analyze", "--format", "yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, "", tt.args...); err == nil {
				t.Errorf("Expected error for %v", tt.args)
			}
		})
	}
}

// TestBacktestSyntheticJSON tests the backtest command end to end
func TestBacktestSyntheticJSON(t *testing.T) {
	inTempDir(t)

	out, err := execute(t, "", "backtest", "--seed", "5", "--candles", "200", "--format", "json", "--max-hold", "24")
	if err != nil {
		t.Fatalf("backtest failed: %v", err)
	}

	var result backtest.Result
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("Expected JSON output, got error %v: %s", err, out)
	}
	if result.Candles != 200 {
		t.Errorf("Expected 200 candles, got %d", result.Candles)
	}
	if !strings.HasPrefix(result.Strategy, "Confluence-XAUUSD") {
		t.Errorf("Expected confluence strategy, got %s", result.Strategy)
	}
}

// TestTradesRequiresDatabase tests that trades refuses to run without Postgres
func TestTradesRequiresDatabase(t *testing.T) {
	inTempDir(t)

	_, err := execute(t, "", "trades")
	if err == nil || !strings.Contains(err.Error(), "database is not enabled") {
		t.Errorf("Expected database error, got %v", err)
	}
}

// TestWriteTradeSummaries tests the trade summary table
func TestWriteTradeSummaries(t *testing.T) {
	var buf bytes.Buffer
	err := writeTradeSummaries(&buf, []database.TradeSummary{
		{BotID: "b1", BotName: "Alpha", Trades: 4, Wins: 3, Pending: 1, TotalPnL: 120.5},
		{BotID: "b2", Trades: 2, Wins: 0, TotalPnL: -40},
	}, "table")
	if err != nil {
		t.Fatalf("writeTradeSummaries failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Alpha") {
		t.Errorf("Expected bot name in output, got:\n%s", out)
	}
	if !strings.Contains(out, "b2") {
		t.Errorf("Expected bot id fallback in output, got:\n%s", out)
	}
	if !strings.Contains(out, "75.0") {
		t.Errorf("Expected 75.0 win percent, got:\n%s", out)
	}
	if !strings.Contains(out, "80.50") {
		t.Errorf("Expected total P&L 80.50, got:\n%s", out)
	}

	buf.Reset()
	if err := writeTradeSummaries(&buf, nil, "table"); err != nil {
		t.Fatalf("writeTradeSummaries failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No trades") {
		t.Errorf("Expected empty message, got %q", buf.String())
	}

	buf.Reset()
	if err := writeTradeSummaries(&buf, nil, "json"); err != nil {
		t.Fatalf("writeTradeSummaries failed: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("Expected [], got %q", buf.String())
	}
}
