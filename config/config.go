package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultConfigFile is read when CONFIG_FILE is unset
const DefaultConfigFile = "config.json"

type Config struct {
	LoggingConfig        LoggingConfig        `json:"logging"`
	ServerConfig         ServerConfig         `json:"server"`
	AuthConfig           AuthConfig           `json:"auth"`
	DatabaseConfig       DatabaseConfig       `json:"database"`
	RedisConfig          RedisConfig          `json:"redis"`
	VaultConfig          VaultConfig          `json:"vault"`
	NotificationConfig   NotificationConfig   `json:"notification"`
	FleetConfig          FleetConfig          `json:"fleet"`
	SchedulerConfig      SchedulerConfig      `json:"scheduler"`
	AnalysisConfig       AnalysisConfig       `json:"analysis"`
	ExecutionConfig      ExecutionConfig      `json:"execution"`
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker"`
	CandlesConfig        CandlesConfig        `json:"candles"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int     `json:"port"`
	Host            string  `json:"host"`
	AllowedOrigins  string  `json:"allowed_origins"` // comma separated, "*" for any
	ReadTimeout     int     `json:"read_timeout"`    // Seconds
	WriteTimeout    int     `json:"write_timeout"`   // Seconds
	ShutdownTimeout int     `json:"shutdown_timeout"`
	RateLimitPerSec float64 `json:"rate_limit_per_sec"` // per client IP
	RateLimitBurst  int     `json:"rate_limit_burst"`
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	AdminUsername        string        `json:"admin_username"`
	AdminPasswordHash    string        `json:"admin_password_hash"` // bcrypt, see fleetctl hash-password
	ViewerUsername       string        `json:"viewer_username"`
	ViewerPasswordHash   string        `json:"viewer_password_hash"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	MaxLoginAttempts     int           `json:"max_login_attempts"`
	LockoutDuration      time.Duration `json:"lockout_duration"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
}

// RedisConfig holds Redis configuration for the bot state store
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV v2 mount
	SecretPath string `json:"secret_path"` // secret holding the overlay keys
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// FleetConfig overrides a subset of the fleet defaults. Zero values keep the default.
type FleetConfig struct {
	TradeProbability  float64       `json:"trade_probability"`
	PromotionProgress float64       `json:"promotion_progress"`
	MaxTradesPerCycle int           `json:"max_trades_per_cycle"`
	ExecutionDelay    time.Duration `json:"execution_delay"`
	MaxTradeHistory   int           `json:"max_trade_history"`
	MinEngineHealth   float64       `json:"min_engine_health"`
	MaxElevatedTrades int           `json:"max_elevated_trades"`
	ElevatedDelay     time.Duration `json:"elevated_delay"`
}

// SchedulerConfig holds the job intervals
type SchedulerConfig struct {
	FastProcessing time.Duration `json:"fast_processing"`
	LearningCycle  time.Duration `json:"learning_cycle"`
	Persistence    time.Duration `json:"persistence"`
	TradeExecution time.Duration `json:"trade_execution"`
	TradeJitter    time.Duration `json:"trade_jitter"`
	DeepAnalysis   time.Duration `json:"deep_analysis"`
}

// AnalysisConfig holds the deep analysis target and indicator periods
type AnalysisConfig struct {
	Symbol         string  `json:"symbol"`
	Timeframe      string  `json:"timeframe"`
	Candles        int     `json:"candles"`
	MinScore       float64 `json:"min_score"` // elevated path confluence floor
	ShortSMA       int     `json:"short_sma"`
	LongSMA        int     `json:"long_sma"`
	RSIPeriod      int     `json:"rsi_period"`
	SwingLookback  int     `json:"swing_lookback"`
	TouchTolerance float64 `json:"touch_tolerance"`
}

// ExecutionConfig selects the trade execution collaborator
type ExecutionConfig struct {
	Mode           string        `json:"mode"` // paper, webhook, none
	WebhookURL     string        `json:"webhook_url"`
	WebhookToken   string        `json:"webhook_token"`
	Timeout        time.Duration `json:"timeout"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	MaxRetryTime   time.Duration `json:"max_retry_time"`
	PaperMaxFills  int           `json:"paper_max_fills"`
}

// CircuitBreakerConfig guards the execution collaborator
type CircuitBreakerConfig struct {
	Enabled                bool          `json:"enabled"`
	MaxConsecutiveFailures int           `json:"max_consecutive_failures"`
	Cooldown               time.Duration `json:"cooldown"`
	MaxExecutionsPerMinute int           `json:"max_executions_per_minute"`
	MaxDailyExecutions     int           `json:"max_daily_executions"`
}

// CandlesConfig selects the candle feed
type CandlesConfig struct {
	Source         string        `json:"source"` // synthetic or rest
	BaseURL        string        `json:"base_url"`
	Timeout        time.Duration `json:"timeout"`
	RequestsPerSec float64       `json:"requests_per_sec"`
	Burst          int           `json:"burst"`
	MaxRetryTime   time.Duration `json:"max_retry_time"`
	Seed           int64         `json:"seed"`
	Volatility     float64       `json:"volatility"`
	CacheTTL       time.Duration `json:"cache_ttl"` // upper bound on cached windows, 0 disables
}

// Default returns the configuration used when neither file nor environment set a value
func Default() *Config {
	return &Config{
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
			RateLimitPerSec: 20,
			RateLimitBurst:  40,
		},
		AuthConfig: AuthConfig{
			AdminUsername:        "admin",
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 7 * 24 * time.Hour,
			MaxLoginAttempts:     5,
			LockoutDuration:      15 * time.Minute,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "fleet",
			Database: "bot_fleet",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		VaultConfig: VaultConfig{
			Address:    "http://localhost:8200",
			MountPath:  "secret",
			SecretPath: "bot-fleet/config",
		},
		SchedulerConfig: SchedulerConfig{
			FastProcessing: 2 * time.Second,
			LearningCycle:  30 * time.Second,
			Persistence:    60 * time.Second,
			TradeExecution: 30 * time.Second,
			TradeJitter:    30 * time.Second,
			DeepAnalysis:   120 * time.Second,
		},
		AnalysisConfig: AnalysisConfig{
			Symbol:    "XAUUSD",
			Timeframe: "1h",
			Candles:   720,
			MinScore:  0.85,
		},
		ExecutionConfig: ExecutionConfig{
			Mode:           "paper",
			Timeout:        10 * time.Second,
			RequestsPerSec: 2,
			MaxRetryTime:   30 * time.Second,
			PaperMaxFills:  1000,
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Enabled:                true,
			MaxConsecutiveFailures: 5,
			Cooldown:               5 * time.Minute,
			MaxExecutionsPerMinute: 10,
			MaxDailyExecutions:     500,
		},
		CandlesConfig: CandlesConfig{
			Source:         "synthetic",
			BaseURL:        "https://api.binance.com",
			Timeout:        10 * time.Second,
			RequestsPerSec: 5,
			Burst:          5,
			MaxRetryTime:   30 * time.Second,
			CacheTTL:       time.Minute,
		},
	}
}

// Load builds the configuration from defaults, the JSON file, .env and the environment,
// in increasing precedence.
func Load() (*Config, error) {
	// .env never overrides variables already set in the process environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	filename := getEnvOrDefault("CONFIG_FILE", DefaultConfigFile)
	cfg, err := loadFromFile(filename)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		cfg = Default()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", cfg.ServerConfig.ReadTimeout)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", cfg.ServerConfig.WriteTimeout)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)
	cfg.ServerConfig.RateLimitPerSec = getEnvFloatOrDefault("SERVER_RATE_LIMIT", cfg.ServerConfig.RateLimitPerSec)
	cfg.ServerConfig.RateLimitBurst = getEnvIntOrDefault("SERVER_RATE_BURST", cfg.ServerConfig.RateLimitBurst)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminUsername = getEnvOrDefault("AUTH_ADMIN_USERNAME", cfg.AuthConfig.AdminUsername)
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)
	cfg.AuthConfig.ViewerUsername = getEnvOrDefault("AUTH_VIEWER_USERNAME", cfg.AuthConfig.ViewerUsername)
	cfg.AuthConfig.ViewerPasswordHash = getEnvOrDefault("AUTH_VIEWER_PASSWORD_HASH", cfg.AuthConfig.ViewerPasswordHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", cfg.AuthConfig.RefreshTokenDuration)
	cfg.AuthConfig.MaxLoginAttempts = getEnvIntOrDefault("AUTH_MAX_LOGIN_ATTEMPTS", cfg.AuthConfig.MaxLoginAttempts)
	cfg.AuthConfig.LockoutDuration = getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", cfg.AuthConfig.LockoutDuration)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", cfg.DatabaseConfig.MaxConns)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Fleet config
	cfg.FleetConfig.TradeProbability = getEnvFloatOrDefault("FLEET_TRADE_PROBABILITY", cfg.FleetConfig.TradeProbability)
	cfg.FleetConfig.MaxTradesPerCycle = getEnvIntOrDefault("FLEET_MAX_TRADES_PER_CYCLE", cfg.FleetConfig.MaxTradesPerCycle)
	cfg.FleetConfig.ExecutionDelay = getEnvDurationOrDefault("FLEET_EXECUTION_DELAY", cfg.FleetConfig.ExecutionDelay)
	cfg.FleetConfig.MinEngineHealth = getEnvFloatOrDefault("FLEET_MIN_ENGINE_HEALTH", cfg.FleetConfig.MinEngineHealth)

	// Scheduler config
	cfg.SchedulerConfig.FastProcessing = getEnvDurationOrDefault("SCHEDULER_FAST_PROCESSING", cfg.SchedulerConfig.FastProcessing)
	cfg.SchedulerConfig.LearningCycle = getEnvDurationOrDefault("SCHEDULER_LEARNING_CYCLE", cfg.SchedulerConfig.LearningCycle)
	cfg.SchedulerConfig.Persistence = getEnvDurationOrDefault("SCHEDULER_PERSISTENCE", cfg.SchedulerConfig.Persistence)
	cfg.SchedulerConfig.TradeExecution = getEnvDurationOrDefault("SCHEDULER_TRADE_EXECUTION", cfg.SchedulerConfig.TradeExecution)
	cfg.SchedulerConfig.TradeJitter = getEnvDurationOrDefault("SCHEDULER_TRADE_JITTER", cfg.SchedulerConfig.TradeJitter)
	cfg.SchedulerConfig.DeepAnalysis = getEnvDurationOrDefault("SCHEDULER_DEEP_ANALYSIS", cfg.SchedulerConfig.DeepAnalysis)

	// Analysis config
	cfg.AnalysisConfig.Symbol = getEnvOrDefault("ANALYSIS_SYMBOL", cfg.AnalysisConfig.Symbol)
	cfg.AnalysisConfig.Timeframe = getEnvOrDefault("ANALYSIS_TIMEFRAME", cfg.AnalysisConfig.Timeframe)
	cfg.AnalysisConfig.Candles = getEnvIntOrDefault("ANALYSIS_CANDLES", cfg.AnalysisConfig.Candles)
	cfg.AnalysisConfig.MinScore = getEnvFloatOrDefault("ANALYSIS_MIN_SCORE", cfg.AnalysisConfig.MinScore)

	// Execution config
	cfg.ExecutionConfig.Mode = strings.ToLower(getEnvOrDefault("EXECUTION_MODE", cfg.ExecutionConfig.Mode))
	cfg.ExecutionConfig.WebhookURL = getEnvOrDefault("EXECUTION_WEBHOOK_URL", cfg.ExecutionConfig.WebhookURL)
	cfg.ExecutionConfig.WebhookToken = getEnvOrDefault("EXECUTION_WEBHOOK_TOKEN", cfg.ExecutionConfig.WebhookToken)
	cfg.ExecutionConfig.Timeout = getEnvDurationOrDefault("EXECUTION_TIMEOUT", cfg.ExecutionConfig.Timeout)

	// Circuit breaker config
	cfg.CircuitBreakerConfig.Enabled = getEnvBoolOrDefault("CIRCUIT_BREAKER_ENABLED", cfg.CircuitBreakerConfig.Enabled)
	cfg.CircuitBreakerConfig.MaxConsecutiveFailures = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_FAILURES", cfg.CircuitBreakerConfig.MaxConsecutiveFailures)
	cfg.CircuitBreakerConfig.Cooldown = getEnvDurationOrDefault("CIRCUIT_COOLDOWN", cfg.CircuitBreakerConfig.Cooldown)

	// Candles config
	cfg.CandlesConfig.Source = strings.ToLower(getEnvOrDefault("CANDLES_SOURCE", cfg.CandlesConfig.Source))
	cfg.CandlesConfig.BaseURL = getEnvOrDefault("CANDLES_BASE_URL", cfg.CandlesConfig.BaseURL)
	cfg.CandlesConfig.Seed = int64(getEnvIntOrDefault("CANDLES_SEED", int(cfg.CandlesConfig.Seed)))
	cfg.CandlesConfig.CacheTTL = getEnvDurationOrDefault("CANDLES_CACHE_TTL", cfg.CandlesConfig.CacheTTL)
}

// Validate rejects combinations the process cannot start with
func (c *Config) Validate() error {
	var problems []string

	switch c.ExecutionConfig.Mode {
	case "paper", "none":
	case "webhook":
		if c.ExecutionConfig.WebhookURL == "" {
			problems = append(problems, "execution.webhook_url is required in webhook mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown execution.mode %q", c.ExecutionConfig.Mode))
	}

	switch c.CandlesConfig.Source {
	case "synthetic":
	case "rest":
		if c.CandlesConfig.BaseURL == "" {
			problems = append(problems, "candles.base_url is required for the rest source")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown candles.source %q", c.CandlesConfig.Source))
	}

	// with Vault enabled the secrets may arrive with the overlay
	if !c.VaultConfig.Enabled {
		problems = append(problems, c.secretProblems()...)
	}

	if c.ServerConfig.Port <= 0 || c.ServerConfig.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid server port %d", c.ServerConfig.Port))
	}
	if c.AnalysisConfig.MinScore < 0 || c.AnalysisConfig.MinScore > 1 {
		problems = append(problems, "analysis.min_score must be within [0,1]")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateSecrets checks the credentials required by the enabled features
func (c *Config) ValidateSecrets() error {
	if problems := c.secretProblems(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) secretProblems() []string {
	var problems []string
	if c.AuthConfig.Enabled {
		if c.AuthConfig.JWTSecret == "" {
			problems = append(problems, "auth.jwt_secret is required when auth is enabled")
		}
		if c.AuthConfig.AdminPasswordHash == "" {
			problems = append(problems, "auth.admin_password_hash is required when auth is enabled")
		}
	}
	return problems
}

// Origins splits the CORS origin list
func (s ServerConfig) Origins() []string {
	var origins []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// loadFromFile decodes the file over the defaults so omitted keys keep their default
func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes the defaults as an indented JSON file
func GenerateSampleConfig(filename string) error {
	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
