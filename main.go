package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bot-fleet-engine/config"
	"bot-fleet-engine/internal/analysis"
	"bot-fleet-engine/internal/api"
	"bot-fleet-engine/internal/auth"
	"bot-fleet-engine/internal/candles"
	"bot-fleet-engine/internal/circuit"
	"bot-fleet-engine/internal/confluence"
	"bot-fleet-engine/internal/database"
	"bot-fleet-engine/internal/events"
	"bot-fleet-engine/internal/execution"
	"bot-fleet-engine/internal/fleet"
	"bot-fleet-engine/internal/logging"
	"bot-fleet-engine/internal/metrics"
	"bot-fleet-engine/internal/notification"
	"bot-fleet-engine/internal/scheduler"
	"bot-fleet-engine/internal/vault"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.New(logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
	})
	defer closer.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Bot fleet engine stopped with error")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Vault overlay runs before anything reads a credential
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return fmt.Errorf("failed to create vault client: %w", err)
	}
	if vaultClient.IsEnabled() {
		applied, err := vaultClient.Overlay(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to read secrets from vault: %w", err)
		}
		logger.Info().Strs("keys", applied).Msg("Applied secrets from Vault")
		if err := cfg.ValidateSecrets(); err != nil {
			return err
		}
	}

	registry := metrics.NewRegistry()
	bus := events.NewEventBus()
	health := map[string]api.HealthCheck{}
	if vaultClient.IsEnabled() {
		health["vault"] = vaultClient.Health
	}

	// Persistence: Postgres, else Redis with in-memory fallback
	var persistence fleet.Persistence
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(ctx, database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
			MaxConns: int32(cfg.DatabaseConfig.MaxConns),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		repo := database.NewBotRepository(db)
		health["database"] = repo.HealthCheck
		persistence = repo
	} else {
		var client *redis.Client
		if cfg.RedisConfig.Enabled {
			client = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisConfig.Address,
				Password: cfg.RedisConfig.Password,
				DB:       cfg.RedisConfig.DB,
				PoolSize: cfg.RedisConfig.PoolSize,
			})
			defer client.Close()
		}
		store := database.NewRedisBotStore(ctx, client, logger)
		store.SetTradeCacheLimit(fleetConfig(cfg).MaxTradeHistory)
		if client != nil {
			health["redis"] = store.CheckRedisConnection
		}
		persistence = store
	}

	notifier := notification.NewManager(logger)
	notifier.AddNotifier(notification.NewLogNotifier(logger))
	if cfg.NotificationConfig.Enabled {
		notifier.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
			Enabled:  cfg.NotificationConfig.Telegram.Enabled,
		}))
		notifier.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    cfg.NotificationConfig.Discord.Enabled,
		}))
	}
	defer notifier.Wait()

	cbc := cfg.CircuitBreakerConfig
	breaker := circuit.NewCircuitBreaker(&circuit.CircuitBreakerConfig{
		Enabled:                cbc.Enabled,
		MaxConsecutiveFailures: cbc.MaxConsecutiveFailures,
		Cooldown:               cbc.Cooldown,
		MaxExecutionsPerMinute: cbc.MaxExecutionsPerMinute,
		MaxDailyExecutions:     cbc.MaxDailyExecutions,
	})
	breaker.SetEventBus(bus)
	breaker.OnTrip(func(reason string) {
		notifier.Notify("Execution circuit breaker tripped: "+reason, notification.SeverityCritical)
	})

	executor := buildExecutor(cfg.ExecutionConfig, breaker, logger)

	var source candles.Source
	switch cfg.CandlesConfig.Source {
	case "rest":
		source = candles.NewRESTSource(candles.RESTConfig{
			BaseURL:        cfg.CandlesConfig.BaseURL,
			Timeout:        cfg.CandlesConfig.Timeout,
			RequestsPerSec: cfg.CandlesConfig.RequestsPerSec,
			Burst:          cfg.CandlesConfig.Burst,
			MaxRetryTime:   cfg.CandlesConfig.MaxRetryTime,
		})
		if cfg.CandlesConfig.CacheTTL > 0 {
			source = candles.NewCachedSource(source, cfg.CandlesConfig.CacheTTL)
		}
	default:
		source = candles.NewSyntheticSource(candles.SyntheticConfig{
			Seed:       cfg.CandlesConfig.Seed,
			Volatility: cfg.CandlesConfig.Volatility,
		})
	}

	ac := cfg.AnalysisConfig
	engine := analysis.NewEngine(
		analysis.NewTrendMomentumAnalyzer(analysis.TrendConfig{
			ShortSMA:  ac.ShortSMA,
			LongSMA:   ac.LongSMA,
			RSIPeriod: ac.RSIPeriod,
		}),
		analysis.NewStructureAnalyzer(analysis.StructureConfig{
			SwingLookback:  ac.SwingLookback,
			TouchTolerance: ac.TouchTolerance,
		}),
	)
	synth := confluence.NewSynthesizer()
	thresholds := synth.Thresholds()
	thresholds.MinScore = ac.MinScore
	synth.SetThresholds(thresholds)

	deps := fleet.Dependencies{
		Persistence: persistence,
		Notifier:    notifier,
		Bus:         bus,
		Candles:     source,
		Metrics:     registry,
		Breaker:     breaker,
		Synthesizer: synth,
		Engine:      engine,
	}
	if executor != nil {
		deps.Executor = executor
	}
	manager := fleet.NewManager(fleetConfig(cfg), deps, logger)

	if err := manager.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Starting with an empty fleet")
	}

	sched := scheduler.New(logger, registry)
	for _, job := range fleet.Jobs(manager, jobConfig(cfg.SchedulerConfig)) {
		if err := sched.Add(job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", job.Name, err)
		}
	}
	manager.SetController(sched)

	var authService *auth.Service
	if cfg.AuthConfig.Enabled {
		authService = auth.NewService(auth.Config{
			AdminUsername:        cfg.AuthConfig.AdminUsername,
			AdminPasswordHash:    cfg.AuthConfig.AdminPasswordHash,
			ViewerUsername:       cfg.AuthConfig.ViewerUsername,
			ViewerPasswordHash:   cfg.AuthConfig.ViewerPasswordHash,
			JWTSecret:            cfg.AuthConfig.JWTSecret,
			AccessTokenDuration:  cfg.AuthConfig.AccessTokenDuration,
			RefreshTokenDuration: cfg.AuthConfig.RefreshTokenDuration,
			MaxLoginAttempts:     cfg.AuthConfig.MaxLoginAttempts,
			LockoutDuration:      cfg.AuthConfig.LockoutDuration,
		}, logger)
	} else {
		logger.Warn().Msg("API authentication is disabled")
	}

	sc := cfg.ServerConfig
	server := api.NewServer(api.ServerConfig{
		Port:            sc.Port,
		Host:            sc.Host,
		ProductionMode:  authService != nil,
		AllowedOrigins:  sc.Origins(),
		ReadTimeout:     time.Duration(sc.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(sc.WriteTimeout) * time.Second,
		RateLimitPerSec: sc.RateLimitPerSec,
		RateLimitBurst:  sc.RateLimitBurst,
	}, api.Deps{
		Fleet:     manager,
		Scheduler: sched,
		Bus:       bus,
		Metrics:   registry,
		Auth:      authService,
		Health:    health,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info().
		Int("bots", len(manager.Bots())).
		Str("execution", cfg.ExecutionConfig.Mode).
		Str("candles", cfg.CandlesConfig.Source).
		Str("addr", fmt.Sprintf("%s:%d", sc.Host, sc.Port)).
		Msg("Bot fleet engine started")
	notifier.Notify("Bot fleet engine started", notification.SeverityInfo)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-serverErr:
		runErr = err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(sc.ShutdownTimeout)*time.Second)
	defer shutdownCancel()

	if err := sched.Stop(); err != nil {
		logger.Warn().Err(err).Msg("Error stopping scheduler")
	}
	if err := manager.PersistAll(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Final persistence failed")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Error shutting down web server")
	}

	logger.Info().Msg("Shutdown complete")
	return runErr
}

// buildExecutor returns nil when execution is disabled
func buildExecutor(cfg config.ExecutionConfig, breaker *circuit.CircuitBreaker, logger zerolog.Logger) execution.Executor {
	var inner execution.Executor
	switch cfg.Mode {
	case "paper":
		inner = execution.NewPaperExecutor(logger, cfg.PaperMaxFills)
	case "webhook":
		inner = execution.NewWebhookExecutor(execution.WebhookConfig{
			URL:            cfg.WebhookURL,
			Token:          cfg.WebhookToken,
			Timeout:        cfg.Timeout,
			RequestsPerSec: cfg.RequestsPerSec,
			MaxRetryTime:   cfg.MaxRetryTime,
		}, logger)
	default:
		logger.Warn().Msg("Trade execution disabled")
		return nil
	}
	return execution.NewGuardedExecutor(inner, breaker, logger)
}

// fleetConfig applies the non-zero overrides to the fleet defaults
func fleetConfig(cfg *config.Config) fleet.Config {
	fc := fleet.DefaultConfig()
	o := cfg.FleetConfig

	if o.TradeProbability > 0 {
		fc.TradeProbability = o.TradeProbability
	}
	if o.PromotionProgress > 0 {
		fc.PromotionProgress = o.PromotionProgress
	}
	if o.MaxTradesPerCycle > 0 {
		fc.MaxTradesPerCycle = o.MaxTradesPerCycle
	}
	if o.ExecutionDelay > 0 {
		fc.ExecutionDelay = o.ExecutionDelay
	}
	if o.MaxTradeHistory > 0 {
		fc.MaxTradeHistory = o.MaxTradeHistory
	}
	if o.MinEngineHealth > 0 {
		fc.MinEngineHealth = o.MinEngineHealth
	}
	if o.MaxElevatedTrades > 0 {
		fc.MaxElevatedTrades = o.MaxElevatedTrades
	}
	if o.ElevatedDelay > 0 {
		fc.ElevatedDelay = o.ElevatedDelay
	}

	fc.AnalysisSymbol = cfg.AnalysisConfig.Symbol
	fc.AnalysisTimeframe = cfg.AnalysisConfig.Timeframe
	if cfg.AnalysisConfig.Candles > 0 {
		fc.AnalysisCandles = cfg.AnalysisConfig.Candles
	}
	return fc
}

func jobConfig(sc config.SchedulerConfig) fleet.JobConfig {
	jc := fleet.DefaultJobConfig()
	if sc.FastProcessing > 0 {
		jc.FastProcessing = sc.FastProcessing
	}
	if sc.LearningCycle > 0 {
		jc.LearningCycle = sc.LearningCycle
	}
	if sc.Persistence > 0 {
		jc.Persistence = sc.Persistence
	}
	if sc.TradeExecution > 0 {
		jc.TradeExecution = sc.TradeExecution
	}
	if sc.TradeJitter >= 0 {
		jc.TradeJitter = sc.TradeJitter
	}
	if sc.DeepAnalysis > 0 {
		jc.DeepAnalysis = sc.DeepAnalysis
	}
	return jc
}
