package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bot-fleet-engine/internal/backtest"
	"bot-fleet-engine/internal/confluence"

	"github.com/spf13/cobra"
)

func newBacktestCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}
	btConfig := backtest.DefaultConfig()
	stratConfig := confluence.DefaultStrategyConfig()

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a candle window through the confluence strategy",
		Long: `Fetch a candle window and walk it bar by bar, trading the confluence
strategy with simulated stops, targets and fees.

Examples:
  fleetctl backtest --candles 1000 --seed 3
  fleetctl backtest --source rest --symbol BTCUSDT --timeframe 15m --risk 150`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			opts.applyDefaults(cfg)
			if err := opts.validate(); err != nil {
				return fmt.Errorf("invalid backtest parameters: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			series, err := buildSource(cfg, opts).Fetch(ctx, opts.symbol, opts.timeframe, opts.limit)
			if err != nil {
				return fmt.Errorf("failed to fetch candles: %w", err)
			}

			stratConfig.Symbol = opts.symbol
			stratConfig.Timeframe = opts.timeframe
			strat := confluence.NewStrategy(stratConfig, nil)

			started := time.Now()
			result, err := backtest.NewEngine(btConfig).Run(series, strat)
			if err != nil {
				return err
			}
			logger.Info().
				Str("strategy", result.Strategy).
				Int("candles", len(series)).
				Dur("elapsed", time.Since(started)).
				Msg("Backtest finished")

			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			backtest.PrintResults(cmd.OutOrStdout(), result)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "Symbol to replay (default from config)")
	cmd.Flags().StringVar(&opts.timeframe, "timeframe", "", "Candle timeframe (default from config)")
	cmd.Flags().IntVar(&opts.limit, "candles", 0, "Number of candles to replay (default from config)")
	cmd.Flags().StringVar(&opts.source, "source", "", "Candle source: synthetic or rest (default from config)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Seed for the synthetic source")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table or json")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall timeout")

	cmd.Flags().Float64Var(&stratConfig.MinScore, "min-score", stratConfig.MinScore, "Confluence score required to enter")
	cmd.Flags().Float64Var(&stratConfig.RiskPoints, "risk", stratConfig.RiskPoints, "Stop distance in price points")
	cmd.Flags().Float64Var(&stratConfig.RewardMultiple, "reward", stratConfig.RewardMultiple, "Target distance as a multiple of risk")
	cmd.Flags().Float64Var(&btConfig.InitialCapital, "capital", btConfig.InitialCapital, "Starting equity")
	cmd.Flags().Float64Var(&btConfig.Commission, "commission", btConfig.Commission, "Fee per side as a fraction of notional")
	cmd.Flags().IntVar(&btConfig.Window, "window", btConfig.Window, "Bars the strategy sees per decision, 0 for all")
	cmd.Flags().IntVar(&btConfig.MaxHoldBars, "max-hold", 0, "Close positions after this many bars, 0 to disable")
	return cmd
}
