package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"bot-fleet-engine/config"
	"bot-fleet-engine/internal/analysis"
	"bot-fleet-engine/internal/candles"
	"bot-fleet-engine/internal/confluence"

	"github.com/spf13/cobra"
)

type analyzeOptions struct {
	symbol    string
	timeframe string
	limit     int
	source    string
	seed      int64
	format    string
	timeout   time.Duration
}

// analyzeReport is what the analyze command prints
type analyzeReport struct {
	Snapshot   analysis.Snapshot     `json:"snapshot"`
	Confluence confluence.Assessment `json:"confluence"`
	Elevated   bool                  `json:"elevated"` // score at or above the elevated threshold
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the analysis pipeline once over a candle window",
		Long: `Fetch a candle window, run the trend/momentum and structure analyzers and
score their confluence.

Examples:
  fleetctl analyze
  fleetctl analyze --symbol BTCUSDT --timeframe 15m --source rest
  fleetctl analyze --format json --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			opts.applyDefaults(cfg)
			if err := opts.validate(); err != nil {
				return fmt.Errorf("invalid analyze parameters: %w", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			report, err := runAnalyze(ctx, cfg, opts)
			if err != nil {
				return err
			}
			return writeAnalyzeReport(cmd.OutOrStdout(), report, opts.format)
		},
	}

	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "Symbol to analyze (default from config)")
	cmd.Flags().StringVar(&opts.timeframe, "timeframe", "", "Candle timeframe (default from config)")
	cmd.Flags().IntVar(&opts.limit, "candles", 0, "Number of candles to fetch (default from config)")
	cmd.Flags().StringVar(&opts.source, "source", "", "Candle source: synthetic or rest (default from config)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 0, "Seed for the synthetic source")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table or json")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout")
	return cmd
}

func (o *analyzeOptions) applyDefaults(cfg *config.Config) {
	if o.symbol == "" {
		o.symbol = cfg.AnalysisConfig.Symbol
	}
	if o.timeframe == "" {
		o.timeframe = cfg.AnalysisConfig.Timeframe
	}
	if o.limit <= 0 {
		o.limit = cfg.AnalysisConfig.Candles
	}
	if o.source == "" {
		o.source = cfg.CandlesConfig.Source
	}
	if o.seed == 0 {
		o.seed = cfg.CandlesConfig.Seed
	}
}

func (o *analyzeOptions) validate() error {
	if o.symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if _, err := candles.IntervalDuration(o.timeframe); err != nil {
		return err
	}
	switch o.source {
	case "synthetic", "rest":
	default:
		return fmt.Errorf("unknown source %q", o.source)
	}
	switch o.format {
	case "table", "json":
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}
	return nil
}

func buildSource(cfg *config.Config, opts *analyzeOptions) candles.Source {
	if opts.source == "rest" {
		return candles.NewRESTSource(candles.RESTConfig{
			BaseURL:        cfg.CandlesConfig.BaseURL,
			Timeout:        cfg.CandlesConfig.Timeout,
			RequestsPerSec: cfg.CandlesConfig.RequestsPerSec,
			Burst:          cfg.CandlesConfig.Burst,
			MaxRetryTime:   cfg.CandlesConfig.MaxRetryTime,
		})
	}
	return candles.NewSyntheticSource(candles.SyntheticConfig{
		Seed:       opts.seed,
		Volatility: cfg.CandlesConfig.Volatility,
	})
}

func runAnalyze(ctx context.Context, cfg *config.Config, opts *analyzeOptions) (analyzeReport, error) {
	series, err := buildSource(cfg, opts).Fetch(ctx, opts.symbol, opts.timeframe, opts.limit)
	if err != nil {
		return analyzeReport{}, fmt.Errorf("failed to fetch candles: %w", err)
	}
	if err := candles.Validate(series); err != nil {
		return analyzeReport{}, err
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
	snap, err := engine.Run(ctx, opts.symbol, opts.timeframe, series)
	if err != nil {
		return analyzeReport{}, fmt.Errorf("analysis failed: %w", err)
	}

	synth := confluence.NewSynthesizer()
	assessment := synth.Evaluate(snap.Trend, snap.Structure)
	return analyzeReport{
		Snapshot:   snap,
		Confluence: assessment,
		Elevated:   assessment.Score >= ac.MinScore,
	}, nil
}

func writeAnalyzeReport(w io.Writer, report analyzeReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	snap := report.Snapshot
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Symbol\t%s %s (%d candles)\n", snap.Symbol, snap.Timeframe, snap.Candles)
	fmt.Fprintf(tw, "Last close\t%.5f\n", snap.LastClose)
	fmt.Fprintf(tw, "Trend\t%s\n", snap.Trend.Trend)
	fmt.Fprintf(tw, "RSI\t%.2f\n", snap.Trend.RSI)
	fmt.Fprintf(tw, "MACD\t%.5f / %.5f (hist %.5f)\n", snap.Trend.MACD.Value, snap.Trend.MACD.Signal, snap.Trend.MACD.Histogram)
	fmt.Fprintf(tw, "Momentum\t%s %.2f\n", snap.Trend.MomentumDirection, snap.Trend.MomentumStrength)
	fmt.Fprintf(tw, "Structure bias\t%s\n", snap.Structure.Bias)
	fmt.Fprintf(tw, "Structure strength\t%.2f\n", snap.Structure.StructureStrength)
	fmt.Fprintf(tw, "Swing points\t%d\n", len(snap.Structure.SwingPoints))
	fmt.Fprintf(tw, "Confluence\t%.3f %s (%s)\n", report.Confluence.Score, report.Confluence.Grade, report.Confluence.Confidence)
	fmt.Fprintf(tw, "Elevated\t%t\n", report.Elevated)
	if len(report.Confluence.Reasoning) > 0 {
		fmt.Fprintf(tw, "Reasoning\t%s\n", strings.Join(report.Confluence.Reasoning, "; "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snap.Structure.KeyLevels) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KIND\tPRICE\tTOUCHES\tSTRENGTH")
		for _, lvl := range snap.Structure.KeyLevels {
			fmt.Fprintf(tw, "%s\t%.5f\t%d\t%.2f\n", lvl.Kind, lvl.Price, lvl.Touches, lvl.Strength)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if fib := snap.Structure.Fibonacci; len(fib.Levels) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "FIB (%s)\tPRICE\n", fib.Direction)
		for _, lvl := range fib.Levels {
			fmt.Fprintf(tw, "%.1f%%\t%.5f\n", lvl.Percentage, lvl.Price)
		}
		return tw.Flush()
	}
	return nil
}
