package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"bot-fleet-engine/internal/database"

	"github.com/spf13/cobra"
)

type tradesOptions struct {
	since  time.Duration
	format string
}

func newTradesCmd(root *rootOptions) *cobra.Command {
	opts := &tradesOptions{}

	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Summarize persisted trades per bot",
		Long: `Aggregate the trades stored in Postgres per bot: settled count, wins,
pending count and P&L. Requires database.enabled in the configuration.

Examples:
  fleetctl trades
  fleetctl trades --since 168h --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if !cfg.DatabaseConfig.Enabled {
				return fmt.Errorf("database is not enabled in the configuration")
			}
			if opts.since <= 0 {
				return fmt.Errorf("--since must be positive")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			dc := cfg.DatabaseConfig
			db, err := database.NewDB(ctx, database.Config{
				Host:     dc.Host,
				Port:     dc.Port,
				User:     dc.User,
				Password: dc.Password,
				Database: dc.Database,
				SSLMode:  dc.SSLMode,
				MaxConns: 2,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			summaries, err := database.NewBotRepository(db).TradeSummaries(ctx, time.Now().Add(-opts.since))
			if err != nil {
				return err
			}
			return writeTradeSummaries(cmd.OutOrStdout(), summaries, opts.format)
		},
	}

	cmd.Flags().DurationVar(&opts.since, "since", 24*time.Hour, "Look-back window")
	cmd.Flags().StringVar(&opts.format, "format", "table", "Output format: table or json")
	return cmd
}

func writeTradeSummaries(w io.Writer, summaries []database.TradeSummary, format string) error {
	if format == "json" {
		if summaries == nil {
			summaries = []database.TradeSummary{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No trades in the selected window")
		return err
	}

	var (
		totalTrades, totalWins, totalPending int
		totalPnL                             float64
	)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BOT\tTRADES\tWINS\tWIN%\tPENDING\tTOTAL P&L\tAVG\tBEST\tWORST")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%d\t%.2f\t%.2f\t%.2f\t%.2f\n",
			botLabel(s), s.Trades, s.Wins, winPercent(s.Wins, s.Trades), s.Pending,
			s.TotalPnL, s.AveragePnL, s.LargestWin, s.LargestLoss)
		totalTrades += s.Trades
		totalWins += s.Wins
		totalPending += s.Pending
		totalPnL += s.TotalPnL
	}
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%.1f\t%d\t%.2f\t\t\t\n",
		totalTrades, totalWins, winPercent(totalWins, totalTrades), totalPending, totalPnL)
	return tw.Flush()
}

func botLabel(s database.TradeSummary) string {
	if s.BotName == "" {
		return s.BotID
	}
	return s.BotName
}

func winPercent(wins, trades int) float64 {
	if trades == 0 {
		return 0
	}
	return float64(wins) / float64(trades) * 100
}
