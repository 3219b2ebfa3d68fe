package main

import (
	"fmt"
	"os"

	"bot-fleet-engine/config"
	"bot-fleet-engine/internal/logging"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "fleetctl",
		Short: "Operator tooling for the bot fleet engine",
		Long: `fleetctl runs one-off tasks against the same configuration as the engine:
analyzing or backtesting a candle window, summarizing persisted trades and hashing operator passwords.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to the JSON config file (overrides CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "WARN", "Log level for diagnostics on stderr")

	root.AddCommand(newAnalyzeCmd(opts))
	root.AddCommand(newBacktestCmd(opts))
	root.AddCommand(newTradesCmd(opts))
	root.AddCommand(newHashPasswordCmd())
	return root
}

// load reads the engine configuration and builds a stderr logger
func (o *rootOptions) load() (*config.Config, zerolog.Logger, error) {
	if o.configFile != "" {
		os.Setenv("CONFIG_FILE", o.configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewWithWriter(logging.Config{
		Level:      o.logLevel,
		JSONFormat: false,
	}, os.Stderr)
	return cfg, logger, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
