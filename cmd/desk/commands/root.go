package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/tradedesk/pkg/config"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "desk",
	Short: "Simulated trading desk",
	Long: `Trading desk with an order manager, a cash account and a market data feed.

Orders execute against a simulated exchange. Market data comes from a live
websocket source or, when that is unavailable, a local price simulator.

Usage:
  go run ./cmd/desk [command]

Examples:
  go run ./cmd/desk serve
  go run ./cmd/desk simulate --duration 10s
  go run ./cmd/desk check`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig loads the environment configuration and applies global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		switch env {
		case "development", "staging", "production":
			cfg.Env = env
		default:
			return nil, fmt.Errorf("unknown environment %q", env)
		}
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}
