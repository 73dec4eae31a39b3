package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/atmx/market-sim/internal/config"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "marketsim",
		Short: "AI stock market simulation engine",
		Long: `marketsim runs a simulated stock market populated by neural-network
investors, noise traders and self-directed companies.

Serve it over HTTP and WebSocket, or run it headless for a number of days.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := loadConfig(cmd)
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("catalog", "", "Catalog YAML file (default: embedded catalog)")
	rootCmd.PersistentFlags().Uint64("seed", 0, "Random seed (0 seeds from the clock)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("realistic", false, "Reassign stock regions by market weighting")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newRunCmd(),
		newCatalogCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("marketsim version %s\n", version)
		},
	}
}

// loadConfig reads the environment and applies the global flags that were
// set explicitly.
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Load()
	flags := cmd.Flags()
	if flags.Changed("catalog") {
		cfg.CatalogPath, _ = flags.GetString("catalog")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("realistic") {
		cfg.Realistic, _ = flags.GetBool("realistic")
	}
	return cfg
}
