// Package main provides the entry point for the game-key price scraper CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/FaserF/keyprice-scraper/internal/config"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "none"
	// BuildDate is set at build time.
	BuildDate = "unknown"
)

var cfg *config.Config

func main() {
	// A missing .env file is fine; env vars win either way.
	_ = godotenv.Load()

	cfg = config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "keyscraper",
		Short: "Game Key Price Scraper - track game key prices across stores",
		Long: `Game Key Price Scraper is a service that tracks game key prices on
key comparison sites and exposes them for monitoring and alerting.

Features:
  - Tracks multiple products independently with hourly polling
  - Payment-method aware price selection (base, card, PayPal, lowest fees)
  - Failure alerting with separate channels for outages and misconfiguration
  - Prometheus metrics and status endpoint
  - Optional PostgreSQL price history`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string for the optional price history")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")
	rootCmd.PersistentFlags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address for /metrics, /status, /refresh")
	rootCmd.PersistentFlags().DurationVar(&cfg.FetchInterval, "fetch-interval", cfg.FetchInterval, "Interval between scheduled fetches per product")
	rootCmd.PersistentFlags().DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "Timeout for one page fetch")
	rootCmd.PersistentFlags().DurationVar(&cfg.FailureAlertThreshold, "failure-alert-threshold", cfg.FailureAlertThreshold, "How long fetch failures must persist before the api_failure alert fires")

	// Add subcommands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger() zerolog.Logger {
	var logger zerolog.Logger

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	return logger
}
