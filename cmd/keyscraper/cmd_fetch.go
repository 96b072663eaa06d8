package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/FaserF/keyprice-scraper/internal/alerting"
	"github.com/FaserF/keyprice-scraper/internal/config"
	"github.com/FaserF/keyprice-scraper/internal/monitor"
)

func fetchCmd() *cobra.Command {
	var productSpec string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run a one-time fetch for a single product",
		Long:  "Fetches and normalizes the product page once and prints the resulting snapshot as JSON. Useful for testing a product definition.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			if productSpec == "" {
				return fmt.Errorf("--product is required")
			}
			product, err := config.ParseProduct(productSpec)
			if err != nil {
				return fmt.Errorf("parsing --product: %w", err)
			}

			tracker := alerting.NewTracker(product.ProductID, cfg.FailureAlertThreshold, alerting.NewLogSink(logger), logger)
			mon := monitor.New(monitor.Config{
				Ref:           product.Ref(),
				Policy:        product.PaymentMethod,
				AllowAccounts: product.AllowAccounts,
				FetchTimeout:  cfg.FetchTimeout,
			}, tracker, logger)

			if err := mon.RequestRefresh(cmd.Context()); err != nil {
				return fmt.Errorf("fetching: %w", err)
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(mon.Snapshot())
		},
	}

	cmd.Flags().StringVar(&productSpec, "product", "",
		"Product definition: id=190548,slug=half-life-3,currency=eur,payment=lowest_fees")

	return cmd
}
