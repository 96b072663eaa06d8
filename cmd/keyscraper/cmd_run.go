package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/FaserF/keyprice-scraper/internal/alerting"
	"github.com/FaserF/keyprice-scraper/internal/config"
	"github.com/FaserF/keyprice-scraper/internal/database"
	"github.com/FaserF/keyprice-scraper/internal/http"
	"github.com/FaserF/keyprice-scraper/internal/models"
	"github.com/FaserF/keyprice-scraper/internal/monitor"
)

func runCmd() *cobra.Command {
	var products []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the continuous price tracking service",
		Long:  "Starts one polling monitor per configured product, plus the HTTP server for metrics, status and manual refresh.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			for _, spec := range products {
				product, err := config.ParseProduct(spec)
				if err != nil {
					return fmt.Errorf("parsing --product: %w", err)
				}
				cfg.Products = append(cfg.Products, product)
			}
			if len(cfg.Products) == 0 {
				return fmt.Errorf("at least one product is required (--product or PRODUCTS)")
			}

			logger.Info().
				Str("version", Version).
				Str("commit", Commit).
				Str("buildDate", BuildDate).
				Str("httpAddr", cfg.HTTPAddr).
				Dur("fetchInterval", cfg.FetchInterval).
				Int("products", len(cfg.Products)).
				Msg("starting game key price scraper")

			// Connect to the optional history store
			var db *database.DB
			if cfg.PostgresDSN != "" {
				var err error
				db, err = database.New(cfg.PostgresDSN, logger)
				if err != nil {
					return fmt.Errorf("connecting to database: %w", err)
				}
				defer db.Close()

				if err := db.EnsureSchema(cmd.Context()); err != nil {
					return fmt.Errorf("preparing database schema: %w", err)
				}
			}

			// Create one monitor per product
			sink := alerting.NewLogSink(logger)
			monitors := make(map[string]*monitor.Monitor, len(cfg.Products))
			for _, product := range cfg.Products {
				if _, exists := monitors[product.ProductID]; exists {
					return fmt.Errorf("duplicate product id %q", product.ProductID)
				}

				tracker := alerting.NewTracker(product.ProductID, cfg.FailureAlertThreshold, sink, logger)
				mon := monitor.New(monitor.Config{
					Ref:                 product.Ref(),
					Policy:              product.PaymentMethod,
					AllowAccounts:       product.AllowAccounts,
					PriceAlertThreshold: product.PriceAlertThreshold,
					Interval:            cfg.FetchInterval,
					FetchTimeout:        cfg.FetchTimeout,
				}, tracker, logger)

				if db != nil {
					ref := product.Ref()
					mon.Subscribe(func(snapshot models.PriceSnapshot) {
						if err := db.InsertSnapshot(context.Background(), ref, snapshot); err != nil {
							logger.Error().
								Err(err).
								Str("productId", ref.ProductID).
								Msg("failed to store snapshot")
						}
					})
				}

				monitors[product.ProductID] = mon
			}

			// Create HTTP server and wire Prometheus metrics to the monitors
			httpServer := http.NewServer(cfg.HTTPAddr, monitors, db, logger)
			for _, mon := range monitors {
				mon.SetInstrumentation(httpServer.Metrics())
			}

			// Setup signal handling
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			// Start HTTP server in goroutine
			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Error().Err(err).Msg("HTTP server error")
					cancel()
				}
			}()

			// Start monitors in goroutines; products are fully independent
			for _, mon := range monitors {
				go func(mon *monitor.Monitor) {
					if err := mon.Start(ctx); err != nil && err != context.Canceled {
						logger.Error().Err(err).Msg("monitor error")
						cancel()
					}
				}(mon)
			}

			// Wait for signal
			select {
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			case <-ctx.Done():
			}

			// Graceful shutdown
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown error")
			}

			logger.Info().Msg("shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&products, "product", nil,
		"Product definition (repeatable): id=190548,slug=half-life-3,currency=eur,payment=lowest_fees,allow-accounts=false,alert-below=50")

	return cmd
}
