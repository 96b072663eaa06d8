// Package http provides the HTTP server for metrics, status and manual
// refresh endpoints.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/FaserF/keyprice-scraper/internal/models"
)

// Metrics holds all Prometheus metrics for the scraper. It implements the
// monitor package's Instrumentation interface.
type Metrics struct {
	Registry *prometheus.Registry

	FetchesTotal         *prometheus.CounterVec
	FetchDuration        *prometheus.HistogramVec
	LowPrice             *prometheus.GaugeVec
	HighPrice            *prometheus.GaugeVec
	OfferCount           *prometheus.GaugeVec
	LastSuccessTimestamp *prometheus.GaugeVec
	PriceAlert           *prometheus.GaugeVec
}

// NewMetrics creates Prometheus metrics registered on their own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		FetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keyscraper_fetches_total",
				Help: "Total number of fetch cycles by product and outcome",
			},
			[]string{"product", "outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keyscraper_fetch_duration_seconds",
				Help:    "Fetch cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"product"},
		),
		LowPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyscraper_low_price",
				Help: "Lowest effective offer price by product",
			},
			[]string{"product", "currency"},
		),
		HighPrice: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyscraper_high_price",
				Help: "Highest offer price by product",
			},
			[]string{"product", "currency"},
		),
		OfferCount: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyscraper_offer_count",
				Help: "Number of retained offers by product",
			},
			[]string{"product"},
		),
		LastSuccessTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyscraper_last_success_timestamp",
				Help: "Unix timestamp of the last successful fetch",
			},
			[]string{"product"},
		),
		PriceAlert: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "keyscraper_price_alert",
				Help: "1 while the low price is at or below the configured threshold",
			},
			[]string{"product"},
		),
	}
}

// RecordFetch records one fetch cycle outcome.
func (m *Metrics) RecordFetch(productID, outcome string, seconds float64) {
	m.FetchesTotal.WithLabelValues(productID, outcome).Inc()
	m.FetchDuration.WithLabelValues(productID).Observe(seconds)
}

// RecordSnapshot records the aggregates of a successful snapshot.
func (m *Metrics) RecordSnapshot(productID string, snapshot models.PriceSnapshot) {
	currency := string(snapshot.Currency)
	if snapshot.LowPrice != nil {
		m.LowPrice.WithLabelValues(productID, currency).Set(*snapshot.LowPrice)
	}
	if snapshot.HighPrice != nil {
		m.HighPrice.WithLabelValues(productID, currency).Set(*snapshot.HighPrice)
	}
	m.OfferCount.WithLabelValues(productID).Set(float64(snapshot.OfferCount))
	m.LastSuccessTimestamp.WithLabelValues(productID).Set(float64(snapshot.FetchedAt.Unix()))
}

// RecordPriceAlert records the price-alert state for a product.
func (m *Metrics) RecordPriceAlert(productID string, active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	m.PriceAlert.WithLabelValues(productID).Set(value)
}
