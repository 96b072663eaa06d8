// Package config provides configuration structures and loading for the
// game-key price scraper.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/FaserF/keyprice-scraper/internal/models"
)

// Product holds the configuration of one tracked product.
type Product struct {
	// ProductID is the site's product identifier.
	ProductID string
	// Name is the game title, optional.
	Name string
	// Slug is the product page slug, optional.
	Slug string
	// Currency to track.
	Currency models.Currency
	// AllowAccounts retains account-transfer offers.
	AllowAccounts bool
	// PaymentMethod selects the effective-price policy.
	PaymentMethod models.PaymentMethodPolicy
	// PriceAlertThreshold flags snapshots at or below this low price. Zero
	// disables the alert.
	PriceAlertThreshold float64
}

// Ref returns the product's immutable identity.
func (p Product) Ref() models.ProductRef {
	return models.ProductRef{
		ProductID: p.ProductID,
		Name:      p.Name,
		Slug:      p.Slug,
		Currency:  p.Currency,
	}
}

// Config holds all configuration for the scraper.
type Config struct {
	// PostgresDSN enables the optional price-history store when set.
	PostgresDSN string
	// Log level (debug, info, warn, error)
	LogLevel string
	// Log format (json, console)
	LogFormat string
	// HTTP server address
	HTTPAddr string
	// FetchInterval between scheduled fetches per product.
	FetchInterval time.Duration
	// FetchTimeout bounds one HTTP fetch.
	FetchTimeout time.Duration
	// FailureAlertThreshold is how long generic fetch failures must persist
	// before the api_failure alert activates.
	FailureAlertThreshold time.Duration
	// Products to track.
	Products []Product
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "json",
		HTTPAddr:              ":8080",
		FetchInterval:         time.Hour,
		FetchTimeout:          30 * time.Second,
		FailureAlertThreshold: 24 * time.Hour,
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("FETCH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing FETCH_INTERVAL: %w", err)
		}
		c.FetchInterval = d
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing FETCH_TIMEOUT: %w", err)
		}
		c.FetchTimeout = d
	}
	if v := os.Getenv("FAILURE_ALERT_THRESHOLD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing FAILURE_ALERT_THRESHOLD: %w", err)
		}
		c.FailureAlertThreshold = d
	}
	if v := os.Getenv("PRODUCTS"); v != "" {
		for _, spec := range strings.Split(v, ";") {
			spec = strings.TrimSpace(spec)
			if spec == "" {
				continue
			}
			product, err := ParseProduct(spec)
			if err != nil {
				return fmt.Errorf("parsing PRODUCTS: %w", err)
			}
			c.Products = append(c.Products, product)
		}
	}
	return nil
}

// ParseProduct parses one product definition of the form
//
//	id=190548,slug=half-life-3,currency=eur,payment=lowest_fees,allow-accounts=true,alert-below=50
//
// id is required; currency defaults to EUR and payment to lowest_fees.
func ParseProduct(spec string) (Product, error) {
	product := Product{
		Currency:      models.CurrencyEUR,
		PaymentMethod: models.PolicyLowestFees,
	}

	for _, field := range strings.Split(spec, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, found := strings.Cut(field, "=")
		if !found {
			return Product{}, fmt.Errorf("malformed product field %q", field)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "id":
			product.ProductID = value
		case "name":
			product.Name = value
		case "slug":
			product.Slug = value
		case "currency":
			currency, err := models.ParseCurrency(value)
			if err != nil {
				return Product{}, err
			}
			product.Currency = currency
		case "payment":
			policy, err := models.ParsePaymentMethodPolicy(value)
			if err != nil {
				return Product{}, err
			}
			product.PaymentMethod = policy
		case "allow-accounts":
			allow, err := strconv.ParseBool(value)
			if err != nil {
				return Product{}, fmt.Errorf("parsing allow-accounts: %w", err)
			}
			product.AllowAccounts = allow
		case "alert-below":
			threshold, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return Product{}, fmt.Errorf("parsing alert-below: %w", err)
			}
			product.PriceAlertThreshold = threshold
		default:
			return Product{}, fmt.Errorf("unknown product field %q", key)
		}
	}

	if product.ProductID == "" {
		return Product{}, fmt.Errorf("product definition %q is missing id", spec)
	}
	return product, nil
}
