// Package models provides shared data types for the game-key price scraper.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Currency is the currency a product is tracked in.
type Currency string

const (
	// CurrencyEUR tracks prices in Euro.
	CurrencyEUR Currency = "eur"
	// CurrencyUSD tracks prices in US Dollar.
	CurrencyUSD Currency = "usd"
	// CurrencyGBP tracks prices in British Pound.
	CurrencyGBP Currency = "gbp"
)

// ParseCurrency parses a currency code (case-insensitive).
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToLower(strings.TrimSpace(s))) {
	case CurrencyEUR:
		return CurrencyEUR, nil
	case CurrencyUSD:
		return CurrencyUSD, nil
	case CurrencyGBP:
		return CurrencyGBP, nil
	}
	return "", fmt.Errorf("unsupported currency %q", s)
}

// PaymentMethodPolicy selects which price field of an offer feeds the
// effective-price computation.
type PaymentMethodPolicy string

const (
	// PolicyBase uses the listed price.
	PolicyBase PaymentMethodPolicy = "base"
	// PolicyCard prefers the card-fee price, falling back to the listed price.
	PolicyCard PaymentMethodPolicy = "card"
	// PolicyPaypal prefers the PayPal-fee price, falling back to the listed price.
	PolicyPaypal PaymentMethodPolicy = "paypal"
	// PolicyLowestFees takes the minimum of the present fee prices, falling
	// back to the listed price only when neither fee field is present.
	PolicyLowestFees PaymentMethodPolicy = "lowest_fees"
)

// ParsePaymentMethodPolicy parses a payment method policy name.
func ParsePaymentMethodPolicy(s string) (PaymentMethodPolicy, error) {
	switch PaymentMethodPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyBase:
		return PolicyBase, nil
	case PolicyCard:
		return PolicyCard, nil
	case PolicyPaypal:
		return PolicyPaypal, nil
	case PolicyLowestFees:
		return PolicyLowestFees, nil
	}
	return "", fmt.Errorf("unsupported payment method policy %q", s)
}

// Availability indicates whether a seller currently stocks the offer.
type Availability string

const (
	// AvailabilityInStock indicates the offer is in stock.
	AvailabilityInStock Availability = "in_stock"
	// AvailabilityUnknown indicates the page did not state availability.
	AvailabilityUnknown Availability = "unknown"
)

// ProductRef is the immutable identity of a tracked product.
type ProductRef struct {
	// ProductID is the site's product identifier.
	ProductID string
	// Name is the human readable game title, if known.
	Name string
	// Slug is the URL slug of the product page, if known.
	Slug string
	// Currency the product is tracked in.
	Currency Currency
}

// Offer is a single seller's price line. Offers are rebuilt on every fetch
// and never persisted across fetches.
type Offer struct {
	// Price is the listed price.
	Price float64 `json:"price"`
	// PriceCardFee is the price when paying by card, if the site lists one.
	PriceCardFee *float64 `json:"price_card_fee,omitempty"`
	// PricePaypalFee is the price when paying by PayPal, if the site lists one.
	PricePaypalFee *float64 `json:"price_paypal_fee,omitempty"`
	// EffectivePrice is the policy-selected price used for comparison.
	EffectivePrice float64 `json:"effective_price"`
	// Seller is the merchant name.
	Seller string `json:"seller"`
	// Availability of the offer.
	Availability Availability `json:"availability"`
	// IsAccount is true for account-transfer listings rather than direct keys.
	IsAccount bool `json:"is_account"`
}

// Rating is an aggregate user rating attached to a product page.
type Rating struct {
	// Value is the average rating.
	Value float64 `json:"value"`
	// Count is the number of ratings.
	Count int `json:"count"`
}

// PriceSnapshot is the coordinator's current truth for one product. A new
// snapshot atomically replaces the previous one on success; a failed fetch
// never clears the previous snapshot.
type PriceSnapshot struct {
	// LowPrice is the minimum effective price across retained offers.
	LowPrice *float64 `json:"low_price"`
	// HighPrice is the aggregate high price, or the maximum effective price.
	HighPrice *float64 `json:"high_price"`
	// OfferCount is the number of retained offers.
	OfferCount int `json:"offer_count"`
	// Offers sorted ascending by effective price.
	Offers []Offer `json:"offers"`
	// Rating is the aggregate rating, if the page supplies one.
	Rating *Rating `json:"rating,omitempty"`
	// FetchedAt is when the data was fetched.
	FetchedAt time.Time `json:"fetched_at"`
	// Currency the prices are denominated in.
	Currency Currency `json:"currency"`
}

// FailureState is the alert bookkeeping for one alert key.
type FailureState struct {
	// ConsecutiveFailures counts failed fetch cycles since the last success.
	ConsecutiveFailures int `json:"consecutive_failures"`
	// LastSuccessAt is the time of the last successful fetch, if any.
	LastSuccessAt *time.Time `json:"last_success_at"`
	// AlertActive is true while an alert is raised and not yet cleared.
	AlertActive bool `json:"alert_active"`
}

// ProductStatus is the per-product section of the /status endpoint.
type ProductStatus struct {
	Name                string         `json:"name,omitempty"`
	Currency            Currency       `json:"currency"`
	LastUpdateSucceeded bool           `json:"last_update_succeeded"`
	LastFetchAt         *time.Time     `json:"last_fetch_at,omitempty"`
	LowPrice            *float64       `json:"low_price"`
	HighPrice           *float64       `json:"high_price"`
	OfferCount          int            `json:"offer_count"`
	PriceAlert          bool           `json:"price_alert"`
	APIFailure          FailureState   `json:"api_failure"`
	ProductNotFound     FailureState   `json:"product_not_found"`
}

// StatusResponse is the response for the /status endpoint.
type StatusResponse struct {
	Status        string                   `json:"status"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
	Products      map[string]ProductStatus `json:"products"`
	Database      DatabaseStatus           `json:"database"`
}

// DatabaseStatus holds the optional history store status.
type DatabaseStatus struct {
	Enabled         bool  `json:"enabled"`
	Connected       bool  `json:"connected"`
	SnapshotsStored int64 `json:"snapshots_stored"`
}
