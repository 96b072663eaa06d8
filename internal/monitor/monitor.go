// Package monitor owns the polling loop for one tracked product: it resolves
// the product page URL, fetches it, extracts and normalizes the embedded
// pricing data, and drives the failure tracker.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/FaserF/keyprice-scraper/internal/alerting"
	"github.com/FaserF/keyprice-scraper/internal/extractor"
	"github.com/FaserF/keyprice-scraper/internal/models"
	"github.com/FaserF/keyprice-scraper/internal/offers"
	"github.com/FaserF/keyprice-scraper/internal/resolver"
	"github.com/FaserF/keyprice-scraper/internal/useragent"
)

// ErrNotFound indicates the product page returned HTTP 404. Likely a
// misconfigured product rather than site trouble.
var ErrNotFound = errors.New("product page not found")

const (
	// DefaultInterval between scheduled fetches.
	DefaultInterval = time.Hour
	// DefaultFetchTimeout bounds one HTTP fetch.
	DefaultFetchTimeout = 30 * time.Second
)

// Config is the per-product monitor configuration, supplied once at setup.
// Reconfiguration means stopping the monitor and constructing a new one.
type Config struct {
	// Ref identifies the tracked product.
	Ref models.ProductRef
	// Policy selects the effective-price computation.
	Policy models.PaymentMethodPolicy
	// AllowAccounts retains account-transfer offers.
	AllowAccounts bool
	// PriceAlertThreshold flags the snapshot when the low price drops to or
	// below it. Zero disables the alert.
	PriceAlertThreshold float64
	// Interval between scheduled fetches. Zero selects DefaultInterval.
	Interval time.Duration
	// FetchTimeout bounds one HTTP fetch. Zero selects DefaultFetchTimeout.
	FetchTimeout time.Duration
	// BaseURL overrides the resolved URL's scheme and host. Used in tests.
	BaseURL string
}

// Instrumentation receives fetch outcomes and snapshot values. The http
// package's Prometheus metrics implement it.
type Instrumentation interface {
	RecordFetch(productID, outcome string, seconds float64)
	RecordSnapshot(productID string, snapshot models.PriceSnapshot)
	RecordPriceAlert(productID string, active bool)
}

// Monitor polls one product. Distinct products get distinct Monitors with no
// shared mutable state; all fetches for one product are single-flight.
type Monitor struct {
	cfg     Config
	tracker *alerting.Tracker
	client  *http.Client
	logger  zerolog.Logger
	instr   Instrumentation

	flight singleflight.Group

	mu                  sync.RWMutex
	snapshot            *models.PriceSnapshot
	lastUpdateSucceeded bool
	lastFetchAt         *time.Time
	subscribers         []func(models.PriceSnapshot)
}

// New creates a Monitor. The tracker carries the product's alert state and is
// owned by the monitor for its lifetime.
func New(cfg Config, tracker *alerting.Tracker, logger zerolog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	return &Monitor{
		cfg:     cfg,
		tracker: tracker,
		client:  &http.Client{Timeout: cfg.FetchTimeout},
		logger:  logger.With().Str("component", "monitor").Str("productId", cfg.Ref.ProductID).Logger(),
	}
}

// SetInstrumentation wires fetch metrics. Must be called before Start.
func (m *Monitor) SetInstrumentation(instr Instrumentation) {
	m.instr = instr
}

// Ref returns the tracked product's identity.
func (m *Monitor) Ref() models.ProductRef {
	return m.cfg.Ref
}

// Subscribe registers fn to be called after every successful fetch with the
// new snapshot. Subscribers run on the fetching goroutine.
func (m *Monitor) Subscribe(fn func(models.PriceSnapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Start performs one synchronous initial fetch, then polls on the configured
// interval until ctx is cancelled. The initial fetch guarantees consumers a
// non-stale snapshot before the first tick; its failure is not fatal, the
// loop keeps scheduling regardless of how many cycles fail.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Str("currency", string(m.cfg.Ref.Currency)).
		Msg("starting monitor")

	if err := m.RequestRefresh(ctx); err != nil {
		m.logger.Error().Err(err).Msg("initial fetch failed")
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := m.RequestRefresh(ctx); err != nil {
				m.logger.Error().Err(err).Msg("scheduled fetch failed")
			}
		}
	}
}

// RequestRefresh triggers a fetch outside the schedule. If a fetch is already
// in flight the call coalesces onto it and returns its result; an in-flight
// fetch is never cancelled by a new request.
func (m *Monitor) RequestRefresh(ctx context.Context) error {
	_, err, _ := m.flight.Do("fetch", func() (any, error) {
		return nil, m.fetchCycle(ctx)
	})
	return err
}

// fetchCycle runs one fetch end to end. Every failure is absorbed here: the
// previous snapshot stays untouched and the outcome routes into the tracker.
func (m *Monitor) fetchCycle(ctx context.Context) error {
	start := time.Now()

	pageURL, err := resolver.Resolve(m.cfg.Ref)
	if err != nil {
		return m.fail(alerting.KindAPIFailure, "no_identifier", start, err)
	}
	if m.cfg.BaseURL != "" {
		pageURL = m.cfg.BaseURL
	}

	body, err := m.fetchPage(ctx, pageURL)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return m.fail(alerting.KindNotFound, "not_found", start, err)
		}
		return m.fail(alerting.KindAPIFailure, "transport_error", start, err)
	}

	payload, err := extractor.Extract(body)
	if err != nil {
		return m.fail(alerting.KindAPIFailure, "no_structured_data", start, err)
	}

	snapshot := offers.Normalize(payload, m.cfg.Ref, m.cfg.Policy, m.cfg.AllowAccounts)

	m.mu.Lock()
	m.snapshot = &snapshot
	m.lastUpdateSucceeded = true
	now := time.Now()
	m.lastFetchAt = &now
	subscribers := make([]func(models.PriceSnapshot), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	m.tracker.RecordSuccess()

	duration := time.Since(start)
	event := m.logger.Info().
		Int("offerCount", snapshot.OfferCount).
		Str("format", string(payload.Format)).
		Dur("duration", duration)
	if snapshot.LowPrice != nil {
		event = event.Float64("lowPrice", *snapshot.LowPrice)
	}
	event.Msg("fetched prices")

	if m.instr != nil {
		m.instr.RecordFetch(m.cfg.Ref.ProductID, "success", duration.Seconds())
		m.instr.RecordSnapshot(m.cfg.Ref.ProductID, snapshot)
		m.instr.RecordPriceAlert(m.cfg.Ref.ProductID, m.priceAlert(&snapshot))
	}

	for _, fn := range subscribers {
		fn(snapshot)
	}
	return nil
}

// fetchPage performs the HTTP GET. The site rejects Go's default User-Agent,
// so a browser-like one is sent along with Accept headers.
func (m *Monitor) fetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", useragent.Random())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

// fail records a failed cycle: the tracker channel is advanced and the
// last-known-good snapshot is preserved for display.
func (m *Monitor) fail(kind alerting.Kind, outcome string, start time.Time, err error) error {
	m.mu.Lock()
	m.lastUpdateSucceeded = false
	now := time.Now()
	m.lastFetchAt = &now
	m.mu.Unlock()

	m.tracker.RecordFailure(kind)

	if m.instr != nil {
		m.instr.RecordFetch(m.cfg.Ref.ProductID, outcome, time.Since(start).Seconds())
	}

	m.logger.Warn().
		Err(err).
		Str("outcome", outcome).
		Msg("fetch cycle failed")
	return err
}

// Snapshot returns the last successful snapshot, or nil before the first
// success. The returned snapshot is never mutated after publication.
func (m *Monitor) Snapshot() *models.PriceSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// LastUpdateSucceeded reports whether the most recent fetch cycle succeeded.
func (m *Monitor) LastUpdateSucceeded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdateSucceeded
}

// priceAlert reports whether the snapshot's low price is at or below the
// configured threshold. Callers must not hold mu.
func (m *Monitor) priceAlert(snapshot *models.PriceSnapshot) bool {
	if m.cfg.PriceAlertThreshold <= 0 || snapshot == nil || snapshot.LowPrice == nil {
		return false
	}
	return *snapshot.LowPrice <= m.cfg.PriceAlertThreshold
}

// Status assembles the product's operational status for the status endpoint.
func (m *Monitor) Status() models.ProductStatus {
	m.mu.RLock()
	snapshot := m.snapshot
	succeeded := m.lastUpdateSucceeded
	lastFetchAt := m.lastFetchAt
	m.mu.RUnlock()

	status := models.ProductStatus{
		Name:                m.cfg.Ref.Name,
		Currency:            m.cfg.Ref.Currency,
		LastUpdateSucceeded: succeeded,
		LastFetchAt:         lastFetchAt,
		PriceAlert:          m.priceAlert(snapshot),
		APIFailure:          m.tracker.State(alerting.KindAPIFailure),
		ProductNotFound:     m.tracker.State(alerting.KindNotFound),
	}
	if snapshot != nil {
		status.LowPrice = snapshot.LowPrice
		status.HighPrice = snapshot.HighPrice
		status.OfferCount = snapshot.OfferCount
	}
	return status
}
