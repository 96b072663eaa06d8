// Package alerting tracks fetch failures per product and raises or clears
// operator-visible alerts through a pluggable sink.
package alerting

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/FaserF/keyprice-scraper/internal/models"
)

// Kind identifies one of the two independent alert channels per product.
type Kind string

const (
	// KindAPIFailure covers transport errors, unexpected HTTP statuses and
	// unparseable pages. Transient site trouble.
	KindAPIFailure Kind = "api_failure"
	// KindNotFound covers HTTP 404. Usually a misconfigured product.
	KindNotFound Kind = "product_not_found"
)

// Severity of a raised alert.
type Severity string

const (
	// SeverityWarning marks a degraded but recoverable condition.
	SeverityWarning Severity = "warning"
	// SeverityError marks a condition needing operator action.
	SeverityError Severity = "error"
)

// Sink receives alert state transitions. Implementations must tolerate being
// called from multiple trackers concurrently.
type Sink interface {
	// RaiseAlert signals a CLEAR to ACTIVE transition for key.
	RaiseAlert(key string, severity Severity, context map[string]string)
	// ClearAlert signals an ACTIVE to CLEAR transition for key.
	ClearAlert(key string)
}

// Tracker is a dual alert state machine for one product: one channel for
// generic fetch failures, one for product-not-found.
//
// Not-found alerts fire on the first occurrence. Generic failures only fire
// once the time since the last success (or forever, if there never was one)
// reaches the configured threshold, so single network blips stay quiet.
type Tracker struct {
	productID string
	threshold time.Duration
	sink      Sink
	logger    zerolog.Logger
	now       func() time.Time

	mu     sync.Mutex
	states map[Kind]*channelState
}

type channelState struct {
	consecutiveFailures int
	lastSuccessAt       *time.Time
	active              bool
}

// DefaultThreshold is how long generic failures must persist before the
// api_failure alert activates.
const DefaultThreshold = 24 * time.Hour

// NewTracker creates a Tracker for productID. A zero threshold selects
// DefaultThreshold.
func NewTracker(productID string, threshold time.Duration, sink Sink, logger zerolog.Logger) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		productID: productID,
		threshold: threshold,
		sink:      sink,
		logger:    logger.With().Str("component", "alerting").Str("productId", productID).Logger(),
		now:       time.Now,
		states: map[Kind]*channelState{
			KindAPIFailure: {},
			KindNotFound:   {},
		},
	}
}

// Key returns the sink key for kind, formatted {alertType}_{productId}.
func (t *Tracker) Key(kind Kind) string {
	return fmt.Sprintf("%s_%s", kind, t.productID)
}

// RecordFailure records one failed fetch cycle on the given channel and
// raises the channel's alert when its activation rule is met. Repeated
// failures while the alert is active never re-raise.
func (t *Tracker) RecordFailure(kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[kind]
	if !ok {
		return
	}

	st.consecutiveFailures++

	if st.active || !t.shouldActivate(kind, st) {
		return
	}

	st.active = true
	severity := SeverityWarning
	if kind == KindNotFound {
		severity = SeverityError
	}

	context := map[string]string{
		"product_id":           t.productID,
		"consecutive_failures": strconv.Itoa(st.consecutiveFailures),
	}
	if st.lastSuccessAt != nil {
		context["last_success_at"] = st.lastSuccessAt.Format(time.RFC3339)
	}

	t.logger.Warn().
		Str("kind", string(kind)).
		Int("consecutiveFailures", st.consecutiveFailures).
		Msg("raising alert")
	t.sink.RaiseAlert(t.Key(kind), severity, context)
}

// shouldActivate implements the per-channel activation rule. Callers hold mu.
func (t *Tracker) shouldActivate(kind Kind, st *channelState) bool {
	if kind == KindNotFound {
		return true
	}
	if st.lastSuccessAt == nil {
		// Never succeeded: treated as already past the threshold.
		return true
	}
	return t.now().Sub(*st.lastSuccessAt) >= t.threshold
}

// RecordSuccess resets both channels and clears any active alerts.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for kind, st := range t.states {
		st.consecutiveFailures = 0
		st.lastSuccessAt = &now
		if st.active {
			st.active = false
			t.logger.Info().Str("kind", string(kind)).Msg("clearing alert")
			t.sink.ClearAlert(t.Key(kind))
		}
	}
}

// State returns a copy of the failure state for kind.
func (t *Tracker) State(kind Kind) models.FailureState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[kind]
	if !ok {
		return models.FailureState{}
	}
	return models.FailureState{
		ConsecutiveFailures: st.consecutiveFailures,
		LastSuccessAt:       st.lastSuccessAt,
		AlertActive:         st.active,
	}
}
