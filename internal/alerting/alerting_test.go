package alerting

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type recordingSink struct {
	mu     sync.Mutex
	raised []string
	// severities by key, in raise order
	severities []Severity
	cleared    []string
}

func (s *recordingSink) RaiseAlert(key string, severity Severity, context map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raised = append(s.raised, key)
	s.severities = append(s.severities, severity)
}

func (s *recordingSink) ClearAlert(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, key)
}

func newTestTracker(sink Sink) (*Tracker, *time.Time) {
	tracker := NewTracker("190548", 24*time.Hour, sink, zerolog.Nop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }
	return tracker, &now
}

func TestNotFoundAlertsImmediately(t *testing.T) {
	sink := &recordingSink{}
	tracker, _ := newTestTracker(sink)

	tracker.RecordFailure(KindNotFound)

	if !tracker.State(KindNotFound).AlertActive {
		t.Fatal("expected not_found alert to be active after first failure")
	}
	if len(sink.raised) != 1 || sink.raised[0] != "product_not_found_190548" {
		t.Fatalf("unexpected raises: %v", sink.raised)
	}
	if sink.severities[0] != SeverityError {
		t.Fatalf("expected error severity, got %s", sink.severities[0])
	}

	// Repeated failures while active must not re-raise.
	tracker.RecordFailure(KindNotFound)
	tracker.RecordFailure(KindNotFound)
	if len(sink.raised) != 1 {
		t.Fatalf("expected exactly one raise, got %d", len(sink.raised))
	}
	if got := tracker.State(KindNotFound).ConsecutiveFailures; got != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", got)
	}
}

func TestAPIFailureBelowThresholdStaysClear(t *testing.T) {
	sink := &recordingSink{}
	tracker, now := newTestTracker(sink)

	tracker.RecordSuccess()

	// 23 hourly failures, the last one 23h after the success: below threshold.
	for i := 0; i < 23; i++ {
		*now = now.Add(time.Hour)
		tracker.RecordFailure(KindAPIFailure)
	}

	state := tracker.State(KindAPIFailure)
	if state.AlertActive {
		t.Fatal("expected api_failure alert to stay clear below the threshold")
	}
	if state.ConsecutiveFailures != 23 {
		t.Fatalf("expected 23 consecutive failures, got %d", state.ConsecutiveFailures)
	}
	if len(sink.raised) != 0 {
		t.Fatalf("expected no raises, got %v", sink.raised)
	}

	// One more hour crosses 24h since the last success.
	*now = now.Add(time.Hour)
	tracker.RecordFailure(KindAPIFailure)

	if !tracker.State(KindAPIFailure).AlertActive {
		t.Fatal("expected api_failure alert to activate at the threshold")
	}
	if len(sink.raised) != 1 || sink.raised[0] != "api_failure_190548" {
		t.Fatalf("unexpected raises: %v", sink.raised)
	}
	if sink.severities[0] != SeverityWarning {
		t.Fatalf("expected warning severity, got %s", sink.severities[0])
	}

	// Still exactly one raise across further failures.
	tracker.RecordFailure(KindAPIFailure)
	tracker.RecordFailure(KindAPIFailure)
	if len(sink.raised) != 1 {
		t.Fatalf("expected exactly one raise, got %d", len(sink.raised))
	}
}

func TestAPIFailureWithoutAnySuccessAlertsImmediately(t *testing.T) {
	sink := &recordingSink{}
	tracker, _ := newTestTracker(sink)

	tracker.RecordFailure(KindAPIFailure)

	if !tracker.State(KindAPIFailure).AlertActive {
		t.Fatal("expected api_failure alert when there never was a success")
	}
}

func TestSuccessClearsBothChannels(t *testing.T) {
	sink := &recordingSink{}
	tracker, _ := newTestTracker(sink)

	tracker.RecordFailure(KindNotFound)
	tracker.RecordFailure(KindAPIFailure)
	if len(sink.raised) != 2 {
		t.Fatalf("expected both alerts raised, got %v", sink.raised)
	}

	tracker.RecordSuccess()

	for _, kind := range []Kind{KindAPIFailure, KindNotFound} {
		state := tracker.State(kind)
		if state.AlertActive {
			t.Errorf("%s: expected alert cleared", kind)
		}
		if state.ConsecutiveFailures != 0 {
			t.Errorf("%s: expected counter reset, got %d", kind, state.ConsecutiveFailures)
		}
		if state.LastSuccessAt == nil {
			t.Errorf("%s: expected last success time set", kind)
		}
	}
	if len(sink.cleared) != 2 {
		t.Fatalf("expected both alerts cleared, got %v", sink.cleared)
	}

	// Clearing again on the next success must not re-emit.
	tracker.RecordSuccess()
	if len(sink.cleared) != 2 {
		t.Fatalf("expected no further clears, got %v", sink.cleared)
	}
}

func TestKeyFormat(t *testing.T) {
	tracker := NewTracker("42", 0, &recordingSink{}, zerolog.Nop())
	if got := tracker.Key(KindAPIFailure); got != "api_failure_42" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := tracker.Key(KindNotFound); got != "product_not_found_42" {
		t.Fatalf("unexpected key %s", got)
	}
}
