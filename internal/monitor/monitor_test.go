package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/FaserF/keyprice-scraper/internal/alerting"
	"github.com/FaserF/keyprice-scraper/internal/models"
)

const productPage = `<html><head>
<script type="application/ld+json">
{
  "@type": "Product",
  "name": "Half-Life 3",
  "offers": {
    "@type": "AggregateOffer",
    "lowPrice": 52.94,
    "highPrice": 60,
    "offerCount": 3,
    "offers": [
      {"price": 52.94, "seller": "A", "availability": "https://schema.org/InStock"},
      {"price": 55, "seller": "B"},
      {"price": 60, "seller": "C"}
    ]
  }
}
</script>
</head></html>`

type nullSink struct{}

func (nullSink) RaiseAlert(string, alerting.Severity, map[string]string) {}
func (nullSink) ClearAlert(string)                                       {}

func newTestMonitor(t *testing.T, baseURL string) (*Monitor, *alerting.Tracker) {
	t.Helper()
	tracker := alerting.NewTracker("190548", 24*time.Hour, nullSink{}, zerolog.Nop())
	mon := New(Config{
		Ref: models.ProductRef{
			ProductID: "190548",
			Slug:      "half-life-3",
			Currency:  models.CurrencyEUR,
		},
		Policy:       models.PolicyBase,
		FetchTimeout: 5 * time.Second,
		BaseURL:      baseURL,
	}, tracker, zerolog.Nop())
	return mon, tracker
}

func TestFetchCycleSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" || r.Header.Get("Accept") == "" {
			t.Errorf("expected browser-like headers, got %+v", r.Header)
		}
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	mon, tracker := newTestMonitor(t, srv.URL)

	var notified atomic.Int32
	mon.Subscribe(func(snapshot models.PriceSnapshot) {
		notified.Add(1)
		if snapshot.LowPrice == nil || *snapshot.LowPrice != 52.94 {
			t.Errorf("subscriber got unexpected snapshot: %+v", snapshot)
		}
	})

	if err := mon.RequestRefresh(context.Background()); err != nil {
		t.Fatalf("RequestRefresh: %v", err)
	}

	snapshot := mon.Snapshot()
	if snapshot == nil {
		t.Fatal("expected a snapshot")
	}
	if snapshot.LowPrice == nil || *snapshot.LowPrice != 52.94 {
		t.Fatalf("expected low price 52.94, got %v", snapshot.LowPrice)
	}
	if snapshot.OfferCount != 3 {
		t.Fatalf("expected 3 offers, got %d", snapshot.OfferCount)
	}
	if !mon.LastUpdateSucceeded() {
		t.Fatal("expected last update to be marked successful")
	}
	if notified.Load() != 1 {
		t.Fatalf("expected 1 subscriber notification, got %d", notified.Load())
	}
	if tracker.State(alerting.KindAPIFailure).LastSuccessAt == nil {
		t.Fatal("expected tracker success to be recorded")
	}
}

func TestNotFoundPreservesSnapshot(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	mon, tracker := newTestMonitor(t, srv.URL)

	if err := mon.RequestRefresh(context.Background()); err != nil {
		t.Fatalf("RequestRefresh: %v", err)
	}
	first := mon.Snapshot()

	fail.Store(true)
	err := mon.RequestRefresh(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if mon.Snapshot() != first {
		t.Fatal("expected last-known-good snapshot to be preserved")
	}
	if mon.LastUpdateSucceeded() {
		t.Fatal("expected last update to be marked failed")
	}
	if !tracker.State(alerting.KindNotFound).AlertActive {
		t.Fatal("expected not_found alert to be active")
	}
	if tracker.State(alerting.KindAPIFailure).ConsecutiveFailures != 0 {
		t.Fatal("expected 404 not to count against api_failure")
	}
}

func TestUnparseablePageRoutesToAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>maintenance</body></html>"))
	}))
	defer srv.Close()

	mon, tracker := newTestMonitor(t, srv.URL)

	if err := mon.RequestRefresh(context.Background()); err == nil {
		t.Fatal("expected an error for a page without structured data")
	}
	if mon.Snapshot() != nil {
		t.Fatal("expected no snapshot after a failed first fetch")
	}
	if got := tracker.State(alerting.KindAPIFailure).ConsecutiveFailures; got != 1 {
		t.Fatalf("expected 1 api failure, got %d", got)
	}
}

func TestServerErrorRoutesToAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	mon, tracker := newTestMonitor(t, srv.URL)

	err := mon.RequestRefresh(context.Background())
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a transport error, got %v", err)
	}
	if got := tracker.State(alerting.KindAPIFailure).ConsecutiveFailures; got != 1 {
		t.Fatalf("expected 1 api failure, got %d", got)
	}
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	mon, _ := newTestMonitor(t, srv.URL)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = mon.RequestRefresh(context.Background())
		}(i)
	}

	// Let all callers pile onto the in-flight fetch, then release it.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := requests.Load(); got != 1 {
		t.Fatalf("expected a single coalesced request, got %d", got)
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("caller %d: %v", i, err)
		}
	}
	if mon.Snapshot() == nil {
		t.Fatal("expected a snapshot after the coalesced fetch")
	}
}

func TestStatusReflectsPriceAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	tracker := alerting.NewTracker("190548", 0, nullSink{}, zerolog.Nop())
	mon := New(Config{
		Ref:                 models.ProductRef{ProductID: "190548", Slug: "half-life-3", Currency: models.CurrencyEUR},
		Policy:              models.PolicyBase,
		PriceAlertThreshold: 55,
		BaseURL:             srv.URL,
	}, tracker, zerolog.Nop())

	if err := mon.RequestRefresh(context.Background()); err != nil {
		t.Fatalf("RequestRefresh: %v", err)
	}

	status := mon.Status()
	if !status.PriceAlert {
		t.Fatal("expected price alert at low price 52.94 with threshold 55")
	}
	if !status.LastUpdateSucceeded {
		t.Fatal("expected last update succeeded")
	}
	if status.OfferCount != 3 {
		t.Fatalf("expected 3 offers in status, got %d", status.OfferCount)
	}
}
