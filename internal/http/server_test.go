package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/FaserF/keyprice-scraper/internal/alerting"
	"github.com/FaserF/keyprice-scraper/internal/models"
	"github.com/FaserF/keyprice-scraper/internal/monitor"
)

const productPage = `<html><head><script type="application/ld+json">
{"@type": "Product", "name": "Half-Life 3", "offers": {"@type": "AggregateOffer",
"lowPrice": 52.94, "highPrice": 60, "offerCount": 2,
"offers": [{"price": 52.94, "seller": "A"}, {"price": 60, "seller": "B"}]}}
</script></head></html>`

type nullSink struct{}

func (nullSink) RaiseAlert(string, alerting.Severity, map[string]string) {}
func (nullSink) ClearAlert(string)                                       {}

func newTestServer(t *testing.T) (*Server, *monitor.Monitor, func()) {
	t.Helper()

	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(productPage))
	}))

	tracker := alerting.NewTracker("190548", 0, nullSink{}, zerolog.Nop())
	mon := monitor.New(monitor.Config{
		Ref:     models.ProductRef{ProductID: "190548", Slug: "half-life-3", Currency: models.CurrencyEUR},
		Policy:  models.PolicyBase,
		BaseURL: page.URL,
	}, tracker, zerolog.Nop())

	srv := NewServer(":0", map[string]*monitor.Monitor{"190548": mon}, nil, zerolog.Nop())
	return srv, mon, page.Close
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "OK" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, mon, cleanup := newTestServer(t)
	defer cleanup()

	if err := mon.RequestRefresh(context.Background()); err != nil {
		t.Fatalf("RequestRefresh: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status models.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decoding status: %v", err)
	}
	product, ok := status.Products["190548"]
	if !ok {
		t.Fatalf("expected product 190548 in status, got %+v", status.Products)
	}
	if !product.LastUpdateSucceeded {
		t.Fatal("expected last update succeeded")
	}
	if product.LowPrice == nil || *product.LowPrice != 52.94 {
		t.Fatalf("expected low price 52.94, got %v", product.LowPrice)
	}
	if status.Database.Enabled {
		t.Fatal("expected database to be reported disabled")
	}
}

func TestRefreshEndpoint(t *testing.T) {
	srv, mon, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh?product=190548", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if mon.Snapshot() == nil {
		t.Fatal("expected the refresh to produce a snapshot")
	}

	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if response["success"] != true {
		t.Fatalf("expected success, got %+v", response)
	}
}

func TestRefreshEndpointUnknownProduct(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/refresh?product=nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRefreshEndpointRejectsGet(t *testing.T) {
	srv, _, cleanup := newTestServer(t)
	defer cleanup()

	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/refresh?product=190548", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
