package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/FaserF/keyprice-scraper/internal/database"
	"github.com/FaserF/keyprice-scraper/internal/models"
	"github.com/FaserF/keyprice-scraper/internal/monitor"
)

// StatusHandler handles the /status endpoint.
type StatusHandler struct {
	monitors  map[string]*monitor.Monitor
	db        *database.DB
	startTime time.Time
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(monitors map[string]*monitor.Monitor, db *database.DB) *StatusHandler {
	return &StatusHandler{
		monitors:  monitors,
		db:        db,
		startTime: time.Now(),
	}
}

// ServeHTTP implements the http.Handler interface.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := models.StatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Products:      make(map[string]models.ProductStatus),
	}

	for productID, mon := range h.monitors {
		response.Products[productID] = mon.Status()
	}

	response.Database = h.getDatabaseStatus(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
}

func (h *StatusHandler) getDatabaseStatus(ctx context.Context) models.DatabaseStatus {
	status := models.DatabaseStatus{}

	if h.db == nil {
		return status
	}
	status.Enabled = true

	if err := h.db.Ping(); err != nil {
		return status
	}
	status.Connected = true

	count, err := h.db.GetSnapshotCount(ctx)
	if err == nil {
		status.SnapshotsStored = count
	}

	return status
}
