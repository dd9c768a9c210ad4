package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// MarketCounter reports how many markets exist and how many are open.
type MarketCounter interface {
	Counts(ctx context.Context) (total, open uint64, err error)
}

// StatusHandler serves the service status for dashboards.
type StatusHandler struct {
	mode      string
	backend   string
	startedAt time.Time
	counter   MarketCounter
	clients   func() int
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. clients may be nil when no
// websocket hub is running.
func NewStatusHandler(mode, backend string, counter MarketCounter, clients func() int, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		backend:   backend,
		startedAt: time.Now(),
		counter:   counter,
		clients:   clients,
		logger:    logHandler(logger, "status"),
	}
}

// GetStatus responds with the current mode, backend and market counts.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	total, open, err := h.counter.Counts(r.Context())
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	st := domain.ServiceStatus{
		Mode:          h.mode,
		Backend:       h.backend,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Markets:       total,
		OpenMarkets:   open,
	}
	if h.clients != nil {
		st.WSClients = h.clients()
	}
	writeJSON(w, http.StatusOK, st)
}
