package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// Snapshotter writes a ledger snapshot to cold storage.
type Snapshotter interface {
	Snapshot(ctx context.Context) (domain.SnapshotInfo, error)
}

// AdminHandler serves operator endpoints.
type AdminHandler struct {
	snapshots Snapshotter
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler. snapshots may be nil when object
// storage is not configured.
func NewAdminHandler(snapshots Snapshotter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{snapshots: snapshots, logger: logHandler(logger, "admin")}
}

// Snapshot writes a snapshot now.
// POST /api/admin/snapshot
func (h *AdminHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "snapshot storage not configured")
		return
	}
	info, err := h.snapshots.Snapshot(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "snapshot failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal", "snapshot failed")
		return
	}
	h.logger.InfoContext(r.Context(), "snapshot written",
		slog.String("path", info.Path),
		slog.Int64("size", info.Size),
	)
	writeJSON(w, http.StatusCreated, info)
}
