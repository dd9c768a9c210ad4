package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/identity"
	"github.com/alanyoungcy/parimarket/internal/projection"
)

// StatsReader serves derived participant views and the journal.
type StatsReader interface {
	UserStats(ctx context.Context, principal domain.Principal) (projection.UserStats, error)
	Leaderboard(ctx context.Context, sortBy string, limit int) ([]projection.UserStats, error)
	Journal(ctx context.Context, filter domain.JournalFilter) ([]domain.JournalEntry, error)
}

// StatsHandler serves participant statistics, the leaderboard and the
// operation journal.
type StatsHandler struct {
	reader StatsReader
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(reader StatsReader, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{reader: reader, logger: logHandler(logger, "stats")}
}

// UserStats returns the statistics of one principal.
// GET /api/users/{principal}/stats
func (h *StatsHandler) UserStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := pathPrincipal(w, r)
	if !ok {
		return
	}
	stats, err := h.reader.UserStats(r.Context(), principal)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Leaderboard ranks participants.
// GET /api/leaderboard?sort=winnings|bets|winrate|created&limit=N
func (h *StatsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort")
	if sortBy == "" {
		sortBy = projection.SortByWinnings
	}
	if !projection.ValidSort(sortBy) {
		writeError(w, http.StatusBadRequest, "bad_request", "unknown sort "+strconv.Quote(sortBy))
		return
	}
	limit := parseListOpts(r).Limit

	rows, err := h.reader.Leaderboard(r.Context(), sortBy, limit)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sort":    sortBy,
		"entries": rows,
	})
}

// Journal lists committed operations, newest first.
// GET /api/journal?principal=&market_id=&limit=&offset=
func (h *StatsHandler) Journal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.JournalFilter{ListOpts: parseListOpts(r)}

	if raw := q.Get("principal"); raw != "" {
		p, err := identity.Canonicalize(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		filter.Principal = p
	}
	if raw := q.Get("market_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid market_id")
			return
		}
		filter.MarketID = id
	}

	entries, err := h.reader.Journal(r.Context(), filter)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}
