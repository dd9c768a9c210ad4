package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/ledger"
)

// MarketReader serves market and bet views.
type MarketReader interface {
	Markets(ctx context.Context) ([]domain.MarketView, error)
	Market(ctx context.Context, id uint64) (domain.MarketView, error)
	Position(ctx context.Context, marketID uint64, principal domain.Principal) (domain.Market, domain.Bet, bool, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	exec   Executor
	reader MarketReader
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(exec Executor, reader MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		exec:   exec,
		reader: reader,
		logger: logHandler(logger, "market"),
	}
}

type createMarketRequest struct {
	Question string `json:"question"`
	EndTime  uint64 `json:"end_time"`
}

type placeBetRequest struct {
	IsYes  bool          `json:"is_yes"`
	Amount domain.Amount `json:"amount"`
}

type resolveRequest struct {
	Outcome *bool `json:"outcome"`
}

// betView is a single bet as returned by GET /api/markets/{id}/bets/{principal}.
type betView struct {
	domain.BetKey
	domain.Bet
	Winnings *domain.Amount `json:"winnings,omitempty"`
}

// ListMarkets returns every market view in id order.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	views, err := h.reader.Markets(r.Context())
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}

	if r.URL.Query().Get("status") != "" {
		views = filterByStatus(views, r.URL.Query().Get("status"))
	}

	opts := parseListOpts(r)
	total := len(views)
	start := min(opts.Offset, total)
	end := min(start+opts.Limit, total)

	writeJSON(w, http.StatusOK, map[string]any{
		"markets": views[start:end],
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

func filterByStatus(views []domain.MarketView, status string) []domain.MarketView {
	out := views[:0:0]
	for _, v := range views {
		switch status {
		case "open":
			if !v.Resolved {
				out = append(out, v)
			}
		case "resolved":
			if v.Resolved {
				out = append(out, v)
			}
		default:
			out = append(out, v)
		}
	}
	return out
}

// GetMarket returns a single market view.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMarketID(w, r)
	if !ok {
		return
	}
	view, err := h.reader.Market(r.Context(), id)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetBet returns a principal's bet on a market. Once the market is resolved
// in the bet's favour the response also carries the payout.
// GET /api/markets/{id}/bets/{principal}
func (h *MarketHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathMarketID(w, r)
	if !ok {
		return
	}
	principal, ok := pathPrincipal(w, r)
	if !ok {
		return
	}

	market, bet, found, err := h.reader.Position(r.Context(), id, principal)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	if !found {
		writeLedgerError(w, r, h.logger, domain.NewError(domain.KindNoBet, id))
		return
	}

	out := betView{BetKey: domain.BetKey{MarketID: id, Principal: principal}, Bet: bet}
	if bet.Won(market) {
		if win, err := ledger.ComputeWinnings(bet, market); err == nil {
			out.Winnings = &win
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateMarket opens a market owned by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	h.execute(w, r, caller, ledger.CreateMarket{Question: req.Question, EndTime: req.EndTime}, http.StatusCreated)
}

// PlaceBet stakes an amount on one side of a market.
// POST /api/markets/{id}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathMarketID(w, r)
	if !ok {
		return
	}
	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	h.execute(w, r, caller, ledger.PlaceBet{MarketID: id, IsYes: req.IsYes, Amount: req.Amount}, http.StatusCreated)
}

// ResolveMarket fixes the outcome of a market. Only its creator may do so.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathMarketID(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "bad_request", "outcome is required")
		return
	}
	h.execute(w, r, caller, ledger.ResolveMarket{MarketID: id, Outcome: *req.Outcome}, http.StatusOK)
}

// ClaimWinnings settles the caller's winning bet.
// POST /api/markets/{id}/claim
func (h *MarketHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	id, ok := pathMarketID(w, r)
	if !ok {
		return
	}
	h.execute(w, r, caller, ledger.ClaimWinnings{MarketID: id}, http.StatusOK)
}

func (h *MarketHandler) execute(w http.ResponseWriter, r *http.Request, caller domain.Principal, op ledger.Operation, status int) {
	resp, err := h.exec.Execute(r.Context(), caller, op)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	h.logger.InfoContext(r.Context(), "operation applied",
		slog.String("op", string(resp.Type)),
		slog.Uint64("market_id", resp.MarketID),
		slog.Uint64("seq", resp.Seq),
		slog.String("principal", string(caller)),
	)
	writeJSON(w, status, resp)
}
