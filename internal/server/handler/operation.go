package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/parimarket/internal/ledger"
)

// OperationHandler accepts ledger operations in their generic envelope form.
type OperationHandler struct {
	exec   Executor
	logger *slog.Logger
}

// NewOperationHandler creates an OperationHandler.
func NewOperationHandler(exec Executor, logger *slog.Logger) *OperationHandler {
	return &OperationHandler{exec: exec, logger: logHandler(logger, "operation")}
}

// Submit decodes an {"op": ...} envelope and applies it for the caller.
// POST /api/operations
func (h *OperationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	op, err := ledger.DecodeOperation(body)
	if err != nil {
		writeDecodeError(w, err)
		return
	}

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
	writeJSON(w, http.StatusOK, resp)
}
