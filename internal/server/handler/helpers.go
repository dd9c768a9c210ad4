package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/parimarket/internal/domain"
	"github.com/alanyoungcy/parimarket/internal/identity"
	"github.com/alanyoungcy/parimarket/internal/ledger"
	"github.com/alanyoungcy/parimarket/internal/server/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// kindStatus maps ledger rejections to HTTP status codes.
var kindStatus = map[domain.ErrorKind]int{
	domain.KindNotFound:        http.StatusNotFound,
	domain.KindAlreadyResolved: http.StatusConflict,
	domain.KindNotResolved:     http.StatusConflict,
	domain.KindUnauthorized:    http.StatusForbidden,
	domain.KindDuplicateBet:    http.StatusConflict,
	domain.KindNoBet:           http.StatusNotFound,
	domain.KindAlreadyClaimed:  http.StatusConflict,
	domain.KindLoss:            http.StatusUnprocessableEntity,
	domain.KindReadFailure:     http.StatusInternalServerError,
	domain.KindInvalidAmount:   http.StatusBadRequest,
}

// Executor applies ledger operations on behalf of a caller.
type Executor interface {
	Execute(ctx context.Context, caller domain.Principal, op ledger.Operation) (ledger.Response, error)
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	middleware.RecordKind(w, kind)
	writeJSON(w, status, map[string]string{"error": msg, "kind": kind})
}

// writeLedgerError translates err into a response. Ledger rejections keep
// their kind; anything else is logged and reported as a 5xx.
func writeLedgerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if kind, ok := domain.KindOf(err); ok {
		status := kindStatus[kind]
		if status == 0 {
			status = http.StatusInternalServerError
		}
		if status >= 500 {
			logger.ErrorContext(r.Context(), "ledger read failed", slog.String("error", err.Error()))
		}
		writeError(w, status, kind.String(), err.Error())
		return
	}

	switch {
	case errors.Is(err, ledger.ErrNoPrincipal), errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
	case errors.Is(err, domain.ErrContextDone), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled), errors.Is(err, domain.ErrLockHeld):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "ledger busy, retry later")
	default:
		logger.ErrorContext(r.Context(), "request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// decodeBody reads a JSON request body into v, rejecting unknown fields.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

// writeDecodeError reports a malformed request body. Out-of-range amounts
// keep the invalid_amount kind.
func writeDecodeError(w http.ResponseWriter, err error) {
	kind := "bad_request"
	if errors.Is(err, domain.ErrInvalidAmount) {
		kind = domain.KindInvalidAmount.String()
	}
	writeError(w, http.StatusBadRequest, kind, err.Error())
}

// readBody returns the raw request body.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// requirePrincipal returns the authenticated caller, writing a 401 when
// there is none.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return "", false
	}
	return p, true
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathMarketID parses the {id} path parameter. It writes a 400 and returns
// false when the id is not a positive integer.
func pathMarketID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid market id")
		return 0, false
	}
	return id, true
}

// pathPrincipal canonicalises the {principal} path parameter.
func pathPrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, err := identity.Canonicalize(r.PathValue("principal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return "", false
	}
	return p, true
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
