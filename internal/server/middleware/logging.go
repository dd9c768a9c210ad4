package middleware

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/parimarket/internal/domain"
)

// OutcomeRecorder is implemented by the ResponseWriter that Logging hands
// down the chain. Inner middleware and handlers use it to add the caller and
// the rejection kind to the access log line.
type OutcomeRecorder interface {
	RecordPrincipal(p domain.Principal)
	RecordKind(kind string)
}

// RecordKind attaches a rejection kind to the access log of w, if w is
// being logged.
func RecordKind(w http.ResponseWriter, kind string) {
	if rec, ok := w.(OutcomeRecorder); ok {
		rec.RecordKind(kind)
	}
}

func recordPrincipal(w http.ResponseWriter, p domain.Principal) {
	if rec, ok := w.(OutcomeRecorder); ok {
		rec.RecordPrincipal(p)
	}
}

// Logging returns middleware that writes one access log line per request.
// Server errors are logged at Error, client errors at Warn.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &loggedWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			level := slog.LevelInfo
			switch {
			case rw.status >= 500:
				level = slog.LevelError
			case rw.status >= 400:
				level = slog.LevelWarn
			}
			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", r.URL.RawQuery),
				slog.Int("status", rw.status),
				slog.Int64("bytes", rw.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", RequestIDFrom(r.Context())),
			}
			if rw.principal != "" {
				attrs = append(attrs, slog.String("principal", string(rw.principal)))
			}
			if rw.kind != "" {
				attrs = append(attrs, slog.String("kind", rw.kind))
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

// loggedWriter captures what Logging reports about a response.
type loggedWriter struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
	principal   domain.Principal
	kind        string
}

func (rw *loggedWriter) RecordPrincipal(p domain.Principal) { rw.principal = p }

func (rw *loggedWriter) RecordKind(kind string) { rw.kind = kind }

func (rw *loggedWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *loggedWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Hijack lets WebSocket upgrades pass through Logging.
func (rw *loggedWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("middleware: response writer does not support hijacking")
	}
	return h.Hijack()
}
