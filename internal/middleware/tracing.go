package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
	"github.com/praxis-lab/Polya/go/decomposer/internal/tracing"
)

// TracingMiddleware opens a server span per request, continuing the
// caller's W3C trace context when a traceparent header is present, and
// echoes the ids back so callers can correlate.
type TracingMiddleware struct {
	logger *zap.Logger
}

func NewTracingMiddleware(logger *zap.Logger) *TracingMiddleware {
	return &TracingMiddleware{logger: logger}
}

// Middleware returns the HTTP middleware function.
func (tm *TracingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), "http "+r.Method+" "+r.URL.Path)
		defer span.End()

		traceID, spanID := tracing.SpanIDs(ctx)
		if traceID == "" {
			// Tracing disabled; still give callers something to quote.
			traceID = tm.fallbackTraceID(r)
			spanID = strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
		}

		w.Header().Set("X-Trace-ID", traceID)
		w.Header().Set("X-Span-ID", spanID)

		tm.logger.Debug("Request received",
			zap.String("trace_id", traceID),
			zap.String("span_id", spanID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		metrics.RecordHTTPRequest(r.URL.Path, r.Method, strconv.Itoa(sw.status), time.Since(start).Seconds())
	})
}

// statusWriter records the response status for metrics while passing
// Flush and Hijack through so SSE and WebSocket upgrades keep working.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hj.Hijack()
}

// fallbackTraceID reuses the caller's trace id when one rode in on a
// header, otherwise mints a fresh one.
func (tm *TracingMiddleware) fallbackTraceID(r *http.Request) string {
	if tp := r.Header.Get("traceparent"); tp != "" {
		if traceID, _, _, ok := tracing.ParseTraceparent(tp); ok {
			return traceID
		}
	}
	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		return traceID
	}
	if requestID := r.Header.Get("X-Request-ID"); requestID != "" {
		return requestID
	}
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
