package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
	"github.com/praxis-lab/Polya/go/decomposer/internal/streaming"
)

const defaultHeartbeat = 15 * time.Second

// StreamingHandler serves invocation lifecycle events over SSE.
type StreamingHandler struct {
	mgr       *streaming.Manager
	logger    *zap.Logger
	heartbeat time.Duration
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	return &StreamingHandler{mgr: mgr, logger: logger, heartbeat: defaultHeartbeat}
}

// SetHeartbeat overrides the keep-alive interval for SSE and WebSocket
// streams. Non-positive values keep the default.
func (h *StreamingHandler) SetHeartbeat(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// RegisterRoutes registers the stream routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/stream/sse", h.handleSSE)
	h.RegisterWebSocket(mux)
}

// handleSSE streams events for one invocation via Server-Sent Events.
// GET /api/v1/stream/sse?execution_ref=<ref>
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("execution_ref")
	if ref == "" {
		http.Error(w, `{"error":"execution_ref required"}`, http.StatusBadRequest)
		return
	}
	typeFilter := parseTypeFilter(r.URL.Query().Get("types"))
	lastID, replay := parseLastEventID(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ch := h.mgr.Subscribe(ref, 256)
	defer h.mgr.Unsubscribe(ref, ch)

	metrics.StreamingClients.WithLabelValues("sse").Inc()
	defer metrics.StreamingClients.WithLabelValues("sse").Dec()

	// Initial comment establishes the stream before any event fires.
	fmt.Fprintf(w, ": connected to execution %s\n\n", ref)
	flusher.Flush()

	// Replay backlog since lastID (best-effort).
	if replay {
		for _, evt := range h.mgr.ReplaySince(ref, lastID) {
			if skipEvent(typeFilter, evt.Type) {
				continue
			}
			writeSSE(w, evt)
		}
		flusher.Flush()
	}

	hb := time.NewTicker(h.heartbeat)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("execution_ref", ref))
			return
		case evt := <-ch:
			if skipEvent(typeFilter, evt.Type) {
				continue
			}
			writeSSE(w, evt)
			flusher.Flush()
		case <-hb.C:
			// Keeps the connection alive through proxies.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt streaming.Event) {
	if evt.Seq > 0 {
		fmt.Fprintf(w, "id: %d\n", evt.Seq)
	}
	if evt.Type != "" {
		fmt.Fprintf(w, "event: %s\n", evt.Type)
	}
	fmt.Fprintf(w, "data: %s\n\n", string(evt.Marshal()))
}

func parseTypeFilter(raw string) map[string]struct{} {
	filter := map[string]struct{}{}
	if raw == "" {
		return filter
	}
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			filter[t] = struct{}{}
		}
	}
	return filter
}

func skipEvent(filter map[string]struct{}, eventType string) bool {
	if len(filter) == 0 {
		return false
	}
	_, ok := filter[eventType]
	return !ok
}

// parseLastEventID honors the Last-Event-ID header first, the query
// parameter second, matching EventSource reconnect behavior. replay
// reports whether the caller asked for one at all; an explicit 0 means
// "everything from the beginning".
func parseLastEventID(r *http.Request) (lastID uint64, replay bool) {
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			return n, true
		}
	}
	if q := r.URL.Query().Get("last_event_id"); q != "" {
		if n, err := strconv.ParseUint(q, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}
