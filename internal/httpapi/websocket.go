package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/praxis-lab/Polya/go/decomposer/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the fronting proxy in deployed environments.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RegisterWebSocket registers the /api/v1/stream/ws endpoint.
func (h *StreamingHandler) RegisterWebSocket(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/stream/ws", h.handleWS)
}

// handleWS streams invocation events over a WebSocket.
// GET /api/v1/stream/ws?execution_ref=<ref>
func (h *StreamingHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("execution_ref")
	if ref == "" {
		http.Error(w, "execution_ref required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	typeFilter := parseTypeFilter(r.URL.Query().Get("types"))
	lastID, replay := parseLastEventID(r)

	ch := h.mgr.Subscribe(ref, 256)
	defer h.mgr.Unsubscribe(ref, ch)

	metrics.StreamingClients.WithLabelValues("websocket").Inc()
	defer metrics.StreamingClients.WithLabelValues("websocket").Dec()

	if replay {
		for _, evt := range h.mgr.ReplaySince(ref, lastID) {
			if skipEvent(typeFilter, evt.Type) {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	// Reader pump; client messages are discarded but keep the pong
	// handler running.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if skipEvent(typeFilter, evt.Type) {
				continue
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
