package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sakif/codefile/internal/pubsub"
	"github.com/sakif/codefile/internal/service"
)

// LiveHandler bridges the pub/sub bus to browsers over WebSocket.
//
// The mutation gateway publishes deltas onto "snippet-{id}" channels; a
// browser can't subscribe to those directly, so this handler holds one
// subscription per connected socket and forwards every event as a JSON
// frame:
//
//	{"event":"code-update","data":{"code":"...","language":"..."}}
//
// The bridge inherits the bus guarantees, no more: a socket that connects
// after a delta was published never sees it, and nothing is retransmitted.
// Clients always GET the full snippet first, then connect here.
type LiveHandler struct {
	service  *service.SnippetService
	broker   pubsub.Broker
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

const (
	liveWriteTimeout = 10 * time.Second
	livePingInterval = 30 * time.Second
)

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(service *service.SnippetService, broker pubsub.Broker, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{
		service: service,
		broker:  broker,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Snippets are shared by link across arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleLive upgrades the connection and streams deltas for one snippet.
//
// HTTP: GET /api/snippets/{id}/live
//
// Existence is checked BEFORE upgrading so an unknown id gets a plain 404
// JSON response; after the upgrade only WebSocket close frames can carry
// errors. With the noop broker the socket stays open and silently idle —
// degraded mode keeps the endpoint alive, just eventless.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.service.GetByID(r.Context(), id); err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Subscribe before upgrading: once the connection is hijacked we can
	// no longer return an HTTP error.
	sub, err := h.broker.Subscribe(r.Context(), pubsub.SnippetChannel(id))
	if err != nil {
		h.logger.Error("live subscribe failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Live updates unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own HTTP error response.
		sub.Close()
		h.logger.Warn("websocket upgrade failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("live session connected", slog.String("id", id))
	defer h.logger.Info("live session closed", slog.String("id", id))

	// READ PUMP:
	// We never expect frames from the client (edits go through PATCH), but
	// we must keep reading so the websocket library processes control
	// frames. ReadMessage returning an error is how we learn the browser
	// went away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// WRITE PUMP: forward bus events, ping periodically so proxies don't
	// reap the idle connection.
	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()
	defer conn.Close()
	defer sub.Close()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// Subscription ended (transport lost). Close politely.
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(liveWriteTimeout))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
