package torii

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// maxRequestBody caps POST /entities bodies.
const maxRequestBody = 1 << 20

// Handler serves an indexer.Client over the torii protocol.
type Handler struct {
	backend  indexer.Client
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewHandler creates a handler for backend.
func NewHandler(backend indexer.Client) *Handler {
	h := &Handler{
		backend: backend,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		mux: http.NewServeMux(),
	}
	h.mux.HandleFunc("POST /entities", h.handleEntities)
	h.mux.HandleFunc("GET /subscribe", h.handleSubscribe)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleEntities(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	q, err := query.Parse(req.Query)
	if err == nil {
		err = query.Validate(q)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
		return
	}

	page, err := h.backend.GetPage(r.Context(), q, req.Cursor)
	if err != nil {
		var verr *query.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		slog.Error("get page failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	resp := pageResponse{Items: page.Rows}
	if resp.Items == nil {
		resp.Items = []model.Entity{}
	}
	if page.NextCursor != "" {
		resp.NextCursor = &page.NextCursor
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("write page failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg, Code: code})
}

// handleSubscribe upgrades the connection, reads the subscription query
// and pumps backend updates to the peer until either side goes away.
func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.Must(uuid.NewV7()).String()
	log := slog.With("conn", connID)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(writeWait))
	var req subscribeRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Debug("subscribe request unreadable", "error", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	q, err := query.Parse(req.Query)
	if err == nil {
		err = query.Validate(q)
	}
	if err != nil {
		sendError(conn, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	feed, err := h.backend.Subscribe(ctx, q)
	if err != nil {
		sendError(conn, err)
		return
	}
	defer feed.Close()
	log.Info("subscription opened")

	// The read side only watches for the peer going away.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-feed.Updates():
			if !ok {
				if err := feed.Err(); err != nil {
					sendError(conn, err)
				} else {
					closeNormal(conn)
				}
				log.Info("subscription ended by backend", "error", feed.Err())
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(streamMessage{Type: msgUpdate, Entity: &e}); err != nil {
				log.Debug("write update failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-peerGone:
			log.Info("subscription closed by peer")
			return
		case <-ctx.Done():
			return
		}
	}
}

func sendError(conn *websocket.Conn, err error) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(streamMessage{Type: msgError, Message: err.Error()})
	closeNormal(conn)
}

func closeNormal(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
