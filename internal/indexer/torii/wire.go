// Package torii speaks the remote indexer protocol.
//
//	POST /entities    {"query": Query, "cursor": "..."} -> {"items": [Entity], "nextCursor": "..."|null}
//	GET  /subscribe   WebSocket; the client sends {"query": Query}, the
//	                  server sends {"type": "update", "entity": Entity}
//	                  or {"type": "error", "message": "..."}
//
// Client implements indexer.Client against a remote server; Handler
// serves any indexer.Client with the same protocol.
package torii

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

const (
	msgUpdate = "update"
	msgError  = "error"
)

type pageRequest struct {
	Query  json.RawMessage `json:"query"`
	Cursor string          `json:"cursor,omitempty"`
}

type pageResponse struct {
	Items      []model.Entity `json:"items"`
	NextCursor *string        `json:"nextCursor"`
}

// pageEnvelope is the client view of pageResponse. Items stay raw so one
// undecodable entity does not fail the page.
type pageEnvelope struct {
	Items      []json.RawMessage `json:"items"`
	NextCursor *string           `json:"nextCursor"`
}

type subscribeRequest struct {
	Query json.RawMessage `json:"query"`
}

type streamMessage struct {
	Type    string        `json:"type"`
	Entity  *model.Entity `json:"entity,omitempty"`
	Message string        `json:"message,omitempty"`
}

// streamEnvelope is the client view of streamMessage.
type streamEnvelope struct {
	Type    string          `json:"type"`
	Entity  json.RawMessage `json:"entity,omitempty"`
	Message string          `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func encodeQuery(q query.Query) (json.RawMessage, error) {
	data, err := q.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return data, nil
}

// droppedLabel is the model label of entities dropped before any model
// could be read.
const droppedLabel = "undecodable"

// decodeEntity decodes one wire entity. An entity that does not decode is
// logged, counted on m (when set) and reported as not ok.
func decodeEntity(raw json.RawMessage, index int, m *metrics.Collector) (model.Entity, bool) {
	var e model.Entity
	err := json.Unmarshal(raw, &e)
	if err == nil {
		return e, true
	}

	var head struct {
		EntityID string `json:"entityId"`
	}
	_ = json.Unmarshal(raw, &head)
	slog.Warn("dropping malformed entity",
		"entity_id", head.EntityID,
		"index", index,
		"error", err,
	)
	if m != nil {
		m.MalformedDropped.WithLabelValues(droppedLabel).Inc()
	}
	return model.Entity{}, false
}

// RemoteError is an error reported by the server.
type RemoteError struct {
	Status  int    // HTTP status; 0 for stream errors
	Code    string // machine-readable code when the server sent one
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("torii: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return "torii: " + e.Message
}
