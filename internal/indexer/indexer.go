// Package indexer defines the boundary to the service that exposes ledger
// state as queryable and subscribable entities.
//
// Two backends implement Client:
//   - indexer/sqlite: a local indexer over an append-only ledger table
//   - indexer/torii: a remote indexer over HTTP and WebSocket
package indexer

import (
	"context"
	"errors"

	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// ErrClosed is returned by operations on a closed client or stream.
var ErrClosed = errors.New("indexer: closed")

// Page is one slice of a paginated result. NextCursor is empty when the
// result set is exhausted.
type Page struct {
	Rows       []model.Entity
	NextCursor string
	Dropped    int // rows the server sent that could not be decoded
}

// Client is the upstream collaborator used by the fetcher and subscriber.
type Client interface {
	// GetPage returns up to q.Limit rows starting at cursor ("" = first page).
	GetPage(ctx context.Context, q query.Query, cursor string) (Page, error)

	// Subscribe opens a standing feed of entity updates matching q. Each
	// update carries only the models that changed.
	Subscribe(ctx context.Context, q query.Query) (Stream, error)
}

// Stream is a live subscription.
type Stream interface {
	// Updates delivers entity updates in arrival order. It is closed when
	// the stream ends; Err then reports why.
	Updates() <-chan model.Entity

	// Err returns the error that ended the stream, or nil after Close.
	Err() error

	// Close ends the subscription and waits for the feed to stop.
	// Safe to call more than once.
	Close() error
}
