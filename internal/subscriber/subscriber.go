// Package subscriber keeps the cache current after hydration by following
// a live indexer subscription.
package subscriber

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/duelsync/internal/engine"
	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// Sink receives live updates. *engine.Engine implements it.
type Sink interface {
	Enqueue(b engine.Batch) bool
	Generation() int64
}

// Subscriber owns at most one live subscription.
//
// Thread-safety: Switch, Close and the read-only accessors may be called
// from any goroutine. Switch and Close are serialized, so two live feeds
// never overlap.
type Subscriber struct {
	client  indexer.Client
	sink    Sink
	metrics *metrics.Collector
	onError func(id string, err error)

	mu     sync.Mutex
	active *subscription
	last   *subscription
}

// subscription is one open stream and its reader goroutine.
type subscription struct {
	id         string
	hash       string
	query      query.Query
	generation int64
	stream     indexer.Stream
	done       chan struct{}

	errMu sync.Mutex
	err   error
}

func (s *subscription) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithMetrics records the live subscription gauge on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Subscriber) {
		s.metrics = m
	}
}

// WithErrorHandler is called from the reader goroutine when a stream ends
// with an error.
func WithErrorHandler(fn func(id string, err error)) Option {
	return func(s *Subscriber) {
		s.onError = fn
	}
}

// New creates a Subscriber reading from client and feeding sink.
func New(client indexer.Client, sink Sink, opts ...Option) *Subscriber {
	s := &Subscriber{client: client, sink: sink}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// Switch makes q the live subscription. The previous subscription is
// closed, and its reader has exited, before the new one opens. Switching
// to a query with the same hash as the running subscription is a no-op.
//
// Updates are stamped with the generation current when the subscription
// opens; advance the sink's generation before switching to discard
// updates of the old feed that have not been merged yet.
func (s *Subscriber) Switch(ctx context.Context, q query.Query) error {
	if err := query.Validate(q); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	hash, err := q.Hash()
	if err != nil {
		return fmt.Errorf("subscribe: hash query: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.active; cur != nil && cur.hash == hash && !cur.ended() {
		slog.Debug("subscription unchanged", "subscription_id", cur.id)
		return nil
	}
	s.closeLocked()

	stream, err := s.client.Subscribe(ctx, q)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	sub := &subscription{
		id:         uuid.Must(uuid.NewV7()).String(),
		hash:       hash,
		query:      q,
		generation: s.sink.Generation(),
		stream:     stream,
		done:       make(chan struct{}),
	}
	s.active = sub
	s.last = sub
	s.metrics.LiveSubscriptions.Inc()

	slog.Info("subscription opened",
		"subscription_id", sub.id,
		"query_hash", hash,
		"models", q.EntityModels,
		"generation", sub.generation,
	)

	go s.read(sub)
	return nil
}

// Close ends the live subscription, if any, and waits for its reader.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

// closeLocked must be called with mu held.
func (s *Subscriber) closeLocked() {
	sub := s.active
	if sub == nil {
		return
	}
	s.active = nil
	if err := sub.stream.Close(); err != nil {
		slog.Warn("closing subscription", "subscription_id", sub.id, "error", err)
	}
	<-sub.done
	slog.Info("subscription closed", "subscription_id", sub.id)
}

// Active reports the id of the live subscription.
func (s *Subscriber) Active() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ended() {
		return "", false
	}
	return s.active.id, true
}

// Query returns the query of the live subscription.
func (s *Subscriber) Query() (query.Query, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.ended() {
		return query.Query{}, false
	}
	return s.active.query, true
}

// Err returns the error that ended the last subscription, or nil.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return nil
	}
	last.errMu.Lock()
	defer last.errMu.Unlock()
	return last.err
}

// read forwards updates to the sink, one batch per update, in arrival order.
func (s *Subscriber) read(sub *subscription) {
	defer close(sub.done)
	defer s.metrics.LiveSubscriptions.Dec()

	for upd := range sub.stream.Updates() {
		ent, ok := narrow(sub.query, upd)
		if !ok {
			slog.Debug("dropping update",
				"subscription_id", sub.id,
				"entity_id", upd.ID,
			)
			continue
		}
		accepted := s.sink.Enqueue(engine.Batch{
			Kind:       engine.BatchUpdate,
			Entities:   []model.Entity{ent},
			Generation: sub.generation,
			Source:     sub.id,
		})
		if !accepted {
			slog.Warn("engine stopped, dropping update", "subscription_id", sub.id, "entity_id", ent.ID)
		}
	}

	if err := sub.stream.Err(); err != nil {
		slog.Warn("subscription ended", "subscription_id", sub.id, "error", err)
		// not s.mu: closeLocked holds it while waiting for this goroutine
		sub.errMu.Lock()
		sub.err = err
		sub.errMu.Unlock()
		if s.onError != nil {
			s.onError(sub.id, err)
		}
	}
}

// narrow keeps the models the query asked for. Updates without a positive
// entity id or without any requested model are dropped. The clause is not
// re-checked: an update carries only the models that changed, so a clause
// over another model of the same entity cannot be evaluated here.
func narrow(q query.Query, upd model.Entity) (model.Entity, bool) {
	if !ir.IsPositive(ir.String(upd.ID)) || len(upd.Models) == 0 {
		return model.Entity{}, false
	}
	if len(q.EntityModels) == 0 {
		return upd, true
	}
	out := model.Entity{ID: upd.ID, Keys: upd.Keys, Models: make(model.Bag, len(upd.Models))}
	for name, obj := range upd.Models {
		if slices.Contains(q.EntityModels, name) {
			out.Models[name] = obj
		}
	}
	return out, len(out.Models) > 0
}
