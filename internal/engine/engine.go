package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/duelsync/internal/entitystore"
	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
)

// Engine is the single-writer merge loop.
//
// Thread-safety model:
//   - Enqueue(), Submit(), Flush(): safe from any goroutine
//   - Generation(), Advance(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//
// INVARIANTS:
//   - The store is mutated only from the Run goroutine
//   - Batches are applied in enqueue order
//   - A batch stamped with a superseded generation is never merged
type Engine struct {
	store      *entitystore.Store
	registry   *model.Registry
	metrics    *metrics.Collector
	generation *Clock
	queue      *batchQueue
	stopped    chan struct{}
}

// EngineOption allows configuration of engine collaborators.
type EngineOption func(*Engine)

// WithRegistry validates every incoming model against r; malformed models
// are dropped before the merge. Without a registry nothing is dropped.
func WithRegistry(r *model.Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithMetrics records merge metrics on m instead of a private collector.
func WithMetrics(m *metrics.Collector) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock starts the engine at a pre-configured generation.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.generation = c
	}
}

// New creates an Engine writing into s.
func New(s *entitystore.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      s,
		generation: NewClock(),
		queue:      newBatchQueue(),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	return e
}

// Store returns the store the engine writes into.
func (e *Engine) Store() *entitystore.Store {
	return e.store
}

// Metrics returns the collector the engine records on.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Generation returns the current generation.
func (e *Engine) Generation() int64 {
	return e.generation.Current()
}

// Advance supersedes every batch produced so far and returns the new
// generation. Call it before switching the active query.
func (e *Engine) Advance() int64 {
	gen := e.generation.Next()
	slog.Debug("generation advanced", "generation", gen)
	return gen
}

// Enqueue submits a batch without waiting for it to be applied.
// Returns false if the engine has stopped.
func (e *Engine) Enqueue(b Batch) bool {
	b.done = nil
	return e.queue.Enqueue(b)
}

// Submit enqueues a batch and waits until the loop has applied or
// rejected it. A rejected batch returns a *RuntimeError.
func (e *Engine) Submit(ctx context.Context, b Batch) error {
	b.done = make(chan error, 1)
	if !e.queue.Enqueue(b) {
		return newStoppedError(b)
	}

	select {
	case err := <-b.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		// Run replies to every queued batch before closing stopped.
		select {
		case err := <-b.done:
			return err
		default:
			return newStoppedError(b)
		}
	}
}

// Flush waits until every batch enqueued before the call has been applied.
func (e *Engine) Flush(ctx context.Context) error {
	return e.Submit(ctx, Batch{Kind: BatchBarrier})
}

// QueueLen returns the number of batches waiting to be applied.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run is the main loop. It applies batches until ctx is cancelled or Stop
// is called. After Stop, batches already queued are still applied; after
// cancellation they are rejected with ErrCodeStopped.
//
// A failed batch is logged and the loop continues: one bad page must never
// stall live updates.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "generation", e.Generation())
	defer close(e.stopped)

	for {
		if ctx.Err() != nil {
			return e.abort(ctx)
		}

		b, ok := e.queue.TryDequeue()
		if ok {
			err := e.apply(b)
			if err != nil && !IsStaleError(err) {
				logBatchError(b, err)
			}
			b.reply(err)
			continue
		}

		select {
		case <-ctx.Done():
			return e.abort(ctx)

		case <-e.queue.Wait():
			// The signal channel closes with the queue, so this case also
			// fires once Stop has been called.
			if e.queue.Len() == 0 && e.queueClosed() {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// abort closes the queue and rejects everything still in it.
func (e *Engine) abort(ctx context.Context) error {
	slog.Info("engine stopping: context cancelled", "pending", e.queue.Len())
	e.queue.Close()
	for _, pending := range e.queue.Drain() {
		pending.reply(newStoppedError(pending))
	}
	return ctx.Err()
}

// Stop gracefully shuts down the engine.
// Closes the batch queue, which will cause Run() to return once drained.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Done is closed when Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.stopped
}

func (e *Engine) queueClosed() bool {
	e.queue.mu.Lock()
	defer e.queue.mu.Unlock()
	return e.queue.closed
}

// apply runs one batch against the store.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) apply(b Batch) error {
	if b.Kind == BatchBarrier {
		return nil
	}

	if b.Generation != 0 {
		if cur := e.Generation(); b.Generation != cur {
			e.metrics.StaleBatches.Inc()
			slog.Debug("discarding stale batch",
				"kind", b.Kind.String(),
				"source", b.Source,
				"generation", b.Generation,
				"current", cur,
				"entities", len(b.Entities),
			)
			return NewStaleError(b.Source, b.Generation, cur)
		}
	}

	switch b.Kind {
	case BatchReset:
		change := e.store.Reset()
		e.metrics.StoreEntities.Set(0)
		slog.Info("store reset", "seq", change.Seq, "source", b.Source)
		return nil

	case BatchSet:
		clean := e.sanitize(b.Entities)
		if change, ok := e.store.SetEntities(clean); ok {
			e.recordMerge(change)
		}
		return nil

	case BatchUpdate:
		for _, ent := range e.sanitize(b.Entities) {
			if change, ok := e.store.UpdateEntity(ent); ok {
				e.recordMerge(change)
			}
		}
		return nil

	default:
		return &RuntimeError{
			Code:       ErrCodeInvalidBatch,
			Message:    fmt.Sprintf("unknown batch kind: %d", b.Kind),
			Source:     b.Source,
			Generation: b.Generation,
		}
	}
}

// sanitize drops malformed models. An entity left without models is
// dropped whole; it would be a no-op merge anyway.
func (e *Engine) sanitize(entities []model.Entity) []model.Entity {
	if e.registry == nil {
		return entities
	}

	out := make([]model.Entity, 0, len(entities))
	for _, ent := range entities {
		clean, problems := e.registry.Sanitize(ent)
		for _, p := range problems {
			name := "unknown"
			var me *model.MalformedError
			if errors.As(p, &me) {
				name = me.Model
			}
			e.metrics.MalformedDropped.WithLabelValues(name).Inc()
			slog.Warn("dropping malformed model",
				"entity_id", ent.ID,
				"model", name,
				"error", p,
			)
		}
		if len(clean.Models) == 0 {
			continue
		}
		out = append(out, clean)
	}
	return out
}

func (e *Engine) recordMerge(change entitystore.Change) {
	e.metrics.EntitiesMerged.WithLabelValues(change.Kind.String()).Add(float64(len(change.IDs)))
	e.metrics.StoreEntities.Set(float64(e.store.Len()))
}

// logBatchError logs a batch failure with enough context to replay it.
func logBatchError(b Batch, err error) {
	ids := make([]string, 0, len(b.Entities))
	for _, ent := range b.Entities {
		ids = append(ids, ent.ID)
	}
	slog.Error("batch processing failed",
		"error", err,
		"kind", b.Kind.String(),
		"source", b.Source,
		"generation", b.Generation,
		"entity_ids", ids,
	)
}
