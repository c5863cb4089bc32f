// Package engine is the single writer of the entity cache.
//
// Fetchers and subscribers never touch the Entity Store directly. They hand
// batches to the engine, which applies them one at a time from its Run loop:
//
// Batch Processing Flow:
// 1. Batches enqueued to a FIFO queue (set, update, reset or barrier)
// 2. Engine.Run() dequeues batches one at a time
// 3. Batches stamped with a superseded generation are discarded
// 4. Malformed models are dropped against the schema registry
// 5. The remaining entities are merged into the store, whose observers
//    (the domain views) recompute synchronously
//
// Because every merge happens on the Run goroutine, no merge can observe
// another one half-applied. Readers use the store's own locking.
//
// GENERATIONS:
//
// The generation is a monotonic counter advanced whenever the active query
// changes (table switch, account switch, reset). A fetch snapshots the
// generation when it starts and stamps every batch with it; a batch whose
// generation is no longer current arrives too late and is dropped, so a
// superseded query can never resurrect stale state.
package engine
