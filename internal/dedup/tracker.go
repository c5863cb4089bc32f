// Package dedup tracks which ids have already been fetched, per purpose,
// so id-keyed history fetches are issued at most once per session.
package dedup

import (
	"sync"

	"github.com/roach88/duelsync/internal/ir"
)

// Tracker is the fetch ledger. A purpose ("challenge-rewards-by-duelist",
// "duelists-by-id") partitions the ledger: the same id may be fetched once
// for each purpose.
//
// Ids are compared in normalized form, so "7", "0x7" and "0x07" are the
// same id. Zero and empty ids are never fetched.
//
// Thread-safe: every method may be called concurrently.
type Tracker struct {
	mu       sync.Mutex
	resolved map[string]map[string]bool // purpose -> normalized id
	inFlight map[string]map[string]bool
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		resolved: make(map[string]map[string]bool),
		inFlight: make(map[string]map[string]bool),
	}
}

// GetNewIDs returns the requested ids never committed for purpose, in
// request order and without duplicates. It does not modify the ledger.
func (t *Tracker) GetNewIDs(purpose string, requested []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.filter(purpose, requested, false)
}

// Claim is GetNewIDs for callers about to fetch: it also skips ids already
// in flight for purpose and marks the returned ids in flight. Concurrent
// overlapping claims therefore never return the same id twice.
//
// Every claimed id must later be passed to Commit (success) or Release
// (failure).
func (t *Tracker) Claim(purpose string, requested []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := t.filter(purpose, requested, true)
	if len(ids) == 0 {
		return ids
	}
	flight := t.inFlight[purpose]
	if flight == nil {
		flight = make(map[string]bool)
		t.inFlight[purpose] = flight
	}
	for _, id := range ids {
		flight[normalize(id)] = true
	}
	return ids
}

// Commit records ids as resolved for purpose. Call it only after the fetch
// succeeded and its entities were merged; committing before the round
// trip would lose the ids for good if the fetch failed.
func (t *Tracker) Commit(purpose string, ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	done := t.resolved[purpose]
	if done == nil {
		done = make(map[string]bool)
		t.resolved[purpose] = done
	}
	flight := t.inFlight[purpose]
	for _, id := range ids {
		key := normalize(id)
		if key == "" {
			continue
		}
		done[key] = true
		delete(flight, key)
	}
}

// Release returns claimed ids to the pool after a failed fetch.
func (t *Tracker) Release(purpose string, ids []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	flight := t.inFlight[purpose]
	for _, id := range ids {
		delete(flight, normalize(id))
	}
}

// Reset clears every purpose. Used on session teardown.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resolved = make(map[string]map[string]bool)
	t.inFlight = make(map[string]map[string]bool)
}

// Len returns the number of resolved ids for purpose.
func (t *Tracker) Len(purpose string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.resolved[purpose])
}

// InFlight returns the number of claimed, unsettled ids for purpose.
func (t *Tracker) InFlight(purpose string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight[purpose])
}

// filter must be called with mu held.
func (t *Tracker) filter(purpose string, requested []string, skipInFlight bool) []string {
	done := t.resolved[purpose]
	flight := t.inFlight[purpose]
	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, id := range requested {
		key := normalize(id)
		if key == "" || seen[key] || done[key] {
			continue
		}
		if skipInFlight && flight[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}

// normalize maps an id to its ledger key; "" means not fetchable.
func normalize(id string) string {
	v := ir.String(id)
	if _, ok := ir.Felt(v); ok {
		if !ir.IsPositive(v) {
			return ""
		}
		return ir.FeltHex(v)
	}
	return id
}
