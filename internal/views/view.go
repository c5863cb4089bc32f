// Package views holds the domain query stores: lighter, denormalized rows
// derived from the entity cache, with filter and sort logic per domain.
//
// A row is a pure function of its entity's model bag. It exists if and
// only if the models it requires are present and well-formed, and it is
// recomputed whenever a merge touches one of the models it reads.
package views

import (
	"slices"
	"sync"

	"github.com/roach88/duelsync/internal/entitystore"
	"github.com/roach88/duelsync/internal/model"
)

// Source is the read side of the entity cache.
type Source interface {
	GetEntities(ids []string) []model.Entity
	GetAllEntities() []model.Entity
}

// DeriveFunc builds the row of one entity. It returns false when the
// entity does not (yet) qualify for the view.
type DeriveFunc[R any] func(model.Entity) (R, bool)

// View is a map of derived rows keyed by entity id.
//
// Thread-safety: Apply and Rebuild run on the engine goroutine through the
// store observer; reads may come from any goroutine.
type View[R any] struct {
	name   string
	models []string
	derive DeriveFunc[R]

	mu      sync.RWMutex
	rows    map[string]R
	version int64

	obsMu     sync.Mutex
	observers map[int]func(version int64)
	nextObs   int
}

// NewView creates an empty view that reads models.
func NewView[R any](name string, models []string, derive DeriveFunc[R]) *View[R] {
	return &View[R]{
		name:      name,
		models:    slices.Clone(models),
		derive:    derive,
		rows:      make(map[string]R),
		observers: make(map[int]func(int64)),
	}
}

// Name returns the view's name.
func (v *View[R]) Name() string {
	return v.name
}

// Models returns the models the view reads.
func (v *View[R]) Models() []string {
	return slices.Clone(v.models)
}

// Attach keeps the view in step with store and derives every row already
// cached. Attach before the engine starts merging; the returned func
// detaches the view.
func (v *View[R]) Attach(store *entitystore.Store) (detach func()) {
	cancel := store.Subscribe(func(c entitystore.Change) {
		v.Apply(store, c)
	})
	v.Rebuild(store)
	return cancel
}

// Apply recomputes the rows of the entities a change touched. Changes that
// carry none of the view's models are ignored; a reset clears the view.
func (v *View[R]) Apply(src Source, c entitystore.Change) {
	if c.Kind == entitystore.ChangeReset {
		v.mu.Lock()
		v.rows = make(map[string]R)
		v.version++
		version := v.version
		v.mu.Unlock()
		v.notify(version)
		return
	}
	if !c.Touches(v.models...) {
		return
	}

	entities := src.GetEntities(c.IDs)

	v.mu.Lock()
	for _, e := range entities {
		if row, ok := v.derive(e); ok {
			v.rows[e.ID] = row
		} else {
			delete(v.rows, e.ID)
		}
	}
	v.version++
	version := v.version
	v.mu.Unlock()
	v.notify(version)
}

// Rebuild recomputes every row from src.
func (v *View[R]) Rebuild(src Source) {
	rows := make(map[string]R)
	for _, e := range src.GetAllEntities() {
		if row, ok := v.derive(e); ok {
			rows[e.ID] = row
		}
	}

	v.mu.Lock()
	v.rows = rows
	v.version++
	version := v.version
	v.mu.Unlock()
	v.notify(version)
}

// Get returns the row of one entity.
func (v *View[R]) Get(id string) (R, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	row, ok := v.rows[id]
	return row, ok
}

// Len returns the number of rows.
func (v *View[R]) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.rows)
}

// Version increases with every recomputation.
func (v *View[R]) Version() int64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Entry is one row with its entity id.
type Entry[R any] struct {
	ID  string
	Row R
}

// Entries returns every row, sorted by entity id.
func (v *View[R]) Entries() []Entry[R] {
	v.mu.RLock()
	out := make([]Entry[R], 0, len(v.rows))
	for id, row := range v.rows {
		out = append(out, Entry[R]{ID: id, Row: row})
	}
	v.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entry[R]) int { return compareStrings(a.ID, b.ID) })
	return out
}

// Subscribe registers fn to run after every recomputation, on the
// goroutine that applied it. The returned func unregisters it.
func (v *View[R]) Subscribe(fn func(version int64)) (cancel func()) {
	v.obsMu.Lock()
	id := v.nextObs
	v.nextObs++
	v.observers[id] = fn
	v.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.obsMu.Lock()
			delete(v.observers, id)
			v.obsMu.Unlock()
		})
	}
}

func (v *View[R]) notify(version int64) {
	v.obsMu.Lock()
	ids := make([]int, 0, len(v.observers))
	for id := range v.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(int64), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, v.observers[id])
	}
	v.obsMu.Unlock()

	for _, fn := range fns {
		fn(version)
	}
}
