// Package entitystore is the in-process cache of entities: entityId to
// model bag, with merge-not-replace mutation.
//
// Thread-safety model:
//   - read methods (GetEntity, GetAllEntities, Len, Snapshot): safe from any goroutine
//   - mutators (SetEntities, UpdateEntity, Reset): called only by the engine
//     loop, so merges never interleave
//
// Every read returns deep copies; consumers cannot corrupt the cache.
package entitystore

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/duelsync/internal/ir"
	"github.com/roach88/duelsync/internal/model"
)

// ChangeKind tells observers which mutator produced a change.
type ChangeKind int

const (
	ChangeSet ChangeKind = iota + 1
	ChangeUpdate
	ChangeReset
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeSet:
		return "set"
	case ChangeUpdate:
		return "update"
	case ChangeReset:
		return "reset"
	}
	return "unknown"
}

// Change describes one applied merge. IDs and Models are sorted and unique;
// Models lists the model names carried by the incoming payload.
type Change struct {
	Seq    int64
	Kind   ChangeKind
	IDs    []string
	Models []string
}

// Touches reports whether the change carried any of the named models.
// A reset touches everything.
func (c Change) Touches(models ...string) bool {
	if c.Kind == ChangeReset {
		return true
	}
	for _, m := range models {
		if _, found := slices.BinarySearch(c.Models, m); found {
			return true
		}
	}
	return false
}

// Store is the entity cache.
type Store struct {
	mu       sync.RWMutex
	entities map[string]model.Entity
	seq      int64

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObs   int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		entities:  make(map[string]model.Entity),
		observers: make(map[int]func(Change)),
	}
}

// SetEntities merges a batch from the fetcher. New ids are inserted; known
// ids get the incoming models written over their bag, model by model.
// Models absent from the payload are never deleted. Within a batch a
// later occurrence of an id wins.
//
// Returns the applied change and false when nothing was merged.
func (s *Store) SetEntities(entities []model.Entity) (Change, bool) {
	return s.merge(ChangeSet, entities)
}

// UpdateEntity merges one entity from the subscriber with the same policy
// as SetEntities. An entity with no models is a logged no-op.
func (s *Store) UpdateEntity(e model.Entity) (Change, bool) {
	return s.merge(ChangeUpdate, []model.Entity{e})
}

func (s *Store) merge(kind ChangeKind, entities []model.Entity) (Change, bool) {
	ids := make(map[string]bool, len(entities))
	models := make(map[string]bool)

	s.mu.Lock()
	for _, in := range entities {
		if in.ID == "" {
			slog.Warn("entity without id, ignoring", "kind", kind.String())
			continue
		}
		if len(in.Models) == 0 {
			slog.Debug("entity has no models, ignoring", "entity_id", in.ID, "kind", kind.String())
			continue
		}

		cur, exists := s.entities[in.ID]
		if !exists {
			cur = model.Entity{ID: in.ID, Models: make(model.Bag, len(in.Models))}
		}
		if len(in.Keys) > 0 {
			cur.Keys = []ir.Value(ir.Array(in.Keys).Clone())
		}
		for name, obj := range in.Models {
			cur.Models[name] = obj.Clone()
			models[name] = true
		}
		s.entities[in.ID] = cur
		ids[in.ID] = true
	}
	if len(ids) == 0 {
		s.mu.Unlock()
		return Change{}, false
	}
	s.seq++
	change := Change{Seq: s.seq, Kind: kind, IDs: sortedKeys(ids), Models: sortedKeys(models)}
	s.mu.Unlock()

	s.notify(change)
	return change, true
}

// Reset clears every entity. Used on account, network or session teardown.
func (s *Store) Reset() Change {
	s.mu.Lock()
	s.entities = make(map[string]model.Entity)
	s.seq++
	change := Change{Seq: s.seq, Kind: ChangeReset}
	s.mu.Unlock()

	s.notify(change)
	return change
}

// GetEntity returns a copy of one entity.
func (s *Store) GetEntity(id string) (model.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, false
	}
	return e.Clone(), true
}

// GetAllEntities returns copies of every entity, sorted by id.
func (s *Store) GetAllEntities() []model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Entity, 0, len(s.entities))
	for _, id := range s.sortedIDs() {
		out = append(out, s.entities[id].Clone())
	}
	return out
}

// GetEntities returns copies of the known entities among ids, in input
// order. Unknown ids are skipped.
func (s *Store) GetEntities(ids []string) []model.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entities[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// Len returns the number of cached entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Seq returns the sequence number of the last applied change.
func (s *Store) Seq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Snapshot renders the whole store as canonical JSON:
//
//	{"<entityId>": {"keys": [...], "models": {...}}, ...}
//
// Two stores holding the same data produce byte-equal snapshots.
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.RLock()
	root := make(ir.Object, len(s.entities))
	for id, e := range s.entities {
		models := make(ir.Object, len(e.Models))
		for name, obj := range e.Models {
			models[name] = obj
		}
		entry := ir.Object{"models": models}
		if len(e.Keys) > 0 {
			entry["keys"] = ir.Array(e.Keys)
		}
		root[id] = entry
	}
	// marshal under the read lock: model objects are shared, not copied
	data, err := ir.MarshalCanonical(root)
	s.mu.RUnlock()
	return data, err
}

// Subscribe registers fn to run after every applied change. fn runs on the
// mutating goroutine and must not call mutators. The returned func
// unregisters it.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, id)
			s.obsMu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.obsMu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// sortedIDs must be called with mu held.
func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
