package testutil

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// FakeIndexer is an in-memory indexer.Client.
//
// Rows are served in entity-id order; the page size is the query limit and
// cursors are decimal offsets. Failures can be scripted per GetPage call.
// Push merges an update into the backing data and delivers it to every
// open stream whose query matches.
//
// Thread-safe: all methods may be called concurrently.
type FakeIndexer struct {
	mu        sync.Mutex
	entities  map[string]model.Entity
	pageCalls int
	failures  map[int]error
	gates     map[int]chan struct{}
	subErr    error

	streams        map[int]*FakeStream
	nextStream     int
	subscribeCalls int
	maxOpen        int
}

// NewFakeIndexer creates an indexer holding entities.
func NewFakeIndexer(entities ...model.Entity) *FakeIndexer {
	f := &FakeIndexer{
		entities: make(map[string]model.Entity),
		failures: make(map[int]error),
		gates:    make(map[int]chan struct{}),
		streams:  make(map[int]*FakeStream),
	}
	f.Put(entities...)
	return f
}

// Put merges entities into the backing data without notifying streams.
func (f *FakeIndexer) Put(entities ...model.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entities {
		f.put(e)
	}
}

func (f *FakeIndexer) put(e model.Entity) model.Entity {
	cur, ok := f.entities[e.ID]
	if !ok {
		cur = model.Entity{ID: e.ID, Models: make(model.Bag)}
	}
	if len(e.Keys) > 0 {
		cur.Keys = e.Keys
	}
	for name, obj := range e.Models {
		cur.Models[name] = obj.Clone()
	}
	f.entities[e.ID] = cur
	return cur.Clone()
}

// FailPage makes the n-th GetPage call (1-based) return err.
func (f *FakeIndexer) FailPage(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[n] = err
}

// HoldPage makes the n-th GetPage call block until the returned release
// func is called (or its context ends).
func (f *FakeIndexer) HoldPage(n int) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[n] = gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// FailSubscribe makes every later Subscribe call return err.
func (f *FakeIndexer) FailSubscribe(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subErr = err
}

// GetPage implements indexer.Client.
func (f *FakeIndexer) GetPage(ctx context.Context, q query.Query, cursor string) (indexer.Page, error) {
	f.mu.Lock()
	f.pageCalls++
	call := f.pageCalls
	failure := f.failures[call]
	gate := f.gates[call]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return indexer.Page{}, ctx.Err()
		}
	}
	if failure != nil {
		return indexer.Page{}, failure
	}
	if err := ctx.Err(); err != nil {
		return indexer.Page{}, err
	}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return indexer.Page{}, fmt.Errorf("fake indexer: bad cursor %q", cursor)
		}
		offset = n
	}
	size := q.Limit
	if size <= 0 {
		size = query.DefaultLimit
	}

	f.mu.Lock()
	ids := make([]string, 0, len(f.entities))
	for id := range f.entities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var matched []model.Entity
	for _, id := range ids {
		if out, ok := query.Apply(q, f.entities[id]); ok {
			matched = append(matched, out)
		}
	}
	f.mu.Unlock()

	if offset >= len(matched) {
		return indexer.Page{}, nil
	}
	end := min(offset+size, len(matched))
	page := indexer.Page{Rows: matched[offset:end]}
	if end < len(matched) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// Subscribe implements indexer.Client.
func (f *FakeIndexer) Subscribe(ctx context.Context, q query.Query) (indexer.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribeCalls++
	if f.subErr != nil {
		return nil, f.subErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := f.nextStream
	f.nextStream++
	s := &FakeStream{
		query:   q,
		updates: make(chan model.Entity, 256),
		done:    make(chan struct{}),
	}
	s.onClose = func() {
		f.mu.Lock()
		delete(f.streams, id)
		f.mu.Unlock()
	}
	f.streams[id] = s
	f.maxOpen = max(f.maxOpen, len(f.streams))
	return s, nil
}

// Push merges the update into the backing data and delivers it to every
// matching open stream. The delivered entity carries only the models of
// the update. Returns the number of streams it was delivered to.
func (f *FakeIndexer) Push(update model.Entity) int {
	f.mu.Lock()
	full := f.put(update)
	streams := make([]*FakeStream, 0, len(f.streams))
	keys := make([]int, 0, len(f.streams))
	for k := range f.streams {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		streams = append(streams, f.streams[k])
	}
	f.mu.Unlock()

	delivered := 0
	for _, s := range streams {
		if !query.Match(s.query.Clause, full) {
			continue
		}
		out, ok := query.Apply(s.query.WithClause(nil), update)
		if !ok {
			continue
		}
		if s.deliver(out) {
			delivered++
		}
	}
	return delivered
}

// EndStreams ends every open stream with err, as a dropped connection would.
func (f *FakeIndexer) EndStreams(err error) {
	f.mu.Lock()
	streams := make([]*FakeStream, 0, len(f.streams))
	for _, s := range f.streams {
		streams = append(streams, s)
	}
	f.mu.Unlock()

	for _, s := range streams {
		s.end(err)
	}
}

// PageCalls returns the number of GetPage calls so far.
func (f *FakeIndexer) PageCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls
}

// SubscribeCalls returns the number of Subscribe calls so far.
func (f *FakeIndexer) SubscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

// OpenStreams returns the number of streams not yet closed.
func (f *FakeIndexer) OpenStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// MaxOpenStreams returns the highest number of simultaneously open streams.
func (f *FakeIndexer) MaxOpenStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

// FakeStream is the indexer.Stream returned by FakeIndexer.
type FakeStream struct {
	query   query.Query
	updates chan model.Entity
	done    chan struct{}
	onClose func()

	mu     sync.Mutex
	ended  bool
	err    error
	sendMu sync.Mutex
}

// Updates implements indexer.Stream.
func (s *FakeStream) Updates() <-chan model.Entity {
	return s.updates
}

// Err implements indexer.Stream.
func (s *FakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements indexer.Stream.
func (s *FakeStream) Close() error {
	s.end(nil)
	return nil
}

// Query returns the query the stream was opened with.
func (s *FakeStream) Query() query.Query {
	return s.query
}

func (s *FakeStream) deliver(e model.Entity) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return false
	}
	select {
	case s.updates <- e:
		return true
	case <-s.done:
		return false
	}
}

func (s *FakeStream) end(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.err = err
	close(s.done)
	s.mu.Unlock()

	// no deliver is mid-send once sendMu is held
	s.sendMu.Lock()
	close(s.updates)
	s.sendMu.Unlock()

	s.onClose()
}
