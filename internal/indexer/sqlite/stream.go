package sqlite

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/roach88/duelsync/internal/indexer"
	"github.com/roach88/duelsync/internal/model"
	"github.com/roach88/duelsync/internal/query"
)

// ErrSlowConsumer ends a stream whose buffer filled up.
var ErrSlowConsumer = errors.New("sqlite indexer: subscriber fell behind")

// Subscribe implements indexer.Client. The stream receives every later
// write whose entity (after the write) matches the query clause, narrowed
// to the query's models.
func (ix *Indexer) Subscribe(ctx context.Context, q query.Query) (indexer.Stream, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil, indexer.ErrClosed
	}

	id := ix.nextID
	ix.nextID++
	s := &stream{
		query:   q,
		updates: make(chan model.Entity, ix.buffer),
		done:    make(chan struct{}),
	}
	s.onEnd = func() {
		ix.mu.Lock()
		delete(ix.streams, id)
		ix.mu.Unlock()
	}
	ix.streams[id] = s
	return s, nil
}

// publish delivers one written entity to every matching stream.
func (ix *Indexer) publish(ctx context.Context, update model.Entity) error {
	ix.mu.Lock()
	streams := ix.snapshotStreamsLocked()
	ix.mu.Unlock()
	if len(streams) == 0 {
		return nil
	}

	full, ok, err := ix.Entity(ctx, update.ID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	for _, s := range streams {
		if !query.Match(s.query.Clause, full) {
			continue
		}
		out, ok := query.Apply(s.query.WithClause(nil), update)
		if !ok {
			continue
		}
		if !s.deliver(out) {
			s.end(ErrSlowConsumer)
		}
	}
	return nil
}

// snapshotStreamsLocked returns the open streams in subscription order.
// Requires ix.mu.
func (ix *Indexer) snapshotStreamsLocked() []*stream {
	ids := make([]int, 0, len(ix.streams))
	for id := range ix.streams {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*stream, len(ids))
	for i, id := range ids {
		out[i] = ix.streams[id]
	}
	return out
}

// OpenStreams returns the number of live subscriptions.
func (ix *Indexer) OpenStreams() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.streams)
}

type stream struct {
	query   query.Query
	updates chan model.Entity
	done    chan struct{}
	onEnd   func()

	mu    sync.Mutex
	ended bool
	err   error

	// sendMu keeps end from closing updates mid-send.
	sendMu sync.Mutex
}

func (s *stream) Updates() <-chan model.Entity { return s.updates }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.end(nil)
	return nil
}

// deliver never blocks. It returns false when the buffer is full.
func (s *stream) deliver(e model.Entity) bool {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	ended := s.ended
	s.mu.Unlock()
	if ended {
		return true
	}
	select {
	case s.updates <- e:
		return true
	default:
		return false
	}
}

func (s *stream) end(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.err = err
	close(s.done)
	s.mu.Unlock()

	s.sendMu.Lock()
	close(s.updates)
	s.sendMu.Unlock()

	s.onEnd()
}
