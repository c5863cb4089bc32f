package torii

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/duelsync/internal/metrics"
	"github.com/roach88/duelsync/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 << 20
)

// ErrStreamEnded reports that the server closed the subscription.
var ErrStreamEnded = errors.New("torii: stream ended by server")

type stream struct {
	conn    *websocket.Conn
	updates chan model.Entity
	done    chan struct{} // closed by Close
	stopped chan struct{} // closed when readPump exits
	metrics *metrics.Collector
	seen    int // updates received, for diagnostics

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func newStream(conn *websocket.Conn, buffer int, m *metrics.Collector) *stream {
	return &stream{
		conn:    conn,
		metrics: m,
		updates: make(chan model.Entity, buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (s *stream) Updates() <-chan model.Entity { return s.updates }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close sends a close frame, drops the connection and waits for the read
// pump to stop.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		s.conn.Close()
	})
	<-s.stopped
	return nil
}

func (s *stream) closing() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// readPump decodes server messages until the connection ends.
func (s *stream) readPump() {
	defer func() {
		close(s.updates)
		close(s.stopped)
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		var msg streamEnvelope
		if err := s.conn.ReadJSON(&msg); err != nil {
			switch {
			case s.closing():
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				s.fail(ErrStreamEnded)
			default:
				slog.Warn("torii stream read failed", "error", err)
				s.fail(err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case msgUpdate:
			index := s.seen
			s.seen++
			if len(msg.Entity) == 0 {
				continue
			}
			e, ok := decodeEntity(msg.Entity, index, s.metrics)
			if !ok {
				continue
			}
			select {
			case s.updates <- e:
			case <-s.done:
				return
			}
		case msgError:
			s.fail(&RemoteError{Message: msg.Message})
			s.conn.Close()
			return
		default:
			slog.Debug("torii stream: unknown message", "type", msg.Type)
		}
	}
}
