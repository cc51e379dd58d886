// Package feed is the client side of the realtime simulation feed: a
// self-healing WebSocket session, a last-write-wins snapshot store and a
// dual-path intervention dispatcher.
package feed

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"worldsim.in/internal/protocol"
)

// retryDelay is the fixed wait between reconnect attempts. There is no
// backoff and no retry cap: a session retries until closed.
const retryDelay = 3000 * time.Millisecond

type Config struct {
	// URL of the feed endpoint, e.g. ws://localhost:8000/ws.
	URL string

	Logger *log.Logger
}

// Status is a point-in-time view of the session for callers that poll.
type Status struct {
	Connected       bool
	URL             string
	LastConnectedAt time.Time
	LastError       string

	FramesApplied uint64
	FramesIgnored uint64
	FramesDropped uint64
}

// Session owns exactly one socket at a time. A background goroutine runs
// the connect / read / reconnect cycle; decoded snapshots land in the
// Store. All transport failures feed the retry loop and never escape.
type Session struct {
	cfg   Config
	store *Store

	mu sync.RWMutex

	startOnce sync.Once
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}

	connected       bool
	lastConnectedAt time.Time
	lastErr         string

	conn    *websocket.Conn
	writeMu sync.Mutex

	framesApplied uint64
	framesIgnored uint64
	framesDropped uint64

	// retryAfter stands in for time.After so tests can drive the
	// reconnect clock.
	retryAfter func(time.Duration) <-chan time.Time
}

func New(cfg Config) *Session {
	return &Session{
		cfg:        cfg,
		store:      NewStore(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		retryAfter: time.After,
	}
}

// Dial builds a session and starts it.
func Dial(cfg Config) *Session {
	s := New(cfg)
	s.Start()
	return s
}

func (s *Session) Start() {
	s.startOnce.Do(func() {
		go s.run()
	})
}

// Close tears the session down. Idempotent; safe to race with a pending
// reconnect. When it returns the run goroutine has exited and no further
// dial will happen.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
		// Wake any blocking ReadMessage promptly.
		s.Disconnect()
		<-s.done
	})
}

// Disconnect drops the active socket, if any. The run loop observes the
// read error and schedules a reconnect unless the session is closing.
func (s *Session) Disconnect() {
	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
}

// Store returns the snapshot store fed by this session.
func (s *Session) Store() *Store { return s.store }

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Connected:       s.connected,
		URL:             s.cfg.URL,
		LastConnectedAt: s.lastConnectedAt,
		LastError:       s.lastErr,
		FramesApplied:   s.framesApplied,
		FramesIgnored:   s.framesIgnored,
		FramesDropped:   s.framesDropped,
	}
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			s.Disconnect()
			return
		default:
		}

		err := s.connectAndReadLoop()
		if err == nil {
			// Stop observed inside the read loop.
			return
		}
		s.mu.Lock()
		s.connected = false
		s.lastErr = err.Error()
		s.mu.Unlock()
		s.logf("feed: disconnected: %v (retry in %s)", err, retryDelay)

		select {
		case <-s.stop:
			s.Disconnect()
			return
		case <-s.retryAfter(retryDelay):
		}
	}
}

// connectAndReadLoop dials once and reads until the socket dies. A nil
// return means the stop channel fired; any error means retry.
func (s *Session) connectAndReadLoop() error {
	conn, resp, err := websocket.DefaultDialer.Dial(s.cfg.URL, nil)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	now := time.Now()
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.lastConnectedAt = now
	s.lastErr = ""
	s.mu.Unlock()
	s.logf("feed: connected to %s", s.cfg.URL)

	for {
		select {
		case <-s.stop:
			_ = conn.Close()
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		s.handleFrame(msg)
	}
}

// handleFrame routes one inbound frame. Unknown types are ignored,
// malformed payloads are dropped; neither ends the connection.
func (s *Session) handleFrame(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.countDropped()
		s.logf("feed: drop malformed frame: %v", err)
		return
	}

	switch base.Type {
	case protocol.TypeInit, protocol.TypeTick:
		var tm protocol.TickMsg
		if err := json.Unmarshal(msg, &tm); err != nil {
			s.countDropped()
			s.logf("feed: drop bad %s frame: %v", base.Type, err)
			return
		}
		if len(tm.Regions) == 0 {
			// A bare init announces connectivity only; the store
			// keeps whatever it had.
			return
		}
		s.store.Apply(&tm.Snapshot)
		s.mu.Lock()
		s.framesApplied++
		s.mu.Unlock()
	default:
		s.mu.Lock()
		s.framesIgnored++
		s.mu.Unlock()
	}
}

// writeIntervene pushes an intervene frame down the live socket. Callers
// treat failure as advisory; the HTTP path is the reliable one.
func (s *Session) writeIntervene(iv protocol.Intervention) error {
	b, err := json.Marshal(protocol.InterveneMsg{
		Type:    protocol.TypeIntervene,
		Payload: iv,
	})
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return errNotConnected
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) countDropped() {
	s.mu.Lock()
	s.framesDropped++
	s.mu.Unlock()
}

func (s *Session) logf(format string, args ...any) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Printf(format, args...)
	}
}
