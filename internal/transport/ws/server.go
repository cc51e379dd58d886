package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"worldsim.in/internal/protocol"
	"worldsim.in/internal/sim/world"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 1 << 20

	// outBuffer rides out short client stalls; the world drops the
	// oldest frame when it fills, so a slow reader only loses history.
	outBuffer = 32
)

// Server upgrades /ws requests and bridges sockets to the world feed.
type Server struct {
	world     *world.World
	log       *log.Logger
	intervene *jsonschema.Schema

	upgrader websocket.Upgrader
}

// NewServer wires a feed endpoint. intervene may be nil to skip schema
// validation (actions are still checked against the known set).
func NewServer(w *world.World, logger *log.Logger, intervene *jsonschema.Schema) *Server {
	return &Server{
		world:     w,
		log:       logger,
		intervene: intervene,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Bare init first: connectivity only, no world state.
		init := protocol.InitMsg{Type: protocol.TypeInit, Tick: s.world.Tick(), Running: s.world.Running()}
		if err := writeJSON(conn, init); err != nil {
			return
		}

		sessionID := uuid.NewString()
		out := make(chan []byte, outBuffer)
		if !s.world.ObserverJoin(world.ObserverJoinRequest{SessionID: sessionID, Out: out}) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "world stopped"),
				time.Now().Add(time.Second))
			return
		}
		defer s.world.ObserverLeave(sessionID)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go s.writeLoop(ctx, cancel, conn, out)

		s.readLoop(conn, out)
	}
}

func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan []byte) {
	defer cancel()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames until the socket errors or closes.
// Malformed input is logged and dropped; the connection stays up.
func (s *Server) readLoop(conn *websocket.Conn, out chan []byte) {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		base, err := protocol.DecodeBase(msg)
		if err != nil {
			s.logf("ws: malformed frame: %v", err)
			continue
		}
		if base.Type != protocol.TypeIntervene {
			continue
		}

		var iv protocol.InterveneMsg
		if err := json.Unmarshal(msg, &iv); err != nil {
			s.logf("ws: malformed intervene: %v", err)
			continue
		}
		if err := s.ValidateIntervention(iv.Payload); err != nil {
			s.logf("ws: rejected intervention: %v", err)
			continue
		}
		if _, err := s.world.QueueIntervention(iv.Payload); err != nil {
			s.logf("ws: queue intervention: %v", err)
			continue
		}

		ack, _ := json.Marshal(protocol.AckMsg{Type: protocol.TypeInterventionAck, Status: "queued"})
		enqueue(out, ack)
	}
}

// ValidateIntervention checks the action set and, when a schema is
// loaded, the full payload shape.
func (s *Server) ValidateIntervention(iv protocol.Intervention) error {
	if !protocol.KnownAction(iv.Action) {
		return fmt.Errorf("unknown action %q", iv.Action)
	}
	if s.intervene == nil {
		return nil
	}
	b, err := json.Marshal(iv)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}
	return s.intervene.Validate(doc)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// enqueue never blocks: it drops the oldest pending frame to make room,
// mirroring the world's own fan-out behavior.
func enqueue(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
