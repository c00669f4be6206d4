package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/msto63/hive/internal/eventlog"
	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

// Stream frame types
const (
	FrameSnapshot = "snapshot"
	FrameEvent    = "event"
	FramePong     = "pong"
	FrameError    = "error"
)

const writeWait = 5 * time.Second

// WebSocket upgrader; the control surface runs on an isolated link
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventSource delivers recorded events to subscribers
type EventSource interface {
	Subscribe(buffer int) (<-chan *eventlog.Event, func())
}

// StreamMessage is a client message
type StreamMessage struct {
	Type string `json:"type"`
}

// StreamFrame is a server message
type StreamFrame struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Mode      string          `json:"mode,omitempty"`
	Registers *ptam.Snapshot  `json:"registers,omitempty"`
	Event     *eventlog.Event `json:"event,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// StreamHandler pushes register snapshots and events over WebSocket
type StreamHandler struct {
	store    *ptam.Store
	machine  *flight.Machine
	events   EventSource
	interval time.Duration
	logger   *logging.Logger

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewStreamHandler creates a stream handler. events may be nil.
func NewStreamHandler(store *ptam.Store, machine *flight.Machine, events EventSource, interval time.Duration, logger *logging.Logger) *StreamHandler {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = logging.New("gateway-stream")
	}
	return &StreamHandler{
		store:    store,
		machine:  machine,
		events:   events,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade and connections
func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleConnection(conn)
}

// Close ends all open streams and waits for them
func (s *StreamHandler) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *StreamHandler) handleConnection(conn *websocket.Conn) {
	defer conn.Close()
	s.logger.Info("Stream connection established", "remote", conn.RemoteAddr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pongs := make(chan struct{}, 4)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		s.readLoop(conn, pongs)
	}()
	defer func() {
		conn.Close()
		<-readDone
	}()

	var events <-chan *eventlog.Event
	if s.events != nil {
		ch, unsubscribe := s.events.Subscribe(16)
		defer unsubscribe()
		events = ch
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.send(conn, s.snapshot()); err != nil {
		return
	}

	for {
		var frame StreamFrame
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(writeWait))
			return
		case <-ticker.C:
			frame = s.snapshot()
		case <-pongs:
			frame = StreamFrame{Type: FramePong, Timestamp: time.Now()}
		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			frame = StreamFrame{Type: FrameEvent, Timestamp: e.Timestamp, Event: e}
		}

		if err := s.send(conn, frame); err != nil {
			return
		}
	}
}

// readLoop answers pings until the connection fails
func (s *StreamHandler) readLoop(conn *websocket.Conn, pongs chan<- struct{}) {
	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Stream read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			select {
			case pongs <- struct{}{}:
			default:
			}
		default:
			s.logger.Debug("Unknown stream message", "type", msg.Type)
		}
	}
}

func (s *StreamHandler) snapshot() StreamFrame {
	snap := s.store.Snapshot()
	return StreamFrame{
		Type:      FrameSnapshot,
		Timestamp: time.Now(),
		Mode:      s.machine.Mode().String(),
		Registers: &snap,
	}
}

func (s *StreamHandler) send(conn *websocket.Conn, frame StreamFrame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		s.logger.Debug("Stream send error", "error", err)
		return err
	}
	return nil
}
