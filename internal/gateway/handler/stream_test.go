package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/msto63/hive/internal/eventlog"
	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

func dialStream(t *testing.T, s *StreamHandler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of type want arrives
func readUntil(t *testing.T, conn *websocket.Conn, want string) StreamFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var frame StreamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("ReadJSON() waiting for %s: %v", want, err)
		}
		if frame.Type == want {
			return frame
		}
	}
}

func TestStream_SnapshotAndPing(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	store.StoreDouble(ptam.KeyPitch, 4.25)
	machine := flight.NewMachine(store, flight.Options{})
	machine.Initialize()

	s := NewStreamHandler(store, machine, nil, 20*time.Millisecond, logging.NewNop())
	conn := dialStream(t, s)

	frame := readUntil(t, conn, FrameSnapshot)
	if frame.Mode != "PREP" {
		t.Errorf("Mode = %q, want PREP", frame.Mode)
	}
	if frame.Registers == nil || frame.Registers.Doubles[ptam.KeyPitch] != 4.25 {
		t.Errorf("Registers = %+v", frame.Registers)
	}

	if err := conn.WriteJSON(StreamMessage{Type: "ping"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	readUntil(t, conn, FramePong)

	// periodic snapshots keep coming
	readUntil(t, conn, FrameSnapshot)
}

func TestStream_Events(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	machine := flight.NewMachine(store, flight.Options{})
	recorder := eventlog.NewRecorder(eventlog.NewFormatter(store), eventlog.NewMemoryStore(),
		eventlog.RecorderConfig{}, logging.NewNop())
	machine.OnTransition(func(from, to flight.Mode) {
		recorder.RecordTransition(context.Background(), from, to)
	})

	s := NewStreamHandler(store, machine, recorder, time.Hour, logging.NewNop())
	conn := dialStream(t, s)
	readUntil(t, conn, FrameSnapshot)

	if err := machine.Transition(flight.ModeBypass); err != nil {
		t.Fatal(err)
	}

	frame := readUntil(t, conn, FrameEvent)
	if frame.Event == nil || frame.Event.Kind != eventlog.KindSSL {
		t.Fatalf("Event = %+v", frame.Event)
	}
	if frame.Event.State != uint8(flight.ModeBypass) {
		t.Errorf("State = %d, want %d", frame.Event.State, flight.ModeBypass)
	}
}

func TestStream_Close(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	machine := flight.NewMachine(store, flight.Options{})

	s := NewStreamHandler(store, machine, nil, time.Hour, logging.NewNop())
	conn := dialStream(t, s)
	readUntil(t, conn, FrameSnapshot)

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want going away", err)
	}
}
