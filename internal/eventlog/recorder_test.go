package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRecorder(t *testing.T) (*Recorder, *ptam.Store, *MemoryStore) {
	t.Helper()
	regs := ptam.New(ptam.DefaultConfig())
	regs.StoreUint8(ptam.KeyState, 1)
	regs.StoreString(ptam.KeyStateDescript, "PREP")

	events := NewMemoryStore()
	rec := NewRecorder(NewFormatter(regs), events, RecorderConfig{}, logging.NewNop())
	return rec, regs, events
}

func TestRecorder_Record(t *testing.T) {
	rec, _, events := newTestRecorder(t)
	ctx := context.Background()

	e, err := rec.DumpSensors(ctx)
	if err != nil {
		t.Fatalf("DumpSensors() error = %v", err)
	}
	if e.Kind != KindSDD || e.EventID != "PREP" || e.State != 1 {
		t.Errorf("event = %+v", e)
	}

	if _, err := rec.LogState(ctx); err != nil {
		t.Fatalf("LogState() error = %v", err)
	}

	sel, err := rec.RecordError(ctx, "BOARD_READ", apperr.New("modbus timeout").WithCode(apperr.CodeDeviceError))
	if err != nil {
		t.Fatalf("RecordError() error = %v", err)
	}
	if sel.Kind != KindSEL || sel.Exception != RoutineHardFail || sel.EventID != "BOARD_READ" {
		t.Errorf("SEL event = %+v", sel)
	}

	if n, _ := events.Count(ctx, ""); n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}

func TestRecorder_RecordTransition(t *testing.T) {
	regs := ptam.New(ptam.DefaultConfig())
	events := NewMemoryStore()

	core, logs := observer.New(zapcore.DebugLevel)
	rec := NewRecorder(NewFormatter(regs), events, RecorderConfig{}, logging.FromZap(zap.New(core), "eventlog"))

	m := flight.NewMachine(regs, flight.Options{})
	ctx := context.Background()
	m.OnTransition(func(from, to flight.Mode) { rec.RecordTransition(ctx, from, to) })

	if err := m.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := m.Transition(flight.ModeBypass); err != nil {
		t.Fatal(err)
	}

	got, _ := events.Query(ctx, Filter{Kind: KindSSL})
	if len(got) != 2 {
		t.Fatalf("len(SSL events) = %d, want 2", len(got))
	}
	states := map[uint8]bool{}
	for _, e := range got {
		states[e.State] = true
	}
	if !states[uint8(flight.ModePrep)] || !states[uint8(flight.ModeBypass)] {
		t.Errorf("SSL states = %v, want PREP and BYPASS", states)
	}

	changes := logs.FilterMessage("Flight mode changed").All()
	if len(changes) != 2 {
		t.Fatalf("len(log entries) = %d, want 2", len(changes))
	}
	if changes[1].ContextMap()["to"] != "BYPASS" {
		t.Errorf("to = %v, want BYPASS", changes[1].ContextMap()["to"])
	}
}

func TestRecorder_Subscribe(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	ctx := context.Background()

	ch, cancel := rec.Subscribe(1)

	rec.LogState(ctx)
	rec.LogState(ctx) // dropped, buffer is full

	select {
	case e := <-ch:
		if e.Kind != KindSSL {
			t.Errorf("Kind = %v, want LOG_SSL", e.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	if rec.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", rec.Dropped())
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}

	rec.LogState(ctx)
}

func TestRecorder_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	regs := ptam.New(ptam.DefaultConfig())
	events := NewMemoryStore()
	rec := NewRecorder(NewFormatter(regs), events, RecorderConfig{
		DumpInterval:  10 * time.Millisecond,
		StateInterval: 25 * time.Millisecond,
	}, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		sdd, _ := events.Count(ctx, KindSDD)
		ssl, _ := events.Count(ctx, KindSSL)
		if sdd >= 2 && ssl >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Run() recorded sdd=%d ssl=%d", sdd, ssl)
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
