package sensors

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
	"go.uber.org/goleak"
)

// fakeBoard serves a fixed register image and fails the first failN reads
type fakeBoard struct {
	mu       sync.Mutex
	regs     [RegisterCount]uint16
	failN    int
	reads    int
	connects int
	closes   int
}

func (f *fakeBoard) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.reads <= f.failN {
		return nil, errors.New("modbus: exception '11' (gateway target device failed to respond)")
	}

	out := make([]byte, quantity*2)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(out[i*2:], f.regs[address+i])
	}
	return out, nil
}

func (f *fakeBoard) connector() Connector {
	return func() (RegisterReader, func() error, error) {
		f.mu.Lock()
		f.connects++
		f.mu.Unlock()
		return f, func() error {
			f.mu.Lock()
			f.closes++
			f.mu.Unlock()
			return nil
		}, nil
	}
}

func signed(v int16) uint16 { return uint16(v) }

func newFakeBoard() *fakeBoard {
	f := &fakeBoard{}
	f.regs[RegPitch] = signed(-1250)
	f.regs[RegRoll] = 300
	f.regs[RegYaw] = 18000
	f.regs[RegGyroX] = signed(-5)
	f.regs[RegGyroY] = 10
	f.regs[RegGyroZ] = 0
	f.regs[RegAccX] = 2
	f.regs[RegAccY] = signed(-3)
	f.regs[RegAccZ] = 981
	f.regs[RegOutsideAirTemp] = signed(-45)
	f.regs[RegPressure] = 10132
	f.regs[RegVoltage] = 12600
	f.regs[RegCurrent] = signed(-1500)
	f.regs[RegPercent] = 87
	f.regs[RegBoardTemp] = 412
	return f
}

func testBoardConfig() BoardConfig {
	return BoardConfig{
		PollInterval: 5 * time.Millisecond,
		MaxRetries:   3,
		RetryBase:    time.Millisecond,
		RetryMax:     2 * time.Millisecond,
	}
}

func TestDecodeReading(t *testing.T) {
	f := newFakeBoard()
	data, _ := f.ReadHoldingRegisters(0, RegisterCount)

	got, err := DecodeReading(data)
	if err != nil {
		t.Fatalf("DecodeReading() error = %v", err)
	}

	want := Reading{
		Pitch: -12.5, Roll: 3, Yaw: 180,
		GyroX: -0.05, GyroY: 0.1, GyroZ: 0,
		AccX: 0.02, AccY: -0.03, AccZ: 9.81,
		OutsideAirTemp: -4.5,
		Pressure:       1013.2,
		Voltage:        12.6,
		Current:        -1.5,
		Percent:        87,
		BoardTemp:      41.2,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeReading() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeReading_Short(t *testing.T) {
	_, err := DecodeReading(make([]byte, 4))
	if !apperr.HasCode(err, apperr.CodeDeviceError) {
		t.Errorf("error = %v, want DEVICE_ERROR", err)
	}
}

func TestBoard_Poll(t *testing.T) {
	f := newFakeBoard()
	store := ptam.New(ptam.DefaultConfig())
	board := NewBoard(f.connector(), store, testBoardConfig(), logging.NewNop())

	if err := board.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}

	checks := map[string]float64{
		ptam.KeyPitch:          -12.5,
		ptam.KeyAccZ:           9.81,
		ptam.KeyOutsideAirTemp: -4.5,
		ptam.KeyBatteryVoltage: 12.6,
		ptam.KeyBoardTemp:      41.2,
	}
	for key, want := range checks {
		got, err := store.RetrieveDouble(key)
		if err != nil || got != want {
			t.Errorf("%s = %v (%v), want %v", key, got, err, want)
		}
	}

	if board.LastRead().IsZero() {
		t.Error("LastRead() is zero after a good poll")
	}
	if board.Failures() != 0 {
		t.Errorf("Failures() = %d, want 0", board.Failures())
	}
}

func TestBoard_PollRetries(t *testing.T) {
	f := newFakeBoard()
	f.failN = 2
	store := ptam.New(ptam.DefaultConfig())
	board := NewBoard(f.connector(), store, testBoardConfig(), logging.NewNop())

	if err := board.Poll(context.Background()); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if f.reads != 3 {
		t.Errorf("reads = %d, want 3", f.reads)
	}
	if f.connects != 3 {
		t.Errorf("connects = %d, want 3 (reconnect after each failure)", f.connects)
	}
	if _, err := store.RetrieveUint32(ptam.KeyBoardErrors); err == nil {
		t.Error("BOARD_ERRS set although the poll recovered")
	}
}

func TestBoard_PollExhausted(t *testing.T) {
	f := newFakeBoard()
	f.failN = 100
	store := ptam.New(ptam.DefaultConfig())
	board := NewBoard(f.connector(), store, testBoardConfig(), logging.NewNop())

	var reported []error
	board.OnError(func(err error) { reported = append(reported, err) })

	for i := 0; i < 2; i++ {
		err := board.Poll(context.Background())
		if !apperr.HasCode(err, apperr.CodeDeviceError) {
			t.Fatalf("Poll() error = %v, want DEVICE_ERROR", err)
		}
	}

	if n, _ := store.RetrieveUint32(ptam.KeyBoardErrors); n != 2 {
		t.Errorf("BOARD_ERRS = %d, want 2", n)
	}
	if board.Failures() != 2 {
		t.Errorf("Failures() = %d, want 2", board.Failures())
	}
	if len(reported) != 2 {
		t.Errorf("OnError calls = %d, want 2", len(reported))
	}
	if f.reads != 6 {
		t.Errorf("reads = %d, want 6", f.reads)
	}
}

func TestBoard_ConnectFailure(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	connect := func() (RegisterReader, func() error, error) {
		return nil, nil, apperr.New("connection refused").WithCode(apperr.CodeUnavailable)
	}
	board := NewBoard(connect, store, testBoardConfig(), logging.NewNop())

	if err := board.Poll(context.Background()); err == nil {
		t.Fatal("Poll() expected error")
	}
	if n, _ := store.RetrieveUint32(ptam.KeyBoardErrors); n != 1 {
		t.Errorf("BOARD_ERRS = %d, want 1", n)
	}
}

func TestBoard_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFakeBoard()
	store := ptam.New(ptam.DefaultConfig())
	board := NewBoard(f.connector(), store, testBoardConfig(), logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- board.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		reads := f.reads
		f.mu.Unlock()
		if reads >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Run() made %d reads", reads)
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connects != 1 || f.closes != 1 {
		t.Errorf("connects = %d, closes = %d, want 1 and 1", f.connects, f.closes)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt, time.Second, 30*time.Second); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
