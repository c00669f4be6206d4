package actuation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
	"go.uber.org/goleak"
)

type fixedMode struct {
	mu   sync.Mutex
	mode flight.Mode
}

func (f *fixedMode) Mode() flight.Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

func (f *fixedMode) set(m flight.Mode) {
	f.mu.Lock()
	f.mode = m
	f.mu.Unlock()
}

type countingPWM struct {
	*LogPWM
	calls int
	fail  bool
}

func (c *countingPWM) SetDuty(pin int, duty uint32) error {
	c.calls++
	if c.fail {
		return errors.New("ledc: channel busy")
	}
	return c.LogPWM.SetDuty(pin, duty)
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name                              string
		target, inMin, inMax, outMin, max float64
		want                              float64
	}{
		{"midpoint", 5, 0, 10, 0, 100, 50},
		{"servo half turn", 180, 0, 360, 0.06, 2.1, 1.08},
		{"servo zero", 0, 0, 360, 0.06, 2.1, 0.06},
		{"inverted output", 2, 0, 4, 10, 0, 5},
		{"degenerate input", 3, 1, 1, 7, 9, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpolate(tt.target, tt.inMin, tt.inMax, tt.outMin, tt.max)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Interpolate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDuty(t *testing.T) {
	tests := []struct {
		ms   float64
		want uint32
	}{
		{0.06, 24},
		{1.08, 442},
		{2.1, 860},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := Duty(tt.ms); got != tt.want {
			t.Errorf("Duty(%v) = %d, want %d", tt.ms, got, tt.want)
		}
	}
}

func TestServoBank_Move(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	pwm := NewLogPWM(logging.NewNop())
	bank := NewServoBank(pwm, store, &fixedMode{mode: flight.ModeArmed}, ServoConfig{}, nil)

	if err := bank.Move(2, 180); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if d, _ := pwm.Duty(2); d != 442 {
		t.Errorf("duty = %d, want 442", d)
	}
	if pos, _ := store.RetrieveDouble("SERVO2_POS"); pos != 180 {
		t.Errorf("SERVO2_POS = %v, want 180", pos)
	}
	if d, _ := store.RetrieveUint32("SERVO2_DUTY"); d != 442 {
		t.Errorf("SERVO2_DUTY = %d, want 442", d)
	}

	if err := bank.Move(1, 500); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if pos, _ := bank.Position(1); pos != MaxAngle {
		t.Errorf("Position(1) = %v, want clamped %v", pos, MaxAngle)
	}

	err := bank.Move(4, 10)
	if !apperr.HasCode(err, apperr.CodeInvalidInput) {
		t.Errorf("Move(4) error = %v, want INVALID_INPUT", err)
	}
}

func TestServoBank_ApplyByMode(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	store.StoreDouble(ptam.KeyWingFL, 90)
	store.StoreDouble(ptam.KeyWingFR, 45)
	store.StoreDouble(ptam.KeyWingRL, 270)

	mode := &fixedMode{mode: flight.ModePrep}
	pwm := &countingPWM{LogPWM: NewLogPWM(nil)}
	bank := NewServoBank(pwm, store, mode, ServoConfig{}, nil)
	ctx := context.Background()

	if err := bank.Apply(ctx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	for pin := 0; pin < PinCount; pin++ {
		if pos, ok := bank.Position(pin); !ok || pos != 0 {
			t.Errorf("PREP Position(%d) = %v, %v, want neutral", pin, pos, ok)
		}
	}

	mode.set(flight.ModeArmed)
	if err := bank.Apply(ctx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := map[int]float64{0: 90, 1: 45, 2: 270, 3: 0}
	for pin, angle := range want {
		if pos, _ := bank.Position(pin); pos != angle {
			t.Errorf("ARMED Position(%d) = %v, want %v", pin, pos, angle)
		}
	}

	calls := pwm.calls
	if err := bank.Apply(ctx); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if pwm.calls != calls {
		t.Errorf("unchanged setpoints drove %d servos", pwm.calls-calls)
	}

	mode.set(flight.ModeBypass)
	store.StoreDouble(ptam.KeyWingRR, 120)
	bank.Apply(ctx)
	if pos, _ := bank.Position(3); pos != 120 {
		t.Errorf("BYPASS Position(3) = %v, want 120", pos)
	}
}

func TestServoBank_ApplyError(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	pwm := &countingPWM{LogPWM: NewLogPWM(nil), fail: true}
	bank := NewServoBank(pwm, store, &fixedMode{mode: flight.ModePrep}, ServoConfig{Pins: []int{0, 1}}, nil)

	err := bank.Apply(context.Background())
	if !apperr.HasCode(err, apperr.CodeDeviceError) {
		t.Errorf("Apply() error = %v, want DEVICE_ERROR", err)
	}
	if pwm.calls != 2 {
		t.Errorf("calls = %d, want 2 (continue after failure)", pwm.calls)
	}
}

func TestThermostat_Hysteresis(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	relay := NewLogRelay(nil)
	th, err := NewThermostat(relay, store, 45, 35, nil)
	if err != nil {
		t.Fatalf("NewThermostat() error = %v", err)
	}

	steps := []struct {
		temp float64
		want bool
	}{
		{40, false},
		{45, false},
		{46, true},
		{40, true},
		{35, true},
		{34.9, false},
		{44, false},
	}
	for _, s := range steps {
		got, err := th.Update(s.temp)
		if err != nil {
			t.Fatalf("Update(%v) error = %v", s.temp, err)
		}
		if got != s.want || relay.State() != s.want {
			t.Errorf("Update(%v) = %v (relay %v), want %v", s.temp, got, relay.State(), s.want)
		}
		fan, _ := store.RetrieveUint8(ptam.KeyFan)
		if (fan == 1) != s.want {
			t.Errorf("FAN after %v = %d", s.temp, fan)
		}
	}
}

func TestThermostat_SetThresholds(t *testing.T) {
	th, _ := NewThermostat(NewLogRelay(nil), ptam.New(ptam.DefaultConfig()), 45, 35, nil)

	if err := th.SetThresholds(30, 30); !apperr.HasCode(err, apperr.CodeInvalidInput) {
		t.Errorf("SetThresholds(30, 30) error = %v, want INVALID_INPUT", err)
	}
	if err := th.SetThresholds(60, 50); err != nil {
		t.Fatalf("SetThresholds() error = %v", err)
	}
	if on, off := th.Thresholds(); on != 60 || off != 50 {
		t.Errorf("Thresholds() = %v, %v, want 60, 50", on, off)
	}

	th.Update(55)
	if th.On() {
		t.Error("fan on at 55 with on_above 60")
	}

	if _, err := NewThermostat(NewLogRelay(nil), ptam.New(ptam.DefaultConfig()), 10, 20, nil); err == nil {
		t.Error("NewThermostat() with inverted thresholds expected error")
	}
}

func TestThermostat_StepWithoutReading(t *testing.T) {
	store := ptam.New(ptam.DefaultConfig())
	th, _ := NewThermostat(NewLogRelay(nil), store, 45, 35, nil)

	if err := th.Step(context.Background()); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if _, err := store.RetrieveUint8(ptam.KeyFan); err == nil {
		t.Error("FAN written without a temperature reading")
	}
}

func TestThermostat_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := ptam.New(ptam.DefaultConfig())
	store.StoreDouble(ptam.KeyBoardTemp, 50)
	relay := NewLogRelay(nil)
	th, _ := NewThermostat(relay, store, 45, 35, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- th.Run(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for !relay.State() {
		if time.Now().After(deadline) {
			t.Fatal("fan never switched on")
		}
		time.Sleep(time.Millisecond)
	}

	store.StoreDouble(ptam.KeyBoardTemp, 20)
	for relay.State() {
		if time.Now().After(deadline) {
			t.Fatal("fan never switched off")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
