package actuation

import (
	"context"
	"sync"
	"time"

	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

// Relay switches the fan supply
type Relay interface {
	Set(on bool) error
}

// Thermostat switches the cooling fan on BOARD_TEMP with hysteresis
type Thermostat struct {
	relay  Relay
	store  *ptam.Store
	logger *logging.Logger

	mu       sync.Mutex
	onAbove  float64
	offBelow float64
	on       bool
	synced   bool
}

// NewThermostat creates a thermostat. Thresholds are in degrees Celsius.
func NewThermostat(relay Relay, store *ptam.Store, onAbove, offBelow float64, logger *logging.Logger) (*Thermostat, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	t := &Thermostat{relay: relay, store: store, logger: logger}
	if err := t.SetThresholds(onAbove, offBelow); err != nil {
		return nil, err
	}
	return t, nil
}

// SetThresholds replaces the switching points
func (t *Thermostat) SetThresholds(onAbove, offBelow float64) error {
	if offBelow >= onAbove {
		return apperr.Newf("fan off threshold %.1f must be below on threshold %.1f", offBelow, onAbove).
			WithCode(apperr.CodeInvalidInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.onAbove != onAbove || t.offBelow != offBelow {
		t.logger.Info("Fan thresholds updated", "on_above", onAbove, "off_below", offBelow)
	}
	t.onAbove = onAbove
	t.offBelow = offBelow
	return nil
}

// Thresholds returns the current switching points
func (t *Thermostat) Thresholds() (onAbove, offBelow float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onAbove, t.offBelow
}

// On reports whether the fan is running
func (t *Thermostat) On() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.on
}

// Update applies temp and returns the resulting fan state. Between the
// thresholds the fan keeps its state.
func (t *Thermostat) Update(temp float64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	want := t.on
	switch {
	case temp > t.onAbove:
		want = true
	case temp < t.offBelow:
		want = false
	}

	if want == t.on && t.synced {
		return t.on, nil
	}

	if err := t.relay.Set(want); err != nil {
		return t.on, apperr.Wrap(err, "failed to switch fan relay").WithCode(apperr.CodeDeviceError)
	}
	t.on = want
	t.synced = true

	var fan uint8
	if want {
		fan = 1
	}
	if err := t.store.StoreUint8(ptam.KeyFan, fan); err != nil {
		return t.on, err
	}

	t.logger.Info("Fan switched", "on", want, "temperature", temp)
	return t.on, nil
}

// Step reads BOARD_TEMP and updates the fan. A missing reading leaves
// the fan untouched.
func (t *Thermostat) Step(ctx context.Context) error {
	temp, err := t.store.RetrieveDouble(ptam.KeyBoardTemp)
	if err != nil {
		return nil
	}
	_, err = t.Update(temp)
	return err
}

// Run steps every interval until ctx is done
func (t *Thermostat) Run(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func() {
		if err := t.Step(ctx); err != nil {
			t.logger.Warn("Thermostat step failed", "error", err)
		}
	})
}
