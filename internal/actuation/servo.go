// Package actuation drives the wing servos and the cooling fan from
// register setpoints.
package actuation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

// Servo geometry
const (
	MaxAngle     = 360.0
	PeriodMs     = 20.0
	DutyScale    = 81.91
	DefaultMsMin = 0.06
	DefaultMsMax = 2.1
	PinCount     = 4
)

// PWM sets the duty cycle of a servo pin
type PWM interface {
	SetDuty(pin int, duty uint32) error
}

// ModeSource reports the current flight mode
type ModeSource interface {
	Mode() flight.Mode
}

// Interpolate maps target linearly from [inMin, inMax] onto [outMin, outMax]
func Interpolate(target, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	return outMin + (target-inMin)*(outMax-outMin)/(inMax-inMin)
}

// Duty converts a pulse width in ms to a 13-bit duty value for a 20ms period
func Duty(ms float64) uint32 {
	d := int(100.0 * (ms / PeriodMs) * DutyScale)
	if d < 0 {
		return 0
	}
	return uint32(d)
}

// PosKey returns the position register of pin
func PosKey(pin int) string {
	return fmt.Sprintf("SERVO%d_POS", pin)
}

// DutyKey returns the duty register of pin
func DutyKey(pin int) string {
	return fmt.Sprintf("SERVO%d_DUTY", pin)
}

// ServoConfig holds the pulse calibration
type ServoConfig struct {
	MsMin float64
	MsMax float64
	Pins  []int
}

// ServoBank moves the wing servos to their setpoints
type ServoBank struct {
	pwm    PWM
	store  *ptam.Store
	mode   ModeSource
	config ServoConfig
	logger *logging.Logger

	mu        sync.Mutex
	positions map[int]float64
}

// NewServoBank creates a servo bank. Pins default to 0-3.
func NewServoBank(pwm PWM, store *ptam.Store, mode ModeSource, cfg ServoConfig, logger *logging.Logger) *ServoBank {
	if cfg.MsMin == 0 {
		cfg.MsMin = DefaultMsMin
	}
	if cfg.MsMax == 0 {
		cfg.MsMax = DefaultMsMax
	}
	if len(cfg.Pins) == 0 {
		cfg.Pins = []int{0, 1, 2, 3}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ServoBank{
		pwm:       pwm,
		store:     store,
		mode:      mode,
		config:    cfg,
		logger:    logger,
		positions: make(map[int]float64),
	}
}

// PulseWidth maps an angle in degrees onto the calibrated pulse range.
// Angles outside 0-360 are clamped.
func (b *ServoBank) PulseWidth(angle float64) float64 {
	return Interpolate(clamp(angle, 0, MaxAngle), 0, MaxAngle, b.config.MsMin, b.config.MsMax)
}

// Move drives pin to angle and records position and duty registers
func (b *ServoBank) Move(pin int, angle float64) error {
	if pin < 0 || pin >= PinCount {
		return apperr.Newf("servo pin %d out of range 0-%d", pin, PinCount-1).WithCode(apperr.CodeInvalidInput)
	}
	angle = clamp(angle, 0, MaxAngle)
	duty := Duty(b.PulseWidth(angle))

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.pwm.SetDuty(pin, duty); err != nil {
		return apperr.Wrapf(err, "failed to drive servo %d", pin).WithCode(apperr.CodeDeviceError)
	}
	b.positions[pin] = angle

	if err := b.store.StoreDouble(PosKey(pin), angle); err != nil {
		return err
	}
	return b.store.StoreUint32(DutyKey(pin), duty)
}

// Position returns the last commanded angle of pin
func (b *ServoBank) Position(pin int) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[pin]
	return pos, ok
}

// target returns the angle pin should hold in the current mode. ok is false
// when no setpoint exists yet.
func (b *ServoBank) target(pin int) (float64, bool) {
	switch b.mode.Mode() {
	case flight.ModeArmed, flight.ModeBypass:
	default:
		return 0, true
	}
	if pin >= len(ptam.WingKeys) {
		return 0, false
	}
	v, err := b.store.RetrieveDouble(ptam.WingKeys[pin])
	if err != nil {
		return 0, false
	}
	return v, true
}

// Apply moves every configured pin whose target changed
func (b *ServoBank) Apply(ctx context.Context) error {
	var firstErr error
	for _, pin := range b.config.Pins {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		angle, ok := b.target(pin)
		if !ok {
			continue
		}
		if cur, moved := b.Position(pin); moved && cur == clamp(angle, 0, MaxAngle) {
			continue
		}

		if err := b.Move(pin, angle); err != nil {
			b.logger.Warn("Servo move failed", "pin", pin, "angle", angle, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Run applies setpoints every interval until ctx is done
func (b *ServoBank) Run(ctx context.Context, interval time.Duration) error {
	return runEvery(ctx, interval, func() {
		b.Apply(ctx)
	})
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// runEvery calls fn immediately and then on every tick
func runEvery(ctx context.Context, interval time.Duration, fn func()) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fn()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
