package actuation

import (
	"sync"

	"github.com/msto63/hive/pkg/core/logging"
)

// LogPWM is a PWM that logs duty changes instead of driving hardware
type LogPWM struct {
	logger *logging.Logger

	mu   sync.Mutex
	duty map[int]uint32
}

// NewLogPWM creates a logging PWM
func NewLogPWM(logger *logging.Logger) *LogPWM {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogPWM{logger: logger, duty: make(map[int]uint32)}
}

// SetDuty records and logs the duty of pin
func (p *LogPWM) SetDuty(pin int, duty uint32) error {
	p.mu.Lock()
	p.duty[pin] = duty
	p.mu.Unlock()

	p.logger.Debug("PWM duty set", "pin", pin, "duty", duty)
	return nil
}

// Duty returns the last duty written to pin
func (p *LogPWM) Duty(pin int) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.duty[pin]
	return d, ok
}

// LogRelay is a Relay that logs switching instead of driving a GPIO
type LogRelay struct {
	logger *logging.Logger

	mu sync.Mutex
	on bool
}

// NewLogRelay creates a logging relay
func NewLogRelay(logger *logging.Logger) *LogRelay {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LogRelay{logger: logger}
}

// Set records and logs the relay state
func (r *LogRelay) Set(on bool) error {
	r.mu.Lock()
	r.on = on
	r.mu.Unlock()

	r.logger.Debug("Relay set", "on", on)
	return nil
}

// State returns the last state written
func (r *LogRelay) State() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}
