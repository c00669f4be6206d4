// Package sensors feeds hardware readings into the register store.
//
// The sensor board is polled over Modbus TCP; the GPS receiver streams
// NMEA sentences over a serial line. Both reconnect on failure until
// their context is cancelled.
package sensors

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

// Holding register layout of the sensor board
const (
	RegPitch uint16 = iota
	RegRoll
	RegYaw
	RegGyroX
	RegGyroY
	RegGyroZ
	RegAccX
	RegAccY
	RegAccZ
	RegOutsideAirTemp
	RegPressure
	RegVoltage
	RegCurrent
	RegPercent
	RegBoardTemp

	// RegisterCount is the number of holding registers read per poll
	RegisterCount
)

// RegisterReader is the subset of modbus.Client used by the board
type RegisterReader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Connector opens a connection and returns a reader plus its closer
type Connector func() (RegisterReader, func() error, error)

// TCPConnector dials a Modbus TCP board
func TCPConnector(address string, slaveID byte, timeout time.Duration) Connector {
	return func() (RegisterReader, func() error, error) {
		handler := modbus.NewTCPClientHandler(address)
		handler.Timeout = timeout
		handler.SlaveId = slaveID

		if err := handler.Connect(); err != nil {
			return nil, nil, apperr.Wrapf(err, "failed to connect to sensor board at %s", address).
				WithCode(apperr.CodeUnavailable)
		}
		return modbus.NewClient(handler), handler.Close, nil
	}
}

// BoardConfig holds polling parameters
type BoardConfig struct {
	PollInterval time.Duration
	MaxRetries   int
	RetryBase    time.Duration
	RetryMax     time.Duration
}

// ErrorFunc receives read failures after all retries are exhausted
type ErrorFunc func(err error)

// Reading is one decoded poll of the sensor board
type Reading struct {
	Pitch, Roll, Yaw    float64
	GyroX, GyroY, GyroZ float64
	AccX, AccY, AccZ    float64
	OutsideAirTemp      float64
	Pressure            float64
	Voltage             float64
	Current             float64
	Percent             float64
	BoardTemp           float64
}

// DecodeReading converts RegisterCount big-endian holding registers
func DecodeReading(data []byte) (Reading, error) {
	if len(data) < int(RegisterCount)*2 {
		return Reading{}, apperr.Newf("sensor board returned %d bytes, want %d", len(data), RegisterCount*2).
			WithCode(apperr.CodeDeviceError)
	}

	u := func(reg uint16) uint16 { return binary.BigEndian.Uint16(data[reg*2:]) }
	s := func(reg uint16) float64 { return float64(int16(u(reg))) }

	return Reading{
		Pitch:          s(RegPitch) / 100,
		Roll:           s(RegRoll) / 100,
		Yaw:            s(RegYaw) / 100,
		GyroX:          s(RegGyroX) / 100,
		GyroY:          s(RegGyroY) / 100,
		GyroZ:          s(RegGyroZ) / 100,
		AccX:           s(RegAccX) / 100,
		AccY:           s(RegAccY) / 100,
		AccZ:           s(RegAccZ) / 100,
		OutsideAirTemp: s(RegOutsideAirTemp) / 10,
		Pressure:       float64(u(RegPressure)) / 10,
		Voltage:        float64(u(RegVoltage)) / 1000,
		Current:        s(RegCurrent) / 1000,
		Percent:        float64(u(RegPercent)),
		BoardTemp:      s(RegBoardTemp) / 10,
	}, nil
}

// Registers returns the reading as register key/value pairs
func (r Reading) Registers() map[string]float64 {
	return map[string]float64{
		ptam.KeyPitch:          r.Pitch,
		ptam.KeyRoll:           r.Roll,
		ptam.KeyYaw:            r.Yaw,
		ptam.KeyGyroX:          r.GyroX,
		ptam.KeyGyroY:          r.GyroY,
		ptam.KeyGyroZ:          r.GyroZ,
		ptam.KeyAccX:           r.AccX,
		ptam.KeyAccY:           r.AccY,
		ptam.KeyAccZ:           r.AccZ,
		ptam.KeyOutsideAirTemp: r.OutsideAirTemp,
		ptam.KeyPressure:       r.Pressure,
		ptam.KeyBatteryVoltage: r.Voltage,
		ptam.KeyBatteryCurrent: r.Current,
		ptam.KeyBatteryPercent: r.Percent,
		ptam.KeyBoardTemp:      r.BoardTemp,
	}
}

// Board polls the sensor board and writes its readings into the store
type Board struct {
	connect Connector
	store   *ptam.Store
	config  BoardConfig
	logger  *logging.Logger
	onError ErrorFunc

	mu       sync.RWMutex
	reader   RegisterReader
	closer   func() error
	failures int
	lastRead time.Time
}

// NewBoard creates a board poller
func NewBoard(connect Connector, store *ptam.Store, cfg BoardConfig, logger *logging.Logger) *Board {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Board{
		connect: connect,
		store:   store,
		config:  cfg,
		logger:  logger,
	}
}

// OnError registers the callback for exhausted reads
func (b *Board) OnError(fn ErrorFunc) {
	b.onError = fn
}

// Status returns the time of the last good read and the number of
// consecutive failed polls
func (b *Board) Status() (time.Time, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastRead, b.failures
}

// LastRead returns the time of the last good read
func (b *Board) LastRead() time.Time {
	t, _ := b.Status()
	return t
}

// Failures returns the number of consecutive failed polls
func (b *Board) Failures() int {
	_, n := b.Status()
	return n
}

// Run connects and polls until ctx is done
func (b *Board) Run(ctx context.Context) error {
	defer b.disconnect()

	ticker := time.NewTicker(b.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := b.Poll(ctx); err != nil && ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll performs one read with retries and stores the result
func (b *Board) Poll(ctx context.Context) error {
	reading, err := b.readWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		b.recordFailure(err)
		return err
	}

	for key, value := range reading.Registers() {
		if err := b.store.StoreDouble(key, value); err != nil {
			b.logger.Warn("Failed to store sensor register", "key", key, "error", err)
		}
	}

	b.mu.Lock()
	b.failures = 0
	b.lastRead = time.Now()
	b.mu.Unlock()
	return nil
}

func (b *Board) readWithRetry(ctx context.Context) (Reading, error) {
	var lastErr error

	for attempt := 0; attempt < b.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := backoff(attempt-1, b.config.RetryBase, b.config.RetryMax)
			b.logger.Debug("Retrying sensor board read", "attempt", attempt+1, "wait", wait)
			if err := sleep(ctx, wait); err != nil {
				return Reading{}, err
			}
		}

		reader, err := b.ensureConnected()
		if err != nil {
			lastErr = err
			continue
		}

		data, err := reader.ReadHoldingRegisters(0, RegisterCount)
		if err != nil {
			lastErr = apperr.Wrap(err, "failed to read sensor board").WithCode(apperr.CodeDeviceError)
			b.disconnect()
			continue
		}
		return DecodeReading(data)
	}

	return Reading{}, apperr.Wrapf(lastErr, "sensor board read failed after %d attempts", b.config.MaxRetries).
		WithCode(apperr.CodeDeviceError)
}

func (b *Board) ensureConnected() (RegisterReader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.reader != nil {
		return b.reader, nil
	}

	reader, closer, err := b.connect()
	if err != nil {
		return nil, err
	}
	b.reader = reader
	b.closer = closer
	b.logger.Info("Connected to sensor board")
	return reader, nil
}

func (b *Board) disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closer != nil {
		if err := b.closer(); err != nil {
			b.logger.Debug("Error closing sensor board connection", "error", err)
		}
	}
	b.reader = nil
	b.closer = nil
}

func (b *Board) recordFailure(err error) {
	b.mu.Lock()
	b.failures++
	failures := b.failures
	b.mu.Unlock()

	count, _ := b.store.RetrieveUint32(ptam.KeyBoardErrors)
	if serr := b.store.StoreUint32(ptam.KeyBoardErrors, count+1); serr != nil {
		b.logger.Warn("Failed to store board error counter", "error", serr)
	}

	b.logger.Error("Sensor board poll failed", "error", err, "consecutive_failures", failures)
	if b.onError != nil {
		b.onError(err)
	}
}
