package sensors

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

// PortOpener opens the NMEA byte stream
type PortOpener func() (io.ReadCloser, error)

// SerialOpener opens a serial device with 8N1 framing
func SerialOpener(device string, baudRate int, timeout time.Duration) PortOpener {
	return func() (io.ReadCloser, error) {
		port, err := serial.Open(&serial.Config{
			Address:  device,
			BaudRate: baudRate,
			DataBits: 8,
			StopBits: 1,
			Parity:   "N",
			Timeout:  timeout,
		})
		if err != nil {
			return nil, apperr.Wrapf(err, "failed to open GPS device %s", device).WithCode(apperr.CodeUnavailable)
		}
		return port, nil
	}
}

// GPSReader streams GGA fixes into the GPS registers
type GPSReader struct {
	open      PortOpener
	store     *ptam.Store
	logger    *logging.Logger
	retryBase time.Duration
	retryMax  time.Duration

	mu      sync.RWMutex
	lastFix time.Time
	fixes   uint64
	invalid uint64
}

// NewGPSReader creates a reader over open
func NewGPSReader(open PortOpener, store *ptam.Store, logger *logging.Logger) *GPSReader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GPSReader{
		open:      open,
		store:     store,
		logger:    logger,
		retryBase: time.Second,
		retryMax:  30 * time.Second,
	}
}

// SetRetry overrides the reconnect backoff bounds
func (g *GPSReader) SetRetry(base, max time.Duration) {
	g.retryBase = base
	g.retryMax = max
}

// LastFix returns the time of the last valid position, zero if none yet
func (g *GPSReader) LastFix() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastFix
}

// Counts returns the number of valid fixes and rejected sentences
func (g *GPSReader) Counts() (fixes, invalid uint64) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fixes, g.invalid
}

// Run reads the port, reopening it with exponential backoff, until ctx
// is done
func (g *GPSReader) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		port, err := g.open()
		if err == nil {
			g.logger.Info("GPS receiver connected")
			attempt = 0
			err = g.read(ctx, port)
		}
		if ctx.Err() != nil {
			return nil
		}

		wait := backoff(attempt, g.retryBase, g.retryMax)
		attempt++
		g.logger.Warn("GPS receiver unavailable", "error", err, "retry_in", wait)
		if sleep(ctx, wait) != nil {
			return nil
		}
	}
}

// read consumes lines until the port fails. The port is closed on return
// and also when ctx is cancelled, which unblocks a pending read.
func (g *GPSReader) read(ctx context.Context, port io.ReadCloser) error {
	var once sync.Once
	closePort := func() { once.Do(func() { port.Close() }) }

	stop := context.AfterFunc(ctx, closePort)
	defer stop()
	defer closePort()

	r := bufio.NewReader(port)
	var partial strings.Builder

	for {
		chunk, err := r.ReadString('\n')
		partial.WriteString(chunk)

		if err != nil {
			if errors.Is(err, serial.ErrTimeout) && ctx.Err() == nil {
				continue
			}
			if err == io.EOF {
				return apperr.New("GPS stream closed").WithCode(apperr.CodeUnavailable)
			}
			return apperr.Wrap(err, "GPS read failed").WithCode(apperr.CodeDeviceError)
		}

		g.HandleSentence(partial.String())
		partial.Reset()
	}
}

// HandleSentence parses one NMEA line and updates the registers. Only GGA
// sentences are used; other sentence types are ignored.
func (g *GPSReader) HandleSentence(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	fix, err := ParseGGA(line)
	if errors.Is(err, ErrUnsupportedSentence) {
		return
	}
	if err != nil {
		g.mu.Lock()
		g.invalid++
		g.mu.Unlock()
		g.logger.Debug("Rejected NMEA sentence", "sentence", line, "error", err)
		return
	}

	g.store.StoreUint8(ptam.KeyGPSFix, fix.Quality)
	g.store.StoreDouble(ptam.KeyGPSSat, float64(fix.Satellites))
	if !fix.Valid() {
		return
	}

	for key, value := range map[string]float64{
		ptam.KeyGPSLat:  fix.Latitude,
		ptam.KeyGPSLong: fix.Longitude,
		ptam.KeyGPSAlt:  fix.Altitude,
	} {
		if err := g.store.StoreDouble(key, value); err != nil {
			g.logger.Warn("Failed to store GPS register", "key", key, "error", err)
		}
	}

	g.mu.Lock()
	g.lastFix = time.Now()
	g.fixes++
	g.mu.Unlock()
}
