// ============================================================================
// HIVE - Flight Daemon
// ============================================================================
//
// Package:     daemon
// Description: Wires and supervises all daemon components
// Author:      Mike Stoffels
// Created:     2026-10-16
// License:     MIT
// ============================================================================

// Package daemon builds the flight daemon from its configuration and runs
// every component under one supervisor. A failing component cancels the
// others; cancelling the context shuts everything down.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/msto63/hive/internal/actuation"
	"github.com/msto63/hive/internal/eventlog"
	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/internal/gateway/server"
	"github.com/msto63/hive/internal/sensors"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/config"
	coreGrpc "github.com/msto63/hive/pkg/core/grpc"
	"github.com/msto63/hive/pkg/core/health"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
	"github.com/msto63/hive/pkg/core/version"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultShutdownTimeout bounds the graceful gateway and gRPC shutdown
	DefaultShutdownTimeout = 10 * time.Second

	gpsMaxAge          = 10 * time.Second
	storeDegradedAt    = 90.0
	healthSyncInterval = 5 * time.Second
)

// Options override how the daemon reaches the outside world. Zero values
// select the configured hardware and the SQLite event log.
type Options struct {
	// ConfigPath enables hot reload of the config file when set
	ConfigPath string

	Logger *logging.Logger

	// Store replaces the process-wide register store
	Store *ptam.Store

	// Events replaces the SQLite event store
	Events eventlog.Store

	// GPSOpener replaces the serial port of the GPS receiver
	GPSOpener sensors.PortOpener

	// BoardConnector replaces the Modbus TCP connection to the sensor board
	BoardConnector sensors.Connector

	// PWM and Relay replace the logging output drivers
	PWM   actuation.PWM
	Relay actuation.Relay

	ShutdownTimeout time.Duration
}

// Daemon holds the wired components
type Daemon struct {
	config  *config.Config
	options Options
	logger  *logging.Logger

	store      *ptam.Store
	machine    *flight.Machine
	events     eventlog.Store
	recorder   *eventlog.Recorder
	health     *health.Registry
	gps        *sensors.GPSReader
	board      *sensors.Board
	servos     *actuation.ServoBank
	thermostat *actuation.Thermostat
	gateway    *server.Server
	grpc       *coreGrpc.Server
	watcher    *config.Watcher

	closeOnce sync.Once
	closeErr  error
}

// New builds the daemon. Nothing runs until Run is called, but the event
// log is opened, so a daemon that is never run must be closed with Close.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, apperr.New("daemon requires a configuration").WithCode(apperr.CodeConfigError)
	}
	if opts.Logger == nil {
		opts.Logger = logging.New("hive")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	d := &Daemon{
		config:  cfg,
		options: opts,
		logger:  opts.Logger,
		store:   opts.Store,
	}
	if d.store == nil {
		d.store = ptam.Init(cfg.RegisterStore())
	}

	d.machine = flight.NewMachine(d.store, flight.Options{
		TokenLength:      cfg.Flight.TokenLength,
		RequireSetpoints: cfg.Flight.RequireSetpoints,
	})

	if err := d.buildEventLog(); err != nil {
		return nil, err
	}

	d.buildSensors()

	if err := d.buildActuation(); err != nil {
		d.events.Close()
		return nil, err
	}

	d.buildHealth()

	if err := d.buildServers(); err != nil {
		d.events.Close()
		return nil, err
	}

	if opts.ConfigPath != "" {
		watcher, err := config.NewWatcher(opts.ConfigPath, cfg, d.logger.With("component", "config"))
		if err != nil {
			d.events.Close()
			return nil, err
		}
		watcher.OnChange(d.applyConfig)
		d.watcher = watcher
	}

	return d, nil
}

func (d *Daemon) buildEventLog() error {
	events := d.options.Events
	if events == nil {
		sqlite, err := eventlog.OpenSQLite(d.config.EventLog.Path)
		if err != nil {
			return err
		}
		events = sqlite
	}
	d.events = events

	d.recorder = eventlog.NewRecorder(eventlog.NewFormatter(d.store), events, eventlog.RecorderConfig{
		DumpInterval:  d.config.EventLog.DumpInterval.Duration,
		StateInterval: d.config.EventLog.StateInterval.Duration,
		Retention:     time.Duration(d.config.EventLog.RetentionDays) * 24 * time.Hour,
	}, d.logger.With("component", "eventlog"))

	d.machine.OnTransition(func(from, to flight.Mode) {
		d.recorder.RecordTransition(context.Background(), from, to)
	})
	return nil
}

func (d *Daemon) buildSensors() {
	if gps := d.config.GPS; gps.Enabled || d.options.GPSOpener != nil {
		open := d.options.GPSOpener
		if open == nil {
			open = sensors.SerialOpener(gps.Device, gps.BaudRate, gps.Timeout.Duration)
		}
		d.gps = sensors.NewGPSReader(open, d.store, d.logger.With("component", "gps"))
	}

	if sb := d.config.SensorBoard; sb.Enabled || d.options.BoardConnector != nil {
		connect := d.options.BoardConnector
		if connect == nil {
			connect = sensors.TCPConnector(sb.Address, sb.SlaveID, sb.Timeout.Duration)
		}
		d.board = sensors.NewBoard(connect, d.store, sensors.BoardConfig{
			PollInterval: sb.PollInterval.Duration,
			MaxRetries:   sb.MaxRetries,
		}, d.logger.With("component", "sensorboard"))
		d.board.OnError(func(err error) {
			d.recorder.RecordError(context.Background(), "BOARD_READ", err)
		})
	}
}

func (d *Daemon) buildActuation() error {
	pwm := d.options.PWM
	if pwm == nil {
		pwm = actuation.NewLogPWM(d.logger.With("component", "pwm"))
	}
	d.servos = actuation.NewServoBank(pwm, d.store, d.machine, actuation.ServoConfig{
		MsMin: d.config.Servo.MsMin,
		MsMax: d.config.Servo.MsMax,
		Pins:  d.config.Servo.Pins,
	}, d.logger.With("component", "servo"))

	relay := d.options.Relay
	if relay == nil {
		relay = actuation.NewLogRelay(d.logger.With("component", "fan"))
	}
	thermostat, err := actuation.NewThermostat(relay, d.store,
		d.config.Thermal.OnAbove, d.config.Thermal.OffBelow, d.logger.With("component", "thermal"))
	if err != nil {
		return err
	}
	d.thermostat = thermostat
	return nil
}

func (d *Daemon) buildHealth() {
	d.health = health.NewRegistry(d.config.General.Name, version.Daemon)

	d.health.Register(health.StoreCheck("ptam", d.store, storeDegradedAt))
	d.health.Register(health.PingCheck("eventlog", d.events.Ping))

	if d.gps != nil {
		d.health.Register(health.FreshnessCheck("gps", d.gps.LastFix, gpsMaxAge))
	} else {
		d.health.RegisterFunc("gps", disabledCheck("gps"))
	}

	if d.board != nil {
		d.health.RegisterFunc("sensorboard", func(ctx context.Context) health.CheckResult {
			lastRead, failures := d.board.Status()
			result := health.CheckResult{
				Name:    "sensorboard",
				Status:  health.StatusHealthy,
				Message: "ok",
				Details: map[string]interface{}{"failures": failures},
			}
			switch {
			case failures > 0:
				result.Status = health.StatusDegraded
				result.Message = fmt.Sprintf("%d consecutive failed polls", failures)
			case lastRead.IsZero():
				result.Status = health.StatusUnknown
				result.Message = "no data yet"
			}
			return result
		})
	} else {
		d.health.RegisterFunc("sensorboard", disabledCheck("sensorboard"))
	}

	d.health.RegisterFunc("flight", func(ctx context.Context) health.CheckResult {
		mode, descript, err := d.machine.Current()
		if err != nil {
			return health.CheckResult{Name: "flight", Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return health.CheckResult{
			Name:    "flight",
			Status:  health.StatusHealthy,
			Message: descript,
			Details: map[string]interface{}{"mode": uint8(mode)},
		}
	})
}

func disabledCheck(name string) func(ctx context.Context) health.CheckResult {
	return func(ctx context.Context) health.CheckResult {
		return health.CheckResult{Name: name, Status: health.StatusDegraded, Message: "disabled"}
	}
}

func (d *Daemon) buildServers() error {
	gw := d.config.Gateway
	gateway, err := server.New(server.Config{
		Host:           gw.Host,
		HTTPPort:       gw.Port,
		ReadTimeout:    gw.ReadTimeout.Duration,
		WriteTimeout:   gw.WriteTimeout.Duration,
		Version:        version.Daemon,
		MaxBody:        gw.MaxBody,
		StreamInterval: gw.StreamInterval.Duration,
		CORSEnabled:    gw.CORS.Enabled,
		AllowedOrigins: gw.CORS.AllowedOrigins,
	}, server.Deps{
		Store:    d.store,
		Machine:  d.machine,
		Health:   d.health,
		Events:   d.events,
		Recorder: d.recorder,
		Logger:   d.logger.With("component", "gateway"),
	})
	if err != nil {
		return err
	}
	d.gateway = gateway

	if d.config.GRPC.Enabled {
		grpcCfg := coreGrpc.DefaultServerConfig()
		grpcCfg.Host = d.config.GRPC.Host
		grpcCfg.Port = d.config.GRPC.Port
		grpcCfg.EnableReflection = d.config.GRPC.EnableReflection
		d.grpc = coreGrpc.NewServer(grpcCfg, d.logger.With("component", "grpc"))
	}
	return nil
}

// applyConfig applies the settings that can change without a restart
func (d *Daemon) applyConfig(cfg *config.Config) {
	if cfg.General.LogLevel != logging.CurrentLevel() {
		logging.SetLevel(cfg.General.LogLevel)
		d.logger.Info("Log level changed", "level", cfg.General.LogLevel)
	}
	if err := d.thermostat.SetThresholds(cfg.Thermal.OnAbove, cfg.Thermal.OffBelow); err != nil {
		d.logger.Warn("Ignoring fan thresholds from reloaded config", "error", err)
	}
}

// Store returns the register store
func (d *Daemon) Store() *ptam.Store { return d.store }

// Machine returns the flight state machine
func (d *Daemon) Machine() *flight.Machine { return d.machine }

// Recorder returns the event recorder
func (d *Daemon) Recorder() *eventlog.Recorder { return d.recorder }

// Health returns the health registry
func (d *Daemon) Health() *health.Registry { return d.health }

// Thermostat returns the fan controller
func (d *Daemon) Thermostat() *actuation.Thermostat { return d.thermostat }

// GatewayAddress returns the bound HTTP address once Run has started
func (d *Daemon) GatewayAddress() string { return d.gateway.Address() }

// GRPCAddress returns the bound gRPC address, or "" when gRPC is disabled
func (d *Daemon) GRPCAddress() string {
	if d.grpc == nil {
		return ""
	}
	return d.grpc.Address()
}

// Listen binds the gateway and gRPC ports. Run calls it; calling it first
// lets callers learn the bound addresses before serving.
func (d *Daemon) Listen() error {
	if err := d.gateway.Listen(); err != nil {
		return err
	}
	if d.grpc != nil {
		if err := d.grpc.Listen(); err != nil {
			d.gateway.Close()
			return err
		}
	}
	return nil
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. The event log is closed on return.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.Close()

	if err := d.machine.Initialize(); err != nil {
		return apperr.Wrap(err, "failed to initialize flight state")
	}
	if err := d.Listen(); err != nil {
		return err
	}

	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			d.logger.Warn("Config hot reload unavailable", "error", err)
		} else {
			defer d.watcher.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.recorder.Run(gctx) })

	if d.gps != nil {
		g.Go(func() error { return d.gps.Run(gctx) })
	}
	if d.board != nil {
		g.Go(func() error { return d.board.Run(gctx) })
	}

	g.Go(func() error { return d.servos.Run(gctx, d.config.Servo.Interval.Duration) })
	g.Go(func() error { return d.thermostat.Run(gctx, d.config.Thermal.Interval.Duration) })

	g.Go(d.gateway.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.options.ShutdownTimeout)
		defer cancel()
		return d.gateway.Stop(shutdownCtx)
	})

	if d.grpc != nil {
		g.Go(func() error { return d.grpc.Serve(gctx) })
		g.Go(func() error { return d.grpc.SyncHealth(gctx, d.health, healthSyncInterval) })
	}

	d.logger.Info("HIVE daemon started",
		"version", version.Daemon,
		"gateway", d.gateway.Address(),
		"grpc", d.GRPCAddress(),
		"gps", d.gps != nil,
		"sensorboard", d.board != nil,
	)

	err := g.Wait()
	if err != nil {
		d.logger.Error("HIVE daemon stopped with error", "error", err)
		return err
	}
	d.logger.Info("HIVE daemon stopped")
	return nil
}

// Close releases the event log. It is safe to call more than once.
func (d *Daemon) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.events.Close()
	})
	return d.closeErr
}
