package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/msto63/hive/internal/eventlog"
	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/internal/gateway/handler"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/health"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// Server is the HIVE HTTP control surface
type Server struct {
	httpServer *http.Server
	handler    *handler.Handler
	stream     *handler.StreamHandler
	logger     *logging.Logger
	config     Config

	mu       sync.Mutex
	listener net.Listener
}

// Config holds server configuration
type Config struct {
	Host           string
	HTTPPort       int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Version        string
	MaxBody        int64
	StreamInterval time.Duration
	CORSEnabled    bool
	AllowedOrigins []string
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		HTTPPort:       8080,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Version:        "0.0.0",
		MaxBody:        100,
		StreamInterval: time.Second,
	}
}

// Deps are the components the control surface serves
type Deps struct {
	Store    *ptam.Store
	Machine  *flight.Machine
	Health   *health.Registry
	Events   eventlog.Store
	Recorder *eventlog.Recorder
	Logger   *logging.Logger
}

// New creates a new gateway server
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Machine == nil {
		return nil, apperr.New("gateway requires a register store and a flight machine").WithCode(apperr.CodeConfigError)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.New("gateway")
	}

	h := handler.NewHandler(handler.Config{
		Version:        cfg.Version,
		MaxBody:        cfg.MaxBody,
		StreamInterval: cfg.StreamInterval,
		CORSEnabled:    cfg.CORSEnabled,
		AllowedOrigins: cfg.AllowedOrigins,
	}, deps.Store, deps.Machine, deps.Health, deps.Events, logger.With("component", "handler"))

	var source handler.EventSource
	if deps.Recorder != nil {
		source = deps.Recorder
	}
	stream := handler.NewStreamHandler(deps.Store, deps.Machine, source, cfg.StreamInterval,
		logger.With("component", "stream"))

	mux := http.NewServeMux()

	// WebSocket route
	mux.Handle("/api/v1/stream", stream)

	// Firmware and API routes
	mux.Handle("/", h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort),
		Handler:      loggingMiddleware(logger, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		httpServer: httpServer,
		handler:    h,
		stream:     stream,
		logger:     logger,
		config:     cfg,
	}, nil
}

// Handler returns the root HTTP handler including middleware
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// loggingMiddleware assigns a request ID and logs every request
func loggingMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, requestID)

		// Wrap response writer to capture status code
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
			"request_id", requestID,
		)
	})
}

// responseWrapper wraps http.ResponseWriter to capture status code
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController and the
// WebSocket upgrader
func (w *responseWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack supports WebSocket upgrades through the wrapper
func (w *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Listen binds the configured address. Start and StartAsync call it when
// needed; calling it first lets callers learn the bound port.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	lis, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return apperr.Wrapf(err, "failed to listen on %s", s.httpServer.Addr).WithCode(apperr.CodeUnavailable)
	}
	s.listener = lis
	return nil
}

// Start starts the server and blocks until it stops
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("Starting HIVE gateway", "address", s.Address())

	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartAsync starts the server asynchronously
func (s *Server) StartAsync() error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("Starting HIVE gateway (async)", "address", s.Address())

	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server and closes open streams
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HIVE gateway")

	err := s.httpServer.Shutdown(ctx)
	s.stream.Close()
	return err
}

// Close releases a listener bound by Listen that was never served
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

// Address returns the bound address, or the configured one before Listen
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}
