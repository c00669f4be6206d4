package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestServer(t *testing.T, logger *logging.Logger) *Server {
	t.Helper()
	store := ptam.New(ptam.DefaultConfig())
	machine := flight.NewMachine(store, flight.Options{})
	machine.Initialize()

	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.HTTPPort = 0

	s, err := New(cfg, Deps{Store: store, Machine: machine, Logger: logger})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Error("New() without store expected error")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := newTestServer(t, logging.FromZap(zap.New(core), "gateway"))

	req := httptest.NewRequest(http.MethodPost, "/GET_GPS", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	id := rec.Header().Get(RequestIDHeader)
	if len(id) != 36 {
		t.Errorf("generated request ID = %q", id)
	}

	entries := logs.FilterMessage("HTTP request").All()
	if len(entries) != 1 {
		t.Fatalf("len(log entries) = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/GET_GPS" || fields["request_id"] != id {
		t.Errorf("log fields = %v", fields)
	}
	if fields["status"] != int64(http.StatusOK) {
		t.Errorf("status field = %v (%T), want 200", fields["status"], fields["status"])
	}

	req = httptest.NewRequest(http.MethodGet, "/GET_GPS", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", rec.Header().Get(RequestIDHeader))
	}
	last := logs.FilterMessage("HTTP request").All()[1].ContextMap()
	if last["status"] != int64(http.StatusNotFound) {
		t.Errorf("status field = %v, want 404", last["status"])
	}
}

func TestServer_StartAsyncAndStop(t *testing.T) {
	s := newTestServer(t, logging.NewNop())

	if err := s.StartAsync(); err != nil {
		t.Fatalf("StartAsync() error = %v", err)
	}
	if strings.HasSuffix(s.Address(), ":0") {
		t.Fatalf("Address() = %q, want bound port", s.Address())
	}

	resp, err := http.Post("http://"+s.Address()+"/INC_STATE", "text/plain", strings.NewReader("STATE3"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "STATE-CHANGE-SUCCESS" {
		t.Errorf("body = %q", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if _, err := http.Post("http://"+s.Address()+"/GET_GPS", "text/plain", nil); err == nil {
		t.Error("server still accepting after Stop()")
	}
}

func TestServer_CloseReleasesListener(t *testing.T) {
	s := newTestServer(t, logging.NewNop())

	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	addr := s.Address()

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		t.Fatalf("address %s still bound after Close(): %v", addr, err)
	}
	lis.Close()
}
