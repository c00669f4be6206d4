package handler

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/msto63/hive/internal/eventlog"
	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/health"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

type testEnv struct {
	store   *ptam.Store
	machine *flight.Machine
	events  *eventlog.MemoryStore
	handler *Handler
}

func newTestEnv(t *testing.T, opts flight.Options) *testEnv {
	t.Helper()
	store := ptam.New(ptam.DefaultConfig())
	machine := flight.NewMachine(store, opts)
	if err := machine.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	registry := health.NewRegistry("hive", "test")
	registry.Register(health.StoreCheck("ptam", store, 90))

	events := eventlog.NewMemoryStore()
	h := NewHandler(Config{Version: "test", CORSEnabled: true}, store, machine, registry, events, logging.NewNop())
	return &testEnv{store: store, machine: machine, events: events, handler: h}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestFirmware_MethodNotPost(t *testing.T) {
	env := newTestEnv(t, flight.Options{})

	for _, path := range []string{"/GET_GPS", "/GET_TOKEN", "/INC_SWP", "/INC_AUTH"} {
		rec := env.do(http.MethodGet, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, rec.Code)
		}
		if rec.Body.String() != "Not Found" {
			t.Errorf("GET %s body = %q, want Not Found", path, rec.Body.String())
		}
	}
}

func TestFirmware_BodyLimit(t *testing.T) {
	env := newTestEnv(t, flight.Options{})

	for _, n := range []int{100, 101} {
		rec := env.do(http.MethodPost, "/INC_SWP", strings.Repeat("A", n))
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("%d byte body status = %d, want 413", n, rec.Code)
		}
	}

	rec := env.do(http.MethodPost, "/INC_SWP", "TLAT"+strings.Repeat("1", 95))
	if rec.Code != http.StatusOK {
		t.Errorf("99 byte body status = %d, want 200", rec.Code)
	}
}

func TestFirmware_Frames(t *testing.T) {
	env := newTestEnv(t, flight.Options{})
	env.store.StoreDouble(ptam.KeyGPSLat, 56)
	env.store.StoreDouble(ptam.KeyGPSLong, 78.5)
	env.store.StoreDouble(ptam.KeyGPSSat, 9)
	env.store.StoreDouble(ptam.KeyGPSAlt, 72.34)

	rec := env.do(http.MethodPost, "/GET_GPS", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got, want := rec.Body.String(), "LAT56_LONG78.5_SAT9_ALT72.34"; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}

	rec = env.do(http.MethodPost, "/GET_BATT", "")
	if got, want := rec.Body.String(), "VOLTAGE0_CURRENT0_PERCENT0_TEMP0"; got != want {
		t.Errorf("empty BATT body = %q, want %q", got, want)
	}
}

func TestFirmware_Setpoints(t *testing.T) {
	env := newTestEnv(t, flight.Options{})
	env.store.StoreDouble(ptam.KeyTargetAlt, 120)

	rec := env.do(http.MethodPost, "/INC_SWP", "TLAT51.5_TLONG-0.12_TALT0_CALT300_TVEL15")
	if rec.Code != http.StatusOK || rec.Body.String() != ReplyOK {
		t.Fatalf("INC_SWP = %d %q", rec.Code, rec.Body.String())
	}

	want := map[string]float64{
		ptam.KeyTargetLat:      51.5,
		ptam.KeyTargetLong:     -0.12,
		ptam.KeyTargetAlt:      120,
		ptam.KeyCruiseAlt:      300,
		ptam.KeyTargetVelocity: 15,
	}
	for key, v := range want {
		if got, _ := env.store.RetrieveDouble(key); got != v {
			t.Errorf("%s = %v, want %v", key, got, v)
		}
	}

	rec = env.do(http.MethodPost, "/INC_SYS", "WFL90_WFR45")
	if rec.Code != http.StatusOK {
		t.Fatalf("INC_SYS status = %d", rec.Code)
	}
	if got, _ := env.store.RetrieveDouble(ptam.KeyWingFR); got != 45 {
		t.Errorf("WingFR = %v, want 45", got)
	}
	if _, err := env.store.RetrieveDouble(ptam.KeyThrottle); err == nil {
		t.Error("THR written from a short payload")
	}

	rec = env.do(http.MethodPost, "/INC_SYS", "WFL_X")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed payload status = %d, want 400", rec.Code)
	}
}

func TestFirmware_SetpointsRejectNonFinite(t *testing.T) {
	env := newTestEnv(t, flight.Options{})

	for _, body := range []string{"TLat-Inf_TLong1_TAlt1", "TLat1_TLong-inf_TAlt1"} {
		rec := env.do(http.MethodPost, "/INC_SWP", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("INC_SWP %q status = %d, want 400", body, rec.Code)
		}
	}
	if v, err := env.store.RetrieveDouble(ptam.KeyTargetLat); err == nil {
		t.Errorf("TLat = %v, want unset", v)
	}

	rec := env.do(http.MethodGet, "/api/v1/registers", "")
	var resp RegistersResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Errorf("registers after rejected payload: status = %d, decode error = %v", rec.Code, err)
	}
}

func TestAPI_UnencodableRegister(t *testing.T) {
	env := newTestEnv(t, flight.Options{})
	env.store.StoreDouble(ptam.KeyPitch, math.Inf(1))

	rec := env.do(http.MethodGet, "/api/v1/registers", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Code != "internal" || resp.Details == "" {
		t.Errorf("error response = %+v", resp)
	}
}

func TestFirmware_SetpointsCapacity(t *testing.T) {
	store := ptam.New(ptam.Config{DoubleCapacity: 1, Uint8Capacity: 4, Uint32Capacity: 4, StringCapacity: 4})
	machine := flight.NewMachine(store, flight.Options{})
	h := NewHandler(Config{}, store, machine, nil, nil, logging.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/INC_SWP", strings.NewReader("TLAT1_TLONG2"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInsufficientStorage {
		t.Errorf("status = %d, want 507", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "capacity exceeded") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestFirmware_ArmingFlow(t *testing.T) {
	env := newTestEnv(t, flight.Options{RequireSetpoints: true})

	rec := env.do(http.MethodPost, "/GET_TOKEN", "")
	if rec.Code != http.StatusConflict || rec.Body.Len() != 0 {
		t.Fatalf("GET_TOKEN without setpoints = %d %q, want 409 empty", rec.Code, rec.Body.String())
	}

	env.do(http.MethodPost, "/INC_SWP", "TLAT51.5_TLONG-0.12_TALT100")

	rec = env.do(http.MethodPost, "/INC_STATE", "STATE2")
	if rec.Body.String() != ReplyStateFail {
		t.Errorf("INC_STATE ARMED before auth = %q, want fail", rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/GET_TOKEN", "")
	if rec.Code != http.StatusOK || len(rec.Body.String()) != 6 {
		t.Fatalf("GET_TOKEN = %d %q", rec.Code, rec.Body.String())
	}
	token := rec.Body.String()

	rec = env.do(http.MethodPost, "/INC_AUTH", "wrong1")
	if rec.Body.String() != ReplyStateFail {
		t.Errorf("INC_AUTH wrong token = %q", rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/INC_AUTH", token)
	if rec.Body.String() != ReplyStateSuccess {
		t.Fatalf("INC_AUTH = %q", rec.Body.String())
	}
	if env.machine.Mode() != flight.ModeArmed {
		t.Errorf("Mode() = %v, want ARMED", env.machine.Mode())
	}

	rec = env.do(http.MethodPost, "/INC_AUTH", token)
	if rec.Body.String() != ReplyStateFail {
		t.Errorf("token reuse = %q, want fail", rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/GET_TOKEN", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("GET_TOKEN while armed status = %d, want 409", rec.Code)
	}

	rec = env.do(http.MethodPost, "/INC_STATE", "STATE3")
	if rec.Body.String() != ReplyStateSuccess || env.machine.Mode() != flight.ModeBypass {
		t.Errorf("INC_STATE BYPASS = %q, mode %v", rec.Body.String(), env.machine.Mode())
	}

	rec = env.do(http.MethodPost, "/INC_STATE", "STATE0")
	if rec.Body.String() != ReplyStateSuccess || env.machine.Mode() != flight.ModeBypass {
		t.Errorf("INC_STATE 0 changed mode to %v", env.machine.Mode())
	}

	rec = env.do(http.MethodPost, "/INC_STATE", "STATE7")
	if rec.Body.String() != ReplyStateFail {
		t.Errorf("INC_STATE 7 = %q, want fail", rec.Body.String())
	}
}

func TestRoot(t *testing.T) {
	env := newTestEnv(t, flight.Options{})
	rec := env.do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mode: PREP") {
		t.Errorf("GET / = %d %q", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", rec.Code)
	}
}

func TestAPI_State(t *testing.T) {
	env := newTestEnv(t, flight.Options{})
	env.machine.Transition(flight.ModeBypass)

	rec := env.do(http.MethodGet, "/api/v1/state", "")
	var resp StateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Code != 3 || resp.Mode != "BYPASS" {
		t.Errorf("state = %+v", resp)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func TestAPI_Registers(t *testing.T) {
	env := newTestEnv(t, flight.Options{})
	env.store.StoreDouble(ptam.KeyPitch, 1.5)
	env.store.StoreUint32(ptam.KeyBoardErrors, 3)

	rec := env.do(http.MethodGet, "/api/v1/registers", "")
	var resp RegistersResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Registers.Doubles[ptam.KeyPitch] != 1.5 {
		t.Errorf("PITCH = %v, want 1.5", resp.Registers.Doubles[ptam.KeyPitch])
	}
	if resp.Total != 4 {
		t.Errorf("Total = %d, want 4 (state, stateDescript, PITCH, BOARD_ERRS)", resp.Total)
	}
	if len(resp.Stats) != len(ptam.Kinds) {
		t.Errorf("len(Stats) = %d, want %d", len(resp.Stats), len(ptam.Kinds))
	}

	rec = env.do(http.MethodGet, "/api/v1/registers/BOARD_ERRS", "")
	var reg RegisterResponse
	json.NewDecoder(rec.Body).Decode(&reg)
	if reg.Value != "3" || reg.Kind != ptam.KindUint32 {
		t.Errorf("register = %+v", reg)
	}

	rec = env.do(http.MethodGet, "/api/v1/registers/MISSING", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing register status = %d, want 404", rec.Code)
	}
}

func TestAPI_Events(t *testing.T) {
	env := newTestEnv(t, flight.Options{})
	ctx := context.Background()
	env.events.Append(ctx, &eventlog.Event{Kind: eventlog.KindSSL, Body: "a"})
	env.events.Append(ctx, &eventlog.Event{Kind: eventlog.KindSDD, Body: "b"})
	env.events.Append(ctx, &eventlog.Event{Kind: eventlog.KindSDD, Body: "c"})

	rec := env.do(http.MethodGet, "/api/v1/events?kind=LOG_SDD&limit=1", "")
	var resp EventsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if resp.Total != 1 || resp.Events[0].Kind != eventlog.KindSDD {
		t.Errorf("events = %+v", resp)
	}

	rec = env.do(http.MethodGet, "/api/v1/events?limit=x", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t, flight.Options{})

	rec := env.do(http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var report health.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if report.Status != health.StatusHealthy || len(report.Checks) != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestAPI_NotFoundAndOptions(t *testing.T) {
	env := newTestEnv(t, flight.Options{})

	rec := env.do(http.MethodGet, "/api/v1/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var resp ErrorResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Code != "not_found" {
		t.Errorf("code = %q, want not_found", resp.Code)
	}

	rec = env.do(http.MethodOptions, "/api/v1/state", "")
	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want 200", rec.Code)
	}
}
