package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/msto63/hive/internal/eventlog"
	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/health"
	"github.com/msto63/hive/pkg/core/logging"
	"github.com/msto63/hive/pkg/core/ptam"
)

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// StateResponse represents the current flight mode
type StateResponse struct {
	Code        uint8  `json:"code"`
	Mode        string `json:"mode"`
	Description string `json:"description"`
	TokenIssued bool   `json:"token_issued"`
}

// RegistersResponse represents a store snapshot
type RegistersResponse struct {
	Registers ptam.Snapshot         `json:"registers"`
	Stats     []ptam.PartitionStats `json:"stats"`
	Total     int                   `json:"total"`
}

// RegisterResponse represents a single register
type RegisterResponse struct {
	Key   string    `json:"key"`
	Kind  ptam.Kind `json:"kind"`
	Value string    `json:"value"`
}

// EventsResponse represents a list of events
type EventsResponse struct {
	Events []*eventlog.Event `json:"events"`
	Total  int               `json:"total"`
}

// Config holds handler settings. MaxBody is the firmware receive buffer
// size: bodies of MaxBody bytes or more are refused.
type Config struct {
	Version        string
	MaxBody        int64
	StreamInterval time.Duration
	CORSEnabled    bool
	AllowedOrigins []string
}

// Handler serves the firmware routes and the JSON API
type Handler struct {
	store   *ptam.Store
	machine *flight.Machine
	health  *health.Registry
	events  eventlog.Store
	config  Config
	logger  *logging.Logger
	routes  map[string]http.HandlerFunc
}

// NewHandler creates a new handler. health and events may be nil.
func NewHandler(cfg Config, store *ptam.Store, machine *flight.Machine, registry *health.Registry, events eventlog.Store, logger *logging.Logger) *Handler {
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 100
	}
	if logger == nil {
		logger = logging.New("gateway-handler")
	}

	h := &Handler{
		store:   store,
		machine: machine,
		health:  registry,
		events:  events,
		config:  cfg,
		logger:  logger,
	}
	h.routes = h.firmwareRoutes()
	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if fn, ok := h.routes[r.URL.Path]; ok {
		fn(w, r)
		return
	}

	if r.URL.Path == "/" {
		h.handleRoot(w, r)
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/api/v1") {
		writeText(w, http.StatusNotFound, "Not Found")
		return
	}

	h.setCORS(w, r)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	path = strings.Trim(path, "/")

	switch {
	case path == "health":
		h.handleHealth(w, r)
	case path == "state":
		h.handleState(w, r)
	case path == "registers":
		h.handleRegisters(w, r)
	case strings.HasPrefix(path, "registers/"):
		h.handleRegister(w, r, strings.TrimPrefix(path, "registers/"))
	case path == "events":
		h.handleEvents(w, r)
	default:
		h.writeError(w, http.StatusNotFound, "not_found", "Endpoint not found", "")
	}
}

func (h *Handler) setCORS(w http.ResponseWriter, r *http.Request) {
	if !h.config.CORSEnabled {
		return
	}

	origin := "*"
	if len(h.config.AllowedOrigins) > 0 {
		origin = ""
		reqOrigin := r.Header.Get("Origin")
		for _, o := range h.config.AllowedOrigins {
			if o == "*" || o == reqOrigin {
				origin = o
				break
			}
		}
		if origin == "" {
			return
		}
	}

	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
}

// handleRoot serves the plain-text banner
func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	_, descript, err := h.machine.Current()
	if err != nil {
		descript = flight.ModeUnknown.String()
	}
	writeText(w, http.StatusOK, "HIVE flight daemon "+h.config.Version+"\nmode: "+descript+"\n")
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if h.health == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Health registry not configured", "")
		return
	}

	report := h.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, report)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	mode, descript, err := h.machine.Current()
	if err != nil {
		descript = mode.String()
	}
	h.writeJSON(w, http.StatusOK, StateResponse{
		Code:        uint8(mode),
		Mode:        mode.String(),
		Description: descript,
		TokenIssued: h.machine.HasToken(),
	})
}

func (h *Handler) handleRegisters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	snap := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, RegistersResponse{
		Registers: snap,
		Stats:     h.store.Stats(),
		Total:     snap.Len(),
	})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}

	v, err := h.store.Lookup(key)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Register not found", key)
		return
	}
	h.writeJSON(w, http.StatusOK, RegisterResponse{Key: key, Kind: v.Kind, Value: v.Text()})
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", "")
		return
	}
	if h.events == nil {
		h.writeError(w, http.StatusServiceUnavailable, "unavailable", "Event log not configured", "")
		return
	}

	filter := eventlog.Filter{Kind: eventlog.Kind(r.URL.Query().Get("kind")), Limit: 50}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer", s)
			return
		}
		filter.Limit = n
	}

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if events == nil {
		events = []*eventlog.Event{}
	}
	h.writeJSON(w, http.StatusOK, EventsResponse{Events: events, Total: len(events)})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to encode response", "error", err)
		status = http.StatusInternalServerError
		data, _ = json.Marshal(ErrorResponse{Error: "Failed to encode response", Code: "internal", Details: err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message, details string) {
	resp := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}
	h.writeJSON(w, status, resp)
}

// writeAppError maps apperr codes onto HTTP statuses
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.GetCode(err) {
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeInvalidInput, apperr.CodeTypeMismatch:
		status = http.StatusBadRequest
	case apperr.CodeQuotaExceeded:
		status = http.StatusInsufficientStorage
	case apperr.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	h.logger.Warn("Request failed", "error", err, "status", status)
	h.writeError(w, status, strings.ToLower(string(apperr.GetCode(err))), err.Error(), "")
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
