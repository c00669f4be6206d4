package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/msto63/hive/internal/flight"
	"github.com/msto63/hive/internal/telemetry"
	"github.com/msto63/hive/pkg/core/apperr"
	"github.com/msto63/hive/pkg/core/ptam"
)

// Firmware route replies
const (
	ReplyOK            = "OK"
	ReplyStateSuccess  = "STATE-CHANGE-SUCCESS"
	ReplyStateFail     = "STATE-CHANGE-FAIL"
	replyNotFound      = "Not Found"
	replyEntityTooLong = "Request Entity Too Large"
)

// firmwareRoutes maps the ground-station paths. All are POST-only.
func (h *Handler) firmwareRoutes() map[string]http.HandlerFunc {
	routes := map[string]http.HandlerFunc{
		"/GET_TOKEN": h.post(h.handleToken),
		"/INC_SWP":   h.post(h.setpointHandler(ptam.SetpointKeys)),
		"/INC_SYS":   h.post(h.setpointHandler(ptam.SystemKeys)),
		"/INC_STATE": h.post(h.handleIncState),
		"/INC_AUTH":  h.post(h.handleIncAuth),
	}
	for name, frame := range telemetry.Frames {
		routes["/GET_"+name] = h.post(h.frameHandler(frame))
	}
	return routes
}

// post rejects other methods with 404 and reads the size-limited body
func (h *Handler) post(fn func(w http.ResponseWriter, body string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeText(w, http.StatusNotFound, replyNotFound)
			return
		}

		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBody-1))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeText(w, http.StatusRequestEntityTooLarge, replyEntityTooLong)
				return
			}
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}
		fn(w, string(data))
	}
}

func (h *Handler) frameHandler(frame telemetry.Frame) func(http.ResponseWriter, string) {
	return func(w http.ResponseWriter, _ string) {
		packed, missing := frame.Pack(h.store)
		if len(missing) > 0 {
			h.logger.Debug("Telemetry frame has missing registers", "frame", frame.Name, "missing", missing)
		}
		writeText(w, http.StatusOK, packed)
	}
}

// handleToken issues an arm token; a failed verification yields 409 with
// an empty body
func (h *Handler) handleToken(w http.ResponseWriter, _ string) {
	token, err := h.machine.IssueToken()
	if err != nil {
		if flight.IsNotVerified(err) {
			h.logger.Info("Arm token refused", "reason", err)
			w.WriteHeader(http.StatusConflict)
			return
		}
		writeStoreError(w, err)
		return
	}
	h.logger.Info("Arm token issued")
	writeText(w, http.StatusOK, token)
}

// setpointHandler writes the nonzero payload values 0..len(keys)-1
func (h *Handler) setpointHandler(keys []string) func(http.ResponseWriter, string) {
	return func(w http.ResponseWriter, body string) {
		fields, err := telemetry.Parse(body)
		if err != nil {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}

		for i, key := range keys {
			v := telemetry.Value(fields, i)
			if v == 0 {
				continue
			}
			if err := h.store.StoreDouble(key, v); err != nil {
				writeStoreError(w, err)
				return
			}
		}
		writeText(w, http.StatusOK, ReplyOK)
	}
}

// handleIncState switches mode on a nonzero first value. ARMED is refused
// unless the vehicle was armed through /INC_AUTH.
func (h *Handler) handleIncState(w http.ResponseWriter, body string) {
	fields, err := telemetry.Parse(body)
	if err != nil {
		writeText(w, http.StatusBadRequest, err.Error())
		return
	}

	code := telemetry.Value(fields, 0)
	if code == 0 {
		writeText(w, http.StatusOK, ReplyStateSuccess)
		return
	}

	mode, err := flight.ParseMode(int(code))
	if err != nil {
		writeText(w, http.StatusOK, ReplyStateFail)
		return
	}
	if err := h.machine.Request(mode); err != nil {
		h.logger.Info("State change refused", "mode", mode, "reason", err)
		if apperr.HasCode(err, apperr.CodeQuotaExceeded) {
			writeStoreError(w, err)
			return
		}
		writeText(w, http.StatusOK, ReplyStateFail)
		return
	}
	writeText(w, http.StatusOK, ReplyStateSuccess)
}

func (h *Handler) handleIncAuth(w http.ResponseWriter, body string) {
	if err := h.machine.Authorize(strings.TrimSpace(body)); err != nil {
		h.logger.Warn("Arm authorization failed", "error", err)
		writeText(w, http.StatusOK, ReplyStateFail)
		return
	}
	h.logger.Info("Vehicle armed")
	writeText(w, http.StatusOK, ReplyStateSuccess)
}

// writeStoreError reports a failed register write; a full partition maps
// to 507
func writeStoreError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if apperr.HasCode(err, apperr.CodeQuotaExceeded) {
		status = http.StatusInsufficientStorage
	}
	writeText(w, status, err.Error())
}
