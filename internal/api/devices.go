package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dtu-hub/internal/correlation"
	"github.com/nerrad567/dtu-hub/internal/device"
)

// deviceRequestBody is the body of POST /device_request: a device request
// plus an optional per-call timeout.
type deviceRequestBody struct {
	device.Request
	TimeoutMS int `json:"timeout_ms,omitempty"`
}

// handleDeviceRequest performs one exchange with a device. Device-level
// failures come back as a 200 carrying overall_state_code 400.
func (s *Server) handleDeviceRequest(w http.ResponseWriter, r *http.Request) {
	var body deviceRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	action, err := device.ParseRequestAction(string(body.Action))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if body.TimeoutMS < 0 {
		writeBadRequest(w, "timeout_ms must not be negative")
		return
	}
	body.Request.Action = action

	resp, err := s.service.Send(r.Context(), body.Request, time.Duration(body.TimeoutMS)*time.Millisecond)
	switch {
	case err == nil:
		if !resp.OK() {
			s.logger.Debug("device request unanswered",
				"dtu_sn", resp.DTUSN, "device_type", resp.DeviceType, "description", resp.Description)
		}
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, correlation.ErrTransportUnavailable):
		writeUnavailable(w, "MQTT broker is not connected")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Debug("device request abandoned by client",
			"dtu_sn", body.Identity.DTUSN, "request_id", r.Context().Value(ctxKeyRequestID))
		writeUnavailable(w, "request cancelled")
	default:
		s.logger.Error("device request failed", "dtu_sn", body.Identity.DTUSN, "error", err)
		writeInternalError(w, "device request failed")
	}
}

// handleTwins lists the twins behind one DTU, optionally narrowed by
// device type and physical id.
func (s *Server) handleTwins(w http.ResponseWriter, r *http.Request) {
	q := device.Query{
		DTUSN:      r.URL.Query().Get("dtu_sn"),
		PhysicalID: r.URL.Query().Get("physical_id"),
	}
	if raw := r.URL.Query().Get("device_type"); raw != "" {
		t, err := device.ParseDeviceType(raw)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		q.DeviceType = t
	}

	twins, err := s.service.Query(q)
	if err != nil {
		if errors.Is(err, device.ErrInvalidQuery) {
			writeBadRequest(w, "dtu_sn query parameter is required")
			return
		}
		writeInternalError(w, "listing twins failed")
		return
	}
	if twins == nil {
		twins = []device.Twin{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"twins": twins,
		"count": len(twins),
	})
}

// handleDTUState reports whether anything behind a DTU is still talking.
func (s *Server) handleDTUState(w http.ResponseWriter, r *http.Request) {
	sn := chi.URLParam(r, "dtu_sn")
	writeJSON(w, http.StatusOK, map[string]any{
		"dtu_sn": sn,
		"state":  s.service.State(device.Query{DTUSN: sn}),
	})
}

// handleSubDeviceState reports the liveness of one device behind a DTU.
func (s *Server) handleSubDeviceState(w http.ResponseWriter, r *http.Request) {
	t, err := device.ParseDeviceType(chi.URLParam(r, "device_type"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	q := device.Query{
		DTUSN:      chi.URLParam(r, "dtu_sn"),
		DeviceType: t,
		PhysicalID: chi.URLParam(r, "physical_id"),
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dtu_sn":      q.DTUSN,
		"device_type": q.DeviceType,
		"physical_id": q.PhysicalID,
		"state":       s.service.State(q),
	})
}
