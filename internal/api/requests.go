package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/dtu-hub/internal/audit"
)

// handleListRequests pages through the request audit log, newest first.
func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "request audit is disabled")
		return
	}

	filter := audit.Filter{
		DTUSN:      r.URL.Query().Get("dtu_sn"),
		DeviceType: r.URL.Query().Get("device_type"),
	}
	var err error
	if filter.Limit, err = intParam(r, "limit"); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(r, "offset"); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing request audit failed", "error", err)
		writeInternalError(w, "listing requests failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam reads an optional non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
