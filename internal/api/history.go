package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/spimrig/internal/device"
	"github.com/nerrad567/spimrig/internal/history"
	"github.com/nerrad567/spimrig/internal/setup"
)

// handleListHistory returns journal entries, most recent first.
//
// Query parameters: type, slot, label, since (RFC 3339), limit, offset.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "event history not configured")
		return
	}

	q := r.URL.Query()
	filter := history.Filter{
		Type:  setup.EventType(q.Get("type")),
		Label: q.Get("label"),
	}

	if v := q.Get("slot"); v != "" {
		slot, err := device.ParseSlot(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		filter.Slot = slot
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	var ok bool
	if filter.Limit, ok = intParam(w, q.Get("limit"), "limit"); !ok {
		return
	}
	if filter.Offset, ok = intParam(w, q.Get("offset"), "offset"); !ok {
		return
	}

	result, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
