package api

import (
	"net/http"
	"strconv"

	"github.com/unison-systems/actuation-core/internal/audit"
	"github.com/unison-systems/actuation-core/internal/telemetry"
)

// handleRecentTelemetry returns the newest buffered lifecycle events,
// newest first. The optional limit parameter caps the count; the
// buffer itself is bounded so the response never exceeds its capacity.
func (s *Server) handleRecentTelemetry(w http.ResponseWriter, r *http.Request) {
	if s.emitter == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []telemetry.Event{}})
		return
	}

	events := s.emitter.Recent()

	// Recent() returns oldest-first; reverse so the newest lead.
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		if limit < len(events) {
			events = events[:limit]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleListAudit returns audit trail entries, optionally filtered by
// action_id, stage, or outcome.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "audit store not configured")
		return
	}

	filter := audit.Filter{
		ActionID: r.URL.Query().Get("action_id"),
		Stage:    r.URL.Query().Get("stage"),
		Outcome:  r.URL.Query().Get("outcome"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit list failed", "error", err)
		writeInternalError(w, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
