package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unison-systems/actuation-core/internal/confirm"
	"github.com/unison-systems/actuation-core/internal/envelope"
)

// handleActuate accepts an action envelope and drives it through the
// pipeline synchronously. Terminal results return 200; actions held
// for confirmation return 202 with the confirmation reference.
func (s *Server) handleActuate(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decodeEnvelope(w, r)
	if !ok {
		return
	}

	result, err := s.engine.Execute(r.Context(), env)
	if err != nil {
		if result != nil {
			// Rejected and failed actions still produce a result; the
			// result body carries the error kind for the caller.
			writeJSON(w, statusForResult(result), result)
			return
		}
		writePipelineError(w, err)
		return
	}

	writeJSON(w, statusForResult(result), result)
}

// handleActuateAsync accepts an envelope, returns a submitted
// acknowledgment immediately, and executes in the background. Callers
// poll GET /actions/{id} or stream /ws for the terminal state.
func (s *Server) handleActuateAsync(w http.ResponseWriter, r *http.Request) {
	env, ok := s.decodeEnvelope(w, r)
	if !ok {
		return
	}

	ack, err := s.engine.Submit(env)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ack)
}

// handleGetAction returns the current result for a previously
// submitted action.
func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	result, err := s.engine.Result(actionID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// confirmRequest is the body for POST /actions/{id}/confirm.
type confirmRequest struct {
	ConfirmerID string `json:"confirmer_id"`
}

// handleConfirmAction records one confirmation for a held action. When
// the required count is reached the action continues executing in the
// background.
func (s *Server) handleConfirmAction(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	confirmerID := req.ConfirmerID
	if confirmerID == "" {
		if id := identityFrom(r.Context()); id != nil {
			confirmerID = id.PersonID
		}
	}
	if confirmerID == "" {
		writeBadRequest(w, "confirmer_id is required")
		return
	}

	state, err := s.coordinator.Confirm(actionID, confirmerID)
	if err != nil {
		writeConfirmError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action_id": actionID,
		"state":     state,
	})
}

// handleDenyAction denies a held action, terminating it as rejected.
func (s *Server) handleDenyAction(w http.ResponseWriter, r *http.Request) {
	actionID := chi.URLParam(r, "id")

	if err := s.coordinator.Deny(actionID); err != nil {
		writeConfirmError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action_id": actionID,
		"state":     confirm.StateDenied,
	})
}

// decodeEnvelope parses and lightly prepares the request body. The
// engine performs full validation; this only rejects unparseable JSON
// and stamps the authenticated person when the body omits one.
func (s *Server) decodeEnvelope(w http.ResponseWriter, r *http.Request) (*envelope.ActionEnvelope, bool) {
	var env envelope.ActionEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return nil, false
	}

	if id := identityFrom(r.Context()); id != nil {
		if env.PersonID == "" {
			env.PersonID = id.PersonID
		}
		if env.PolicyContext == nil {
			env.PolicyContext = &envelope.PolicyContext{}
		}
		if len(env.PolicyContext.Scopes) == 0 {
			env.PolicyContext.Scopes = id.Scopes
		}
	}

	return &env, true
}

// writeConfirmError maps coordinator errors to HTTP responses.
func writeConfirmError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, confirm.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, confirm.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "already_resolved", err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// statusForResult maps a result status to its HTTP status code.
func statusForResult(result *envelope.ActionResult) int {
	switch result.Status {
	case envelope.StatusAwaitingConfirmation:
		return http.StatusAccepted
	case envelope.StatusRejected:
		return http.StatusForbidden
	case envelope.StatusFailed:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}
