package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/unison-systems/actuation-core/internal/auth"
	"github.com/unison-systems/actuation-core/internal/driver"
	"github.com/unison-systems/actuation-core/internal/engine"
	"github.com/unison-systems/actuation-core/internal/envelope"
	"github.com/unison-systems/actuation-core/internal/gate"
	"github.com/unison-systems/actuation-core/internal/vdi"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotFound           = "not_found"
	ErrCodeUnauthorized       = "unauthorised"
	ErrCodeForbidden          = "forbidden"
	ErrCodeValidation         = "validation_error"
	ErrCodeRiskBlocked        = "risk_blocked"
	ErrCodePolicyRejected     = "policy_rejected"
	ErrCodeConfirmation       = "confirmation_refused"
	ErrCodeDriverNotFound     = "driver_not_found"
	ErrCodeDriverError        = "driver_error"
	ErrCodeMissingScope       = "missing_scope"
	ErrCodeAuditUnavailable   = "audit_unavailable"
	ErrCodeUpstream           = "upstream_error"
	ErrCodeDeadline           = "deadline_exceeded"
	ErrCodeServiceUnavailable = "service_unavailable"
	ErrCodeInternal           = "internal_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writePipelineError maps a typed pipeline error to its HTTP status
// and stable error code. The envelope result (when present) is still
// the caller's source of truth; this covers the error body.
func writePipelineError(w http.ResponseWriter, err error) {
	var (
		validation *envelope.ValidationError
		blocked    *gate.RiskBlocked
		rejected   *engine.PolicyRejectedError
		refused    *engine.ConfirmationRefusedError
		driverErr  *driver.Error
		upstream   *vdi.UpstreamError
	)

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, validation.Error())
	case errors.As(err, &blocked):
		writeError(w, http.StatusForbidden, ErrCodeRiskBlocked, blocked.Error())
	case errors.As(err, &rejected):
		writeError(w, http.StatusForbidden, ErrCodePolicyRejected, rejected.Error())
	case errors.As(err, &refused):
		writeError(w, http.StatusForbidden, ErrCodeConfirmation, refused.Error())
	case errors.Is(err, engine.ErrMissingScope):
		writeError(w, http.StatusForbidden, ErrCodeMissingScope, err.Error())
	case errors.Is(err, driver.ErrNotFound):
		writeError(w, http.StatusBadRequest, ErrCodeDriverNotFound, err.Error())
	case errors.Is(err, engine.ErrAuditUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeAuditUnavailable, err.Error())
	case errors.Is(err, engine.ErrActionNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenMissing):
		writeUnauthorized(w, err.Error())
	case errors.Is(err, vdi.ErrDeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeDeadline, err.Error())
	case errors.As(err, &upstream):
		writeError(w, upstreamStatus(upstream), ErrCodeUpstream, upstream.Error())
	case errors.As(err, &driverErr):
		writeError(w, http.StatusBadGateway, ErrCodeDriverError, driverErr.Error())
	default:
		writeInternalError(w, err.Error())
	}
}

// upstreamStatus passes a VDI agent's HTTP status through when it is a
// valid client/server status, mapping transport-level failures to 502.
func upstreamStatus(err *vdi.UpstreamError) int {
	if err.StatusCode >= 400 && err.StatusCode < 600 {
		return err.StatusCode
	}
	return http.StatusBadGateway
}
