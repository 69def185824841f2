package engine

import (
	"errors"
	"fmt"

	"github.com/unison-systems/actuation-core/internal/driver"
	"github.com/unison-systems/actuation-core/internal/envelope"
	"github.com/unison-systems/actuation-core/internal/gate"
)

// Sentinel errors surfaced by the engine in addition to the typed
// errors from the envelope, gate, and driver packages.
var (
	// ErrMissingScope is returned when required actuation scopes are
	// configured and the envelope's policy context carries none of
	// them.
	ErrMissingScope = errors.New("engine: missing required actuation scope")

	// ErrActionNotFound is returned when querying an action_id the
	// engine has never seen (or has evicted).
	ErrActionNotFound = errors.New("engine: action not found")

	// ErrAuditUnavailable is returned when a high-risk action cannot
	// be audited. The action is never reported as completed in that
	// case.
	ErrAuditUnavailable = errors.New("engine: audit trail unavailable for high-risk action")
)

// PolicyRejectedError is a definitive refusal from policy evaluation,
// including the fail-closed policy_unavailable case.
type PolicyRejectedError struct {
	Reason string
}

func (e *PolicyRejectedError) Error() string {
	return fmt.Sprintf("engine: policy rejected action: %s", e.Reason)
}

// ConfirmationRefusedError is returned when a held action resolves as
// denied or expired instead of confirmed.
type ConfirmationRefusedError struct {
	Outcome string // "denied" or "expired"
}

func (e *ConfirmationRefusedError) Error() string {
	return fmt.Sprintf("engine: confirmation %s", e.Outcome)
}

// errorKind maps a pipeline error to the stable machine-readable kind
// carried on ActionResult.Error.
func errorKind(err error) string {
	var (
		validation *envelope.ValidationError
		blocked    *gate.RiskBlocked
		rejected   *PolicyRejectedError
		refused    *ConfirmationRefusedError
		driverErr  *driver.Error
	)

	switch {
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &blocked):
		return "risk_blocked"
	case errors.As(err, &rejected):
		return "policy_rejected"
	case errors.As(err, &refused):
		return "confirmation_" + refused.Outcome
	case errors.Is(err, driver.ErrNotFound):
		return "driver_not_found"
	case errors.Is(err, ErrMissingScope):
		return "missing_scope"
	case errors.Is(err, ErrAuditUnavailable):
		return "audit_unavailable"
	case errors.As(err, &driverErr):
		return "driver_error"
	default:
		return "internal_error"
	}
}
