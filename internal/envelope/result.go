package envelope

import "time"

// Action lifecycle statuses carried on an ActionResult. The first four
// are engine-terminal; the rest are driver-reported variants surfaced
// as-is (a logged action is complete from the pipeline's perspective).
const (
	StatusCompleted            = "completed"
	StatusFailed               = "failed"
	StatusRejected             = "rejected"
	StatusAwaitingConfirmation = "awaiting_confirmation"

	StatusLogged   = "logged"
	StatusAccepted = "accepted"
	StatusHalted   = "halted"

	// In-flight statuses reported while an asynchronous action is
	// still moving through the pipeline.
	StatusSubmitted = "submitted"
	StatusExecuting = "executing"
)

// ResultError carries a stable machine-readable kind plus a
// human-readable message explaining a non-completed result.
type ResultError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ActionResult is the terminal record of one envelope's trip through
// the pipeline. Every result carries enough information to reconstruct
// why an action did or did not execute.
type ActionResult struct {
	ActionID  string         `json:"action_id"`
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Driver    string         `json:"driver,omitempty"`
	Telemetry map[string]any `json:"telemetry,omitempty"`
	Error     *ResultError   `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// Terminal reports whether the result status admits no further
// pipeline transitions.
func (r *ActionResult) Terminal() bool {
	switch r.Status {
	case StatusAwaitingConfirmation, StatusSubmitted, StatusExecuting:
		return false
	}
	return true
}
