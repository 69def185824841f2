// Package vdi forwards long-running automation tasks (browse,
// form-submit, download) to an upstream agent with bounded resilience.
//
// The proxy retries on HTTP 429, any 5xx, and network-level errors,
// backing off exponentially with jitter up to a configured cap. Any
// other 4xx is fatal on first sight. Every attempt runs under its own
// timeout, the whole loop observes an overall deadline, and while a
// call is outstanding a heartbeat fires once per progress interval so
// callers can emit in_progress telemetry.
//
// The proxy bypasses the driver registry: VDI endpoints share the
// risk/policy gating of the actuation path but call the upstream
// service directly.
package vdi
