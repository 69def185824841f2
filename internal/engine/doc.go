// Package engine orchestrates the actuation pipeline: envelope
// validation, the risk gate, policy evaluation, confirmation holds,
// driver routing, and execution, with telemetry and audit entries at
// every transition.
//
// The engine is the only component that sequences the safety gates; a
// driver is never invoked unless validation, the risk gate, policy,
// any required confirmations, and the scope check have all passed. A
// bounded in-memory result store keeps recent outcomes so repeated
// submissions of the same action_id are idempotent and asynchronous
// callers can poll for state.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Confirmation
// resolutions continue execution on background goroutines; Close
// waits for them.
package engine
