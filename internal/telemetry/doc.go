// Package telemetry provides best-effort fan-out of action lifecycle
// events.
//
// Every pipeline transition produces one Event. Events land in a
// bounded in-memory buffer (served by the recent-telemetry endpoint)
// and are queued to a single delivery worker that pushes them to
// downstream HTTP consumers and in-process sinks. The single worker
// preserves per-action emission order; the bounded queue and swallowed
// delivery errors guarantee telemetry can never fail or delay an
// action.
package telemetry
