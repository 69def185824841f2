// Package driver contains the actuation drivers and the capability
// registry that routes envelopes to them.
//
// A driver declares an ordered set of capabilities, each an intent name
// plus an optional device-class filter. Routing scans drivers in
// registration order and picks the first capability match, so selection
// is deterministic for a given registry state. Logging-only mode
// bypasses matching entirely and sends everything to the logging
// driver.
//
// Driver execution failures are deterministic (*Error) and surfaced to
// the client without retry. Retryable behaviour belongs in the upstream
// proxy path, not here.
package driver
