// Package logging provides structured logging built on log/slog.
//
// The Logger wrapper adds service-wide default fields and config-driven
// level/format selection. Components that only need a subset of logging
// methods declare their own small Logger interface, which this type
// satisfies.
package logging
