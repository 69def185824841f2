// Package gate implements the local risk gate, the first hard check an
// action envelope meets after validation.
//
// The gate holds the process-wide set of allowed risk levels and checks
// envelope constraints such as quiet hours and the execution-duration
// ceiling. It is deterministic and purely
// local: the same envelope against the same configuration always yields
// the same verdict, with no network calls involved. Rejections carry a
// RiskBlocked error naming the failed constraint.
package gate
