// Package policy abstracts the external policy-decision service behind
// a normalized verdict: permit, reject, rewrite, or require-confirmation.
//
// The client is strictly fail-closed. A transport failure, timeout,
// non-2xx response, or undecodable body all produce a reject with
// reason "policy_unavailable" rather than letting the action through.
// High-risk envelopes with no consent reference are rejected locally
// without consulting the service at all.
//
// Deployments without a policy service (empty base URL) fall back to a
// local permit; envelope-declared required_confirmations still force a
// confirmation hold in that mode.
package policy
