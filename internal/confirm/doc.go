// Package confirm implements the confirmation handshake: a hold state
// requiring explicit approval before a gated action proceeds.
//
// A hold is created when policy evaluation demands confirmation. It
// resolves in exactly one of three ways: enough distinct confirmers
// approve it, someone denies it, or the expiry timer fires. Expiry is
// always a refusal; approval is never assumed from silence.
package confirm
