// Package envelope defines the Action Envelope: the typed, versioned
// wire contract describing an intended actuation.
//
// An envelope moves through the pipeline in three steps: decode from
// JSON, Normalize (fill server defaults like a generated action_id),
// then Validate (structural and semantic checks with no side effects).
// Once validated the envelope is treated as immutable; policy rewrites
// operate on a DeepCopy so provenance on the original is retained.
//
// The schema_version field pins the wire contract. Only version "1.0"
// is accepted; unknown versions are rejected at validation.
package envelope
