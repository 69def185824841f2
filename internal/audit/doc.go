// Package audit maintains the append-only trail of every decision and
// execution outcome in the pipeline.
//
// Durability follows risk: entries for high-risk actions are written
// synchronously and a write failure fails the request, while low and
// medium risk entries are written in the background and degrade to a
// logged warning on failure.
package audit
