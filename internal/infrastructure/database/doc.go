// Package database manages the SQLite connection backing the durable audit
// log.
//
// It wraps database/sql with connection setup (WAL mode, busy timeout,
// restrictive file permissions), health checks, and an embedded-migration
// runner. Schema files live in the top-level migrations package and are
// compiled into the binary.
package database
