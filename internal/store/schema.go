package store

import _ "embed"

// schemaSQL is the embedded DDL, applied idempotently on every Open. The
// original Python store loaded schema.sql from a directory discovered
// relative to the interpreter (see init.py's `_schema_dirs`); embedding it
// here keeps the Go binary self-contained while `LoadSchema` stays a thin,
// swappable indirection in case a deployment wants to override it.
//
//go:embed schema.sql
var schemaSQL string

// LoadSchema returns the DDL applied to a freshly opened store. It is a
// variable, not a constant, so callers embedding filoco as a library can
// substitute a different schema source without touching Open.
var LoadSchema = func() string { return schemaSQL }
