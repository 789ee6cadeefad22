// Package ferrors defines the sentinel error taxonomy shared across
// Filoco's core packages, checked with errors.Is and wrapped with %w at
// each layer boundary.
package ferrors

import "errors"

var (
	// ErrStoreNotFound means walking upward found no .filoco directory.
	// Fatal at the CLI boundary, never raised from the core.
	ErrStoreNotFound = errors.New("filoco: not a store (no .filoco found)")

	// ErrStale means a kernel file handle no longer resolves to a live
	// inode. Recovered locally by deleting the stale record.
	ErrStale = errors.New("filoco: stale file handle")

	// ErrGone means a directory entry disappeared between observation
	// and use. Recovered the same way as ErrStale.
	ErrGone = errors.New("filoco: entry gone")

	// ErrCrossMount means a traversal would cross a filesystem mount
	// boundary. Not an error condition by itself; callers should skip
	// silently rather than propagate it as a failure.
	ErrCrossMount = errors.New("filoco: cross-mount traversal refused")

	// ErrNameConflict means more than one head FLV claims the same FOB.
	ErrNameConflict = errors.New("filoco: name conflict")

	// ErrPigeonholeConflict means two distinct FOBs claim the same
	// (parent_fob, name).
	ErrPigeonholeConflict = errors.New("filoco: pigeonhole conflict")

	// ErrTooMessy means an mdapply task's dependencies form a true cycle
	// or its filesystem state is too ambiguous to resolve automatically.
	ErrTooMessy = errors.New("filoco: too messy to apply")

	// ErrProtocolTimeout means an mdsync exchange round exceeded its
	// xchg_timeout.
	ErrProtocolTimeout = errors.New("filoco: protocol exchange timeout")

	// ErrInvariantViolated is fatal: root replacement, a foreign-key
	// failure despite insertion-order preservation, or a failed
	// store-invariant check.
	ErrInvariantViolated = errors.New("filoco: invariant violated")

	// ErrArgument signals a CLI argument error (exit code 2).
	ErrArgument = errors.New("filoco: argument error")
)
