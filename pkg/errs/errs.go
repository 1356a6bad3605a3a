// Package errs holds the sentinel error values shared across the storage and
// pubsub packages. Every operation that fails classifies its failure as one
// of these; callers use errors.Is against them, never string matching.
package errs

import "errors"

var (
	// InvalidParameter: null pointer, zero-length key, size-too-large, wrong-kind
	// field access.
	InvalidParameter = errors.New("invalid parameter")

	// NotInitialized: operation invoked before the component finished
	// initialization.
	NotInitialized = errors.New("not initialized")

	// NotFound: key or sequence absent.
	NotFound = errors.New("not found")

	// Duplicate: key already present during unique-key insertion.
	Duplicate = errors.New("duplicate")

	// NoSpace: free list empty (hash slots, Master record slots).
	NoSpace = errors.New("no space")

	// FileError: open/read/write/mmap/ftruncate failure at the OS layer.
	FileError = errors.New("file error")

	// LockError: failure initializing or acquiring a lock.
	LockError = errors.New("lock error")

	// IntegrityError: validation detected an inconsistent state (bad magic,
	// count mismatch).
	IntegrityError = errors.New("integrity error")
)
