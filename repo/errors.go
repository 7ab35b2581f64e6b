// Package repo synchronizes the llama.cpp source tree to a pinned ref.
//
// This file defines sentinel errors and the error wrapper for classifying
// sync failures. These enable callers to use errors.Is/errors.As for typed
// assertions rather than string matching.
package repo

import (
	"errors"
	"fmt"
)

// Sentinel errors for sync failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrFetch indicates a network, remote-access, or ref-resolution failure.
	ErrFetch = errors.New("fetch failed")

	// ErrDirtyWorkingTree indicates local modifications that a checkout
	// would destroy. Pass Force to discard them instead.
	ErrDirtyWorkingTree = errors.New("working tree has local modifications")
)

// SyncError wraps an underlying error with sync classification.
// It preserves the original error in the chain for inspection via errors.As.
type SyncError struct {
	// Kind is the sentinel error for classification.
	Kind error
	// Op is the git operation that failed (e.g. "fetch", "checkout").
	Op string
	// Ref is the ref involved, if any.
	Ref string
	// Output is the captured git output, if any.
	Output string
	// Err is the underlying error.
	Err error
}

func (e *SyncError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("git %s %s: %v: %v", e.Op, e.Ref, e.Kind, e.Err)
	}
	return fmt.Sprintf("git %s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *SyncError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// newSyncError creates a classified sync error.
func newSyncError(kind error, op, ref, output string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Ref: ref, Output: output, Err: err}
}
