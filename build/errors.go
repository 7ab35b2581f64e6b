package build

import (
	"errors"
	"fmt"
)

// ErrBuildFailed indicates a nonzero exit from the native configure or
// compile step. Use errors.Is(err, ErrBuildFailed) for typed assertions.
var ErrBuildFailed = errors.New("build failed")

// BuildError wraps a native build failure with the step that failed and the
// captured tail of its output for diagnosis. Native builds are not safely
// retryable after a partial failure, so this is always fatal.
type BuildError struct {
	// Step is "configure" or "compile".
	Step string
	// OutputTail is the last lines of combined build output.
	OutputTail string
	// Err is the underlying error.
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cmake %s: %v: %v", e.Step, ErrBuildFailed, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches ErrBuildFailed.
func (e *BuildError) Is(target error) bool {
	return errors.Is(ErrBuildFailed, target)
}
