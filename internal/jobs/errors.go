package jobs

import (
	"errors"
	"fmt"
)

// ErrNotFound marks lookups for records that either do not exist or that the
// acting user may not see. The two cases are deliberately indistinguishable so
// record identifiers leak nothing about other users' jobs.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or out-of-range caller input.
type ValidationError struct {
	Message string
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError reports a state transition rejected by a job's current status.
// Message is surfaced to callers verbatim.
type ConflictError struct {
	Requested JobStatus
	Actual    JobStatus
	Message   string
}

func (e *ConflictError) Error() string { return e.Message }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
