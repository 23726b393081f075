package job

import "errors"

var (
	// ErrTimeout indicates that the hardware operation did not complete
	// within the allotted time. The timeout handler has already run when
	// this error surfaces.
	ErrTimeout = errors.New("hardware operation timed out")

	// ErrNilCompletionCheck indicates that a nil completion predicate was
	// provided at construction.
	ErrNilCompletionCheck = errors.New("completion check is nil")

	// ErrInvalidTimeout indicates that a non-positive timeout was provided
	// at construction.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidRefresh indicates that a non-positive refresh interval was
	// passed to WaitForCompletion.
	ErrInvalidRefresh = errors.New("refresh interval must be positive")

	// ErrFinished indicates that the Job has already reached a terminal
	// state. Jobs are single-use and cannot be re-armed.
	ErrFinished = errors.New("job already finished")
)
