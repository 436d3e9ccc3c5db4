package workspace

import "github.com/DeHby/workspace/internal/errors"

// Sentinel errors returned by the public surface. Match with errors.Is.
var (
	// ErrClosed is returned by submissions after Close has begun.
	ErrClosed = errors.ErrBranchClosed
	// ErrEmptySequence is returned by SubmitSequence with zero callables.
	ErrEmptySequence = errors.ErrEmptySequence
	// ErrNilTask is returned when a nil callable is submitted.
	ErrNilTask = errors.ErrNilTask
	// ErrInvalidWorkerLimits is returned for unsatisfiable min/max bounds.
	ErrInvalidWorkerLimits = errors.ErrInvalidWorkerLimits
)
