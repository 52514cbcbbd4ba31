package requisition

import "errors"

var (
	// ErrInvalidInput is returned for malformed or out-of-range arguments
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState is returned when an operation is not legal from the current status
	ErrInvalidState = errors.New("invalid state")

	// ErrNotFound is returned for an unknown requisition id
	ErrNotFound = errors.New("requisition not found")

	// ErrConcurrentModification is returned when the record changed since it was read.
	// Callers should reload and retry.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrDuplicateOperation is returned when a fulfillment step is replayed
	ErrDuplicateOperation = errors.New("duplicate operation")

	// ErrInstanceNotFound is returned for an inventory instance with no
	// recorded owner. errors.Is matches it against ErrNotFound.
	ErrInstanceNotFound error = notFoundError("instance not found")
)

type notFoundError string

func (e notFoundError) Error() string { return string(e) }

func (e notFoundError) Is(target error) bool { return target == ErrNotFound }

// IsRetryable reports whether the caller may reload and retry after err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
