package domain

import "errors"

var (
	// ErrNotFound means the entity id does not resolve.
	ErrNotFound = errors.New("entity not found")
	// ErrTargetNotFound means a transfer destination does not resolve.
	ErrTargetNotFound = errors.New("target account not found")
	// ErrLockBusy means the per-entity lock was not acquired within the
	// configured wait. The whole operation is safe to retry.
	ErrLockBusy = errors.New("entity busy, retry the operation")
)

// ValidationError is an invariant violation. The caller must correct
// the input; retrying unchanged input cannot succeed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// Rejectf builds a ValidationError with a user-facing reason.
func Rejectf(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is an invariant violation.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a persistence failure inside the atomic group.
// The group is discarded in full before this surfaces.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "storage failure: " + e.Err.Error() }

func (e *StorageError) Unwrap() error { return e.Err }
