package shared

import "errors"

var (
	// ErrNotFound indicates a referenced entity is absent or not visible to the tenant.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a business-rule violation (duplicate open shift, overdrawn stock, payment mismatch).
	ErrConflict = errors.New("conflict")
	// ErrPrecondition indicates the operation is valid in general but not in the current state.
	ErrPrecondition = errors.New("precondition failed")
)
