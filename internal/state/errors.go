package state

import "errors"

// Sentinel errors returned by Store operations. The HTTP layer maps them to
// status codes with errors.Is.
var (
	// ErrNotFound means the referenced machine or issue does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the machine is not in a state that permits the
	// requested transition (not available, locked, not pending collection).
	ErrConflict = errors.New("machine not available")
	// ErrNotOwner means the caller does not own the machine.
	ErrNotOwner = errors.New("not the machine owner")
	// ErrAlreadyActive means the student already holds an active machine.
	// The cap is system-wide: one running or pending-collection machine per
	// student across both types.
	ErrAlreadyActive = errors.New("student already has an active machine")
	// ErrInvalidArgument means the request payload failed validation.
	ErrInvalidArgument = errors.New("invalid argument")
)
