package drop

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// drop's current status.
	ErrInvalidState = errors.New("invalid drop state")

	// ErrSizeExceeded is returned when a write would go past the expected size.
	ErrSizeExceeded = errors.New("write exceeds expected size")

	// ErrShortWrite is returned when a drop is completed before its expected
	// size was written.
	ErrShortWrite = errors.New("written size below expected size")

	// ErrDeletion is returned when the content of a drop could not be removed.
	ErrDeletion = errors.New("drop deletion failed")

	// ErrTimeout is returned when waiting for a drop to finish times out.
	ErrTimeout = errors.New("timed out waiting for drop")
)

// StateError reports an operation attempted in the wrong status.
type StateError struct {
	Op     string
	UID    string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("drop %s: %s: %v (status %s)", e.UID, e.Op, ErrInvalidState, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// SizeError reports a write or completion inconsistent with the expected size.
type SizeError struct {
	UID      string
	Expected int64
	Written  int64
	// Attempted is the size of the rejected write, zero on completion.
	Attempted int64
	Err       error
}

func (e *SizeError) Error() string {
	if e.Attempted > 0 {
		return fmt.Sprintf("drop %s: %v: %d+%d > %d", e.UID, e.Err, e.Written, e.Attempted, e.Expected)
	}
	return fmt.Sprintf("drop %s: %v: %d < %d", e.UID, e.Err, e.Written, e.Expected)
}

func (e *SizeError) Unwrap() error {
	return e.Err
}

// DeletionError reports a storage failure while deleting drop content.
// It matches both ErrDeletion and the underlying storage error.
type DeletionError struct {
	UID string
	Key string
	Err error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("drop %s: %v: %s: %v", e.UID, ErrDeletion, e.Key, e.Err)
}

func (e *DeletionError) Unwrap() []error {
	return []error{ErrDeletion, e.Err}
}
