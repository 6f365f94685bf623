package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("record not found")

	// Causes carried by PersistError.
	ErrConnectivity = errors.New("store unreachable")
	ErrConstraint   = errors.New("constraint violated")
)

// PersistError wraps a failed write or read.
type PersistError struct {
	Op    string
	Cause error // ErrConnectivity or ErrConstraint
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Cause, e.Err)
}

func (e *PersistError) Unwrap() []error { return []error{e.Cause, e.Err} }

// Persist builds a PersistError, picking the cause with classify.
func Persist(op string, err error, classify func(error) error) error {
	if err == nil {
		return nil
	}
	var pe *PersistError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistError{Op: op, Cause: classify(err), Err: err}
}
