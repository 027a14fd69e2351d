package geometrystore

import (
	"errors"
	"fmt"
)

// ErrStorage matches every *StorageError via errors.Is.
var ErrStorage = errors.New("geometry storage failure")

// StorageError wraps a failure of the underlying engine. The store never
// retries; callers decide.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("geometry store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
