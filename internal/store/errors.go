package store

import (
	"errors"
	"fmt"

	"todocal/internal/model"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateID matches every *DuplicateIDError.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrStorageIO matches every *StorageIOError.
	ErrStorageIO = errors.New("storage i/o failed")
)

// NotFoundError reports an operation on an id absent from a collection.
type NotFoundError struct {
	Collection string
	ID         model.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: id %q not found", e.Collection, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DuplicateIDError reports a create (or replace) that would introduce an
// id already present in the collection.
type DuplicateIDError struct {
	Collection string
	ID         model.ID
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("%s: id %q already exists", e.Collection, e.ID)
}

func (e *DuplicateIDError) Is(target error) bool {
	return target == ErrDuplicateID
}

// StorageIOError wraps a failure of the underlying medium. It is always
// fatal to the operation that produced it.
type StorageIOError struct {
	// Op is the backend operation: "get", "set", "delete", "rename", "decode", "encode".
	Op  string
	Key string
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageIOError) Unwrap() error {
	return e.Err
}

func (e *StorageIOError) Is(target error) bool {
	return target == ErrStorageIO
}

func ioErr(op, key string, err error) error {
	return &StorageIOError{Op: op, Key: key, Err: err}
}
