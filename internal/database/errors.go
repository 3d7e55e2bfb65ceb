package database

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidField  = errors.New("invalid search field")
	ErrInvalidRecord = errors.New("invalid record")
)

// PersistError is returned by Persist when a record could not be stored.
type PersistError struct {
	SourceURL string
	Err       error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist record (sourceURL = %s): %v", e.SourceURL, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
