package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested meeting or audio blob does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID indicates that a meeting id is already taken.
	ErrDuplicateID = errors.New("duplicate meeting id")

	// ErrRecordFinalized indicates a mutation of a completed or failed record.
	ErrRecordFinalized = errors.New("meeting record already finalized")

	// ErrUploadTooLarge indicates an upload over the configured size limit.
	ErrUploadTooLarge = errors.New("upload too large")
)

// PayloadError is a client-caused problem with an upload or a lookup token.
type PayloadError struct {
	Message string
	Err     error
}

func (e *PayloadError) Error() string {
	return e.Message
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

func PayloadErrorf(format string, args ...any) *PayloadError {
	return &PayloadError{Message: fmt.Sprintf(format, args...)}
}

// StorageError is an I/O failure in the blob area.
type StorageError struct {
	Op        string
	Reference Reference
	Err       error
}

func (e *StorageError) Error() string {
	if e.Reference == "" {
		return fmt.Sprintf("audio store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("audio store %s %s: %v", e.Op, e.Reference, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// EngineError is the only failure shape the audio engine boundary lets through.
type EngineError struct {
	Message string
	Timeout bool
}

func (e *EngineError) Error() string {
	if e.Timeout {
		return "engine timeout: " + e.Message
	}
	return "engine error: " + e.Message
}
