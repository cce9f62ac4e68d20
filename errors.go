package keepself

import (
	"errors"
	"fmt"
)

// Common errors returned by keepself operations
var (
	// ErrNotInitialized indicates the session was read before TryHandle resolved it
	ErrNotInitialized = errors.New("keepself: not initialized")

	// ErrAlreadyInitialized indicates TryHandle was called more than once in a process
	ErrAlreadyInitialized = errors.New("keepself: already initialized in this process")

	// ErrAlreadyArmed indicates the kill-request protocol was armed more than once in a process
	ErrAlreadyArmed = errors.New("keepself: kill request already armed in this process")

	// ErrInvalidIdentity indicates a value is not an encoded identity record
	ErrInvalidIdentity = errors.New("keepself: not an identity record")

	// ErrTokenExists indicates a liveness token with the same name is already held
	ErrTokenExists = errors.New("keepself: liveness token already held")

	// ErrBlankName indicates an argument or environment variable name was blank
	ErrBlankName = errors.New("keepself: name must not be blank")

	// ErrNilWorker indicates a start function returned neither a worker nor an error
	ErrNilWorker = errors.New("keepself: start returned no worker")

	// ErrStartRetriesExhausted indicates MaxStartRetries consecutive start failures
	ErrStartRetriesExhausted = errors.New("keepself: start retries exhausted")

	// ErrUnsupported indicates the platform lacks a primitive the operation needs
	ErrUnsupported = errors.New("keepself: not supported on this platform")
)

// OpError represents an error from a supervision operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Target names what the operation acted on: a pid, a token or an argument
	Target string
	// Err is the underlying error
	Err error
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	return fmt.Sprintf("keepself %s %q: %v", e.Op.String(), e.Target, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// MultiError aggregates multiple errors, such as configuration problems
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred", len(m.Errors))
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}
