package remote

import (
	"errors"
)

// Standard errors returned by the remote transport.
var (
	// ErrClosed indicates the connection is closed or was lost.
	ErrClosed = errors.New("remote connection closed")

	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)

// BackendError is a failure reported by the server's engine or file store.
// It unwraps to the matching backend sentinel error when there is one.
type BackendError struct {
	Message string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return e.Message
}

// Unwrap returns the backend sentinel error, if any.
func (e *BackendError) Unwrap() error {
	return e.Err
}
