package backend

import (
	"errors"
)

// Standard errors returned by backend implementations.
var (
	// ErrBufferNotFound indicates the buffer id is unknown or closed.
	ErrBufferNotFound = errors.New("buffer not found")

	// ErrVersionMismatch indicates a delta was addressed to a stale version.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrInvalidRange indicates a delta range outside the buffer or inside a character.
	ErrInvalidRange = errors.New("invalid delta range")

	// ErrWorkspaceNotFound indicates the workspace id is unknown.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrInvalidQuery indicates a search pattern that does not compile.
	ErrInvalidQuery = errors.New("invalid search query")
)

var sentinels = []error{
	ErrBufferNotFound,
	ErrVersionMismatch,
	ErrInvalidRange,
	ErrWorkspaceNotFound,
	ErrInvalidQuery,
}

// Lookup returns the sentinel error whose message is msg, or nil.
// Transports use it to restore error identity after serialization.
func Lookup(msg string) error {
	for _, err := range sentinels {
		if err.Error() == msg {
			return err
		}
	}
	return nil
}

// Code returns the sentinel message for err, or "" if err wraps none.
func Code(err error) string {
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return ""
}
