package editor

import (
	"errors"
)

// Errors returned by synchronous Manager calls. Failures of background work
// are recorded on the buffer instead.
var (
	// ErrNoWorkspace indicates no workspace is selected.
	ErrNoWorkspace = errors.New("no workspace selected")

	// ErrBufferNotFound indicates the path is not open.
	ErrBufferNotFound = errors.New("buffer not open")

	// ErrClosed indicates the manager has been closed.
	ErrClosed = errors.New("editor manager closed")
)
