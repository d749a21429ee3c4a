package workspace

import (
	"errors"
	"fmt"
)

// Standard errors returned by the workspace package.
var (
	// ErrOutsideWorkspace indicates a path that resolves outside the root.
	ErrOutsideWorkspace = errors.New("path outside workspace")

	// ErrIsDirectory indicates the path is a directory, not a file.
	ErrIsDirectory = errors.New("path is a directory")

	// ErrNotDirectory indicates a workspace root that is not a directory.
	ErrNotDirectory = errors.New("path is not a directory")

	// ErrWatcherClosed indicates the watcher has been closed.
	ErrWatcherClosed = errors.New("watcher closed")
)

// PathError represents an error associated with a workspace file path.
type PathError struct {
	Op   string // Operation that failed (read, write, list)
	Path string // Path relative to the workspace root
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}
