// Package backend defines the boundary between the editor and the process
// that owns the authoritative buffers and the workspace files.
//
// The editor talks to an Engine for versioned buffer sessions and to Files
// for plain whole-file reads and writes. Implementations live in the local
// and remote subpackages and in package workspace.
package backend

import (
	"context"
)

// Snapshot describes a backend buffer at one version.
type Snapshot struct {
	BufferID  string `json:"bufferId"`
	Path      string `json:"path"`
	Version   uint64 `json:"version"`
	LineCount int    `json:"lineCount"`
	ByteLen   int64  `json:"byteLen"`
	Dirty     bool   `json:"isDirty"`
}

// File is the result of reading a workspace file.
// Truncated is set when only a prefix of the file was read.
type File struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}

// Engine owns versioned buffers. ApplyDelta must fail when version is not
// the buffer's current version.
type Engine interface {
	Open(ctx context.Context, workspaceID, path, content string) (Snapshot, error)
	ApplyDelta(ctx context.Context, bufferID string, version uint64, start, end int64, text string) (uint64, error)
	FlushToDisk(ctx context.Context, bufferID string) (Snapshot, error)
	Close(ctx context.Context, bufferID string) error
}

// Files reads and writes workspace files.
type Files interface {
	ReadFile(ctx context.Context, workspaceID, path string) (File, error)
	WriteFile(ctx context.Context, workspaceID, path, content string) error
}

// RangeRead is the text of a line range at one version.
type RangeRead struct {
	Version uint64 `json:"version"`
	Text    string `json:"text"`
}

// SearchOptions controls Search matching.
type SearchOptions struct {
	MatchCase bool `json:"matchCase"`
	WholeWord bool `json:"wholeWord"`
	Regex     bool `json:"isRegex"`
}

// SearchMatch is one search hit. Line and Column are 1-based; Column counts
// characters.
type SearchMatch struct {
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	LineText  string `json:"lineText"`
	MatchText string `json:"matchText"`
}

// Inspector is implemented by engines that can report on and refresh the
// buffers they hold.
type Inspector interface {
	Snapshot(ctx context.Context, bufferID string) (Snapshot, error)
	ReadRange(ctx context.Context, bufferID string, startLine, endLine int) (RangeRead, error)
	Search(ctx context.Context, bufferID, query string, opts SearchOptions, max int) ([]SearchMatch, error)
	// ReloadFromDisk replaces the buffer with the file's content on disk,
	// advancing its version.
	ReloadFromDisk(ctx context.Context, bufferID string) (Snapshot, error)
}

// Lister lists the files of a workspace as sorted slash-separated paths
// relative to its root.
type Lister interface {
	ListFiles(ctx context.Context, workspaceID string) ([]string, error)
}
