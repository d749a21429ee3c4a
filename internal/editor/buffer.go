package editor

import (
	"fmt"
)

// SyncKind is the relationship between a buffer and its backend session.
type SyncKind int

const (
	// Unsynced means the backend session is not established yet.
	Unsynced SyncKind = iota
	// Synced means edits are sent to the backend as deltas.
	Synced
	// Detached means no backend session is trusted; saves write whole files.
	Detached
)

// String returns the string representation of the kind.
func (k SyncKind) String() string {
	switch k {
	case Unsynced:
		return "unsynced"
	case Synced:
		return "synced"
	case Detached:
		return "detached"
	default:
		return fmt.Sprintf("SyncKind(%d)", int(k))
	}
}

// SyncState describes a buffer's backend session. BufferID, Version and
// ByteLen are set only when Kind is Synced; ByteLen is the byte length of
// the content the backend acknowledged at Version.
type SyncState struct {
	Kind     SyncKind
	BufferID string
	Version  uint64
	ByteLen  int64
}

// Buffer is a snapshot of one open document.
type Buffer struct {
	Path    string
	Content string
	Sync    SyncState

	// Dirty is set when Content differs from what was last saved.
	Dirty bool
	// Loading is set until the initial read completes.
	Loading bool
	// Saving is set while a save is queued or running.
	Saving bool
	// Truncated is set when only a prefix of the file was read. Such a
	// buffer is never saved.
	Truncated bool
	// LastError is the most recent failure, cleared by the next success.
	LastError string
	// Generation identifies this open of the path.
	Generation uint64
}

// session is the backend side of one open. Queue tasks hold it by pointer,
// so a closed buffer's in-flight work never touches a reopened one.
// Guarded by Manager.mu.
type session struct {
	state SyncState
}

// buffer is the manager's mutable record for an open path.
// Guarded by Manager.mu.
type buffer struct {
	path       string
	content    string
	sess       *session
	dirty      bool
	loading    bool
	saving     bool
	truncated  bool
	lastError  string
	generation uint64
}

func (b *buffer) snapshot() Buffer {
	return Buffer{
		Path:       b.path,
		Content:    b.content,
		Sync:       b.sess.state,
		Dirty:      b.dirty,
		Loading:    b.loading,
		Saving:     b.saving,
		Truncated:  b.truncated,
		LastError:  b.lastError,
		Generation: b.generation,
	}
}
