// Package local implements an in-process buffer engine.
//
// Each open buffer holds the full text, a version that starts at 1 and
// increases by one per applied delta, and a dirty flag that tracks whether
// the text differs from what was last flushed. Byte offsets are measured
// with the engine's offset.Translator, which must match the client's.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/offset"
)

type buffer struct {
	workspaceID string
	path        string
	content     string
	version     uint64
	dirty       bool
}

// Engine is an in-memory backend.Engine. It is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	buffers map[string]*buffer

	files backend.Files
	tr    *offset.Translator
}

// Option configures an Engine.
type Option func(*Engine)

// WithTranslator sets the byte encoding used for delta offsets.
func WithTranslator(tr *offset.Translator) Option {
	return func(e *Engine) {
		if tr != nil {
			e.tr = tr
		}
	}
}

// New creates an engine that flushes and reloads through files.
func New(files backend.Files, opts ...Option) *Engine {
	e := &Engine{
		buffers: make(map[string]*buffer),
		files:   files,
		tr:      offset.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ backend.Engine = (*Engine)(nil)

// Open creates a buffer at version 1 holding content.
func (e *Engine) Open(ctx context.Context, workspaceID, path, content string) (backend.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return backend.Snapshot{}, err
	}

	id := ulid.Make().String()
	b := &buffer{
		workspaceID: workspaceID,
		path:        path,
		content:     content,
		version:     1,
	}

	e.mu.Lock()
	e.buffers[id] = b
	snap := e.snapshotLocked(id, b)
	e.mu.Unlock()

	return snap, nil
}

// ApplyDelta replaces the bytes [start, end) with text if version is current.
func (e *Engine) ApplyDelta(ctx context.Context, bufferID string, version uint64, start, end int64, text string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.buffers[bufferID]
	if !ok {
		return 0, backend.ErrBufferNotFound
	}
	if b.version != version {
		return 0, fmt.Errorf("%w: buffer at %d, delta for %d", backend.ErrVersionMismatch, b.version, version)
	}
	if start < 0 || start > end {
		return 0, fmt.Errorf("%w: [%d, %d)", backend.ErrInvalidRange, start, end)
	}

	from, err := e.tr.StringIndex(b.content, int(start))
	if err != nil {
		return 0, fmt.Errorf("%w: start %d: %v", backend.ErrInvalidRange, start, err)
	}
	to, err := e.tr.StringIndex(b.content, int(end))
	if err != nil {
		return 0, fmt.Errorf("%w: end %d: %v", backend.ErrInvalidRange, end, err)
	}

	var sb strings.Builder
	sb.Grow(len(b.content) - (to - from) + len(text))
	sb.WriteString(b.content[:from])
	sb.WriteString(text)
	sb.WriteString(b.content[to:])

	b.content = sb.String()
	b.version++
	b.dirty = true
	return b.version, nil
}

// FlushToDisk writes the buffer through the engine's Files and marks it
// clean if no delta arrived meanwhile.
func (e *Engine) FlushToDisk(ctx context.Context, bufferID string) (backend.Snapshot, error) {
	e.mu.Lock()
	b, ok := e.buffers[bufferID]
	if !ok {
		e.mu.Unlock()
		return backend.Snapshot{}, backend.ErrBufferNotFound
	}
	workspaceID, path, content, version := b.workspaceID, b.path, b.content, b.version
	e.mu.Unlock()

	if err := e.files.WriteFile(ctx, workspaceID, path, content); err != nil {
		return backend.Snapshot{}, fmt.Errorf("flush %s: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok = e.buffers[bufferID]
	if !ok {
		return backend.Snapshot{}, backend.ErrBufferNotFound
	}
	if b.version == version {
		b.dirty = false
	}
	return e.snapshotLocked(bufferID, b), nil
}

// Close discards a buffer.
func (e *Engine) Close(ctx context.Context, bufferID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.buffers[bufferID]; !ok {
		return backend.ErrBufferNotFound
	}
	delete(e.buffers, bufferID)
	return nil
}

var _ backend.Inspector = (*Engine)(nil)

// Snapshot returns the current state of a buffer.
func (e *Engine) Snapshot(ctx context.Context, bufferID string) (backend.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.buffers[bufferID]
	if !ok {
		return backend.Snapshot{}, backend.ErrBufferNotFound
	}
	return e.snapshotLocked(bufferID, b), nil
}

// Content returns the full text of a buffer.
func (e *Engine) Content(ctx context.Context, bufferID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.buffers[bufferID]
	if !ok {
		return "", backend.ErrBufferNotFound
	}
	return b.content, nil
}

// ReadRange returns lines startLine through endLine (1-based, inclusive,
// clamped to the buffer) including their line terminators.
func (e *Engine) ReadRange(ctx context.Context, bufferID string, startLine, endLine int) (backend.RangeRead, error) {
	e.mu.Lock()
	b, ok := e.buffers[bufferID]
	if !ok {
		e.mu.Unlock()
		return backend.RangeRead{}, backend.ErrBufferNotFound
	}
	content, version := b.content, b.version
	e.mu.Unlock()

	lines := strings.SplitAfter(content, "\n")
	n := len(lines)
	start := clamp(startLine, 1, n)
	end := clamp(endLine, start, n)

	return backend.RangeRead{
		Version: version,
		Text:    strings.Join(lines[start-1:end], ""),
	}, nil
}

// ReloadFromDisk replaces the buffer with the file's current content.
// The version advances and the buffer becomes clean.
func (e *Engine) ReloadFromDisk(ctx context.Context, bufferID string) (backend.Snapshot, error) {
	e.mu.Lock()
	b, ok := e.buffers[bufferID]
	if !ok {
		e.mu.Unlock()
		return backend.Snapshot{}, backend.ErrBufferNotFound
	}
	workspaceID, path := b.workspaceID, b.path
	e.mu.Unlock()

	file, err := e.files.ReadFile(ctx, workspaceID, path)
	if err != nil {
		return backend.Snapshot{}, fmt.Errorf("reload %s: %w", path, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok = e.buffers[bufferID]
	if !ok {
		return backend.Snapshot{}, backend.ErrBufferNotFound
	}
	b.content = file.Content
	b.version++
	b.dirty = false
	return e.snapshotLocked(bufferID, b), nil
}

// Len returns the number of open buffers.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffers)
}

func (e *Engine) snapshotLocked(id string, b *buffer) backend.Snapshot {
	return backend.Snapshot{
		BufferID:  id,
		Path:      b.path,
		Version:   b.version,
		LineCount: strings.Count(b.content, "\n") + 1,
		ByteLen:   int64(e.tr.ByteLength(b.content)),
		Dirty:     b.dirty,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
