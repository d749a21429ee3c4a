package local

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/offset"
)

type memFiles struct {
	mu    sync.Mutex
	files map[string]string
	err   error
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string]string)}
}

func (m *memFiles) ReadFile(ctx context.Context, workspaceID, path string) (backend.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[workspaceID+":"+path]
	if !ok {
		return backend.File{}, errors.New("not found")
	}
	return backend.File{Content: content}, nil
}

func (m *memFiles) WriteFile(ctx context.Context, workspaceID, path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.files[workspaceID+":"+path] = content
	return nil
}

func (m *memFiles) get(workspaceID, path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[workspaceID+":"+path]
}

func TestEngineOpen(t *testing.T) {
	e := New(newMemFiles())
	ctx := context.Background()

	snap, err := e.Open(ctx, "ws", "a.txt", "héllo\nworld")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if snap.BufferID == "" {
		t.Error("empty buffer id")
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if snap.ByteLen != 12 {
		t.Errorf("ByteLen = %d, want 12", snap.ByteLen)
	}
	if snap.LineCount != 2 {
		t.Errorf("LineCount = %d, want 2", snap.LineCount)
	}
	if snap.Dirty {
		t.Error("new buffer is dirty")
	}

	other, _ := e.Open(ctx, "ws", "a.txt", "")
	if other.BufferID == snap.BufferID {
		t.Error("two opens returned the same buffer id")
	}
}

func TestEngineApplyDelta(t *testing.T) {
	e := New(newMemFiles())
	ctx := context.Background()
	snap, _ := e.Open(ctx, "ws", "a.txt", "hello world")

	v, err := e.ApplyDelta(ctx, snap.BufferID, 1, 6, 6, "brave ")
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if v != 2 {
		t.Errorf("version = %d, want 2", v)
	}

	v, err = e.ApplyDelta(ctx, snap.BufferID, 2, 0, 5, "goodbye")
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if v != 3 {
		t.Errorf("version = %d, want 3", v)
	}

	content, _ := e.Content(ctx, snap.BufferID)
	if content != "goodbye brave world" {
		t.Errorf("content = %q", content)
	}

	s, _ := e.Snapshot(ctx, snap.BufferID)
	if !s.Dirty {
		t.Error("buffer not dirty after delta")
	}
}

func TestEngineApplyDeltaErrors(t *testing.T) {
	e := New(newMemFiles())
	ctx := context.Background()
	snap, _ := e.Open(ctx, "ws", "a.txt", "café")

	tests := []struct {
		name    string
		id      string
		version uint64
		start   int64
		end     int64
		want    error
	}{
		{"unknown buffer", "nope", 1, 0, 0, backend.ErrBufferNotFound},
		{"stale version", snap.BufferID, 2, 0, 0, backend.ErrVersionMismatch},
		{"reversed", snap.BufferID, 1, 3, 2, backend.ErrInvalidRange},
		{"past end", snap.BufferID, 1, 0, 6, backend.ErrInvalidRange},
		{"inside rune", snap.BufferID, 1, 4, 4, backend.ErrInvalidRange},
		{"negative", snap.BufferID, 1, -1, 2, backend.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ApplyDelta(ctx, tt.id, tt.version, tt.start, tt.end, "x")
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	content, _ := e.Content(ctx, snap.BufferID)
	if content != "café" {
		t.Errorf("failed deltas changed content to %q", content)
	}
}

func TestEngineUTF16Offsets(t *testing.T) {
	tr, err := offset.New(offset.UTF16LE)
	if err != nil {
		t.Fatalf("offset.New: %v", err)
	}
	e := New(newMemFiles(), WithTranslator(tr))
	ctx := context.Background()

	snap, _ := e.Open(ctx, "ws", "a.txt", "café")
	if snap.ByteLen != 8 {
		t.Fatalf("ByteLen = %d, want 8", snap.ByteLen)
	}
	if _, err := e.ApplyDelta(ctx, snap.BufferID, 1, 8, 8, "!"); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	content, _ := e.Content(ctx, snap.BufferID)
	if content != "café!" {
		t.Errorf("content = %q, want %q", content, "café!")
	}
}

func TestEngineFlushToDisk(t *testing.T) {
	files := newMemFiles()
	e := New(files)
	ctx := context.Background()

	snap, _ := e.Open(ctx, "ws", "a.txt", "one")
	_, _ = e.ApplyDelta(ctx, snap.BufferID, 1, 3, 3, " two")

	flushed, err := e.FlushToDisk(ctx, snap.BufferID)
	if err != nil {
		t.Fatalf("FlushToDisk: %v", err)
	}
	if flushed.Dirty {
		t.Error("buffer dirty after flush")
	}
	if flushed.Version != 2 || flushed.ByteLen != 7 {
		t.Errorf("flushed snapshot = %+v", flushed)
	}
	if got := files.get("ws", "a.txt"); got != "one two" {
		t.Errorf("disk content = %q", got)
	}

	files.err = errors.New("disk full")
	if _, err := e.FlushToDisk(ctx, snap.BufferID); err == nil {
		t.Error("expected flush error")
	}
	if _, err := e.FlushToDisk(ctx, "missing"); !errors.Is(err, backend.ErrBufferNotFound) {
		t.Errorf("FlushToDisk(missing) = %v", err)
	}
}

func TestEngineClose(t *testing.T) {
	e := New(newMemFiles())
	ctx := context.Background()
	snap, _ := e.Open(ctx, "ws", "a.txt", "x")

	if err := e.Close(ctx, snap.BufferID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e.Len() != 0 {
		t.Errorf("Len = %d after close", e.Len())
	}
	if err := e.Close(ctx, snap.BufferID); !errors.Is(err, backend.ErrBufferNotFound) {
		t.Errorf("second Close = %v", err)
	}
	if _, err := e.ApplyDelta(ctx, snap.BufferID, 1, 0, 0, "y"); !errors.Is(err, backend.ErrBufferNotFound) {
		t.Errorf("ApplyDelta after close = %v", err)
	}
}

func TestEngineReadRange(t *testing.T) {
	e := New(newMemFiles())
	ctx := context.Background()
	snap, _ := e.Open(ctx, "ws", "a.txt", "one\ntwo\nthree\n")

	tests := []struct {
		start, end int
		want       string
	}{
		{1, 1, "one\n"},
		{2, 3, "two\nthree\n"},
		{0, 1, "one\n"},
		{3, 100, "three\n"},
		{5, 2, ""},
	}

	for _, tt := range tests {
		got, err := e.ReadRange(ctx, snap.BufferID, tt.start, tt.end)
		if err != nil {
			t.Fatalf("ReadRange: %v", err)
		}
		if got.Text != tt.want {
			t.Errorf("ReadRange(%d, %d) = %q, want %q", tt.start, tt.end, got.Text, tt.want)
		}
		if got.Version != 1 {
			t.Errorf("Version = %d", got.Version)
		}
	}
}

func TestEngineReloadFromDisk(t *testing.T) {
	files := newMemFiles()
	e := New(files)
	ctx := context.Background()

	snap, _ := e.Open(ctx, "ws", "a.txt", "old")
	_ = files.WriteFile(ctx, "ws", "a.txt", "new content")

	reloaded, err := e.ReloadFromDisk(ctx, snap.BufferID)
	if err != nil {
		t.Fatalf("ReloadFromDisk: %v", err)
	}
	if reloaded.Version != 2 || reloaded.Dirty {
		t.Errorf("reloaded = %+v", reloaded)
	}
	content, _ := e.Content(ctx, snap.BufferID)
	if content != "new content" {
		t.Errorf("content = %q", content)
	}
}

func TestEngineSearch(t *testing.T) {
	e := New(newMemFiles())
	ctx := context.Background()
	snap, _ := e.Open(ctx, "ws", "a.txt", "Foo bar\r\nfoobar foo\nnaïve foo_x")

	matches, err := e.Search(ctx, snap.BufferID, " foo ", backend.SearchOptions{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 4 {
		t.Fatalf("got %d matches, want 4: %+v", len(matches), matches)
	}
	if matches[0].Line != 1 || matches[0].Column != 1 || matches[0].MatchText != "Foo" {
		t.Errorf("first match = %+v", matches[0])
	}
	if matches[0].LineText != "Foo bar" {
		t.Errorf("LineText = %q, want trailing CR trimmed", matches[0].LineText)
	}
	if matches[3].Line != 3 || matches[3].Column != 7 {
		t.Errorf("multibyte column = %+v", matches[3])
	}

	whole, _ := e.Search(ctx, snap.BufferID, "foo", backend.SearchOptions{MatchCase: true, WholeWord: true}, 10)
	if len(whole) != 1 || whole[0].Line != 2 || whole[0].Column != 8 {
		t.Errorf("whole word matches = %+v", whole)
	}

	re, _ := e.Search(ctx, snap.BufferID, "ba[rz]", backend.SearchOptions{Regex: true}, 1)
	if len(re) != 1 || re[0].MatchText != "bar" {
		t.Errorf("regex matches = %+v", re)
	}

	if _, err := e.Search(ctx, snap.BufferID, "(", backend.SearchOptions{Regex: true}, 1); !errors.Is(err, backend.ErrInvalidQuery) {
		t.Errorf("bad regex error = %v", err)
	}

	none, _ := e.Search(ctx, snap.BufferID, "   ", backend.SearchOptions{}, 10)
	if len(none) != 0 {
		t.Errorf("blank query matched %d", len(none))
	}
}
