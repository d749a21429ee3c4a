package workspace

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/workspace/vfs"
)

func newTestRegistry(t *testing.T, opts ...Option) (*Registry, *vfs.MemFS, Workspace) {
	t.Helper()
	fsys := vfs.NewMemFS()
	if err := fsys.MkdirAll("/proj", 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	reg := NewRegistry(fsys, opts...)
	ws, err := reg.Add("/proj")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	return reg, fsys, ws
}

func TestRegistryAdd(t *testing.T) {
	reg, fsys, ws := newTestRegistry(t)

	assert.Equal(t, ws.Name, "proj")
	assert.Equal(t, ws.ID, ID("/proj"))

	again, err := reg.Add("/proj/")
	assert.Equal(t, err, nil)
	assert.Equal(t, again.ID, ws.ID)
	assert.Equal(t, len(reg.Workspaces()), 1)

	_ = fsys.AddFile("/file.txt", "x")
	_, err = reg.Add("/file.txt")
	assert.Equal(t, errors.Is(err, ErrNotDirectory), true)

	_, err = reg.Add("/missing")
	assert.NotEqual(t, err, nil)

	reg.Remove(ws.ID)
	_, ok := reg.Get(ws.ID)
	assert.Equal(t, ok, false)
}

func TestReadWriteFile(t *testing.T) {
	reg, fsys, ws := newTestRegistry(t)
	ctx := context.Background()
	_ = fsys.AddFile("/proj/README.md", "# hi")

	file, err := reg.ReadFile(ctx, ws.ID, "README.md")
	assert.Equal(t, err, nil)
	assert.Equal(t, file.Content, "# hi")
	assert.Equal(t, file.Truncated, false)

	file, err = reg.ReadFile(ctx, ws.ID, "/proj/README.md")
	assert.Equal(t, err, nil)
	assert.Equal(t, file.Content, "# hi")

	err = reg.WriteFile(ctx, ws.ID, "src/deep/main.go", "package main")
	assert.Equal(t, err, nil)
	file, _ = reg.ReadFile(ctx, ws.ID, "src/deep/main.go")
	assert.Equal(t, file.Content, "package main")

	_, err = reg.ReadFile(ctx, ws.ID, "src")
	assert.Equal(t, errors.Is(err, ErrIsDirectory), true)

	_, err = reg.ReadFile(ctx, "unknown", "README.md")
	assert.Equal(t, errors.Is(err, backend.ErrWorkspaceNotFound), true)
}

func TestPathsOutsideWorkspace(t *testing.T) {
	reg, fsys, ws := newTestRegistry(t)
	ctx := context.Background()
	_ = fsys.AddFile("/secret.txt", "x")

	for _, p := range []string{"../secret.txt", "/secret.txt", "a/../../secret.txt", "/projector/x"} {
		_, err := reg.ReadFile(ctx, ws.ID, p)
		if !errors.Is(err, ErrOutsideWorkspace) {
			t.Errorf("ReadFile(%q) = %v, want ErrOutsideWorkspace", p, err)
		}
		if err := reg.WriteFile(ctx, ws.ID, p, "y"); !errors.Is(err, ErrOutsideWorkspace) {
			t.Errorf("WriteFile(%q) = %v, want ErrOutsideWorkspace", p, err)
		}
	}
}

func TestReadFileTruncates(t *testing.T) {
	reg, fsys, ws := newTestRegistry(t, WithMaxFileSize(5))
	ctx := context.Background()

	tests := []struct {
		content   string
		want      string
		truncated bool
	}{
		{"abcde", "abcde", false},
		{"abcdef", "abcde", true},
		// é is two bytes starting at index 4; the cut backs off to 4.
		{"abcdé", "abcd", true},
		{"", "", false},
	}

	for _, tt := range tests {
		_ = fsys.AddFile("/proj/f.txt", tt.content)
		file, err := reg.ReadFile(ctx, ws.ID, "f.txt")
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		if file.Content != tt.want || file.Truncated != tt.truncated {
			t.Errorf("ReadFile(%q) = %q truncated=%v, want %q truncated=%v",
				tt.content, file.Content, file.Truncated, tt.want, tt.truncated)
		}
	}
}

func TestListFiles(t *testing.T) {
	reg, fsys, ws := newTestRegistry(t, WithIgnore([]string{".git", "node_modules"}))
	for _, p := range []string{
		"/proj/z.txt",
		"/proj/README.md",
		"/proj/docs/readme.md",
		"/proj/.git/HEAD",
		"/proj/web/node_modules/x/index.js",
		"/proj/web/app.js",
	} {
		_ = fsys.AddFile(p, "")
	}

	files, err := reg.ListFiles(context.Background(), ws.ID)
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Join(files, ","), "README.md,docs/readme.md,web/app.js,z.txt")

	_, err = reg.ListFiles(context.Background(), "nope")
	assert.Equal(t, errors.Is(err, backend.ErrWorkspaceNotFound), true)
}
