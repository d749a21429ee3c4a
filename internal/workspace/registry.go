// Package workspace resolves workspace ids to root directories and serves
// the whole-file reads and writes the editor falls back to.
//
// Workspace ids are name-based uuids derived from the root path, so a
// client and a remote server that agree on a root agree on its id.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/logging"
	"github.com/canakyuz-co/fridayx/internal/workspace/vfs"
)

// DefaultMaxFileSize is the read limit applied when none is configured.
const DefaultMaxFileSize = 1 << 20

// Workspace is a registered root directory.
type Workspace struct {
	ID   string
	Name string
	Root string
}

// Registry maps workspace ids to roots and implements backend.Files and
// backend.Lister over a vfs.VFS. It is safe for concurrent use.
type Registry struct {
	fsys        vfs.VFS
	maxFileSize int64
	ignore      map[string]bool
	log         *logging.Logger

	mu         sync.RWMutex
	workspaces map[string]Workspace
}

var (
	_ backend.Files  = (*Registry)(nil)
	_ backend.Lister = (*Registry)(nil)
)

// Option configures a Registry.
type Option func(*Registry)

// WithMaxFileSize sets the size above which reads are truncated.
// Zero or less disables truncation.
func WithMaxFileSize(n int64) Option {
	return func(r *Registry) {
		r.maxFileSize = n
	}
}

// WithIgnore sets directory names skipped by ListFiles.
func WithIgnore(names []string) Option {
	return func(r *Registry) {
		r.ignore = make(map[string]bool, len(names))
		for _, name := range names {
			r.ignore[name] = true
		}
	}
}

// WithLogger sets the registry's logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates an empty registry over fsys.
func NewRegistry(fsys vfs.VFS, opts ...Option) *Registry {
	r := &Registry{
		fsys:        fsys,
		maxFileSize: DefaultMaxFileSize,
		ignore:      map[string]bool{".git": true},
		log:         logging.Nop(),
		workspaces:  make(map[string]Workspace),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.WithComponent("workspace")
	return r
}

// ID returns the workspace id for root.
func ID(root string) string {
	root = filepath.ToSlash(filepath.Clean(root))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+root)).String()
}

// Add registers root, which must be an existing directory. Adding the same
// root twice returns the same workspace.
func (r *Registry) Add(root string) (Workspace, error) {
	root = filepath.Clean(root)
	info, err := r.fsys.Stat(root)
	if err != nil {
		return Workspace{}, fmt.Errorf("add workspace: %w", err)
	}
	if !info.IsDir() {
		return Workspace{}, &PathError{Op: "add", Path: root, Err: ErrNotDirectory}
	}

	ws := Workspace{
		ID:   ID(root),
		Name: filepath.Base(root),
		Root: root,
	}

	r.mu.Lock()
	r.workspaces[ws.ID] = ws
	r.mu.Unlock()

	r.log.Debug("registered %s as %s", root, ws.ID)
	return ws, nil
}

// Get returns a registered workspace.
func (r *Registry) Get(id string) (Workspace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[id]
	return ws, ok
}

// Remove unregisters a workspace.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.workspaces, id)
	r.mu.Unlock()
}

// Workspaces returns all registered workspaces sorted by root.
func (r *Registry) Workspaces() []Workspace {
	r.mu.RLock()
	list := make([]Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		list = append(list, ws)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].Root < list[j].Root })
	return list
}

// ReadFile reads a workspace file. Files larger than the configured limit
// are cut at the last character boundary within it and marked Truncated.
func (r *Registry) ReadFile(ctx context.Context, workspaceID, path string) (backend.File, error) {
	abs, err := r.resolve(workspaceID, path)
	if err != nil {
		return backend.File{}, err
	}
	if err := ctx.Err(); err != nil {
		return backend.File{}, err
	}

	info, err := r.fsys.Stat(abs)
	if err != nil {
		return backend.File{}, &PathError{Op: "read", Path: path, Err: err}
	}
	if info.IsDir() {
		return backend.File{}, &PathError{Op: "read", Path: path, Err: ErrIsDirectory}
	}

	f, err := r.fsys.Open(abs)
	if err != nil {
		return backend.File{}, &PathError{Op: "read", Path: path, Err: err}
	}
	defer f.Close()

	var src io.Reader = f
	if r.maxFileSize > 0 {
		src = io.LimitReader(f, r.maxFileSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return backend.File{}, &PathError{Op: "read", Path: path, Err: err}
	}

	if r.maxFileSize > 0 && int64(len(data)) > r.maxFileSize {
		cut := int(r.maxFileSize)
		for cut > 0 && !utf8.RuneStart(data[cut]) {
			cut--
		}
		r.log.Debug("truncated %s at %d bytes", path, cut)
		return backend.File{Content: string(data[:cut]), Truncated: true}, nil
	}
	return backend.File{Content: string(data)}, nil
}

// WriteFile writes a workspace file, creating parent directories. An
// existing file keeps its permissions.
func (r *Registry) WriteFile(ctx context.Context, workspaceID, path, content string) error {
	abs, err := r.resolve(workspaceID, path)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	perm := fs.FileMode(0o644)
	if info, err := r.fsys.Stat(abs); err == nil {
		if info.IsDir() {
			return &PathError{Op: "write", Path: path, Err: ErrIsDirectory}
		}
		perm = info.Mode().Perm()
	}

	if err := r.fsys.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return &PathError{Op: "write", Path: path, Err: err}
	}
	if err := r.fsys.WriteFile(abs, []byte(content), perm); err != nil {
		return &PathError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// ListFiles returns every regular file under the workspace root as a
// sorted slash-separated relative path, skipping ignored directories.
func (r *Registry) ListFiles(ctx context.Context, workspaceID string) ([]string, error) {
	ws, ok := r.Get(workspaceID)
	if !ok {
		return nil, backend.ErrWorkspaceNotFound
	}

	var files []string
	if err := r.walk(ctx, ws.Root, "", &files); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (r *Registry) walk(ctx context.Context, root, rel string, files *[]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := r.fsys.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return &PathError{Op: "list", Path: rel, Err: err}
	}
	for _, entry := range entries {
		child := entry.Name()
		if rel != "" {
			child = rel + "/" + child
		}
		switch {
		case entry.IsDir():
			if r.ignore[entry.Name()] {
				continue
			}
			if err := r.walk(ctx, root, child, files); err != nil {
				var pathErr *PathError
				if errors.As(err, &pathErr) {
					r.log.Warn("skipping %s: %v", child, err)
					continue
				}
				return err
			}
		case entry.IsRegular():
			*files = append(*files, child)
		}
	}
	return nil
}

// resolve maps a workspace-relative or absolute path to an absolute path
// under the workspace root.
func (r *Registry) resolve(workspaceID, path string) (string, error) {
	ws, ok := r.Get(workspaceID)
	if !ok {
		return "", backend.ErrWorkspaceNotFound
	}

	abs := filepath.FromSlash(path)
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(ws.Root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(ws.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &PathError{Op: "resolve", Path: path, Err: ErrOutsideWorkspace}
	}
	return abs, nil
}
