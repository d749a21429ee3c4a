package app

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/canakyuz-co/fridayx/internal/workspace"
)

// OpenWorkspace makes root the current workspace, discarding every buffer
// of the previous one. The given files, absolute or relative to the
// working directory, are opened first; otherwise the last file or a README
// is restored once the file list is known. It returns the workspace id.
func (app *Application) OpenWorkspace(ctx context.Context, root string, files ...string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", NewOperationError("open workspace", root, err)
	}

	id := workspace.ID(abs)
	if app.registry != nil {
		ws, err := app.registry.Add(abs)
		if err != nil {
			return "", NewOperationError("open workspace", abs, err)
		}
		id = ws.ID
	}

	app.stopWatcher()
	if err := app.editor.SwitchWorkspace(id); err != nil {
		return "", NewOperationError("open workspace", abs, err)
	}
	log := app.log.WithField("workspace", id)
	log.Info("opened %s", abs)

	for _, f := range files {
		rel, err := relativePath(abs, f)
		if err != nil {
			return id, NewOperationError("open", f, err)
		}
		if err := app.editor.OpenFile(rel); err != nil {
			return id, NewOperationError("open", rel, err)
		}
	}

	paths, err := app.lister.ListFiles(ctx, id)
	if err != nil {
		return id, NewOperationError("list files", abs, err)
	}
	app.setPaths(paths)
	app.editor.RestoreLastFile(ctx, paths)

	if app.registry != nil && app.cfg.Workspace.Watch {
		w, err := app.registry.Watch(id, workspace.DefaultDebounce, app.filesChanged(id))
		if err != nil {
			log.Warn("file watching disabled: %v", err)
		} else {
			app.mu.Lock()
			app.watcher = w
			app.mu.Unlock()
		}
	}
	return id, nil
}

// Paths returns the latest file list of the current workspace.
func (app *Application) Paths() []string {
	app.mu.Lock()
	defer app.mu.Unlock()
	return append([]string(nil), app.paths...)
}

// OnPathsChanged registers fn to receive every new file list.
func (app *Application) OnPathsChanged(fn func(paths []string)) {
	app.mu.Lock()
	app.pathListeners = append(app.pathListeners, fn)
	app.mu.Unlock()
}

func (app *Application) filesChanged(id string) func([]string) {
	return func(paths []string) {
		if app.editor.WorkspaceID() != id {
			return
		}
		app.setPaths(paths)
		app.editor.RestoreLastFile(context.Background(), paths)
	}
}

func (app *Application) setPaths(paths []string) {
	app.mu.Lock()
	app.paths = paths
	listeners := append([]func([]string){}, app.pathListeners...)
	app.mu.Unlock()

	for _, fn := range listeners {
		fn(append([]string(nil), paths...))
	}
}

func (app *Application) stopWatcher() {
	app.mu.Lock()
	w := app.watcher
	app.watcher = nil
	app.paths = nil
	app.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			app.log.Warn("stop watcher: %v", err)
		}
	}
}

// relativePath converts file to a slash path inside root.
func relativePath(root, file string) (string, error) {
	if !filepath.IsAbs(file) {
		abs, err := filepath.Abs(file)
		if err != nil {
			return "", err
		}
		file = abs
	}
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", workspace.ErrOutsideWorkspace
	}
	return filepath.ToSlash(rel), nil
}
