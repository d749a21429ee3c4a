package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/logging"
)

// DefaultDebounce is the quiet period before a change is republished.
const DefaultDebounce = 200 * time.Millisecond

// Watcher republishes a workspace's file list after changes on disk settle.
// It watches the root and every non-ignored directory below it; directories
// created later are added as they appear.
type Watcher struct {
	fsw      *fsnotify.Watcher
	reg      *Registry
	ws       Workspace
	debounce time.Duration
	onChange func(files []string)
	log      *logging.Logger

	mu      sync.Mutex
	timer   *time.Timer
	seq     uint64
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Watch starts watching a registered workspace on the OS file system.
// onChange receives the full sorted file list.
func (r *Registry) Watch(workspaceID string, debounce time.Duration, onChange func(files []string)) (*Watcher, error) {
	ws, ok := r.Get(workspaceID)
	if !ok {
		return nil, backend.ErrWorkspaceNotFound
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		reg:      r,
		ws:       ws,
		debounce: debounce,
		onChange: onChange,
		log:      r.log.WithField("workspace", ws.Name),
		closeCh:  make(chan struct{}),
	}
	if err := w.addTree(ws.Root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher and cancels any pending republish.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	w.seq++
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.reg.ignore[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			w.log.Warn("watch %s: %v", p, err)
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.reg.ignore[filepath.Base(ev.Name)] {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addTree(ev.Name)
				}
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
		}
	}
}

// schedule restarts the debounce timer.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.seq++
	seq := w.seq
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.publish(seq) })
}

func (w *Watcher) publish(seq uint64) {
	w.mu.Lock()
	current := !w.closed && w.seq == seq
	w.mu.Unlock()
	if !current {
		return
	}

	files, err := w.reg.ListFiles(context.Background(), w.ws.ID)
	if err != nil {
		w.log.Warn("list files: %v", err)
		return
	}
	if w.onChange != nil {
		w.onChange(files)
	}
}
