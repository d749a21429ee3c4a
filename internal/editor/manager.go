// Package editor keeps locally edited documents in step with versioned
// buffers held by a backend.
//
// A Manager owns every open buffer of the selected workspace. Content
// changes apply synchronously. The matching deltas reach the backend
// through one FIFO queue per path, so they arrive in the order the edits
// were made whatever the round-trip time of each call. A buffer whose
// backend session fails is detached and from then on saved by whole-file
// writes until it is closed and reopened.
package editor

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/backend/local"
	"github.com/canakyuz-co/fridayx/internal/logging"
	"github.com/canakyuz-co/fridayx/internal/metrics"
	"github.com/canakyuz-co/fridayx/internal/offset"
	"github.com/canakyuz-co/fridayx/internal/state"
	"github.com/canakyuz-co/fridayx/internal/syncqueue"
)

// DefaultRequestTimeout bounds each backend and file call.
const DefaultRequestTimeout = 10 * time.Second

// workspaceState is everything the manager holds for one workspace
// activation. Switching workspaces replaces it wholesale.
type workspaceState struct {
	id       string
	buffers  map[string]*buffer
	order    []string
	active   string
	restored bool
	queues   *syncqueue.Group
}

// Manager is the buffer lifecycle controller. It is safe for concurrent use.
type Manager struct {
	engine  backend.Engine
	files   backend.Files
	tr      *offset.Translator
	store   state.Store
	log     *logging.Logger
	timeout time.Duration

	applyLatency *metrics.LatencyTracker
	saveLatency  *metrics.LatencyTracker

	mu        sync.Mutex
	ws        *workspaceState
	nextGen   uint64
	closed    bool
	onChange  []func(path string)
	onDidSave []func(path string)

	// persist serializes last-file writes so they land in call order.
	persist *syncqueue.Queue

	// inflight counts goroutines started by goTracked. idle is closed
	// when it drops back to zero.
	inflight int
	idle     chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTranslator sets the byte encoding used for delta offsets. It must
// match the backend's.
func WithTranslator(tr *offset.Translator) Option {
	return func(m *Manager) {
		if tr != nil {
			m.tr = tr
		}
	}
}

// WithStore sets where the active path of each workspace is remembered.
func WithStore(s state.Store) Option {
	return func(m *Manager) {
		if s != nil {
			m.store = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithRequestTimeout bounds each backend and file call.
func WithRequestTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLatency sets the trackers fed by delta and save round trips.
func WithLatency(apply, save *metrics.LatencyTracker) Option {
	return func(m *Manager) {
		if apply != nil {
			m.applyLatency = apply
		}
		if save != nil {
			m.saveLatency = save
		}
	}
}

// New creates a manager. A nil engine leaves every buffer detached.
func New(engine backend.Engine, files backend.Files, opts ...Option) *Manager {
	m := &Manager{
		engine:  engine,
		files:   files,
		tr:      offset.Default(),
		store:   state.NewMemoryStore(),
		log:     logging.Nop(),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.WithComponent("editor")
	if m.applyLatency == nil {
		m.applyLatency = metrics.NewLatencyTracker("apply_delta", 0, 0, m.log)
	}
	if m.saveLatency == nil {
		m.saveLatency = metrics.NewLatencyTracker("save", 0, 0, m.log)
	}
	m.persist = syncqueue.New(syncqueue.WithPanicHandler(m.recoverTask))
	return m
}

// OnChange registers fn to be called after any buffer or selection change.
// The path is empty for changes that are not about one buffer. Callbacks
// run without the manager's lock and may call back into it.
func (m *Manager) OnChange(fn func(path string)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// OnDidSave registers fn to be called after every successful save.
func (m *Manager) OnDidSave(fn func(path string)) {
	m.mu.Lock()
	m.onDidSave = append(m.onDidSave, fn)
	m.mu.Unlock()
}

// SwitchWorkspace discards all state of the current workspace and selects
// workspaceID. Backend sessions of the discarded buffers are closed best
// effort; queued work for them is dropped. An empty id deselects.
func (m *Manager) SwitchWorkspace(workspaceID string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	old := m.ws
	if old != nil && old.id == workspaceID {
		m.mu.Unlock()
		return nil
	}
	var sessions []string
	if old != nil {
		sessions = detachAll(old)
	}
	m.ws = nil
	if workspaceID != "" {
		m.ws = newWorkspaceState(workspaceID, m.recoverTask)
	}
	m.mu.Unlock()

	if old != nil {
		if dropped := old.queues.Close(); dropped > 0 {
			m.log.Debug("dropped %d queued tasks of workspace %s", dropped, old.id)
		}
		for _, id := range sessions {
			m.closeSessionAsync(id)
		}
		m.log.WithField("workspace", old.id).Info("workspace closed with %d buffers", len(old.order))
	}
	m.notify("")
	return nil
}

// WorkspaceID returns the selected workspace, or "".
func (m *Manager) WorkspaceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		return ""
	}
	return m.ws.id
}

// OpenFile makes path the active buffer, creating it if needed. A new
// buffer starts loading; its content and backend session arrive later.
func (m *Manager) OpenFile(path string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	ws := m.ws
	if ws == nil {
		m.mu.Unlock()
		return ErrNoWorkspace
	}
	b := m.openLocked(ws, path)
	m.mu.Unlock()

	m.persistActive(ws.id, path)
	m.notify(path)
	if b != nil {
		m.load(ws, b)
	}
	return nil
}

// openLocked activates path and returns the buffer to load, or nil if
// the path was already open.
func (m *Manager) openLocked(ws *workspaceState, path string) *buffer {
	ws.active = path
	if _, ok := ws.buffers[path]; ok {
		return nil
	}

	m.nextGen++
	b := &buffer{
		path:       path,
		sess:       &session{},
		loading:    true,
		generation: m.nextGen,
	}
	ws.buffers[path] = b
	ws.order = append(ws.order, path)
	return b
}

// load reads the file and opens a backend session for it. A failed read
// leaves the buffer present with its error; a failed backend open leaves
// it detached.
func (m *Manager) load(ws *workspaceState, b *buffer) {
	path, gen := b.path, b.generation
	log := m.log.WithFields(map[string]any{"workspace": ws.id, "path": path})

	m.goTracked(func() {
		ctx, cancel := m.callContext()
		file, err := m.files.ReadFile(ctx, ws.id, path)
		cancel()
		if err != nil {
			log.Warn("read failed: %v", err)
			m.mu.Lock()
			if cur := m.lookup(ws, path, gen); cur != nil {
				cur.loading = false
				cur.lastError = err.Error()
				cur.sess.state = SyncState{Kind: Detached}
			}
			m.mu.Unlock()
			m.notify(path)
			return
		}

		st := SyncState{Kind: Detached}
		switch {
		case m.engine == nil:
		case !utf8.ValidString(file.Content):
			log.Warn("content is not valid UTF-8, editing detached")
		default:
			ctx, cancel := m.callContext()
			snap, err := m.engine.Open(ctx, ws.id, path, file.Content)
			cancel()
			if err != nil {
				log.Warn("backend open failed, editing detached: %v", err)
			} else {
				st = SyncState{
					Kind:     Synced,
					BufferID: snap.BufferID,
					Version:  snap.Version,
					ByteLen:  snap.ByteLen,
				}
			}
		}

		m.mu.Lock()
		cur := m.lookup(ws, path, gen)
		if cur != nil {
			cur.content = file.Content
			cur.truncated = file.Truncated
			cur.loading = false
			cur.dirty = false
			cur.lastError = ""
			cur.sess.state = st
		}
		m.mu.Unlock()

		if cur == nil {
			if st.Kind == Synced {
				log.Debug("discarding session %s of a closed buffer", st.BufferID)
				m.closeSession(st.BufferID)
			}
			return
		}
		if file.Truncated {
			log.Warn("file truncated to %d bytes, saving disabled", len(file.Content))
		}
		m.notify(path)
	})
}

// UpdateContent replaces the text of an open buffer and marks it dirty.
// It does nothing while the buffer is loading. For a synced buffer the
// change is queued for the backend as a single delta. Content that is not
// valid UTF-8 cannot be carried by a delta, so it detaches the buffer.
func (m *Manager) UpdateContent(path, value string) {
	m.mu.Lock()
	ws := m.ws
	if ws == nil {
		m.mu.Unlock()
		return
	}
	b, ok := ws.buffers[path]
	if !ok || b.loading || b.content == value {
		m.mu.Unlock()
		return
	}

	prev := b.content
	b.content = value
	b.dirty = true
	var orphan string
	if st := b.sess.state; st.Kind == Synced {
		if utf8.ValidString(value) {
			m.queueDelta(ws, b.sess, path, prev, value)
		} else {
			b.sess.state = SyncState{Kind: Detached}
			orphan = st.BufferID
		}
	}
	m.mu.Unlock()

	if orphan != "" {
		m.log.WithField("path", path).Warn("content is not valid UTF-8, detaching")
		m.closeSessionAsync(orphan)
	}
	m.notify(path)
}

// SaveFile queues a save of path behind its pending deltas and reports
// whether one was queued. Missing, loading, saving, or truncated buffers
// are not saved.
func (m *Manager) SaveFile(path string) bool {
	m.mu.Lock()
	ws := m.ws
	if ws == nil {
		m.mu.Unlock()
		return false
	}
	b, ok := ws.buffers[path]
	if !ok || b.loading || b.saving || b.truncated {
		m.mu.Unlock()
		return false
	}

	b.saving = true
	b.lastError = ""
	gen, sess, content := b.generation, b.sess, b.content
	queued := ws.queues.Push(path, func() {
		m.save(ws, path, gen, sess, content)
	})
	if !queued {
		b.saving = false
	}
	m.mu.Unlock()

	if queued {
		m.notify(path)
	}
	return queued
}

// CloseFile discards the buffer for path. If it was active, the last
// remaining open path becomes active. The backend session is closed best
// effort once the path's queued work has run.
func (m *Manager) CloseFile(path string) {
	m.mu.Lock()
	ws := m.ws
	if ws == nil {
		m.mu.Unlock()
		return
	}
	b, ok := ws.buffers[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	delete(ws.buffers, path)
	ws.order = removePath(ws.order, path)
	activated := ""
	if ws.active == path {
		ws.active = ""
		if n := len(ws.order); n > 0 {
			ws.active = ws.order[n-1]
			activated = ws.active
		}
	}

	sess := b.sess
	task := func() { m.closeBuffer(ws, path, sess) }
	queued := ws.queues.Push(path, task)
	m.mu.Unlock()

	if !queued {
		m.goTracked(task)
	}
	if activated != "" {
		m.persistActive(ws.id, activated)
	}
	m.notify(path)
}

// ReloadFile discards the unsaved edits of path and rereads the file behind
// the path's queued work. It reports whether a reload was queued; missing,
// loading, or saving buffers are not reloaded. A synced buffer's backend
// session is brought to the new content as well. A detached buffer stays
// detached.
func (m *Manager) ReloadFile(path string) bool {
	m.mu.Lock()
	ws := m.ws
	if ws == nil {
		m.mu.Unlock()
		return false
	}
	b, ok := ws.buffers[path]
	if !ok || b.loading || b.saving {
		m.mu.Unlock()
		return false
	}

	b.loading = true
	gen, sess := b.generation, b.sess
	queued := ws.queues.Push(path, func() {
		m.reload(ws, path, gen, sess)
	})
	if !queued {
		b.loading = false
	}
	m.mu.Unlock()

	if queued {
		m.notify(path)
	}
	return queued
}

// Search finds up to max matches of query in the open buffer for path
// once the path's queued deltas have applied. A synced buffer is searched
// by the backend when it can; otherwise the local content is searched.
func (m *Manager) Search(ctx context.Context, path, query string, opts backend.SearchOptions, max int) ([]backend.SearchMatch, error) {
	m.mu.Lock()
	ws := m.ws
	if ws == nil {
		m.mu.Unlock()
		return nil, ErrNoWorkspace
	}
	if _, ok := ws.buffers[path]; !ok {
		m.mu.Unlock()
		return nil, ErrBufferNotFound
	}
	m.mu.Unlock()

	if err := ws.queues.Drain(ctx, path); err != nil {
		return nil, err
	}

	m.mu.Lock()
	b, ok := ws.buffers[path]
	if !ok || m.ws != ws {
		m.mu.Unlock()
		return nil, ErrBufferNotFound
	}
	st, content := b.sess.state, b.content
	m.mu.Unlock()

	if in, ok := m.engine.(backend.Inspector); ok && st.Kind == Synced {
		matches, err := in.Search(ctx, st.BufferID, query, opts, max)
		if err == nil || errors.Is(err, backend.ErrInvalidQuery) {
			return matches, err
		}
		m.log.WithField("path", path).Debug("backend search failed, searching locally: %v", err)
	}
	return local.SearchText(ctx, content, query, opts, max)
}

// SetActivePath selects an open buffer.
func (m *Manager) SetActivePath(path string) error {
	m.mu.Lock()
	ws := m.ws
	if ws == nil {
		m.mu.Unlock()
		return ErrNoWorkspace
	}
	if _, ok := ws.buffers[path]; !ok {
		m.mu.Unlock()
		return ErrBufferNotFound
	}
	changed := ws.active != path
	ws.active = path
	m.mu.Unlock()

	if changed {
		m.persistActive(ws.id, path)
		m.notify(path)
	}
	return nil
}

// ActivePath returns the active buffer's path, or "".
func (m *Manager) ActivePath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		return ""
	}
	return m.ws.active
}

// OpenPaths returns the open paths in the order they were opened.
func (m *Manager) OpenPaths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		return nil
	}
	return append([]string(nil), m.ws.order...)
}

// Buffer returns a snapshot of the buffer for path.
func (m *Manager) Buffer(path string) (Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ws == nil {
		return Buffer{}, false
	}
	b, ok := m.ws.buffers[path]
	if !ok {
		return Buffer{}, false
	}
	return b.snapshot(), true
}

// RestoreLastFile opens the file to show when a workspace is first
// listed: the remembered path if available still contains it, otherwise
// the best README candidate. It runs once per workspace activation and
// never when a buffer is already open. It returns the opened path.
func (m *Manager) RestoreLastFile(ctx context.Context, available []string) (string, bool) {
	m.mu.Lock()
	ws := m.ws
	if m.closed || ws == nil || ws.restored {
		m.mu.Unlock()
		return "", false
	}
	ws.restored = true
	if len(ws.order) > 0 || ws.active != "" {
		m.mu.Unlock()
		return "", false
	}
	m.mu.Unlock()

	target := ""
	stored, ok, err := m.store.LastFile(ctx, ws.id)
	if err != nil {
		m.log.Warn("load last file of %s: %v", ws.id, err)
	} else if ok && containsPath(available, stored) {
		target = stored
	}
	if target == "" {
		target, _ = FindReadme(available)
	}
	if target == "" {
		return "", false
	}

	m.mu.Lock()
	if m.closed || m.ws != ws || len(ws.order) > 0 {
		m.mu.Unlock()
		return "", false
	}
	b := m.openLocked(ws, target)
	m.mu.Unlock()

	m.log.WithField("workspace", ws.id).Info("restored %s", target)
	m.persistActive(ws.id, target)
	m.notify(target)
	m.load(ws, b)
	return target, true
}

// Wait blocks until all background work started so far has finished:
// pending loads, queued deltas, saves and closes, and state writes.
func (m *Manager) Wait(ctx context.Context) error {
	if err := m.waitTracked(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	ws := m.ws
	m.mu.Unlock()
	if ws != nil {
		if err := ws.queues.DrainAll(ctx); err != nil {
			return err
		}
	}
	if err := m.persist.Drain(ctx); err != nil && !errors.Is(err, syncqueue.ErrClosed) {
		return err
	}
	return m.waitTracked(ctx)
}

// Close waits for queued work, then closes every backend session best
// effort and stops the manager. ctx bounds the wait.
func (m *Manager) Close(ctx context.Context) error {
	waitErr := m.Wait(ctx)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return waitErr
	}
	m.closed = true
	ws := m.ws
	m.ws = nil
	var sessions []string
	if ws != nil {
		sessions = detachAll(ws)
	}
	m.mu.Unlock()

	if ws != nil {
		ws.queues.Close()
	}
	for _, id := range sessions {
		m.closeSessionAsync(id)
	}
	if err := m.waitTracked(ctx); err != nil && waitErr == nil {
		waitErr = err
	}
	m.persist.Close()

	st := m.persist.Stats()
	m.log.Debug("state writes: %d done, %d dropped, %d panicked", st.Processed, st.Dropped, st.Panicked)
	return waitErr
}

func newWorkspaceState(id string, onPanic syncqueue.PanicHandler) *workspaceState {
	return &workspaceState{
		id:      id,
		buffers: make(map[string]*buffer),
		queues:  syncqueue.NewGroup(syncqueue.WithPanicHandler(onPanic)),
	}
}

// detachAll marks every synced session detached and returns their ids.
// Caller holds m.mu.
func detachAll(ws *workspaceState) []string {
	var ids []string
	for _, path := range ws.order {
		s := ws.buffers[path].sess
		if s.state.Kind == Synced {
			ids = append(ids, s.state.BufferID)
		}
		s.state = SyncState{Kind: Detached}
	}
	return ids
}

// lookup returns the buffer for path if ws is still selected and the
// buffer is the same open. Caller holds m.mu.
func (m *Manager) lookup(ws *workspaceState, path string, gen uint64) *buffer {
	if m.ws != ws {
		return nil
	}
	b, ok := ws.buffers[path]
	if !ok || b.generation != gen {
		return nil
	}
	return b
}

func (m *Manager) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.timeout)
}

func (m *Manager) notify(path string) {
	m.mu.Lock()
	fns := append([]func(string){}, m.onChange...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(path)
	}
}

func (m *Manager) notifySaved(path string) {
	m.mu.Lock()
	fns := append([]func(string){}, m.onDidSave...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(path)
	}
}

// persistActive remembers path as the workspace's last file, best effort.
func (m *Manager) persistActive(workspaceID, path string) {
	m.persist.Push(func() {
		ctx, cancel := m.callContext()
		defer cancel()
		if err := m.store.SetLastFile(ctx, workspaceID, path); err != nil {
			m.log.Warn("remember last file %s: %v", path, err)
		}
	})
}

func (m *Manager) closeSessionAsync(bufferID string) {
	if m.engine == nil {
		return
	}
	m.goTracked(func() {
		m.closeSession(bufferID)
	})
}

// closeSession closes a backend buffer. Failures are logged only.
func (m *Manager) closeSession(bufferID string) {
	if m.engine == nil {
		return
	}
	ctx, cancel := m.callContext()
	defer cancel()
	if err := m.engine.Close(ctx, bufferID); err != nil {
		m.log.Warn("close backend buffer %s: %v", bufferID, err)
	}
}

func (m *Manager) recoverTask(recovered any, stack []byte) {
	m.log.Error("background task panic: %v\n%s", recovered, stack)
}

// goTracked runs fn on a new goroutine that Wait accounts for. The count
// changes under m.mu, so a Wait in progress also covers goroutines started
// before it returns. Caller must not hold m.mu.
func (m *Manager) goTracked(fn func()) {
	m.mu.Lock()
	if m.inflight == 0 {
		m.idle = make(chan struct{})
	}
	m.inflight++
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.inflight--
			if m.inflight == 0 {
				close(m.idle)
			}
			m.mu.Unlock()
		}()
		fn()
	}()
}

// waitTracked blocks until no goroutine started by goTracked is running.
func (m *Manager) waitTracked(ctx context.Context) error {
	m.mu.Lock()
	n, idle := m.inflight, m.idle
	m.mu.Unlock()
	if n == 0 {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func removePath(paths []string, path string) []string {
	out := paths[:0]
	for _, p := range paths {
		if p != path {
			out = append(out, p)
		}
	}
	return out
}

func containsPath(paths []string, path string) bool {
	for _, p := range paths {
		if p == path {
			return true
		}
	}
	return false
}
