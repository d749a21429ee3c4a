package editor

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/diff"
)

// queueDelta queues the change from prev to next for the session. Offsets
// are measured against prev, the text the backend holds once every earlier
// delta on the queue has applied. Caller holds m.mu.
func (m *Manager) queueDelta(ws *workspaceState, sess *session, path, prev, next string) {
	p, ok := diff.Compute(prev, next)
	if !ok {
		return
	}

	start := int64(m.tr.ByteOffset(prev, p.Start))
	end := int64(m.tr.ByteOffset(prev, p.End))
	newLen := int64(m.tr.ByteLength(next))

	ws.queues.Push(path, func() {
		m.applyDelta(sess, path, start, end, p.Text, newLen)
	})
}

// applyDelta sends one delta at the session's current version. A result
// for a session that was detached or reassigned meanwhile is dropped. A
// failure detaches the session.
func (m *Manager) applyDelta(sess *session, path string, start, end int64, text string, newLen int64) {
	m.mu.Lock()
	st := sess.state
	m.mu.Unlock()
	if st.Kind != Synced {
		return
	}

	began := time.Now()
	ctx, cancel := m.callContext()
	version, err := m.engine.ApplyDelta(ctx, st.BufferID, st.Version, start, end, text)
	cancel()

	m.mu.Lock()
	if !sess.is(st.BufferID) {
		m.mu.Unlock()
		return
	}
	if err != nil {
		sess.state = SyncState{Kind: Detached}
		m.mu.Unlock()

		m.log.WithField("path", path).Warn("delta at version %d failed, detaching: %v", st.Version, err)
		m.closeSession(st.BufferID)
		m.notify(path)
		return
	}
	sess.state.Version = version
	sess.state.ByteLen = newLen
	m.mu.Unlock()

	m.applyLatency.Since(began)
	m.notify(path)
}

// save persists content, the buffer's text when the save was requested.
// It runs on the path's queue, after every delta queued before it.
func (m *Manager) save(ws *workspaceState, path string, gen uint64, sess *session, content string) {
	began := time.Now()

	m.mu.Lock()
	st := sess.state
	m.mu.Unlock()

	var err error
	if st.Kind == Synced {
		err = m.flush(sess, st, content)
	} else {
		ctx, cancel := m.callContext()
		err = m.files.WriteFile(ctx, ws.id, path, content)
		cancel()
	}

	m.mu.Lock()
	if b := m.lookup(ws, path, gen); b != nil {
		b.saving = false
		if err != nil {
			b.lastError = err.Error()
		} else {
			b.lastError = ""
			b.dirty = b.content != content
		}
	}
	m.mu.Unlock()

	log := m.log.WithField("path", path)
	if err != nil {
		log.Warn("save failed: %v", err)
		m.notify(path)
		return
	}

	m.saveLatency.Since(began)
	log.Debug("saved %d bytes", len(content))
	m.notify(path)
	m.notifySaved(path)
}

// flush brings the backend buffer to content if its length disagrees,
// then asks the backend to write it. Either failure detaches the session.
func (m *Manager) flush(sess *session, st SyncState, content string) error {
	ctx, cancel := m.callContext()
	defer cancel()

	if st.ByteLen != int64(m.tr.ByteLength(content)) {
		if err := m.replaceAll(ctx, sess, st, content); err != nil {
			return fmt.Errorf("resync before save: %w", err)
		}
	}

	snap, err := m.engine.FlushToDisk(ctx, st.BufferID)
	if err != nil {
		m.detach(sess, st.BufferID)
		return fmt.Errorf("flush: %w", err)
	}

	m.mu.Lock()
	if sess.is(st.BufferID) {
		sess.state.Version = snap.Version
		sess.state.ByteLen = snap.ByteLen
	}
	m.mu.Unlock()
	return nil
}

// replaceAll sends content as one delta over the whole backend buffer.
// A failure detaches the session.
func (m *Manager) replaceAll(ctx context.Context, sess *session, st SyncState, content string) error {
	version, err := m.engine.ApplyDelta(ctx, st.BufferID, st.Version, 0, st.ByteLen, content)
	if err != nil {
		m.detach(sess, st.BufferID)
		return err
	}

	m.mu.Lock()
	if sess.is(st.BufferID) {
		sess.state.Version = version
		sess.state.ByteLen = int64(m.tr.ByteLength(content))
	}
	m.mu.Unlock()
	return nil
}

// reload rereads path into the buffer. It runs on the path's queue, so the
// backend holds every earlier delta when it starts.
func (m *Manager) reload(ws *workspaceState, path string, gen uint64, sess *session) {
	log := m.log.WithField("path", path)

	ctx, cancel := m.callContext()
	file, err := m.files.ReadFile(ctx, ws.id, path)
	cancel()
	if err != nil {
		log.Warn("reload failed: %v", err)
		m.mu.Lock()
		if b := m.lookup(ws, path, gen); b != nil {
			b.loading = false
			b.lastError = err.Error()
		}
		m.mu.Unlock()
		m.notify(path)
		return
	}

	m.mu.Lock()
	st := sess.state
	m.mu.Unlock()
	if st.Kind == Synced {
		if !utf8.ValidString(file.Content) {
			log.Warn("content is not valid UTF-8, detaching")
			m.detach(sess, st.BufferID)
		} else if err := m.resync(sess, st, file.Content); err != nil {
			log.Warn("backend reload failed, detaching: %v", err)
		}
	}

	m.mu.Lock()
	if b := m.lookup(ws, path, gen); b != nil {
		b.content = file.Content
		b.truncated = file.Truncated
		b.dirty = false
		b.loading = false
		b.lastError = ""
	}
	m.mu.Unlock()

	log.Debug("reloaded %d bytes", len(file.Content))
	m.notify(path)
}

// resync brings the backend buffer to content, the file just read. An
// engine that can reread the file does so itself; a whole-buffer delta
// covers engines that cannot and lengths that still disagree. A failure
// detaches the session.
func (m *Manager) resync(sess *session, st SyncState, content string) error {
	ctx, cancel := m.callContext()
	defer cancel()

	if in, ok := m.engine.(backend.Inspector); ok {
		snap, err := in.ReloadFromDisk(ctx, st.BufferID)
		if err != nil {
			m.detach(sess, st.BufferID)
			return err
		}
		st.Version, st.ByteLen = snap.Version, snap.ByteLen

		m.mu.Lock()
		if sess.is(st.BufferID) {
			sess.state.Version = st.Version
			sess.state.ByteLen = st.ByteLen
		}
		m.mu.Unlock()

		if st.ByteLen == int64(m.tr.ByteLength(content)) {
			return nil
		}
	}

	return m.replaceAll(ctx, sess, st, content)
}

// detach demotes the session if it still holds bufferID and closes the
// backend buffer best effort.
func (m *Manager) detach(sess *session, bufferID string) {
	m.mu.Lock()
	owned := sess.is(bufferID)
	if owned {
		sess.state = SyncState{Kind: Detached}
	}
	m.mu.Unlock()

	if owned {
		m.closeSession(bufferID)
	}
}

// closeBuffer ends the session of a closed buffer and forgets the path's
// queue unless the path was reopened meanwhile.
func (m *Manager) closeBuffer(ws *workspaceState, path string, sess *session) {
	m.mu.Lock()
	st := sess.state
	sess.state = SyncState{Kind: Detached}
	m.mu.Unlock()

	if st.Kind == Synced {
		m.closeSession(st.BufferID)
	}

	m.mu.Lock()
	if _, reopened := ws.buffers[path]; !reopened {
		ws.queues.Remove(path)
	}
	m.mu.Unlock()
}

// is reports whether the session is synced with bufferID. Caller holds
// m.mu.
func (s *session) is(bufferID string) bool {
	return s.state.Kind == Synced && s.state.BufferID == bufferID
}
