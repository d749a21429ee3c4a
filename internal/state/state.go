// Package state persists the client-side state that survives restarts:
// the last active file of each workspace.
package state

import (
	"context"
	"sync"
)

// Store remembers the last active file per workspace.
type Store interface {
	// LastFile returns the remembered path for a workspace.
	LastFile(ctx context.Context, workspaceID string) (path string, ok bool, err error)

	// SetLastFile remembers path for a workspace. An empty path forgets it.
	SetLastFile(ctx context.Context, workspaceID, path string) error

	// Close releases the store.
	Close() error
}

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu    sync.Mutex
	paths map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{paths: make(map[string]string)}
}

var _ Store = (*MemoryStore)(nil)

// LastFile implements Store.
func (s *MemoryStore) LastFile(ctx context.Context, workspaceID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.paths[workspaceID]
	return path, ok, nil
}

// SetLastFile implements Store.
func (s *MemoryStore) SetLastFile(ctx context.Context, workspaceID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		delete(s.paths, workspaceID)
		return nil
	}
	s.paths[workspaceID] = path
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
