package scrollback

import (
	"fmt"
	"sync"
)

// Registry owns one Buffer per terminal session id, creating buffers on first
// use. Buffers have no existence outside the registry that created them: the
// session lifecycle manager calls GetOrCreate on session start and Remove on
// session end, and callers must not retain a Buffer across a Remove.
type Registry struct {
	mu       sync.RWMutex
	buffers  map[string]*Buffer
	capacity int
}

// NewRegistry creates an empty Registry whose buffers are constructed with
// the given default capacity.
func NewRegistry(defaultCapacity int) (*Registry, error) {
	if defaultCapacity <= 0 {
		return nil, fmt.Errorf("scrollback: default capacity must be positive, got %d", defaultCapacity)
	}
	return &Registry{
		buffers:  make(map[string]*Buffer),
		capacity: defaultCapacity,
	}, nil
}

// GetOrCreate returns the buffer for sessionID, constructing an empty one
// with the registry's default capacity if none exists. For a given still-live
// id every call returns the same instance.
func (r *Registry) GetOrCreate(sessionID string) *Buffer {
	r.mu.RLock()
	buf, ok := r.buffers[sessionID]
	r.mu.RUnlock()
	if ok {
		return buf
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if buf, ok := r.buffers[sessionID]; ok {
		return buf
	}
	buf = &Buffer{capacity: r.capacity}
	r.buffers[sessionID] = buf
	return buf
}

// Get returns the buffer for sessionID, or nil when none exists.
func (r *Registry) Get(sessionID string) *Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffers[sessionID]
}

// Remove discards the buffer for sessionID. It is a no-op when no buffer
// exists; after removal a subsequent GetOrCreate returns a fresh, empty
// buffer and the prior history is gone.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.buffers, sessionID)
}

// All returns a snapshot of the session-to-buffer mapping. Diagnostic only;
// each buffer is still addressed by its key and per-session isolation holds.
func (r *Registry) All() map[string]*Buffer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Buffer, len(r.buffers))
	for id, buf := range r.buffers {
		out[id] = buf
	}
	return out
}

// Len returns the number of live buffers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buffers)
}
