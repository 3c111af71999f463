// Package session tracks which chat keys have a verification in flight.
// The registry is process-local on purpose: after a restart any orphaned
// watcher is gone, so the slot must be free again.
package session

import (
	"errors"
	"sync"
)

// ErrAlreadyOpen is returned when the session key already has an open
// verification.
var ErrAlreadyOpen = errors.New("a verification is already in progress for this session")

type Registry struct {
	mu   sync.Mutex
	open map[int64]struct{}
}

func NewRegistry() *Registry {
	return &Registry{open: make(map[int64]struct{})}
}

// Open reserves the session key. The reservation holds until Close.
func (r *Registry) Open(sessionKey int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[sessionKey]; exists {
		return ErrAlreadyOpen
	}
	r.open[sessionKey] = struct{}{}
	return nil
}

// Close releases the session key. Closing an unknown key is a no-op.
func (r *Registry) Close(sessionKey int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.open, sessionKey)
}

// Active reports whether the session key has an open verification.
func (r *Registry) Active(sessionKey int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.open[sessionKey]
	return exists
}
