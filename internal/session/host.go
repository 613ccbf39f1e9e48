package session

import (
	"context"
	"sync"
)

// Host keeps at most one session mounted. Mounting a room tears the previous
// session down first, so two channels never coexist.
type Host struct {
	deps Deps

	mu      sync.Mutex
	current *Session
}

// NewHost builds a host that opens sessions with deps.
func NewHost(deps Deps) *Host {
	return &Host{deps: deps}
}

// Mount closes the current session, if any, and opens one for roomID.
func (h *Host) Mount(ctx context.Context, roomID string) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		h.current.Close()
		h.current = nil
	}

	s, err := Open(ctx, h.deps, roomID)
	if err != nil {
		return nil, err
	}
	h.current = s
	return s, nil
}

// Unmount closes the current session.
func (h *Host) Unmount() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current != nil {
		h.current.Close()
		h.current = nil
	}
}

// Current returns the mounted session, or nil.
func (h *Host) Current() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}
