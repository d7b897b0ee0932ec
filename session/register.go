package session

import (
	"context"
	"errors"
	"sync"
)

// Register tracks open handles so they can all be closed on shutdown.
type Register struct {
	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// NewRegister returns an empty register.
func NewRegister() *Register {
	return &Register{handles: make(map[*Handle]struct{})}
}

var defaultRegister = NewRegister() //nolint:gochecknoglobals

func (r *Register) add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handles[h] = struct{}{}
}

func (r *Register) remove(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, h)
}

// Len returns the number of open handles.
func (r *Register) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

// ForceClose closes every handle still open in the register.
func (r *Register) ForceClose(ctx context.Context) error {
	r.mu.Lock()
	open := make([]*Handle, 0, len(r.handles))
	for h := range r.handles {
		open = append(open, h)
	}
	r.mu.Unlock()

	var errs []error
	for _, h := range open {
		if err := h.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ForceClose should be called when the process is shutting down. It closes
// every handle opened without an explicit register.
func ForceClose(ctx context.Context) error {
	return defaultRegister.ForceClose(ctx)
}
