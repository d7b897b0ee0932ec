package testutils

import (
	"context"
	"sync"

	"github.com/grafana/browsermatrix/api"
)

var _ api.Reporter = &Reporter{}

// Notification is one call received by Reporter.
type Notification struct {
	SessionID string
	Passed    bool
}

// Reporter records every notification it receives.
type Reporter struct {
	Err error

	mu    sync.Mutex
	calls []Notification
}

// Report implements api.Reporter.
func (r *Reporter) Report(_ context.Context, sessionID string, passed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Notification{SessionID: sessionID, Passed: passed})
	return r.Err
}

// Calls returns the notifications received so far.
func (r *Reporter) Calls() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := make([]Notification, len(r.calls))
	copy(c, r.calls)
	return c
}
