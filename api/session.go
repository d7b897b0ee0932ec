// Package api declares the collaborators the runner drives: remote session
// providers, the sessions they hand out, and result reporters.
package api

import "context"

// Capabilities is the descriptor sent to a remote provider when asking for a
// new session, e.g. platformName, browserName and the display name.
type Capabilities map[string]string

// Provider opens remote automated-browser sessions.
type Provider interface {
	NewSession(ctx context.Context, caps Capabilities) (Session, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, caps Capabilities) (Session, error)

// NewSession calls f(ctx, caps).
func (f ProviderFunc) NewSession(ctx context.Context, caps Capabilities) (Session, error) {
	return f(ctx, caps)
}

// Session is the interaction capability set of one live remote session.
type Session interface {
	// ID returns the identifier the provider assigned to the session.
	ID() string
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	FindElementByName(ctx context.Context, name string) (Element, error)
	Quit(ctx context.Context) error
}

// Element is a located element on the current page.
type Element interface {
	SendKeys(ctx context.Context, text string) error
	Submit(ctx context.Context) error
}
