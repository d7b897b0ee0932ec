package api

import "context"

// Reporter receives the final pass/fail status of a remote session.
type Reporter interface {
	Report(ctx context.Context, sessionID string, passed bool) error
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(ctx context.Context, sessionID string, passed bool) error

// Report calls f(ctx, sessionID, passed).
func (f ReporterFunc) Report(ctx context.Context, sessionID string, passed bool) error {
	return f(ctx, sessionID, passed)
}

// NopReporter discards every report.
var NopReporter Reporter = ReporterFunc(func(context.Context, string, bool) error { return nil }) //nolint:gochecknoglobals
