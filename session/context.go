package session

import (
	"context"
)

type ctxKey int

const (
	ctxKeyRunID ctxKey = iota
	ctxKeyTestName
)

// WithRunID saves the identifier of the current run to the context.
func WithRunID(ctx context.Context, rID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, rID)
}

// GetRunID returns the identifier of the current run from the context.
func GetRunID(ctx context.Context) string {
	rID, _ := ctx.Value(ctxKeyRunID).(string)
	return rID
}

// WithTestName saves the name of the test a session is opened for.
func WithTestName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyTestName, name)
}

// GetTestName returns the test name saved by WithTestName.
func GetTestName(ctx context.Context) string {
	name, _ := ctx.Value(ctxKeyTestName).(string)
	return name
}
