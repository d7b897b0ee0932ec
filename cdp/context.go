package cdp

import (
	"context"

	"github.com/chromedp/cdproto/target"
)

type attachedKey struct{}

// onTarget routes the commands executed with the returned context to the
// page attached under sid. Commands without it address the browser itself.
func onTarget(ctx context.Context, sid string) context.Context {
	if sid == "" {
		return ctx
	}
	return context.WithValue(ctx, attachedKey{}, target.SessionID(sid))
}

func attachedSession(ctx context.Context) (target.SessionID, bool) {
	sid, ok := ctx.Value(attachedKey{}).(target.SessionID)
	return sid, ok
}
