package domains

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	cdpi "github.com/chromedp/cdproto/input"
)

// Input exposes the CDP Input domain actions.
type Input interface {
	InsertText(ctx context.Context, text string) error
}

var _ Input = &input{}

type input struct {
	exec cdp.Executor
}

// NewInput returns a new CDP Input domain wrapper.
func NewInput(exec cdp.Executor) Input {
	return &input{exec}
}

func (i *input) InsertText(ctx context.Context, text string) error {
	return cdpi.InsertText(text).Do(cdp.WithExecutor(ctx, i.exec))
}
