package testcase

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/grafana/browsermatrix/api"
)

// Script is a case whose body is JavaScript. Every run gets its own runtime
// exposing:
//
//	session.navigate(url)
//	session.title()
//	session.find(name).sendKeys(text)
//	session.find(name).submit()
//	fail(message)
//
// fail records an assertion failure and stops the script. Any other thrown
// exception errors the run.
type Script struct {
	CaseName string
	Source   string
}

// Name implements Case.
func (c Script) Name() string { return c.CaseName }

// Run implements Case.
func (c Script) Run(ctx context.Context, s api.Session) error {
	rt := goja.New()

	var failure *AssertionFailure
	global := rt.GlobalObject()
	if err := global.Set("session", c.sessionObject(ctx, s)); err != nil {
		return fmt.Errorf("binding session: %w", err)
	}
	fail := func(msg string) error {
		failure = &AssertionFailure{Message: msg}
		return failure
	}
	if err := global.Set("fail", fail); err != nil {
		return fmt.Errorf("binding fail: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	_, err := rt.RunString(c.Source)
	if failure != nil {
		return failure
	}
	if err != nil {
		return fmt.Errorf("script %q: %w", c.CaseName, err)
	}
	return nil
}

func (c Script) sessionObject(ctx context.Context, s api.Session) map[string]interface{} {
	return map[string]interface{}{
		"navigate": func(url string) error {
			return s.Navigate(ctx, url)
		},
		"title": func() (string, error) {
			return s.Title(ctx)
		},
		"find": func(name string) (map[string]interface{}, error) {
			el, err := s.FindElementByName(ctx, name)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"sendKeys": func(text string) error { return el.SendKeys(ctx, text) },
				"submit":   func() error { return el.Submit(ctx) },
			}, nil
		},
	}
}
