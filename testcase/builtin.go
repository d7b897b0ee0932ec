package testcase

import (
	"context"
	"fmt"

	"github.com/grafana/browsermatrix/api"
)

// TitleCheck navigates to URL and expects the page title to equal Expected.
type TitleCheck struct {
	CaseName string
	URL      string
	Expected string
}

// Name implements Case.
func (c TitleCheck) Name() string {
	if c.CaseName != "" {
		return c.CaseName
	}
	return "title " + c.URL
}

// Run implements Case.
func (c TitleCheck) Run(ctx context.Context, s api.Session) error {
	if err := s.Navigate(ctx, c.URL); err != nil {
		return fmt.Errorf("navigating to %q: %w", c.URL, err)
	}
	return expectTitle(ctx, s, c.Expected)
}

// Search navigates to URL, types Text into the input named Field, submits
// the form and expects the resulting title to equal Expected.
type Search struct {
	CaseName string
	URL      string
	Field    string
	Text     string
	Expected string
}

// Name implements Case.
func (c Search) Name() string {
	if c.CaseName != "" {
		return c.CaseName
	}
	return "search " + c.URL
}

// Run implements Case.
func (c Search) Run(ctx context.Context, s api.Session) error {
	if err := s.Navigate(ctx, c.URL); err != nil {
		return fmt.Errorf("navigating to %q: %w", c.URL, err)
	}
	el, err := s.FindElementByName(ctx, c.Field)
	if err != nil {
		return fmt.Errorf("locating element named %q: %w", c.Field, err)
	}
	if err := el.SendKeys(ctx, c.Text); err != nil {
		return fmt.Errorf("typing into %q: %w", c.Field, err)
	}
	if err := el.Submit(ctx); err != nil {
		return fmt.Errorf("submitting %q: %w", c.Field, err)
	}
	return expectTitle(ctx, s, c.Expected)
}

func expectTitle(ctx context.Context, s api.Session, expected string) error {
	title, err := s.Title(ctx)
	if err != nil {
		return fmt.Errorf("reading title: %w", err)
	}
	if title != expected {
		return Failf("unexpected page title: expected %q, got %q", expected, title)
	}
	return nil
}

// DefaultCases returns the cases run when none are configured.
func DefaultCases() []Case {
	return []Case{
		TitleCheck{
			CaseName: "amazon",
			URL:      "http://www.amazon.com/",
			Expected: "Amazon.com: Online Shopping for Electronics, Apparel, Computers, Books, DVDs & more",
		},
		Search{
			CaseName: "google",
			URL:      "http://www.google.com",
			Field:    "q",
			Text:     "Cheese!",
			Expected: "Cheese! - Google Search",
		},
	}
}
