package testcase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/testutils"
)

func newSession(t *testing.T, p *testutils.Provider) *testutils.Session {
	t.Helper()

	s, err := p.NewSession(context.Background(), api.Capabilities{"name": t.Name()})
	require.NoError(t, err)
	return s.(*testutils.Session) //nolint:forcetypeassert
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Passed, Classify(nil).Status)

	o := Classify(Failf("expected %q", "x"))
	assert.Equal(t, Failed, o.Status)
	assert.Equal(t, `expected "x"`, o.Reason)

	wrapped := Classify(errors.New("outer: " + Failf("inner").Error()))
	assert.Equal(t, Errored, wrapped.Status)

	o = Classify(errors.New("boom"))
	assert.Equal(t, Errored, o.Status)
	assert.Equal(t, "boom", o.Reason)
	assert.False(t, o.Passed())
}

func TestExecuteRecoversPanic(t *testing.T) {
	t.Parallel()

	c := Func("panics", func(context.Context, api.Session) error {
		panic("unexpected nil element")
	})
	err := Execute(context.Background(), c, nil)

	var perr *PanicError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "unexpected nil element", perr.Value)
	assert.NotEmpty(t, perr.Stack)
	assert.Equal(t, Errored, Classify(err).Status)
}

func TestTitleCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		title  string
		status Status
		reason string
	}{
		{name: "match", title: "Example", status: Passed},
		{
			name:   "mismatch",
			title:  "Other",
			status: Failed,
			reason: `unexpected page title: expected "Example", got "Other"`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &testutils.Provider{Title: tt.title}
			s := newSession(t, p)
			c := TitleCheck{URL: "http://example.test/", Expected: "Example"}

			o := Classify(Execute(context.Background(), c, s))
			assert.Equal(t, tt.status, o.Status)
			assert.Equal(t, tt.reason, o.Reason)
			assert.Equal(t, []string{"http://example.test/"}, s.URLs())
			assert.Equal(t, "title http://example.test/", c.Name())
		})
	}
}

func TestTitleCheckNavigationError(t *testing.T) {
	t.Parallel()

	p := &testutils.Provider{
		NavigateFunc: func(context.Context, *testutils.Session, string) error {
			return errors.New("net::ERR_NAME_NOT_RESOLVED")
		},
	}
	o := Classify(Execute(context.Background(), TitleCheck{URL: "http://nowhere.test/"}, newSession(t, p)))
	assert.Equal(t, Errored, o.Status)
	assert.Contains(t, o.Reason, "ERR_NAME_NOT_RESOLVED")
}

func TestSearch(t *testing.T) {
	t.Parallel()

	p := &testutils.Provider{
		TitleFunc: func(s *testutils.Session) string {
			if s.Submitted() {
				return s.Typed("q") + " - Google Search"
			}
			return "Google"
		},
	}
	s := newSession(t, p)
	c := Search{CaseName: "google", URL: "http://www.google.com", Field: "q", Text: "Cheese!", Expected: "Cheese! - Google Search"}

	require.NoError(t, Execute(context.Background(), c, s))
	assert.Equal(t, "Cheese!", s.Typed("q"))
	assert.True(t, s.Submitted())
	assert.Equal(t, "google", c.Name())
}

func TestDefaultCasesHaveUniqueNames(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, c := range DefaultCases() {
		assert.False(t, seen[c.Name()], c.Name())
		seen[c.Name()] = true
	}
	assert.Len(t, seen, 2)
}

func TestScript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    string
		status Status
		reason string
	}{
		{
			name: "pass",
			src: `
				session.navigate("http://www.google.com");
				var q = session.find("q");
				q.sendKeys("Cheese!");
				q.submit();
				if (session.title() !== "Cheese! - Google Search") {
					fail("wrong title: " + session.title());
				}
			`,
			status: Passed,
		},
		{
			name:   "fail",
			src:    `session.navigate("http://www.google.com"); fail("wrong title: " + session.title());`,
			status: Failed,
			reason: "wrong title: Google",
		},
		{
			name:   "throw",
			src:    `throw new Error("element missing");`,
			status: Errored,
			reason: "element missing",
		},
		{
			name:   "syntax_error",
			src:    `session.navigate(`,
			status: Errored,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &testutils.Provider{
				TitleFunc: func(s *testutils.Session) string {
					if s.Submitted() {
						return s.Typed("q") + " - Google Search"
					}
					return "Google"
				},
			}
			c := Script{CaseName: tt.name, Source: tt.src}
			o := Classify(Execute(context.Background(), c, newSession(t, p)))
			assert.Equal(t, tt.status, o.Status, o.Reason)
			if tt.reason != "" {
				assert.Contains(t, o.Reason, tt.reason)
			}
		})
	}
}

func TestScriptInterruptedByContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := Script{CaseName: "spin", Source: `for (;;) {}`}
	err := Execute(ctx, c, newSession(t, &testutils.Provider{}))
	require.Error(t, err)
	assert.Equal(t, Errored, Classify(err).Status)
}
