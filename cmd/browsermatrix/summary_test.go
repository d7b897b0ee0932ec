package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/executor"
	"github.com/grafana/browsermatrix/session"
	"github.com/grafana/browsermatrix/testcase"
	"github.com/grafana/browsermatrix/testutils"
)

func sampleReport(t *testing.T) *executor.Report {
	t.Helper()

	e, err := executor.New(&testutils.Provider{Title: "Example"}, nil, executor.Options{Register: session.NewRegister()}, nil)
	require.NoError(t, err)

	cases := []testcase.Case{
		testcase.TitleCheck{CaseName: "ok", URL: "u", Expected: "Example"},
		testcase.TitleCheck{CaseName: "nok", URL: "u", Expected: "Other"},
		testcase.Func("broken", func(context.Context, api.Session) error { panic("crash") }),
	}
	r, err := e.Run(context.Background(), env.NewMatrix(env.BrowserMode,
		env.Pairs(env.PlatformName, "Linux", env.BrowserName, "chrome")), cases)
	require.NoError(t, err)
	return r
}

func TestSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	newSummary(&buf, true).print(sampleReport(t))
	out := buf.String()

	assert.NotContains(t, out, "\x1b[")
	assert.Less(t, strings.Index(out, "✓ passed  ok"), strings.Index(out, "✗ failed  nok"))
	assert.Less(t, strings.Index(out, "✗ failed  nok"), strings.Index(out, "! errored broken"))
	assert.Contains(t, out, `unexpected page title: expected "Other", got "Example"`)
	assert.Contains(t, out, "panic: crash")
	assert.Contains(t, out, "1 passed, 1 failed, 1 errored")
}

func TestSummaryColors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	newSummary(&buf, false).print(sampleReport(t))

	assert.Contains(t, buf.String(), "\x1b[32m")
	assert.Contains(t, buf.String(), "\x1b[31m")
}
