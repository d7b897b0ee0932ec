package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.k6.io/k6/errext"
	"go.k6.io/k6/errext/exitcodes"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/log"
	"github.com/grafana/browsermatrix/session"
	"github.com/grafana/browsermatrix/testutils"
)

const twoBrowsers = `
mode: browser
environments:
  - platformName: Windows 10
    browserName: chrome
  - platformName: Linux
    browserName: firefox
`

const titleScript = `
session.navigate("http://example.test/");
var title = session.title();
if (title !== "Example") {
  fail("unexpected title " + title);
}
`

type testRoot struct {
	*rootCommand

	out      *bytes.Buffer
	provider *testutils.Provider
	signals  chan<- os.Signal
}

func newTestRoot(t *testing.T, provider *testutils.Provider) *testRoot {
	t.Helper()

	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tr := &testRoot{
		rootCommand: newRootCommand(ctx, logger),
		out:         &bytes.Buffer{},
		provider:    provider,
	}
	tr.fs = afero.NewMemMapFs()
	tr.stdout = tr.out
	tr.signalNotify = func(c chan<- os.Signal, _ ...os.Signal) { tr.signals = c }
	tr.signalStop = func(chan<- os.Signal) {}
	tr.newProvider = func(context.Context, Config, *log.Logger) (api.Provider, func() error, error) {
		return provider, func() error { return nil }, nil
	}

	require.NoError(t, afero.WriteFile(tr.fs, "matrix.yaml", []byte(twoBrowsers), 0o600))
	require.NoError(t, afero.WriteFile(tr.fs, "title.js", []byte(titleScript), 0o600))

	return tr
}

func (tr *testRoot) execute(args ...string) error {
	tr.cmd.SetArgs(append([]string{"run", "--no-color", "-f", "matrix.yaml", "-s", "title.js"}, args...))
	return tr.cmd.Execute()
}

func exitCode(t *testing.T, err error) errext.ExitCode {
	t.Helper()

	var ecerr errext.HasExitCode
	require.True(t, errors.As(err, &ecerr), "error %v has no exit code", err)
	return ecerr.ExitCode()
}

func titleByBrowser(titles map[string]string) func(*testutils.Session) string {
	return func(s *testutils.Session) string {
		return titles[s.Caps()[env.BrowserName]]
	}
}

func TestRunAllPassed(t *testing.T) {
	t.Parallel()

	p := &testutils.Provider{Title: "Example"}
	tr := newTestRoot(t, p)
	dir := t.TempDir()

	require.NoError(t, tr.execute("--report-dir", dir))

	assert.Equal(t, 2, p.Opened())
	assert.Equal(t, 2, p.Closed())
	assert.Contains(t, tr.out.String(), "2 passed, 0 failed, 0 errored")
	assert.Contains(t, tr.out.String(), "✓ passed  title on platformName=Windows 10,browserName=chrome")

	reports, err := filepath.Glob(filepath.Join(dir, "browsermatrix-*.json"))
	require.NoError(t, err)
	require.Len(t, reports, 1)
	data, err := os.ReadFile(reports[0]) //nolint:gosec
	require.NoError(t, err)
	assert.Contains(t, string(data), `"passed":2`)
}

func TestRunFailedTasksExitCode(t *testing.T) {
	t.Parallel()

	p := &testutils.Provider{TitleFunc: titleByBrowser(map[string]string{"chrome": "Example", "firefox": "Other"})}
	tr := newTestRoot(t, p)

	err := tr.execute("--report-dir", "")
	require.Error(t, err)
	assert.Equal(t, tasksFailed, exitCode(t, err))
	assert.Contains(t, tr.out.String(), "1 passed, 1 failed, 0 errored")
	assert.Contains(t, tr.out.String(), "unexpected title Other")
}

func TestRunReportsJobResults(t *testing.T) {
	t.Parallel()

	type put struct{ path, body string }
	var (
		mu   sync.Mutex
		puts []put
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		puts = append(puts, put{r.URL.Path, string(body)})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	p := &testutils.Provider{TitleFunc: titleByBrowser(map[string]string{"chrome": "Example"})}
	tr := newTestRoot(t, p)

	err := tr.execute("--report-dir", "", "-u", "jdoe", "--access-key", "k", "--rest-url", srv.URL)
	assert.Equal(t, tasksFailed, exitCode(t, err))

	chrome := p.SessionFor(env.BrowserName, "chrome")
	firefox := p.SessionFor(env.BrowserName, "firefox")
	require.NotNil(t, chrome)
	require.NotNil(t, firefox)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []put{
		{"/rest/v1/jdoe/jobs/" + chrome.ID(), `{"passed":true}`},
		{"/rest/v1/jdoe/jobs/" + firefox.ID(), `{"passed":false}`},
	}, puts)
}

func TestRunSessionCapabilities(t *testing.T) {
	t.Parallel()

	p := &testutils.Provider{Title: "Example"}
	tr := newTestRoot(t, p)

	require.NoError(t, tr.execute("--report-dir", ""))

	s := p.SessionFor(env.BrowserName, "chrome")
	require.NotNil(t, s)
	assert.Equal(t, "title test - Windows 10: chrome", s.Caps()["name"])
	assert.NotEmpty(t, s.Caps()["build"], "run id")
}

func TestRunInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{name: "bad_concurrency", args: []string{"-j", "0"}},
		{name: "unknown_provider", args: []string{"--provider", "telnet"}},
		{name: "missing_matrix", args: []string{"-f", "nope.yaml"}},
		{name: "missing_script", args: []string{"-s", "nope.js"}},
		{name: "bad_category_filter", args: []string{"--log-category-filter", "("}},
		{name: "bad_traces_proto", args: []string{"--traces-endpoint", "localhost:4318", "--traces-proto", "grpc"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &testutils.Provider{Title: "Example"}
			tr := newTestRoot(t, p)

			err := tr.execute(tt.args...)
			require.Error(t, err)
			assert.Equal(t, exitcodes.InvalidConfig, exitCode(t, err))
			assert.Zero(t, p.Opened())
		})
	}
}

func TestRunInterrupted(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 2)
	p := &testutils.Provider{
		NavigateFunc: func(ctx context.Context, _ *testutils.Session, _ string) error {
			started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	tr := newTestRoot(t, p)

	go func() {
		<-started
		<-started
		tr.signals <- os.Interrupt
	}()

	err := tr.execute("--report-dir", "", "-j", "2")
	require.Error(t, err)
	assert.Equal(t, exitcodes.ExternalAbort, exitCode(t, err))
	assert.Equal(t, 2, p.Closed())
	assert.Contains(t, tr.out.String(), "0 passed, 0 failed, 2 errored")
}

func TestHandleInterruptsReturnsWhenRunEnds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		signals  int
		canceled int32
	}{
		{name: "no_signal", signals: 0, canceled: 0},
		{name: "after_first_signal", signals: 1, canceled: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var canceled int32
			sigC := make(chan os.Signal, 1)
			runDone := make(chan struct{})
			returned := make(chan struct{})
			go func() {
				defer close(returned)
				handleInterrupts(runDone, sigC, func() { atomic.AddInt32(&canceled, 1) },
					session.NewRegister(), log.NullLogger())
			}()

			for i := 0; i < tt.signals; i++ {
				sigC <- os.Interrupt
			}
			require.Eventually(t, func() bool {
				return atomic.LoadInt32(&canceled) == tt.canceled
			}, 5*time.Second, 5*time.Millisecond)
			close(runDone)

			select {
			case <-returned:
			case <-time.After(5 * time.Second):
				t.Fatal("handleInterrupts kept running after the run ended")
			}
			assert.Equal(t, tt.canceled, atomic.LoadInt32(&canceled))
		})
	}
}

func TestHandleError(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	err := errext.WithHint(errext.WithExitCodeIfNone(errors.New("boom"), exitcodes.InvalidConfig), "check the flags")

	assert.Equal(t, int(exitcodes.InvalidConfig), handleError(logger, err))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "check the flags", hook.LastEntry().Data["hint"])

	assert.Equal(t, -1, handleError(logger, errors.New("plain")))
}

func TestRunTaskTimeout(t *testing.T) {
	t.Parallel()

	p := &testutils.Provider{Delay: time.Minute}
	tr := newTestRoot(t, p)

	err := tr.execute("--report-dir", "", "--task-timeout", "50ms")
	assert.Equal(t, tasksFailed, exitCode(t, err))
	assert.Contains(t, tr.out.String(), "timed out after 50ms")
	assert.Equal(t, 2, p.Closed())
}
