package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"go.k6.io/k6/errext"
	"go.k6.io/k6/errext/exitcodes"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/cdp"
	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/executor"
	"github.com/grafana/browsermatrix/log"
	"github.com/grafana/browsermatrix/otel"
	"github.com/grafana/browsermatrix/sauce"
	"github.com/grafana/browsermatrix/session"
	"github.com/grafana/browsermatrix/storage"
	"github.com/grafana/browsermatrix/testcase"
	"github.com/grafana/browsermatrix/webdriver"
)

// tasksFailed is the exit code of a run in which a task did not pass.
const tasksFailed errext.ExitCode = 97

const forceCloseTimeout = 10 * time.Second

var (
	errTasksFailed = errors.New("some tasks did not pass")
	errInterrupted = errors.New("run interrupted")
)

// providerFactory returns the session provider for conf and a function
// releasing it.
type providerFactory func(ctx context.Context, conf Config, logger *log.Logger) (api.Provider, func() error, error)

func getRunCmd(root *rootCommand) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run test cases across an environment matrix",
		Long: `Run test cases across an environment matrix.

Every test case runs once in every environment, each in its own remote
session. Job results are sent to the REST API when a user name is set.`,
		Example: `
  # Run the built-in cases on the built-in desktop browser matrix.
  BROWSERMATRIX_USERNAME=jdoe BROWSERMATRIX_ACCESS_KEY=... browsermatrix run

  # Run a scripted case on the environments listed in matrix.yaml, 8 at a time.
  browsermatrix run -f matrix.yaml -s search.js -j 8

  # Drive a local Chromium over the DevTools protocol.
  browsermatrix run --provider cdp --cdp-url ws://127.0.0.1:9222/devtools/browser/<id>`[1:],
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.run(cmd.Flags())
		},
	}
	runCmd.Flags().SortFlags = false
	runCmd.Flags().AddFlagSet(configFlagSet())

	return runCmd
}

func invalidConfig(err error) error {
	return errext.WithExitCodeIfNone(err, exitcodes.InvalidConfig)
}

func (c *rootCommand) run(flags *pflag.FlagSet) error {
	conf, err := getConsolidatedConfig(flags)
	if err != nil {
		return invalidConfig(err)
	}
	if err := conf.validate(); err != nil {
		return invalidConfig(fmt.Errorf("invalid configuration: %w", err))
	}
	matrix, err := loadMatrix(c.fs, conf)
	if err != nil {
		return invalidConfig(err)
	}
	cases, err := loadCases(c.fs, conf)
	if err != nil {
		return invalidConfig(err)
	}

	logger, err := c.categorized()
	if err != nil {
		return invalidConfig(fmt.Errorf("log category filter: %w", err))
	}
	runID := uuid.New().String()
	logger = logger.WithField("run", runID)
	if err := matrix.ValidateAll(); err != nil {
		logger.Warnf("run", "%v", err)
	}

	ctx, cancel := context.WithCancel(session.WithRunID(c.ctx, runID))
	defer cancel()

	provider, release, err := c.newProvider(ctx, conf, logger)
	if err != nil {
		return fmt.Errorf("creating %s session provider: %w", conf.Provider.String, err)
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warnf("run", "releasing session provider: %v", err)
		}
	}()

	reporter, err := newReporter(conf, logger)
	if err != nil {
		return invalidConfig(err)
	}

	tp, err := newTraceProvider(ctx, conf)
	if err != nil {
		return invalidConfig(err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), forceCloseTimeout)
		defer scancel()
		if err := tp.Shutdown(sctx); err != nil {
			logger.Warnf("run", "flushing traces: %v", err)
		}
	}()

	register := session.NewRegister()
	opts := executor.Options{
		Concurrency:  int(conf.Concurrency.Int64),
		TaskTimeout:  conf.TaskTimeout.TimeDuration(),
		CloseTimeout: conf.CloseTimeout.TimeDuration(),
		Register:     register,
		Tracer: otel.NewTracer(tp, map[string]string{
			"run.id":   runID,
			"provider": conf.Provider.String,
		}),
	}
	if iv := conf.sessionInterval(); iv > 0 {
		opts.SessionRate = rate.NewLimiter(rate.Every(iv), 1)
	}
	exec, err := executor.New(provider, reporter, opts, logger)
	if err != nil {
		return invalidConfig(err)
	}

	sigC, stopSignals := c.notifyInterrupts()
	defer stopSignals()
	runDone := make(chan struct{})
	defer close(runDone)
	go handleInterrupts(runDone, sigC, cancel, register, logger)

	logger.Infof("run", "running %d case(s) on %d %s environment(s) with the %s provider",
		len(cases), matrix.Len(), matrix.Mode(), conf.Provider.String)
	report, err := exec.Run(ctx, matrix, cases)
	if err != nil {
		return invalidConfig(err)
	}

	if dir := conf.ReportDir.String; dir != "" {
		path := storage.ReportPath(dir, runID)
		if err := report.Save(context.Background(), &storage.LocalFilePersister{}, path); err != nil {
			logger.Errorf("run", "%v", err)
		} else {
			logger.Infof("run", "report written to %q", path)
		}
	}
	newSummary(c.stdout, c.noColor).print(report)

	switch {
	case ctx.Err() != nil:
		return errext.WithExitCodeIfNone(errInterrupted, exitcodes.ExternalAbort)
	case report.Failed():
		return errext.WithExitCodeIfNone(errTasksFailed, tasksFailed)
	}
	return nil
}

// handleInterrupts cancels the run on the first signal. On the second it
// closes every open session without waiting for the tasks. It returns once
// runDone is closed.
func handleInterrupts(
	runDone <-chan struct{}, sigC <-chan os.Signal, cancel func(), register *session.Register, logger *log.Logger,
) {
	select {
	case sig := <-sigC:
		logger.Warnf("run", "received %s, stopping the run; send it again to close all sessions now", sig)
		cancel()
	case <-runDone:
		return
	}

	select {
	case sig := <-sigC:
		logger.Warnf("run", "received %s, closing %d open session(s)", sig, register.Len())
		fctx, fcancel := context.WithTimeout(context.Background(), forceCloseTimeout)
		defer fcancel()
		if err := register.ForceClose(fctx); err != nil {
			logger.Errorf("run", "%v", err)
		}
	case <-runDone:
	}
}

func newProvider(ctx context.Context, conf Config, logger *log.Logger) (api.Provider, func() error, error) {
	switch strings.ToLower(conf.Provider.String) {
	case providerCDP:
		client, err := cdp.Dial(ctx, conf.CDPURL.String, logger)
		if err != nil {
			return nil, nil, err
		}
		return cdp.NewProvider(client, logger), client.Close, nil
	default:
		p, err := webdriver.NewProvider(webdriver.Config{
			Hub:       conf.Hub.String,
			Username:  conf.Username.String,
			AccessKey: conf.AccessKey.String,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { return nil }, nil
	}
}

func newReporter(conf Config, logger *log.Logger) (api.Reporter, error) {
	if !conf.reporting() {
		return api.NopReporter, nil
	}
	return sauce.NewClient(sauce.Config{
		BaseURL:   conf.RESTURL.String,
		Username:  conf.Username.String,
		AccessKey: conf.AccessKey.String,
	}, logger)
}

func newTraceProvider(ctx context.Context, conf Config) (otel.TraceProvider, error) {
	if conf.TracesEndpoint.String == "" {
		return otel.NewNoopTraceProvider(), nil
	}
	return otel.NewTraceProvider(ctx, conf.TracesProto.String, conf.TracesEndpoint.String, conf.TracesInsecure.Bool)
}

func loadMatrix(fs afero.Fs, conf Config) (*env.Matrix, error) {
	if path := conf.Matrix.String; path != "" {
		return env.LoadMatrixFile(fs, path)
	}

	mode, err := env.ParseMode(conf.Mode.String)
	if err != nil {
		return nil, err
	}
	if mode == env.DeviceMode {
		return env.DefaultDeviceMatrix(), nil
	}
	return env.DefaultBrowserMatrix(), nil
}

func loadCases(fs afero.Fs, conf Config) ([]testcase.Case, error) {
	path := conf.Script.String
	if path == "" {
		return testcase.DefaultCases(), nil
	}

	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	return []testcase.Case{testcase.Script{CaseName: name, Source: string(src)}}, nil
}
