package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/guregu/null.v3"

	"go.k6.io/k6/lib/types"

	"github.com/grafana/browsermatrix/env"
	"github.com/grafana/browsermatrix/executor"
	"github.com/grafana/browsermatrix/sauce"
)

// Session providers.
const (
	providerWebDriver = "webdriver"
	providerCDP       = "cdp"
)

const defaultHub = "ondemand.saucelabs.com:443"

func configFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false
	flags.String("provider", providerWebDriver, "session `provider`, one of webdriver,cdp")
	flags.String("hub", defaultHub, "WebDriver hub `address`")
	flags.StringP("username", "u", "", "grid account user name")
	flags.String("access-key", "", "grid account access key")
	flags.String("cdp-url", "", "DevTools websocket `url` of the browser used by the cdp provider")
	flags.String("rest-url", sauce.DefaultBaseURL, "base `url` of the job status REST API")
	flags.Bool("no-report", false, "don't send job results to the REST API")
	flags.StringP("mode", "m", env.BrowserMode.String(), "execution `mode` of the built-in matrix, one of browser,device")
	flags.StringP("matrix", "f", "", "YAML environment matrix `file`")
	flags.StringP("script", "s", "", "JavaScript test case `file` run instead of the built-in cases")
	flags.Int64P("concurrency", "j", executor.DefaultConcurrency, "maximum number of tasks in flight")
	flags.Duration("task-timeout", executor.DefaultTaskTimeout, "time limit of a single task, session open included")
	flags.Duration("close-timeout", executor.DefaultCloseTimeout, "time limit of reporting and closing a session")
	flags.Int64("session-rate", 0, "maximum new sessions per minute, 0 for unlimited")
	flags.String("report-dir", ".", "`directory` for the JSON report, empty to skip it")
	flags.String("traces-proto", "http", "protocol of the OTLP traces exporter")
	flags.String("traces-endpoint", "", "OTLP traces `endpoint`, empty to disable tracing")
	flags.Bool("traces-insecure", false, "export traces without TLS")
	return flags
}

// Config is the consolidated run configuration.
type Config struct {
	Provider  null.String `json:"provider" envconfig:"provider"`
	Hub       null.String `json:"hub" envconfig:"hub"`
	Username  null.String `json:"username" envconfig:"username"`
	AccessKey null.String `json:"accessKey" envconfig:"access_key"`
	CDPURL    null.String `json:"cdpURL" envconfig:"cdp_url"`
	RESTURL   null.String `json:"restURL" envconfig:"rest_url"`
	NoReport  null.Bool   `json:"noReport" envconfig:"no_report"`

	Mode   null.String `json:"mode" envconfig:"mode"`
	Matrix null.String `json:"matrix" envconfig:"matrix"`
	Script null.String `json:"script" envconfig:"script"`

	Concurrency  null.Int           `json:"concurrency" envconfig:"concurrency"`
	TaskTimeout  types.NullDuration `json:"taskTimeout" envconfig:"task_timeout"`
	CloseTimeout types.NullDuration `json:"closeTimeout" envconfig:"close_timeout"`
	SessionRate  null.Int           `json:"sessionRate" envconfig:"session_rate"`

	ReportDir null.String `json:"reportDir" envconfig:"report_dir"`

	TracesProto    null.String `json:"tracesProto" envconfig:"traces_proto"`
	TracesEndpoint null.String `json:"tracesEndpoint" envconfig:"traces_endpoint"`
	TracesInsecure null.Bool   `json:"tracesInsecure" envconfig:"traces_insecure"`
}

// Gets configuration from CLI flags.
func getConfig(flags *pflag.FlagSet) Config {
	return Config{
		Provider:       getNullString(flags, "provider"),
		Hub:            getNullString(flags, "hub"),
		Username:       getNullString(flags, "username"),
		AccessKey:      getNullString(flags, "access-key"),
		CDPURL:         getNullString(flags, "cdp-url"),
		RESTURL:        getNullString(flags, "rest-url"),
		NoReport:       getNullBool(flags, "no-report"),
		Mode:           getNullString(flags, "mode"),
		Matrix:         getNullString(flags, "matrix"),
		Script:         getNullString(flags, "script"),
		Concurrency:    getNullInt64(flags, "concurrency"),
		TaskTimeout:    getNullDuration(flags, "task-timeout"),
		CloseTimeout:   getNullDuration(flags, "close-timeout"),
		SessionRate:    getNullInt64(flags, "session-rate"),
		ReportDir:      getNullString(flags, "report-dir"),
		TracesProto:    getNullString(flags, "traces-proto"),
		TracesEndpoint: getNullString(flags, "traces-endpoint"),
		TracesInsecure: getNullBool(flags, "traces-insecure"),
	}
}

// Reads configuration variables from the environment.
func readEnvConfig() (conf Config, err error) {
	err = envconfig.Process("browsermatrix", &conf)
	return conf, err
}

func defaultConfig() Config {
	return Config{
		Provider:     null.StringFrom(providerWebDriver),
		Hub:          null.StringFrom(defaultHub),
		RESTURL:      null.StringFrom(sauce.DefaultBaseURL),
		Mode:         null.StringFrom(env.BrowserMode.String()),
		Concurrency:  null.IntFrom(executor.DefaultConcurrency),
		TaskTimeout:  types.NullDurationFrom(executor.DefaultTaskTimeout),
		CloseTimeout: types.NullDurationFrom(executor.DefaultCloseTimeout),
		ReportDir:    null.StringFrom("."),
		TracesProto:  null.StringFrom("http"),
	}
}

// Apply returns c with every valid field of cfg copied over it.
func (c Config) Apply(cfg Config) Config { //nolint:gocyclo
	if cfg.Provider.Valid {
		c.Provider = cfg.Provider
	}
	if cfg.Hub.Valid {
		c.Hub = cfg.Hub
	}
	if cfg.Username.Valid {
		c.Username = cfg.Username
	}
	if cfg.AccessKey.Valid {
		c.AccessKey = cfg.AccessKey
	}
	if cfg.CDPURL.Valid {
		c.CDPURL = cfg.CDPURL
	}
	if cfg.RESTURL.Valid {
		c.RESTURL = cfg.RESTURL
	}
	if cfg.NoReport.Valid {
		c.NoReport = cfg.NoReport
	}
	if cfg.Mode.Valid {
		c.Mode = cfg.Mode
	}
	if cfg.Matrix.Valid {
		c.Matrix = cfg.Matrix
	}
	if cfg.Script.Valid {
		c.Script = cfg.Script
	}
	if cfg.Concurrency.Valid {
		c.Concurrency = cfg.Concurrency
	}
	if cfg.TaskTimeout.Valid {
		c.TaskTimeout = cfg.TaskTimeout
	}
	if cfg.CloseTimeout.Valid {
		c.CloseTimeout = cfg.CloseTimeout
	}
	if cfg.SessionRate.Valid {
		c.SessionRate = cfg.SessionRate
	}
	if cfg.ReportDir.Valid {
		c.ReportDir = cfg.ReportDir
	}
	if cfg.TracesProto.Valid {
		c.TracesProto = cfg.TracesProto
	}
	if cfg.TracesEndpoint.Valid {
		c.TracesEndpoint = cfg.TracesEndpoint
	}
	if cfg.TracesInsecure.Valid {
		c.TracesInsecure = cfg.TracesInsecure
	}
	return c
}

// getConsolidatedConfig merges, from lowest to highest priority, the
// defaults, the environment and the CLI flags.
func getConsolidatedConfig(flags *pflag.FlagSet) (Config, error) {
	envConf, err := readEnvConfig()
	if err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	return defaultConfig().Apply(envConf).Apply(getConfig(flags)), nil
}

// reporting reports whether job results should be sent to the REST API.
func (c Config) reporting() bool {
	return c.Username.String != "" && !c.NoReport.Bool
}

func (c Config) validate() error {
	var errs []error

	switch strings.ToLower(c.Provider.String) {
	case providerWebDriver:
		if c.Hub.String == "" {
			errs = append(errs, errors.New("the webdriver provider requires a hub address"))
		}
	case providerCDP:
		if c.CDPURL.String == "" {
			errs = append(errs, errors.New("the cdp provider requires a DevTools websocket url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider.String))
	}
	if _, err := env.ParseMode(c.Mode.String); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency.Int64 < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency.Int64))
	}
	if c.TaskTimeout.TimeDuration() <= 0 {
		errs = append(errs, errors.New("task timeout must be positive"))
	}
	if c.CloseTimeout.TimeDuration() <= 0 {
		errs = append(errs, errors.New("close timeout must be positive"))
	}
	if c.SessionRate.Int64 < 0 {
		errs = append(errs, fmt.Errorf("session rate can't be negative, got %d", c.SessionRate.Int64))
	}
	if c.reporting() && c.AccessKey.String == "" {
		errs = append(errs, errors.New("reporting job results requires an access key"))
	}

	return errors.Join(errs...)
}

func (c Config) sessionInterval() time.Duration {
	if c.SessionRate.Int64 <= 0 {
		return 0
	}
	return time.Minute / time.Duration(c.SessionRate.Int64)
}
