package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"go.k6.io/k6/errext"

	"github.com/grafana/browsermatrix/log"
)

// BannerColor is the color of the command banner.
var BannerColor = color.New(color.FgCyan)

const banner = `browsermatrix: cross-environment browser tests, in parallel`

// rootCommand keeps the process-wide dependencies of the commands so that
// tests can replace them.
type rootCommand struct {
	ctx    context.Context
	fs     afero.Fs
	stdout io.Writer
	logger *logrus.Logger

	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	newProvider  providerFactory

	cmd *cobra.Command

	verbose        bool
	noColor        bool
	logLevel       string
	logFormat      string
	categoryFilter string
}

func newRootCommand(ctx context.Context, logger *logrus.Logger) *rootCommand {
	c := &rootCommand{
		ctx:          ctx,
		fs:           afero.NewOsFs(),
		stdout:       colorable.NewColorableStdout(),
		logger:       logger,
		signalNotify: signal.Notify,
		signalStop:   signal.Stop,
		newProvider:  newProvider,
		noColor:      !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}
	c.cmd = &cobra.Command{
		Use:               "browsermatrix",
		Short:             "run browser tests across environments",
		Long:              BannerColor.Sprintf("\n%s", banner),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.PersistentFlags().AddFlagSet(c.rootCmdPersistentFlagSet())
	c.cmd.AddCommand(getRunCmd(c))

	return c
}

func (c *rootCommand) rootCmdPersistentFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&c.noColor, "no-color", c.noColor, "disable colored output")
	flags.StringVar(&c.logLevel, "log-level", "info", "log `level`, one of trace,debug,info,warn,error")
	flags.StringVar(&c.logFormat, "log-format", "", "log output format, text or json")
	flags.StringVar(&c.categoryFilter, "log-category-filter", "", "only log categories matching this `regexp`")
	return flags
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	if !cmd.Flags().Changed("log-level") {
		if lvl, ok := os.LookupEnv("BROWSERMATRIX_LOG_LEVEL"); ok {
			c.logLevel = lvl
		}
	}
	if c.verbose {
		c.logLevel = logrus.DebugLevel.String()
	}
	lvl, err := logrus.ParseLevel(c.logLevel)
	if err != nil {
		return err
	}
	c.logger.SetLevel(lvl)

	switch c.logFormat {
	case "json":
		c.logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		c.logger.SetFormatter(&logrus.TextFormatter{ForceColors: !c.noColor, DisableColors: c.noColor})
	}

	return nil
}

// categorized returns the logger handed to the packages.
func (c *rootCommand) categorized() (*log.Logger, error) {
	var filter *regexp.Regexp
	if c.categoryFilter != "" {
		var err error
		if filter, err = regexp.Compile(c.categoryFilter); err != nil {
			return nil, err
		}
	}
	return log.New(c.logger, filter), nil
}

// Execute runs the root command and exits the process with the code
// attached to the returned error.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := &logrus.Logger{
		Out:       os.Stderr,
		Formatter: new(logrus.TextFormatter),
		Hooks:     make(logrus.LevelHooks),
		Level:     logrus.InfoLevel,
	}

	c := newRootCommand(ctx, logger)
	if err := c.cmd.Execute(); err != nil {
		cancel()
		os.Exit(handleError(logger, err))
	}
}

// handleError logs err with its hint, if any, and returns its exit code.
func handleError(logger logrus.FieldLogger, err error) int {
	fields := logrus.Fields{}
	code := -1

	var ecerr errext.HasExitCode
	if errors.As(err, &ecerr) {
		code = int(ecerr.ExitCode())
	}
	var herr errext.HasHint
	if errors.As(err, &herr) {
		fields["hint"] = herr.Hint()
	}

	logger.WithFields(fields).Error(err)
	return code
}

// notifyInterrupts relays SIGINT and SIGTERM to the returned channel until
// stop is called.
func (c *rootCommand) notifyInterrupts() (<-chan os.Signal, func()) {
	sigC := make(chan os.Signal, 2)
	c.signalNotify(sigC, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	return sigC, func() { c.signalStop(sigC) }
}
