package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/getmockd/restwire/pkg/config"
	"github.com/getmockd/restwire/pkg/logging"
	"github.com/getmockd/restwire/pkg/services"
	"github.com/getmockd/restwire/pkg/tracing"
)

var (
	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// DefaultConfigPatterns are loaded when no --config flag is given.
var DefaultConfigPatterns = []string{
	"config/autoload/*.{yaml,yml,json}",
	"restwire.{yaml,yml,json}",
}

// Setting keys shared by flags, environment variables and viper.
const (
	keyConfig          = "config"
	keyLogLevel        = "log-level"
	keyLogFormat       = "log-format"
	keyLogFile         = "log-file"
	keyJSON            = "json"
	keyTraceExporter   = "trace-exporter"
	keyTraceEndpoint   = "trace-endpoint"
	keyTraceSampleRate = "trace-sample-rate"
)

// app holds the state one command invocation shares with its subcommands.
type app struct {
	v        *viper.Viper
	patterns []string
	log      *slog.Logger
	logFile  io.Closer
	tracer   *tracing.Provider
	stdout   io.Writer
	stderr   io.Writer
}

// NewRootCommand builds the restwire command tree.
func NewRootCommand() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *app) {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "restwire",
		Short: "restwire assembles configuration-driven REST resources",
		Long: `restwire builds REST resources from declarative configuration.

Each resource declared under api-tools.doctrine-connected names an object
manager, optional hydrator, query providers, create filter and listeners.
restwire resolves them and lets you inspect and exercise the result.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringArrayP(keyConfig, "c", nil, "Config file or glob (repeatable, merged in order; default: config/autoload/*.{yaml,yml,json} then restwire.{yaml,yml,json})")
	flags.String(keyLogLevel, "warn", "Log level (debug, info, warn, error)")
	flags.String(keyLogFormat, "text", "Log format (text, json)")
	flags.String(keyLogFile, "", "Also write JSON logs to this file")
	flags.Bool(keyJSON, false, "Output command results in JSON format")
	flags.String(keyTraceExporter, tracing.ExporterNone, "Trace exporter (none, stdout, otlp)")
	flags.String(keyTraceEndpoint, "", "OTLP collector endpoint")
	flags.Float64(keyTraceSampleRate, 1.0, "Trace sampling ratio between 0 and 1")
	for _, key := range []string{keyLogLevel, keyLogFormat, keyLogFile, keyJSON, keyTraceExporter, keyTraceEndpoint, keyTraceSampleRate} {
		_ = a.v.BindPFlag(key, flags.Lookup(key))
	}
	a.v.SetEnvPrefix("RESTWIRE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	// Globs contain commas, so the pattern list bypasses viper's CSV handling.
	_ = a.v.BindEnv(keyConfig)

	root.AddCommand(
		newValidateCmd(a),
		newAssembleCmd(a),
		newFetchCmd(a),
		newConfigCmd(a),
		newTokenCmd(a),
		newVersionCmd(a),
	)
	return root, a
}

func (a *app) init(cmd *cobra.Command) error {
	a.stdout = cmd.OutOrStdout()
	a.stderr = cmd.ErrOrStderr()

	a.patterns, _ = cmd.Flags().GetStringArray(keyConfig)
	if len(a.patterns) == 0 {
		if env := a.v.GetString(keyConfig); env != "" {
			a.patterns = filepath.SplitList(env)
		} else {
			a.patterns = DefaultConfigPatterns
		}
	}

	level := logging.ParseLevel(a.v.GetString(keyLogLevel))
	handler := logging.NewHandler(logging.Config{
		Level:  level,
		Format: logging.ParseFormat(a.v.GetString(keyLogFormat)),
		Output: a.stderr,
	})
	if path := a.v.GetString(keyLogFile); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		handler = logging.NewMultiHandler(handler, logging.NewHandler(logging.Config{
			Level:  level,
			Format: logging.FormatJSON,
			Output: f,
		}))
	}
	a.log = slog.New(handler)

	exporter := a.v.GetString(keyTraceExporter)
	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:      exporter != "" && exporter != tracing.ExporterNone,
		Exporter:     exporter,
		OTLPEndpoint: a.v.GetString(keyTraceEndpoint),
		SampleRate:   a.v.GetFloat64(keyTraceSampleRate),
		ServiceName:  "restwire",
		Output:       a.stderr,
	})
	if err != nil {
		return fmt.Errorf("configuring tracing: %w", err)
	}
	a.tracer = tp
	return nil
}

// shutdown flushes the tracer and closes the log file. Main calls it after
// every run, including failed ones.
func (a *app) shutdown() error {
	var errs []error
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(context.Background()))
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return errors.Join(errs...)
}

func (a *app) jsonOutput() bool {
	return a.v.GetBool(keyJSON)
}

// loadStore loads and merges the configured sources.
func (a *app) loadStore() (*config.Store, error) {
	store, err := config.Load(a.patterns...)
	if err != nil {
		return nil, err
	}
	a.log.Debug("configuration loaded", "patterns", a.patterns, "resources", len(store.ConnectedNames()))
	return store, nil
}

// container loads the configuration and builds the service container. The
// caller must Close it.
func (a *app) container() (*services.Container, error) {
	store, err := a.loadStore()
	if err != nil {
		return nil, err
	}
	return services.Build(store,
		services.WithLogger(a.log),
		services.WithTracer(a.tracer.Tracer()),
	)
}
