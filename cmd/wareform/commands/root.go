package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wareform/wareform/pkg/policy"
	"github.com/wareform/wareform/pkg/state"
	"github.com/wareform/wareform/pkg/stores"
	"github.com/wareform/wareform/pkg/telemetry"
)

// Exit codes returned by the CLI.
const (
	ExitOK        = 0
	ExitError     = 1
	ExitViolation = 2
)

// DefaultConfigFile is the desired configuration read when --config is not set.
const DefaultConfigFile = "wareform.yaml"

// EnvState overrides the default state file path.
const EnvState = "WAREFORM_STATE"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath    string
	policyPath    string
	statePath     string
	ledgerPath    string
	logLevel      string
	logFormat     string
	traceExporter string
	metricsFile   string
	jsonOutput    bool

	version string
	tel     *telemetry.Telemetry
}

// PolicyViolationError is returned when governance policies report results.
// Its exit code is ExitViolation.
type PolicyViolationError struct {
	Results []policy.Result
}

func (e *PolicyViolationError) Error() string {
	noun := "violations"
	if len(e.Results) == 1 {
		noun = "violation"
	}
	return fmt.Sprintf("%d policy %s (highest severity %s)", len(e.Results), noun, policy.HighestSeverity(e.Results))
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var pv *PolicyViolationError
	if errors.As(err, &pv) {
		return ExitViolation
	}
	return ExitError
}

// Execute runs the root command with os.Args.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	return execute(ctx, os.Args[1:], os.Stdout, os.Stderr, fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate))
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer, version string) error {
	opts := &rootOptions{version: version}
	rootCmd := newRootCommand(opts)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if opts.tel != nil {
		if shutdownErr := opts.tel.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			log.Warn().Err(shutdownErr).Msg("Telemetry shutdown failed")
		}
	}
	return err
}

func newRootCommand(opts *rootOptions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wareform",
		Short: "wareform - declarative warehouse administration",
		Long: `wareform reconciles a declarative description of warehouse administrative
resources against the last applied state.

It computes a deterministic plan of actions, checks the desired configuration
against governance policies, renders the plan as administration statements and
records the applied result in a versioned state file.

Features:
  - Desired configuration in YAML, JSON, CUE or Starlark
  - Built-in governance policies plus CEL and Rego custom policies
  - Deterministic plans with a lossless JSON payload
  - Atomic, versioned local state with an apply-history ledger`,
		Version:       opts.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.setupTelemetry(cmd)
		},
	}

	defaultState := state.DefaultPath
	if v := os.Getenv(EnvState); v != "" {
		defaultState = v
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", DefaultConfigFile, "desired configuration file (.yaml, .json, .cue, .star)")
	flags.StringVarP(&opts.policyPath, "policy", "p", policy.DefaultConfigFile, "policy configuration file")
	flags.StringVar(&opts.statePath, "state", defaultState, "state file path (env "+EnvState+")")
	flags.StringVar(&opts.ledgerPath, "ledger", stores.DefaultPath, "apply-history ledger database")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (env "+telemetry.EnvLogLevel+")")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: console or json (env "+telemetry.EnvLogFormat+")")
	flags.StringVar(&opts.traceExporter, "trace-exporter", "", "trace exporter: none, stdout or otlp (env "+telemetry.EnvTraceExporter+")")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile (env "+telemetry.EnvMetricsFile+")")
	flags.BoolVar(&opts.jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand(opts))
	rootCmd.AddCommand(newValidateCommand(opts))
	rootCmd.AddCommand(newPlanCommand(opts))
	rootCmd.AddCommand(newRenderCommand(opts))
	rootCmd.AddCommand(newApplyCommand(opts))
	rootCmd.AddCommand(newStateCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newPoliciesCommand(opts))

	return rootCmd
}

// setupTelemetry builds the telemetry bundle from defaults, then the
// environment, then explicitly set flags.
func (o *rootOptions) setupTelemetry(cmd *cobra.Command) error {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = o.version
	cfg.ApplyEnv(os.LookupEnv)
	cfg.Logging.Writer = cmd.ErrOrStderr()

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	if o.traceExporter != "" {
		cfg.Tracing.Exporter = o.traceExporter
	}
	if o.metricsFile != "" {
		cfg.Metrics.TextfilePath = o.metricsFile
	}
	cfg.Tracing.Writer = cmd.ErrOrStderr()

	tel, err := telemetry.NewTelemetry(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	o.tel = tel
	log.Logger = tel.Logger.Zerolog()

	cmd.SetContext(tel.WithContext(cmd.Context()))
	return nil
}
