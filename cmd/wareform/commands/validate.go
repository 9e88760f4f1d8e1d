package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
	"github.com/wareform/wareform/pkg/policy"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration against governance policies",
		Long: `Validate the desired configuration and evaluate governance policies.

The configuration is loaded, defaulted and validated, then diffed against an
empty state so that every declared resource is checked. Each policy result is
printed as "[SEVERITY] POLICY_ID: message".

Exit codes:
  0  configuration is valid and no policy reported a result
  1  the configuration or policy files could not be loaded
  2  one or more policy violations were reported

With --watch the configuration and policy files are re-validated on every
change until interrupted.`,
		Example: `  # Validate the default configuration
  wareform validate

  # Validate a CUE configuration with a custom policy file
  wareform validate -c account.cue -p governance.yaml

  # Re-validate on every save
  wareform validate --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			explicit := cmd.Flags().Changed("policy")
			if watch {
				return runValidateWatch(cmd, opts, explicit)
			}
			return runValidate(cmd.Context(), cmd.OutOrStdout(), opts, explicit)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-validate whenever the configuration or policy files change")

	return cmd
}

func runValidate(ctx context.Context, out io.Writer, opts *rootOptions, explicitPolicy bool) error {
	desired, err := opts.loadDesired(ctx)
	if err != nil {
		return err
	}

	eng, _, err := opts.loadPolicyEngine(ctx, explicitPolicy)
	if err != nil {
		return err
	}

	plan := opts.diff(ctx, engine.Resources{}, desired)
	results := opts.evaluate(ctx, eng, desired, plan)

	log.Info().
		Str("account", desired.AccountName).
		Int("resources", desired.Len()).
		Int("violations", len(results)).
		Msg("Validation finished")

	if len(results) > 0 {
		printResults(out, results)
		return &PolicyViolationError{Results: results}
	}

	fmt.Fprintf(out, "Configuration %s is valid (%d resources, %d policies passed)\n",
		opts.configPath, desired.Len(), len(eng.Policies()))
	return nil
}

func runValidateWatch(cmd *cobra.Command, opts *rootOptions, explicitPolicy bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	files := []string{opts.configPath}
	if fileExists(opts.policyPath) || explicitPolicy {
		cfg, err := policy.NewLoader(log.Logger).LoadFile(opts.policyPath)
		if err != nil {
			return err
		}
		files = append(files, cfg.Files(opts.policyPath)...)
	} else {
		files = append(files, opts.policyPath)
	}

	validateOnce := func() {
		if err := runValidate(ctx, out, opts, explicitPolicy); err != nil {
			if ExitCode(err) != ExitViolation {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
	}

	validateOnce()
	return config.NewWatcher(log.Logger, 0).Watch(ctx, files, func(path string) error {
		log.Info().Str("file", path).Msg("Change detected, re-validating")
		validateOnce()
		return nil
	})
}
