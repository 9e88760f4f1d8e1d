package commands

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wareform/wareform/pkg/engine"
)

func newPlanCommand(opts *rootOptions) *cobra.Command {
	var (
		explain bool
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute the change plan",
		Long: `Compare the desired configuration with the recorded state and print the
plan payload as JSON.

The payload is a list of {action, resource_type, name, details} records in
execution order. It is the input accepted by apply and by the state store.

With --explain each action is followed by its attribute-level changes
against the recorded state. When the payload goes to stdout the explanation
is written to stderr.`,
		Example: `  # Print the plan payload
  wareform plan

  # Save the payload and explain each change
  wareform plan --out out/plan.json --explain`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, opts, explain, outPath)
		},
	}

	cmd.Flags().BoolVar(&explain, "explain", false, "show attribute-level changes for each action")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the payload to a file instead of stdout")

	return cmd
}

func runPlan(cmd *cobra.Command, opts *rootOptions, explain bool, outPath string) error {
	ctx := cmd.Context()

	_, current, plan, err := opts.planFromState(ctx)
	if err != nil {
		return err
	}

	var payload bytes.Buffer
	if err := engine.EncodePlan(&payload, plan); err != nil {
		return err
	}

	summary := engine.Summarize(plan)
	log.Info().Int("actions", len(plan)).Str("summary", summary.String()).Msg("Plan computed")

	info := cmd.OutOrStdout()
	if outPath == "" {
		if _, err := cmd.OutOrStdout().Write(payload.Bytes()); err != nil {
			return err
		}
		info = cmd.ErrOrStderr()
	} else {
		if err := writeFile(outPath, payload.Bytes()); err != nil {
			return err
		}
		fmt.Fprintf(info, "Plan written to %s\n", outPath)
	}

	if explain {
		if err := explainPlan(info, current.Resources, plan); err != nil {
			return err
		}
	}

	fmt.Fprintf(info, "Plan: %s\n", summary)
	return nil
}

func explainPlan(w io.Writer, current engine.Resources, plan []engine.PlanAction) error {
	for _, a := range plan {
		fmt.Fprintf(w, "%s %s %s\n", a.Action, a.Kind, a.Key)
		changes, err := engine.ExplainAction(current, a)
		if err != nil {
			return err
		}
		for _, c := range changes {
			fmt.Fprintf(w, "    %s\n", c)
		}
	}
	return nil
}
