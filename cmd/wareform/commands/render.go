package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// DefaultSQLPath is where render and apply write statements by default.
const DefaultSQLPath = "out/plan.sql"

func newRenderCommand(opts *rootOptions) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the plan as administration statements",
		Long: `Compute the plan and render it as one statement per action.

Statements are written in plan order to --out. An empty plan renders a single
"-- No changes." comment. Use --out - to print to stdout.`,
		Example: `  # Write out/plan.sql
  wareform render

  # Print statements for a different state file
  wareform render --state prod/state.json --out -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			_, _, plan, err := opts.planFromState(ctx)
			if err != nil {
				return err
			}

			sql, err := opts.renderPlan(ctx, plan)
			if err != nil {
				return err
			}

			if outPath == "-" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), sql)
				return err
			}
			if err := writeFile(outPath, []byte(sql)); err != nil {
				return err
			}

			log.Info().Str("file", outPath).Int("statements", len(plan)).Msg("Statements rendered")
			fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d statements to %s\n", len(plan), outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", DefaultSQLPath, "output file for the rendered statements")

	return cmd
}
