package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPoliciesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "List governance policies",
		Long: `List every registered policy in evaluation order with its effective
severity, whether it is enabled and where it comes from (builtin, cel or
rego). Overrides from the policy file are applied.`,
		Example: `  wareform policies
  wareform policies -p governance.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, _, err := opts.loadPolicyEngine(cmd.Context(), cmd.Flags().Changed("policy"))
			if err != nil {
				return err
			}
			infos := eng.Policies()

			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), infos)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSEVERITY\tENABLED\tSOURCE\tDESCRIPTION")
			for _, p := range infos {
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", p.ID, p.Severity, p.Enabled, p.Source, p.Description)
			}
			return w.Flush()
		},
	}
}
