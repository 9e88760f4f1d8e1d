package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wareform/wareform/pkg/engine"
	"github.com/wareform/wareform/pkg/state"
)

func newStateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect the recorded state",
	}
	cmd.AddCommand(newStateShowCommand(opts))
	return cmd
}

func newStateShowCommand(opts *rootOptions) *cobra.Command {
	var counts bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the recorded state",
		Long: `Print the state document at --state. A missing state file is shown as an
empty state. With --counts only the number of resources per kind is printed.`,
		Example: `  wareform state show
  wareform state show --counts --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := state.NewLocalBackend(opts.statePath, log.Logger).Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !counts {
				data, err := s.Marshal()
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}

			byKind := s.Counts()
			if opts.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(byKind)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tCOUNT")
			for _, kind := range engine.AllResourceKinds() {
				if n := byKind[kind]; n > 0 {
					fmt.Fprintf(w, "%s\t%d\n", kind, n)
				}
			}
			fmt.Fprintf(w, "total\t%d\n", s.Resources.Count())
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&counts, "counts", false, "print resource counts per kind")

	return cmd
}
