package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wareform/wareform/pkg/stores"
)

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show apply history",
		Long: `List recent apply runs recorded in the ledger, newest first.

With --run the actions and audit entries of a single run are shown.`,
		Example: `  # Last 20 runs
  wareform history

  # Details of one run
  wareform history --run 6f1c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !fileExists(opts.ledgerPath) {
				fmt.Fprintln(out, "No apply history.")
				return nil
			}

			logger := log.Logger
			store, err := stores.Open(ctx, stores.Config{Path: opts.ledgerPath, Logger: &logger})
			if err != nil {
				return err
			}
			defer store.Close()

			if runID != "" {
				return showRun(cmd, store, runID, opts.jsonOutput)
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No apply history.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTARTED\tACCOUNT\tSTATUS\tACTIONS")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
					r.ID, r.StartedAt.Local().Format(time.DateTime), r.Account, r.Status, r.ActionCount)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "show the actions of one run")

	return cmd
}

func showRun(cmd *cobra.Command, store *stores.SQLiteStore, id string, asJSON bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	actions, err := store.ListActions(ctx, id)
	if err != nil {
		return err
	}
	audit, err := store.ListAuditEntries(ctx, &id, 0, 0)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(out, map[string]interface{}{
			"run":     run,
			"actions": actions,
			"audit":   audit,
		})
	}

	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Account:  %s\n", run.Account)
	fmt.Fprintf(out, "State:    %s\n", run.StatePath)
	fmt.Fprintf(out, "Status:   %s\n", run.Status)
	fmt.Fprintf(out, "Started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.CompletedAt != nil {
		fmt.Fprintf(out, "Finished: %s\n", run.CompletedAt.Local().Format(time.DateTime))
	}
	if run.Error != nil {
		fmt.Fprintf(out, "Error:    %s\n", *run.Error)
	}

	fmt.Fprintf(out, "\nActions (%d):\n", len(actions))
	for _, a := range actions {
		fmt.Fprintf(out, "  %3d  %s\n", a.Seq, a.Statement)
	}

	fmt.Fprintf(out, "\nAudit:\n")
	for _, e := range audit {
		fmt.Fprintf(out, "  %s  %-15s %s\n", e.Timestamp.Local().Format(time.DateTime), e.Action, e.Actor)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
