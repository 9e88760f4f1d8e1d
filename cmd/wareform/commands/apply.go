package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wareform/wareform/pkg/engine"
	"github.com/wareform/wareform/pkg/render"
	"github.com/wareform/wareform/pkg/state"
	"github.com/wareform/wareform/pkg/stores"
	"github.com/wareform/wareform/pkg/telemetry"
)

func newApplyCommand(opts *rootOptions) *cobra.Command {
	var (
		outPath    string
		skipPolicy bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the plan to the recorded state",
		Long: `Compute the plan, gate it on governance policies, write the rendered
statements and record the result in the state file.

wareform never connects to the warehouse: the statements in --out are meant
for an external executor, and the state file records what they establish.

The state is written atomically. If any action is invalid nothing is written.
Each apply is recorded in the history ledger; ledger failures are reported as
warnings and never undo a state write.

Policy violations stop the apply with exit code 2 unless --skip-policy is
given, in which case the skip is recorded in the ledger audit trail.`,
		Example: `  # Apply the default configuration
  wareform apply

  # Apply against a separate state file, ignoring policy results
  wareform apply --state prod/state.json --skip-policy`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApply(cmd, opts, outPath, skipPolicy)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", DefaultSQLPath, "output file for the rendered statements")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "apply even if policies report violations")

	return cmd
}

func runApply(cmd *cobra.Command, opts *rootOptions, outPath string, skipPolicy bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	desired, current, plan, err := opts.planFromState(ctx)
	if err != nil {
		return err
	}

	eng, _, err := opts.loadPolicyEngine(ctx, cmd.Flags().Changed("policy"))
	if err != nil {
		return err
	}
	results := opts.evaluate(ctx, eng, desired, plan)
	if len(results) > 0 {
		if !skipPolicy {
			printResults(out, results)
			return &PolicyViolationError{Results: results}
		}
		printResults(cmd.ErrOrStderr(), results)
		log.Warn().Int("violations", len(results)).Msg("Policy violations skipped")
	}

	sql, err := opts.renderPlan(ctx, plan)
	if err != nil {
		return err
	}
	if err := writeFile(outPath, []byte(sql)); err != nil {
		return err
	}

	if len(plan) == 0 {
		fmt.Fprintln(out, "No changes. State is up to date.")
		return nil
	}

	statements := make([]string, len(plan))
	for i, a := range plan {
		if statements[i], err = render.Action(a); err != nil {
			return err
		}
	}

	ledger := openLedger(ctx, opts.ledgerPath)
	defer ledger.Close()

	hashBefore, err := current.Hash()
	if err != nil {
		return err
	}

	run := &stores.Run{
		Account:         desired.AccountName,
		StatePath:       opts.statePath,
		ActionCount:     len(plan),
		StateHashBefore: hashBefore,
		SQL:             sql,
	}
	ledger.startRun(ctx, run)
	if skipPolicy && len(results) > 0 {
		ledger.audit(ctx, run.ID, "policy.skipped", results)
	}

	applied, err := applyState(ctx, opts, run.ID, plan)
	if err != nil {
		ledger.failRun(ctx, run.ID, err)
		opts.recordApply("failed")
		return err
	}

	hashAfter, err := applied.Hash()
	if err != nil {
		return err
	}
	ledger.completeRun(ctx, run.ID, plan, statements, hashAfter)
	ledger.audit(ctx, run.ID, "state.written", map[string]interface{}{
		"state_path": opts.statePath,
		"hash":       hashAfter,
		"summary":    engine.Summarize(plan),
	})

	if opts.tel != nil {
		opts.tel.Metrics.SetManagedResources(applied.Counts())
	}
	opts.recordApply("completed")

	fmt.Fprintf(out, "Applied %s\n", engine.Summarize(plan))
	fmt.Fprintf(out, "Statements written to %s\n", outPath)
	fmt.Fprintf(out, "State written to %s\n", opts.statePath)
	return nil
}

func applyState(ctx context.Context, opts *rootOptions, runID string, plan []engine.PlanAction) (*state.State, error) {
	op := telemetry.StartOperation(ctx, telemetry.SpanStateApply,
		telemetry.AttrStatePath.String(opts.statePath),
		telemetry.AttrActionCount.Int(len(plan)),
	)
	if runID != "" {
		op.SetAttributes(telemetry.AttrRunID.String(runID))
	}
	applied, err := state.NewLocalBackend(opts.statePath, log.Logger).Apply(plan)
	op.End(err)
	return applied, err
}

func (o *rootOptions) recordApply(status string) {
	if o.tel != nil {
		o.tel.Metrics.RecordApply(status)
	}
}

// applyLedger wraps the history store so that every failure is a warning.
// A nil *applyLedger is valid and records nothing.
type applyLedger struct {
	store *stores.SQLiteStore
	actor string
}

func openLedger(ctx context.Context, path string) *applyLedger {
	logger := log.Logger
	store, err := stores.Open(ctx, stores.Config{Path: path, Logger: &logger})
	if err != nil {
		warnLedger(err, "Ledger unavailable, apply history will not be recorded")
		return nil
	}
	actor := os.Getenv("USER")
	if actor == "" {
		actor = "unknown"
	}
	return &applyLedger{store: store, actor: actor}
}

func (l *applyLedger) Close() {
	if l == nil {
		return
	}
	if err := l.store.Close(); err != nil {
		warnLedger(err, "Failed to close ledger")
	}
}

func (l *applyLedger) startRun(ctx context.Context, run *stores.Run) {
	if l == nil {
		return
	}
	if err := l.store.StartRun(ctx, run); err != nil {
		warnLedger(err, "Failed to record run start")
		run.ID = ""
		return
	}
	log.Logger = log.With().Str("run_id", run.ID).Logger()
	l.audit(ctx, run.ID, "run.started", map[string]interface{}{"account": run.Account, "actions": run.ActionCount})
}

func (l *applyLedger) completeRun(ctx context.Context, runID string, plan []engine.PlanAction, statements []string, hash string) {
	if l == nil || runID == "" {
		return
	}
	if err := l.store.RecordActions(ctx, runID, plan, statements); err != nil {
		warnLedger(err, "Failed to record applied actions")
	}
	if err := l.store.CompleteRun(ctx, runID, hash); err != nil {
		warnLedger(err, "Failed to record run completion")
	}
}

func (l *applyLedger) failRun(ctx context.Context, runID string, cause error) {
	if l == nil || runID == "" {
		return
	}
	if err := l.store.FailRun(ctx, runID, cause); err != nil {
		warnLedger(err, "Failed to record run failure")
	}
}

func (l *applyLedger) audit(ctx context.Context, runID, action string, details interface{}) {
	if l == nil {
		return
	}
	entry := &stores.AuditEntry{Action: action, Actor: l.actor}
	if runID != "" {
		entry.RunID = &runID
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err == nil {
			s := string(data)
			entry.Details = &s
		}
	}
	if err := l.store.CreateAuditEntry(ctx, entry); err != nil {
		warnLedger(err, "Failed to write audit entry")
	}
}

func warnLedger(err error, msg string) {
	log.Warn().
		Err(engine.NewIOError("ledger", err).WithCode(engine.ErrCodeLedger)).
		Msg(msg)
}
