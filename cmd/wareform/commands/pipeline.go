package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
	"github.com/wareform/wareform/pkg/policy"
	"github.com/wareform/wareform/pkg/render"
	"github.com/wareform/wareform/pkg/state"
	"github.com/wareform/wareform/pkg/telemetry"
)

// loadDesired reads, defaults and validates the desired configuration.
func (o *rootOptions) loadDesired(ctx context.Context) (*config.DesiredConfig, error) {
	op := telemetry.StartOperation(ctx, telemetry.SpanConfigLoad, telemetry.AttrConfigPath.String(o.configPath))
	desired, err := config.NewLoader(0).LoadFile(op.Ctx, o.configPath)
	if err == nil {
		op.SetAttributes(telemetry.AttrAccount.String(desired.AccountName))
	}
	op.End(err)
	return desired, err
}

// loadPolicyEngine builds the policy engine. The default policy file is
// optional and its absence means built-ins only; a path given with --policy
// must exist.
func (o *rootOptions) loadPolicyEngine(ctx context.Context, explicit bool) (*policy.Engine, *policy.Config, error) {
	var cfg *policy.Config
	if _, err := os.Stat(o.policyPath); err == nil || explicit {
		loaded, err := policy.NewLoader(log.Logger).LoadFile(o.policyPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	} else {
		log.Debug().Str("path", o.policyPath).Msg("No policy configuration, using built-in policies")
	}

	eng, err := policy.NewEngine(ctx, log.Logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

// diff compares desired against current and records the plan metrics.
func (o *rootOptions) diff(ctx context.Context, current engine.Resources, desired *config.DesiredConfig) []engine.PlanAction {
	op := telemetry.StartOperation(ctx, telemetry.SpanPlanDiff)
	plan := engine.Diff(current, desired)
	op.SetAttributes(telemetry.AttrActionCount.Int(len(plan)))
	if o.tel != nil {
		o.tel.Metrics.RecordPlan(plan)
	}
	op.End(nil)
	return plan
}

// evaluate runs every enabled policy and records one metric per result.
func (o *rootOptions) evaluate(ctx context.Context, eng *policy.Engine, desired *config.DesiredConfig, plan []engine.PlanAction) []policy.Result {
	op := telemetry.StartOperation(ctx, telemetry.SpanPolicyEvaluate)
	results := eng.Evaluate(desired, plan)
	op.SetAttributes(telemetry.AttrViolations.Int(len(results)))
	if o.tel != nil {
		for _, r := range results {
			o.tel.Metrics.RecordViolation(r.PolicyID, string(r.Severity))
		}
	}
	op.End(nil)
	return results
}

func (o *rootOptions) renderPlan(ctx context.Context, plan []engine.PlanAction) (string, error) {
	op := telemetry.StartOperation(ctx, telemetry.SpanRenderPlan, telemetry.AttrActionCount.Int(len(plan)))
	sql, err := render.Plan(plan)
	op.End(err)
	return sql, err
}

// planFromState loads current state and desired config and diffs them.
func (o *rootOptions) planFromState(ctx context.Context) (*config.DesiredConfig, *state.State, []engine.PlanAction, error) {
	desired, err := o.loadDesired(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	current, err := state.NewLocalBackend(o.statePath, log.Logger).Load()
	if err != nil {
		return nil, nil, nil, err
	}
	return desired, current, o.diff(ctx, current.Resources, desired), nil
}

func printResults(w io.Writer, results []policy.Result) {
	for _, r := range results {
		fmt.Fprintln(w, r.String())
	}
}

// writeFile writes data to path, creating parent directories.
func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
