package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wareform/wareform/pkg/engine"
)

type project struct {
	dir string
}

func newProject(t *testing.T) *project {
	t.Helper()
	p := &project{dir: t.TempDir()}
	_, _, err := run(t, "init", p.dir)
	require.NoError(t, err)
	return p
}

func (p *project) path(elem ...string) string {
	return filepath.Join(append([]string{p.dir}, elem...)...)
}

func (p *project) flags() []string {
	return []string{
		"--config", p.path("wareform.yaml"),
		"--policy", p.path("policies.yaml"),
		"--state", p.path("state", "state.json"),
		"--ledger", p.path("state", "ledger.db"),
	}
}

func (p *project) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return run(t, append(args, p.flags()...)...)
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := execute(context.Background(), args, &stdout, &stderr, "test")
	return stdout.String(), stderr.String(), err
}

func TestInit(t *testing.T) {
	p := newProject(t)

	for _, f := range []string{"wareform.yaml", "policies.yaml", filepath.Join("policies", "no_ownership.rego")} {
		assert.FileExists(t, p.path(f))
	}
	assert.DirExists(t, p.path("state"))

	_, _, err := run(t, "init", p.dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = run(t, "init", p.dir, "--force")
	assert.NoError(t, err)
}

func TestEndToEnd(t *testing.T) {
	p := newProject(t)

	out, _, err := p.run(t, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, stderr, err := p.run(t, "plan")
	require.NoError(t, err)
	plan, err := engine.DecodePlan(strings.NewReader(out))
	require.NoError(t, err)
	assert.Len(t, plan, 14)
	assert.Contains(t, stderr, "Plan: 14 actions")

	sqlPath := p.path("out", "plan.sql")
	_, _, err = p.run(t, "render", "--out", sqlPath)
	require.NoError(t, err)
	sql, err := os.ReadFile(sqlPath)
	require.NoError(t, err)
	assert.Contains(t, string(sql), "CREATE WAREHOUSE WH_INGEST WITH WAREHOUSE_SIZE = MEDIUM")
	assert.Equal(t, 14, strings.Count(string(sql), "\n"))

	metricsPath := p.path("metrics", "wareform.prom")
	out, _, err = p.run(t, "apply", "--out", sqlPath, "--metrics-file", metricsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 14 actions")
	assert.FileExists(t, p.path("state", "state.json"))

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `wareform_applies_total{status="completed"} 1`)
	assert.Contains(t, string(metrics), `wareform_managed_resources{resource_kind="warehouse"} 2`)

	out, stderr, err = p.run(t, "plan")
	require.NoError(t, err)
	plan, err = engine.DecodePlan(strings.NewReader(out))
	require.NoError(t, err)
	assert.Empty(t, plan)
	assert.Contains(t, stderr, "Plan: no changes")

	out, _, err = p.run(t, "apply", "--out", sqlPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No changes")
	sql, err = os.ReadFile(sqlPath)
	require.NoError(t, err)
	assert.Equal(t, "-- No changes.\n", string(sql))

	out, _, err = p.run(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "acme")
	assert.Contains(t, out, "completed")
	assert.Equal(t, 2, strings.Count(out, "\n"), "one header and one run")

	out, _, err = p.run(t, "state", "show", "--counts")
	require.NoError(t, err)
	assert.Contains(t, out, "total")
	assert.Contains(t, out, "14")

	out, _, err = p.run(t, "policies")
	require.NoError(t, err)
	for _, id := range []string{"WAREHOUSE_AUTO_SUSPEND", "SHARES_SECURE_VIEWS", "WAREHOUSE_CLUSTER_LIMIT", "NO_OWNERSHIP"} {
		assert.Contains(t, out, id)
	}
}

func TestPlan_Explain(t *testing.T) {
	p := newProject(t)

	outPath := p.path("out", "plan.json")
	out, _, err := p.run(t, "plan", "--explain", "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Plan written to")
	assert.Contains(t, out, "CREATE warehouse WH_INGEST")
	assert.Contains(t, out, "+ /auto_suspend = 300")
	assert.FileExists(t, outPath)
}

const violatingConfig = `account_name: acme
warehouses:
  - name: WH_BIG
    size: XLARGE
    auto_suspend: 600
    max_cluster_count: 1
grants:
  - role: ANALYST
    privilege: OWNERSHIP
    on_type: DATABASE
    on_name: RAW
`

func TestValidate_Violations(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.WriteFile(p.path("wareform.yaml"), []byte(violatingConfig), 0o644))

	out, _, err := p.run(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitViolation, ExitCode(err))

	var pv *PolicyViolationError
	require.True(t, errors.As(err, &pv))
	assert.Len(t, pv.Results, 3)

	assert.Contains(t, out, "[HIGH] WAREHOUSE_AUTO_SUSPEND: Warehouse WH_BIG auto_suspend exceeds 300s")
	assert.Contains(t, out, "WAREHOUSE_RESOURCE_MONITOR: Warehouse WH_BIG lacks resource monitor")
	assert.Contains(t, out, "NO_OWNERSHIP: Role ANALYST must not receive OWNERSHIP on DATABASE RAW")
}

func TestApply_BlockedByPolicy(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.WriteFile(p.path("wareform.yaml"), []byte(violatingConfig), 0o644))

	_, _, err := p.run(t, "apply", "--out", p.path("out", "plan.sql"))
	assert.Equal(t, ExitViolation, ExitCode(err))
	assert.NoFileExists(t, p.path("state", "state.json"))

	out, _, err := p.run(t, "apply", "--out", p.path("out", "plan.sql"), "--skip-policy")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 2 actions")
	assert.FileExists(t, p.path("state", "state.json"))
}

func TestValidate_ConfigError(t *testing.T) {
	p := newProject(t)
	require.NoError(t, os.WriteFile(p.path("wareform.yaml"), []byte("account_name: acme\nwarehouses:\n  - name: WH\n    size: HUGE\n"), 0o644))

	_, _, err := p.run(t, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitError, ExitCode(err))
	assert.True(t, engine.IsConfigError(err))
}

func TestPolicies_MissingExplicitFile(t *testing.T) {
	_, _, err := run(t, "policies", "--policy", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy config not found")
}

func TestHistory_NoLedger(t *testing.T) {
	out, _, err := run(t, "history", "--ledger", filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	assert.Equal(t, "No apply history.\n", out)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitViolation, ExitCode(&PolicyViolationError{}))
}
