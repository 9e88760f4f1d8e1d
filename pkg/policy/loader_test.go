package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const ownershipRego = `# Roles must never receive OWNERSHIP grants.
package wareform.grants

import rego.v1

deny contains msg if {
	some g in input.config.grants
	g.privilege == "OWNERSHIP"
	msg := sprintf("Role %s must not receive OWNERSHIP", [g.role])
}
`

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "rego/no-ownership.rego", ownershipRego)
	writePolicyFile(t, dir, "rego/no-ownership_test.rego", "package wareform.grants_test\n")
	writePolicyFile(t, dir, "rego/README.md", "not a policy")
	path := writePolicyFile(t, dir, "policies.yaml", `
policies:
  WAREHOUSE_AUTO_SUSPEND:
    severity: MEDIUM
    allowlist:
      - "Warehouse WH_BIG auto_suspend exceeds 300s"
  PII_MASKING:
    enabled: false
custom_rules:
  - id: FAST_SUSPEND
    severity: LOW
    kind: warehouse
    expr: "resource.auto_suspend <= 120.0"
    message: "Warehouse {key} suspends too late"
rego:
  - rego
`)

	cfg, err := NewLoader(testLogger()).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, SeverityMedium, cfg.Policies[WarehouseAutoSuspend].Severity)
	assert.Equal(t, []string{"Warehouse WH_BIG auto_suspend exceeds 300s"}, cfg.Policies[WarehouseAutoSuspend].Allowlist)
	assert.False(t, cfg.Policies[PIIMasking].IsEnabled())
	assert.True(t, cfg.Policies[WarehouseAutoSuspend].IsEnabled())

	require.Len(t, cfg.CustomRules, 1)
	assert.Equal(t, "FAST_SUSPEND", cfg.CustomRules[0].ID)

	require.Len(t, cfg.RegoModules, 1)
	assert.Equal(t, "NO_OWNERSHIP", cfg.RegoModules[0].ID)
	assert.Equal(t, "Roles must never receive OWNERSHIP grants.", cfg.RegoModules[0].Description)
	assert.Equal(t, []string{path, cfg.RegoModules[0].Path}, cfg.Files(path))
}

func TestLoader_MissingFile(t *testing.T) {
	_, err := NewLoader(testLogger()).LoadFile(filepath.Join(t.TempDir(), "policies.yaml"))
	require.Error(t, err)
	assert.True(t, engine.IsConfigError(err))
	assert.Contains(t, err.Error(), "policy config not found")
}

func TestLoader_EmptyFile(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "policies.yaml", "")

	cfg, err := NewLoader(testLogger()).LoadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Policies)
	assert.Empty(t, cfg.CustomRules)
}

func TestLoader_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not a mapping", "- a\n- b\n"},
		{"unknown top-level key", "rules: []\n"},
		{"bad severity", "policies:\n  PII_MASKING:\n    severity: URGENT\n"},
		{"rule without expr", "custom_rules:\n  - id: X\n    severity: LOW\n    kind: warehouse\n    message: m\n"},
		{"rule with unknown kind", "custom_rules:\n  - id: X\n    severity: LOW\n    kind: stage\n    expr: 'true'\n    message: m\n"},
		{"missing rego path", "rego:\n  - nope.rego\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePolicyFile(t, t.TempDir(), "policies.yaml", tt.content)

			_, err := NewLoader(testLogger()).LoadFile(path)
			require.Error(t, err)
			assert.True(t, engine.IsConfigError(err), "got %v", err)
		})
	}
}

func TestLoader_ValidationProblems(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "policies.yaml", "policies:\n  PII_MASKING:\n    severity: URGENT\n")

	_, err := NewLoader(testLogger()).LoadFile(path)

	var problems config.ValidationErrors
	require.True(t, errors.As(err, &problems))
	require.Len(t, problems, 1)
	assert.Equal(t, "policies[PII_MASKING].severity", problems[0].Path)
	assert.Equal(t, path, problems[0].File)
}

func TestLoader_SeverityAnyCase(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "policies.yaml", `
policies:
  WAREHOUSE_AUTO_SUSPEND:
    severity: high
  PII_MASKING:
    severity: " Critical "
custom_rules:
  - id: FAST_SUSPEND
    severity: low
    kind: warehouse
    expr: "resource.auto_suspend <= 120.0"
    message: "Warehouse {key} suspends too late"
`)

	cfg, err := NewLoader(testLogger()).LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, SeverityHigh, cfg.Policies[WarehouseAutoSuspend].Severity)
	assert.Equal(t, SeverityCritical, cfg.Policies[PIIMasking].Severity)
	require.Len(t, cfg.CustomRules, 1)
	assert.Equal(t, SeverityLow, cfg.CustomRules[0].Severity)
}

func TestRegoPolicyID(t *testing.T) {
	assert.Equal(t, "NO_OWNERSHIP", regoPolicyID("/x/no-ownership.rego"))
	assert.Equal(t, "SHARES", regoPolicyID("shares.rego"))
}
