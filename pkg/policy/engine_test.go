package policy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

func TestNewEngine_BuiltinsOnly(t *testing.T) {
	eng, err := NewEngine(context.Background(), testLogger(), nil)
	require.NoError(t, err)

	infos := eng.Policies()
	require.Len(t, infos, 5)
	assert.Equal(t, WarehouseAutoSuspend, infos[0].ID)
	assert.Equal(t, "Warehouses must auto suspend within 300 seconds", infos[0].Description)
	assert.Equal(t, "builtin", infos[0].Source)
	assert.True(t, infos[0].Enabled)

	results := eng.Evaluate(violatingConfig(), nil)
	assert.Len(t, results, 4)
}

func TestEngine_Overrides(t *testing.T) {
	cfg := &Config{Policies: Overrides{
		WarehouseAutoSuspend: {Severity: SeverityLow, Allowlist: []string{"Warehouse WH_BIG auto_suspend exceeds 300s"}},
		NoPublicGrants:       {Enabled: boolPtr(false)},
		"NOT_A_POLICY":       {Enabled: boolPtr(false)},
	}}

	eng, err := NewEngine(context.Background(), testLogger(), cfg)
	require.NoError(t, err)

	results := eng.Evaluate(violatingConfig(), nil)
	assert.Equal(t, []Result{
		{PolicyID: WarehouseAutoSuspend, Severity: SeverityLow, Message: "Warehouse WH_HUGE auto_suspend exceeds 300s"},
		{PolicyID: SharesSecureViews, Severity: SeverityHigh, Message: "Share SHARE_X view PUBLIC_VIEW is not secure"},
	}, results)

	infos := eng.Policies()
	assert.Equal(t, SeverityLow, infos[0].Severity)
	assert.Equal(t, SeverityHigh, infos[0].DefaultSeverity)
	assert.False(t, infos[1].Enabled)
}

func TestEngine_CELRules(t *testing.T) {
	cfg := &Config{CustomRules: []RuleSpec{
		{
			ID:       "FAST_SUSPEND",
			Severity: SeverityLow,
			Kind:     "warehouse",
			Expr:     "resource.auto_suspend <= 120.0",
			Message:  "Warehouse {key} suspends too late",
		},
		{
			ID:       "ACME_DATABASES",
			Severity: SeverityMedium,
			Kind:     "database",
			Expr:     "account == 'acme' && key.startsWith('ACME_')",
			Message:  "Database {key} lacks the ACME_ prefix",
		},
	}}

	eng, err := NewEngine(context.Background(), testLogger(), cfg)
	require.NoError(t, err)

	desired := &config.DesiredConfig{
		AccountName: "acme",
		Warehouses: []config.Warehouse{
			{Name: "WH_B", Size: "SMALL", AutoSuspend: 300, MaxClusterCount: 1},
			{Name: "WH_A", Size: "SMALL", AutoSuspend: 60, MaxClusterCount: 1},
		},
		Databases: []config.Database{{Name: "ACME_RAW"}, {Name: "SCRATCH"}},
	}

	results := eng.Evaluate(desired, engine.Diff(engine.Resources{}, desired))
	assert.Equal(t, []Result{
		{PolicyID: "FAST_SUSPEND", Severity: SeverityLow, Message: "Warehouse WH_B suspends too late"},
		{PolicyID: "ACME_DATABASES", Severity: SeverityMedium, Message: "Database SCRATCH lacks the ACME_ prefix"},
	}, results)

	infos := eng.Policies()
	require.Len(t, infos, 7)
	assert.Equal(t, "cel", infos[5].Source)
}

func TestEngine_CELRuntimeErrorFailsClosed(t *testing.T) {
	cfg := &Config{CustomRules: []RuleSpec{{
		ID:       "BROKEN",
		Severity: SeverityHigh,
		Kind:     "database",
		Expr:     "resource.owner == 'me'",
		Message:  "unused",
	}}}

	eng, err := NewEngine(context.Background(), testLogger(), cfg)
	require.NoError(t, err)

	results := eng.Evaluate(&config.DesiredConfig{AccountName: "acme", Databases: []config.Database{{Name: "DB"}}}, nil)
	require.Len(t, results, 1)
	assert.Equal(t, "BROKEN", results[0].PolicyID)
	assert.Equal(t, SeverityHigh, results[0].Severity)
	assert.Contains(t, results[0].Message, "rule BROKEN failed on database DB")
}

func TestEngine_CELCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"syntax", "resource.size ==="},
		{"undeclared variable", "warehouse.size == 'SMALL'"},
		{"not boolean", "1 + 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{CustomRules: []RuleSpec{{
				ID: "R", Severity: SeverityLow, Kind: "warehouse", Expr: tt.expr, Message: "m",
			}}}

			_, err := NewEngine(context.Background(), testLogger(), cfg)
			require.Error(t, err)
			assert.True(t, engine.IsConfigError(err), "got %v", err)
		})
	}
}

func TestEngine_DuplicateIDs(t *testing.T) {
	cfg := &Config{CustomRules: []RuleSpec{{
		ID: PIIMasking, Severity: SeverityLow, Kind: "tag", Expr: "true", Message: "m",
	}}}

	_, err := NewEngine(context.Background(), testLogger(), cfg)
	require.Error(t, err)
	assert.True(t, engine.IsConfigError(err))
	assert.Contains(t, err.Error(), "duplicate policy id PII_MASKING")
}

func TestEngine_RegoModules(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "ownership.rego", ownershipRego)
	writePolicyFile(t, dir, "plan-guard.rego", `package wareform.plan

import rego.v1

deny contains {"message": msg, "severity": "critical"} if {
	some a in input.plan
	a.action == "DROP"
	a.resource_type == "database"
	msg := sprintf("Plan drops database %s", [a.name])
}
`)
	path := writePolicyFile(t, dir, "policies.yaml", "rego:\n  - ownership.rego\n  - plan-guard.rego\n")

	cfg, err := NewLoader(testLogger()).LoadFile(path)
	require.NoError(t, err)

	eng, err := NewEngine(context.Background(), testLogger(), cfg, WithRegoTimeout(5*time.Second))
	require.NoError(t, err)

	desired := &config.DesiredConfig{
		AccountName: "acme",
		Grants: []config.Grant{
			{Role: "ADMIN", Privilege: "OWNERSHIP", OnType: "DATABASE", OnName: "RAW"},
			{Role: "ANALYST", Privilege: "USAGE", OnType: "DATABASE", OnName: "RAW"},
		},
	}
	current := engine.Resources{
		engine.KindDatabase: {"LEGACY": engine.Details{"name": "LEGACY"}},
	}

	results := eng.Evaluate(desired, engine.Diff(current, desired))
	assert.Equal(t, []Result{
		{PolicyID: "OWNERSHIP", Severity: SeverityMedium, Message: "Role ADMIN must not receive OWNERSHIP"},
		{PolicyID: "PLAN_GUARD", Severity: SeverityCritical, Message: "Plan drops database LEGACY"},
	}, results)

	infos := eng.Policies()
	require.Len(t, infos, 7)
	assert.Equal(t, "Roles must never receive OWNERSHIP grants.", infos[5].Description)
	assert.Equal(t, filepath.Join(dir, "plan-guard.rego"), infos[6].Source)
}

func TestEngine_RegoCompileError(t *testing.T) {
	cfg := &Config{RegoModules: []RegoModule{{
		ID:     "BROKEN",
		Path:   "broken.rego",
		Source: "package broken\n\ndeny contains msg if {\n",
	}}}

	_, err := NewEngine(context.Background(), testLogger(), cfg)
	require.Error(t, err)
	assert.True(t, engine.IsConfigError(err))
}

func TestEngine_RegoV1SyntaxWithoutImport(t *testing.T) {
	cfg := &Config{RegoModules: []RegoModule{{
		ID:   "NO_PUBLIC_ROLE",
		Path: "no-public-role.rego",
		Source: `package wareform.roles

deny contains msg if {
	some g in input.config.grants
	g.role == "PUBLIC"
	msg := sprintf("PUBLIC must not receive %s", [g.privilege])
}
`,
	}}}

	eng, err := NewEngine(context.Background(), testLogger(), cfg)
	require.NoError(t, err)

	desired := &config.DesiredConfig{
		AccountName: "acme",
		Grants:      []config.Grant{{Role: "PUBLIC", Privilege: "USAGE", OnType: "DATABASE", OnName: "RAW"}},
	}
	assert.Equal(t, []Result{
		{PolicyID: "NO_PUBLIC_ROLE", Severity: SeverityMedium, Message: "PUBLIC must not receive USAGE"},
	}, eng.Evaluate(desired, nil))
}

func TestEngine_RegoV0SyntaxRejected(t *testing.T) {
	cfg := &Config{RegoModules: []RegoModule{{
		ID:     "LEGACY",
		Path:   "legacy.rego",
		Source: "package legacy\n\ndeny[msg] {\n\tmsg := \"x\"\n}\n",
	}}}

	_, err := NewEngine(context.Background(), testLogger(), cfg)
	require.Error(t, err)
	assert.True(t, engine.IsConfigError(err))
}

func TestEngine_RegoWithoutDenyRule(t *testing.T) {
	cfg := &Config{RegoModules: []RegoModule{{
		ID:     "EMPTY",
		Path:   "empty.rego",
		Source: "package empty\n\nallow := true\n",
	}}}

	eng, err := NewEngine(context.Background(), testLogger(), cfg)
	require.NoError(t, err)
	assert.Empty(t, eng.Evaluate(&config.DesiredConfig{AccountName: "acme"}, nil))
}
