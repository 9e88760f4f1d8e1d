package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

func strPtr(s string) *string { return &s }

func runBuiltin(t *testing.T, id string, cfg *config.DesiredConfig) []Result {
	t.Helper()
	for _, p := range Builtins() {
		if p.ID() == id {
			return p.Evaluate(cfg, engine.Diff(engine.Resources{}, cfg))
		}
	}
	t.Fatalf("no built-in policy %s", id)
	return nil
}

func messages(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Message)
	}
	return out
}

func TestBuiltins_Registry(t *testing.T) {
	var ids []string
	for _, p := range Builtins() {
		ids = append(ids, p.ID())
		assert.NotEmpty(t, p.Description())
		assert.True(t, p.DefaultSeverity().Valid())
	}
	assert.Equal(t, []string{
		WarehouseAutoSuspend,
		NoPublicGrants,
		PIIMasking,
		WarehouseResourceMonitor,
		SharesSecureViews,
	}, ids)
}

func TestWarehouseAutoSuspend(t *testing.T) {
	cfg := &config.DesiredConfig{
		AccountName: "acme",
		Warehouses: []config.Warehouse{
			{Name: "WH_OK", Size: "SMALL", AutoSuspend: 300, MaxClusterCount: 1},
			{Name: "WH_BIG", Size: "SMALL", AutoSuspend: 301, MaxClusterCount: 1},
		},
	}

	results := runBuiltin(t, WarehouseAutoSuspend, cfg)
	require.Len(t, results, 1)
	assert.Equal(t, Result{
		PolicyID: WarehouseAutoSuspend,
		Severity: SeverityHigh,
		Message:  "Warehouse WH_BIG auto_suspend exceeds 300s",
	}, results[0])
}

func TestNoPublicGrants(t *testing.T) {
	tests := []struct {
		name    string
		grant   config.Grant
		flagged bool
	}{
		{"select on table", config.Grant{Role: "PUBLIC", Privilege: "SELECT", OnType: "TABLE", OnName: "CUSTOMERS"}, true},
		{"usage on utils", config.Grant{Role: "PUBLIC", Privilege: "USAGE", OnType: "DATABASE", OnName: "UTILS"}, false},
		{"case insensitive", config.Grant{Role: "public", Privilege: "usage", OnType: "DATABASE", OnName: "utils"}, false},
		{"usage elsewhere", config.Grant{Role: "PUBLIC", Privilege: "USAGE", OnType: "DATABASE", OnName: "RAW"}, true},
		{"other role", config.Grant{Role: "ANALYST", Privilege: "SELECT", OnType: "TABLE", OnName: "CUSTOMERS"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.DesiredConfig{AccountName: "acme", Grants: []config.Grant{tt.grant}}
			results := runBuiltin(t, NoPublicGrants, cfg)
			if !tt.flagged {
				assert.Empty(t, results)
				return
			}
			require.Len(t, results, 1)
			assert.Equal(t, "PUBLIC grants must be limited to USAGE on UTILS database", results[0].Message)
		})
	}
}

func TestPIIMasking(t *testing.T) {
	cfg := &config.DesiredConfig{
		AccountName: "acme",
		TagAttachments: []config.TagAttachment{
			{Tag: "PII", ObjectType: "COLUMN", ObjectName: "USERS.SSN"},
			{Tag: "pii", ObjectType: "COLUMN", ObjectName: "USERS.EMAIL"},
			{Tag: "PII", ObjectType: "COLUMN", ObjectName: "USERS.PHONE"},
			{Tag: "COST_CENTER", ObjectType: "TABLE", ObjectName: "USERS"},
		},
		MaskingAttachments: []config.MaskingAttachment{
			{Policy: "MASK_PHONE", ObjectType: "COLUMN", ObjectName: "USERS.PHONE"},
		},
	}

	results := runBuiltin(t, PIIMasking, cfg)
	assert.Equal(t, []string{
		"PII tagged object COLUMN USERS.EMAIL missing masking policy",
		"PII tagged object COLUMN USERS.SSN missing masking policy",
	}, messages(results))
	for _, r := range results {
		assert.Equal(t, SeverityMedium, r.Severity)
	}
}

func TestPIIMasking_SingleUnmaskedColumn(t *testing.T) {
	cfg := &config.DesiredConfig{
		AccountName:    "acme",
		TagAttachments: []config.TagAttachment{{Tag: "PII", ObjectType: "COLUMN", ObjectName: "USERS.SSN"}},
	}

	results := runBuiltin(t, PIIMasking, cfg)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Message, "COLUMN USERS.SSN")
}

func TestWarehouseResourceMonitor(t *testing.T) {
	cfg := &config.DesiredConfig{
		AccountName: "acme",
		Warehouses: []config.Warehouse{
			{Name: "WH_SMALL", Size: "MEDIUM", MaxClusterCount: 1},
			{Name: "WH_LARGE", Size: "LARGE", MaxClusterCount: 1},
			{Name: "WH_XL", Size: "XLARGE", MaxClusterCount: 1, ResourceMonitor: strPtr("RM")},
			{Name: "WH_XXL", Size: "XXLARGE", MaxClusterCount: 1, ResourceMonitor: strPtr("")},
		},
	}

	assert.Equal(t, []string{
		"Warehouse WH_LARGE lacks resource monitor",
		"Warehouse WH_XXL lacks resource monitor",
	}, messages(runBuiltin(t, WarehouseResourceMonitor, cfg)))
}

func TestSharesSecureViews(t *testing.T) {
	cfg := &config.DesiredConfig{
		AccountName: "acme",
		Shares: []config.Share{
			{Name: "SHARE_X", Accounts: []string{"ACME"}, SecureViews: []string{"PUBLIC_VIEW"}},
			{Name: "SHARE_EMPTY", Accounts: []string{"ACME"}},
			{Name: "SHARE_OK", Accounts: []string{"ACME"}, SecureViews: []string{"secure_orders", "SECURE_USERS"}},
			{Name: "SHARE_MIXED", SecureViews: []string{"SECURE_A", "RAW_B", "C"}},
		},
	}

	assert.Equal(t, []string{
		"Share SHARE_X view PUBLIC_VIEW is not secure",
		"Share SHARE_EMPTY must expose secure views only",
		"Share SHARE_MIXED view RAW_B is not secure",
		"Share SHARE_MIXED view C is not secure",
	}, messages(runBuiltin(t, SharesSecureViews, cfg)))
}

func TestBuiltins_NilConfig(t *testing.T) {
	for _, p := range Builtins() {
		assert.Empty(t, p.Evaluate(nil, nil), p.ID())
	}
}
