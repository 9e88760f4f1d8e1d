package state

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

func newBackend(t *testing.T) *LocalBackend {
	t.Helper()
	return NewLocalBackend(filepath.Join(t.TempDir(), "state", "state.json"), zerolog.New(nil).Level(zerolog.Disabled))
}

func TestLoad_MissingFile(t *testing.T) {
	b := newBackend(t)

	s, err := b.Load()
	require.NoError(t, err)
	assert.Equal(t, Version, s.StateVersion)
	assert.Empty(t, s.Resources)

	_, err = os.Stat(b.Path())
	assert.True(t, os.IsNotExist(err), "Load must not create the file")
}

func TestLoad_VersionMismatch(t *testing.T) {
	tests := map[string]struct {
		doc   string
		found string
	}{
		"newer":   {doc: `{"state_version": 2, "resources": {}}`, found: "2"},
		"missing": {doc: `{"resources": {}}`, found: "missing"},
		"string":  {doc: `{"state_version": "1", "resources": {}}`, found: `"1"`},
		"float":   {doc: `{"state_version": 2.5, "resources": {}}`, found: "2.5"},
		"decimal": {doc: `{"state_version": 1.0, "resources": {}}`, found: "1.0"},
		"null":    {doc: `{"state_version": null, "resources": {}}`, found: "null"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(b.Path()), 0o755))
			require.NoError(t, os.WriteFile(b.Path(), []byte(tt.doc), 0o644))

			_, err := b.Load()
			require.Error(t, err)
			require.True(t, engine.IsStateVersionError(err), "got %v", err)

			var ee *engine.EngineError
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.found, ee.Details["found"])
			assert.Equal(t, Version, ee.Details["supported"])
		})
	}
}

func TestLoad_IgnoresUnknownTopLevelKeys(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(b.Path()), 0o755))
	require.NoError(t, os.WriteFile(b.Path(),
		[]byte(`{"state_version": 1, "serial": 7, "resources": {"warehouse": {"WH": {"name": "WH"}}}}`), 0o644))

	s, err := b.Load()
	require.NoError(t, err)
	_, ok := s.Resources.Get(engine.KindWarehouse, "WH")
	assert.True(t, ok)
}

func TestLoad_Corrupt(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(b.Path()), 0o755))
	require.NoError(t, os.WriteFile(b.Path(), []byte(`{"state_version": 1, "resources": `), 0o644))

	_, err := b.Load()
	require.Error(t, err)
	assert.True(t, engine.HasCode(err, engine.ErrCodeStateIO))
}

func TestLoad_UnknownKind(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(b.Path()), 0o755))
	require.NoError(t, os.WriteFile(b.Path(), []byte(`{"state_version": 1, "resources": {"stage": {"S": {}}}}`), 0o644))

	_, err := b.Load()
	assert.True(t, engine.IsUnsupportedResourceKind(err))
}

func TestSave_Format(t *testing.T) {
	b := newBackend(t)

	s := New()
	s.Resources.Put(engine.KindWarehouse, "WH", engine.Details{"size": "SMALL", "auto_suspend": 60.0, "name": "WH"})
	require.NoError(t, b.Save(s))

	data, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, `{
  "state_version": 1,
  "resources": {
    "warehouse": {
      "WH": {
        "auto_suspend": 60,
        "name": "WH",
        "size": "SMALL"
      }
    }
  }
}
`, string(data))

	entries, err := os.ReadDir(filepath.Dir(b.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestSave_EmptyState(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, b.Save(&State{StateVersion: Version}))

	data, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"state_version\": 1,\n  \"resources\": {}\n}\n", string(data))
}

func TestSave_FailureLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "state.json")
	// A non-empty directory at the target path makes the final rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(target, "occupied"), 0o755))

	b := NewLocalBackend(target, zerolog.New(nil).Level(zerolog.Disabled))
	err := b.Save(New())
	require.Error(t, err)
	assert.True(t, engine.HasCode(err, engine.ErrCodeStateIO))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
	}
}

func TestSave_FailedCommitKeepsPriorState(t *testing.T) {
	b := newBackend(t)
	_, err := b.Apply([]engine.PlanAction{
		{Action: engine.ActionCreate, Kind: engine.KindWarehouse, Key: "WH_A", Details: engine.Details{"name": "WH_A"}},
	})
	require.NoError(t, err)
	before, err := os.ReadFile(b.Path())
	require.NoError(t, err)

	var staged string
	b.rename = func(oldpath, _ string) error {
		data, err := os.ReadFile(oldpath)
		require.NoError(t, err)
		staged = string(data)
		return errors.New("disk went away")
	}

	_, err = b.Apply([]engine.PlanAction{
		{Action: engine.ActionCreate, Kind: engine.KindWarehouse, Key: "WH_B", Details: engine.Details{"name": "WH_B"}},
		{Action: engine.ActionDrop, Kind: engine.KindWarehouse, Key: "WH_A"},
	})
	require.Error(t, err)
	assert.True(t, engine.HasCode(err, engine.ErrCodeStateIO))
	assert.Contains(t, staged, "WH_B", "new document was fully written before the commit failed")

	after, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err := os.ReadDir(filepath.Dir(b.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestApply(t *testing.T) {
	b := newBackend(t)

	s, err := b.Apply([]engine.PlanAction{
		{Action: engine.ActionCreate, Kind: engine.KindWarehouse, Key: "WH_TEST", Details: engine.Details{"name": "WH_TEST"}},
		{Action: engine.ActionGrant, Kind: engine.KindGrant, Key: "R:USAGE:DATABASE:DB", Details: engine.Details{"role": "R"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Resources.Count())

	loaded, err := b.Load()
	require.NoError(t, err)
	wh, ok := loaded.Resources.Get(engine.KindWarehouse, "WH_TEST")
	require.True(t, ok)
	assert.Equal(t, "WH_TEST", wh["name"])

	s, err = b.Apply([]engine.PlanAction{
		{Action: engine.ActionRevoke, Kind: engine.KindGrant, Key: "R:USAGE:DATABASE:DB", Details: engine.Details{"role": "R"}},
		{Action: engine.ActionDrop, Kind: engine.KindDatabase, Key: "NEVER_EXISTED"},
		{Action: engine.ActionAlter, Kind: engine.KindWarehouse, Key: "WH_TEST", Details: engine.Details{"name": "WH_TEST", "size": "LARGE"}},
	})
	require.NoError(t, err)
	assert.NotContains(t, s.Resources, engine.KindGrant, "empty kinds are pruned")
	assert.NotContains(t, s.Resources, engine.KindDatabase)
	wh, _ = s.Resources.Get(engine.KindWarehouse, "WH_TEST")
	assert.Equal(t, "LARGE", wh["size"])
}

func TestApply_InvalidActionWritesNothing(t *testing.T) {
	b := newBackend(t)
	_, err := b.Apply([]engine.PlanAction{
		{Action: engine.ActionCreate, Kind: engine.KindRole, Key: "R", Details: engine.Details{"name": "R"}},
	})
	require.NoError(t, err)
	before, err := os.ReadFile(b.Path())
	require.NoError(t, err)

	_, err = b.Apply([]engine.PlanAction{
		{Action: engine.ActionDrop, Kind: engine.KindRole, Key: "R"},
		{Action: engine.ActionKind("UPSERT"), Kind: engine.KindRole, Key: "R2"},
	})
	require.Error(t, err)
	assert.True(t, engine.HasCode(err, engine.ErrCodeInvalidPayload))

	after, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestApply_VersionMismatchWritesNothing(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(b.Path()), 0o755))
	doc := `{"state_version": 7, "resources": {}}`
	require.NoError(t, os.WriteFile(b.Path(), []byte(doc), 0o644))

	_, err := b.Apply([]engine.PlanAction{{Action: engine.ActionCreate, Kind: engine.KindRole, Key: "R"}})
	assert.True(t, engine.IsStateVersionError(err))

	data, err := os.ReadFile(b.Path())
	require.NoError(t, err)
	assert.Equal(t, doc, string(data))
}

func TestApply_ReturnsCopy(t *testing.T) {
	b := newBackend(t)
	s, err := b.Apply([]engine.PlanAction{
		{Action: engine.ActionCreate, Kind: engine.KindTag, Key: "PII", Details: engine.Details{"name": "PII"}},
	})
	require.NoError(t, err)

	s.Resources.Delete(engine.KindTag, "PII")

	loaded, err := b.Load()
	require.NoError(t, err)
	_, ok := loaded.Resources.Get(engine.KindTag, "PII")
	assert.True(t, ok)
}

func TestApplyPayload(t *testing.T) {
	b := newBackend(t)

	s, err := b.ApplyPayload(strings.NewReader(`[
		{"action": "CREATE", "resource_type": "warehouse", "name": "WH_TEST", "details": {"name": "WH_TEST"}}
	]`))
	require.NoError(t, err)
	_, ok := s.Resources.Get(engine.KindWarehouse, "WH_TEST")
	assert.True(t, ok)

	_, err = b.ApplyPayload(strings.NewReader(`[{"action": "CREATE", "resource_type": "stage", "name": "S", "details": {}}]`))
	assert.True(t, engine.IsUnsupportedResourceKind(err))
}

func TestConvergence(t *testing.T) {
	b := newBackend(t)

	_, err := b.Apply([]engine.PlanAction{
		{Action: engine.ActionCreate, Kind: engine.KindWarehouse, Key: "WH_OLD", Details: engine.Details{"name": "WH_OLD"}},
		{Action: engine.ActionCreate, Kind: engine.KindDatabase, Key: "RAW", Details: engine.Details{"name": "OTHER"}},
	})
	require.NoError(t, err)

	desired := &config.DesiredConfig{
		AccountName: "acme",
		Warehouses: []config.Warehouse{{
			Name: "WH_INGEST", Size: "MEDIUM", AutoSuspend: 300, AutoResume: true,
			ScalingPolicy: "STANDARD", MaxClusterCount: 2,
		}},
		Databases:      []config.Database{{Name: "RAW"}},
		Grants:         []config.Grant{{Role: "R", Privilege: "USAGE", OnType: "DATABASE", OnName: "RAW"}},
		TagAttachments: []config.TagAttachment{{Tag: "PII", ObjectType: "COLUMN", ObjectName: "USERS.SSN"}},
	}
	desired.ApplyDefaults()

	current, err := b.Load()
	require.NoError(t, err)
	plan := engine.Diff(current.Resources, desired)
	require.NotEmpty(t, plan)

	applied, err := b.Apply(plan)
	require.NoError(t, err)

	want := desired.Canonical()
	for _, kind := range engine.AllResourceKinds() {
		assert.Equal(t, len(want[kind]), len(applied.Resources[kind]), string(kind))
		for key, details := range want[kind] {
			got, ok := applied.Resources.Get(kind, key)
			require.True(t, ok, "%s/%s", kind, key)
			assert.True(t, engine.DetailsEqual(details, got), "%s/%s", kind, key)
		}
	}

	assert.Empty(t, engine.Diff(applied.Resources, desired), "second diff must be empty")
}

func TestHash(t *testing.T) {
	a := New()
	a.Resources.Put(engine.KindRole, "R", engine.Details{"name": "R", "comment": nil})
	b := New()
	b.Resources.Put(engine.KindRole, "R", engine.Details{"comment": nil, "name": "R"})

	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.True(t, strings.HasPrefix(ha, "sha256:"))
	assert.Len(t, ha, len("sha256:")+64)

	b.Resources.Put(engine.KindRole, "R2", engine.Details{})
	hb, err = b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}

func TestCounts(t *testing.T) {
	s := New()
	s.Resources.Put(engine.KindRole, "A", engine.Details{})
	s.Resources.Put(engine.KindRole, "B", engine.Details{})

	counts := s.Counts()
	assert.Len(t, counts, len(engine.AllResourceKinds()))
	assert.Equal(t, 2, counts[engine.KindRole])
	assert.Equal(t, 0, counts[engine.KindShare])
}
