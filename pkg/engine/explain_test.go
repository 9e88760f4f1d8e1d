package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplain_Replace(t *testing.T) {
	changes, err := Explain(
		Details{"name": "WH", "auto_suspend": 60},
		Details{"name": "WH", "auto_suspend": 600},
	)
	require.NoError(t, err)
	require.Len(t, changes, 1)

	assert.Equal(t, "replace", changes[0].Op)
	assert.Equal(t, "/auto_suspend", changes[0].Path)
	assert.Equal(t, 60.0, changes[0].Old)
	assert.Equal(t, 600.0, changes[0].New)
	assert.Equal(t, "~ /auto_suspend: 60 -> 600", changes[0].String())
}

func TestExplain_AddRemove(t *testing.T) {
	changes, err := Explain(
		Details{"name": "R", "comment": "old"},
		Details{"name": "R", "owner": "ops"},
	)
	require.NoError(t, err)

	byPath := map[string]FieldChange{}
	for _, c := range changes {
		byPath[c.Path] = c
	}
	require.Contains(t, byPath, "/comment")
	require.Contains(t, byPath, "/owner")
	assert.Equal(t, "remove", byPath["/comment"].Op)
	assert.Equal(t, "old", byPath["/comment"].Old)
	assert.Equal(t, "add", byPath["/owner"].Op)
	assert.Equal(t, "ops", byPath["/owner"].New)
}

func TestExplain_NoChange(t *testing.T) {
	changes, err := Explain(Details{"n": 1}, Details{"n": 1.0})
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestExplainAction(t *testing.T) {
	current := Resources{KindDatabase: {"OLD": {"name": "OLD"}}}

	created, err := ExplainAction(current, PlanAction{
		Action: ActionCreate, Kind: KindDatabase, Key: "NEW", Details: Details{"name": "NEW"},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "+ /name = \"NEW\"", created[0].String())

	dropped, err := ExplainAction(current, PlanAction{
		Action: ActionDrop, Kind: KindDatabase, Key: "OLD", Details: Details{"name": "OLD"},
	})
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, "- /name (was \"OLD\")", dropped[0].String())
}

func TestLookupPointer(t *testing.T) {
	doc := map[string]any{
		"a/b":  1.0,
		"list": []any{"x", "y"},
	}
	assert.Equal(t, 1.0, lookupPointer(doc, "/a~1b"))
	assert.Equal(t, "y", lookupPointer(doc, "/list/1"))
	assert.Nil(t, lookupPointer(doc, "/list/9"))
	assert.Nil(t, lookupPointer(doc, "/missing/deep"))
}
