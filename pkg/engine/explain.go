package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wI2L/jsondiff"
)

// FieldChange describes one attribute-level difference between two payloads.
type FieldChange struct {
	// Op is "add", "remove" or "replace".
	Op string `json:"op"`

	// Path is the JSON pointer of the attribute, e.g. "/auto_suspend".
	Path string `json:"path"`

	// Old is the previous value; nil for additions.
	Old any `json:"old,omitempty"`

	// New is the new value; nil for removals.
	New any `json:"new,omitempty"`
}

// String formats the change for terminal output.
func (c FieldChange) String() string {
	switch c.Op {
	case jsondiff.OperationAdd:
		return fmt.Sprintf("+ %s = %s", c.Path, formatValue(c.New))
	case jsondiff.OperationRemove:
		return fmt.Sprintf("- %s (was %s)", c.Path, formatValue(c.Old))
	default:
		return fmt.Sprintf("~ %s: %s -> %s", c.Path, formatValue(c.Old), formatValue(c.New))
	}
}

// Explain lists the attribute changes that turn before into after.
// It is display-only and plays no part in the diff or the payload.
func Explain(before, after Details) ([]FieldChange, error) {
	src, err := NormalizeDetails(before)
	if err != nil {
		return nil, err
	}
	dst, err := NormalizeDetails(after)
	if err != nil {
		return nil, err
	}

	srcJSON, err := json.Marshal(src)
	if err != nil {
		return nil, err
	}
	dstJSON, err := json.Marshal(dst)
	if err != nil {
		return nil, err
	}

	patch, err := jsondiff.CompareJSON(srcJSON, dstJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compare details: %w", err)
	}

	changes := make([]FieldChange, 0, len(patch))
	for _, op := range patch {
		switch op.Type {
		case jsondiff.OperationAdd, jsondiff.OperationRemove, jsondiff.OperationReplace:
		default:
			continue
		}
		c := FieldChange{Op: op.Type, Path: op.Path}
		if op.Type != jsondiff.OperationAdd {
			c.Old = lookupPointer(map[string]any(src), op.Path)
		}
		if op.Type != jsondiff.OperationRemove {
			c.New = op.Value
		}
		changes = append(changes, c)
	}
	return changes, nil
}

// ExplainAction describes what action changes relative to current state.
// Create-like actions on new resources list every attribute as an addition;
// drop-like actions list every attribute as a removal.
func ExplainAction(current Resources, action PlanAction) ([]FieldChange, error) {
	existing, _ := current.Get(action.Kind, action.Key)
	if action.Action.IsDropLike() {
		return Explain(existing, Details{})
	}
	return Explain(existing, action.Details)
}

// lookupPointer resolves an RFC 6901 pointer against a JSON-shaped value.
func lookupPointer(doc any, pointer string) any {
	if pointer == "" {
		return doc
	}
	cur := doc
	for _, tok := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		tok = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
		switch v := cur.(type) {
		case map[string]any:
			cur = v[tok]
		case Details:
			cur = v[tok]
		case []any:
			i, err := strconv.Atoi(tok)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			cur = v[i]
		default:
			return nil
		}
	}
	return cur
}

func formatValue(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}
