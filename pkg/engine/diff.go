package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Canonicalizer produces the canonical kind -> key -> details mapping of a
// desired configuration.
type Canonicalizer interface {
	Canonical() Resources
}

// Diff computes the ordered plan that moves current to the canonical form of desired.
//
// Keys only in desired get the kind's create-like verb. Keys on both sides with
// structurally different details get ALTER, or the create-like verb again for
// relationship kinds. Keys only in current get the kind's drop-like verb and carry
// the current details. Kinds absent from desired are torn down entirely.
func Diff(current Resources, desired Canonicalizer) []PlanAction {
	return DiffResources(current, desired.Canonical())
}

// DiffResources is Diff over two canonical mappings.
func DiffResources(current, desired Resources) []PlanAction {
	kinds := make(map[ResourceKind]struct{}, len(current)+len(desired))
	for kind := range current {
		kinds[kind] = struct{}{}
	}
	for kind := range desired {
		kinds[kind] = struct{}{}
	}

	plan := make([]PlanAction, 0)
	for kind := range kinds {
		have := current[kind]
		want := desired[kind]

		for key, details := range want {
			existing, ok := have[key]
			switch {
			case !ok:
				plan = append(plan, newAction(kind.CreateAction(), kind, key, details))
			case !DetailsEqual(existing, details):
				plan = append(plan, newAction(kind.ChangeAction(), kind, key, details))
			}
		}

		for key, details := range have {
			if _, ok := want[key]; !ok {
				plan = append(plan, newAction(kind.DropAction(), kind, key, details))
			}
		}
	}

	SortPlan(plan)
	return plan
}

func newAction(action ActionKind, kind ResourceKind, key string, details Details) PlanAction {
	d := details.Clone()
	if d == nil {
		d = Details{}
	}
	return PlanAction{
		Action:  action,
		Kind:    kind,
		Key:     key,
		Details: d,
	}
}

// PlanSummary counts plan actions by verb.
type PlanSummary struct {
	Total    int                `json:"total"`
	ByAction map[ActionKind]int `json:"by_action"`
}

// Summarize counts the actions in plan.
func Summarize(plan []PlanAction) PlanSummary {
	s := PlanSummary{ByAction: make(map[ActionKind]int)}
	for _, a := range plan {
		s.Total++
		s.ByAction[a.Action]++
	}
	return s
}

// IsEmpty reports whether the plan has no actions.
func (s PlanSummary) IsEmpty() bool {
	return s.Total == 0
}

// String renders the summary as "N actions (CREATE=1, DROP=2)" with verbs in
// declaration order.
func (s PlanSummary) String() string {
	if s.Total == 0 {
		return "no changes"
	}
	parts := make([]string, 0, len(s.ByAction))
	for _, action := range allActionKinds {
		if n := s.ByAction[action]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", action, n))
		}
	}
	noun := "actions"
	if s.Total == 1 {
		noun = "action"
	}
	return fmt.Sprintf("%d %s (%s)", s.Total, noun, strings.Join(parts, ", "))
}

// Keys returns the sorted keys of one kind in r.
func (r Resources) Keys(kind ResourceKind) []string {
	byKey := r[kind]
	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
