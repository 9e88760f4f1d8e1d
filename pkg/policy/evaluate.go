package policy

import (
	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

// Evaluate runs policies in registry order and applies overrides.
//
// A policy whose override sets enabled=false is skipped entirely. Results
// whose message appears in the policy's allowlist are dropped. Surviving
// results take the override severity when one is set. The returned slice
// keeps registry order and is never re-sorted.
func Evaluate(desired *config.DesiredConfig, plan []engine.PlanAction, policies []Policy, overrides Overrides) []Result {
	results := make([]Result, 0)
	for _, p := range policies {
		o := overrides[p.ID()]
		if !o.IsEnabled() {
			continue
		}
		for _, r := range p.Evaluate(desired, plan) {
			if o.Allows(r.Message) {
				continue
			}
			if o.Severity != "" {
				r.Severity = o.Severity
			}
			results = append(results, r)
		}
	}
	return results
}

// HighestSeverity returns the most severe level among results, or "" for none.
func HighestSeverity(results []Result) Severity {
	rank := func(s Severity) int {
		for i, known := range AllSeverities() {
			if s == known {
				return i + 1
			}
		}
		return 0
	}

	var highest Severity
	for _, r := range results {
		if rank(r.Severity) > rank(highest) {
			highest = r.Severity
		}
	}
	return highest
}
