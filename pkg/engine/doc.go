// Package engine provides the core types of the wareform reconciliation engine
// and the diff algorithm that turns (current state, desired state) into a plan.
//
// # Overview
//
// wareform manages the administrative resources of a warehouse analytics
// platform as declarative configuration. A run moves through these stages:
//
//  1. Load - parse and validate the desired configuration (package config)
//  2. Canonicalize - map every resource to kind -> canonical key -> details
//  3. Diff - compare against the persisted state and emit ordered PlanActions
//  4. Gate - evaluate governance policies against config and plan (package policy)
//  5. Render - turn each action into a statement (package render)
//  6. Apply - fold the plan into the persisted state (package state)
//
// # Core Domain Types
//
//   - ResourceKind: closed set of the eleven manageable kinds
//   - ActionKind: closed set of plan verbs (CREATE, ALTER, DROP, GRANT, ...)
//   - Details: JSON-shaped attribute payload of one resource
//   - Resources: kind -> key -> Details, the canonical form of both sides of a diff
//   - PlanAction: one change, also the wire record {action, resource_type, name, details}
//
// # Plan Ordering
//
// Plans are sorted by (resource kind, key, action kind). Identical inputs always
// produce identically ordered plans, and an already converged state produces
// an empty plan.
//
// # Relationship Kinds
//
// Grants, tag attachments and masking attachments are edges, not objects.
// They are never altered: a changed edge is re-asserted with GRANT,
// ATTACH_TAG or ATTACH_MASK, and removed with REVOKE, DETACH_TAG or DETACH_MASK.
//
// # Error Classification
//
// Errors raised by the core are EngineErrors carrying a class and a code:
//
//	if engine.IsConfigError(err) {
//	    // the desired configuration is invalid
//	}
//
// Policy violations are data (see package policy), never errors.
//
// # Example Usage
//
//	desired, err := config.LoadFile("wareform.yaml")
//	current, err := backend.Load()
//	plan := engine.Diff(current.Resources, desired)
//	_ = engine.EncodePlan(os.Stdout, plan)
package engine
