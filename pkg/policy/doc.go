// Package policy evaluates governance rules against a desired configuration
// and the plan computed from it.
//
// # Architecture
//
// The policy system consists of four main components:
//
//  1. Policy - the interface every rule implements (ID, description, default
//     severity and a side-effect free Evaluate)
//  2. Built-in Policies - the fixed registry returned by Builtins
//  3. Loader - reads policies.yaml and the Rego modules it references
//  4. Engine - builds the registry, applies overrides and logs evaluations
//
// Evaluate is the pure core: it walks policies in registry order, skips
// disabled ones, drops allowlisted messages and applies severity overrides.
// Results keep registry order.
//
// # Usage
//
//	cfg, err := policy.NewLoader(logger).LoadFile("policies.yaml")
//	if err != nil {
//	    return err
//	}
//
//	eng, err := policy.NewEngine(ctx, logger, cfg)
//	if err != nil {
//	    return err
//	}
//
//	for _, r := range eng.Evaluate(desired, plan) {
//	    fmt.Println(r)
//	}
//
// # Built-in Policies
//
//   - WAREHOUSE_AUTO_SUSPEND (HIGH): auto_suspend above 300 seconds
//   - NO_PUBLIC_GRANTS (HIGH): grants to PUBLIC other than USAGE on UTILS
//   - PII_MASKING (MEDIUM): PII-tagged objects without a masking attachment
//   - WAREHOUSE_RESOURCE_MONITOR (MEDIUM): LARGE and bigger warehouses without a monitor
//   - SHARES_SECURE_VIEWS (HIGH): shares with no views or with views lacking the SECURE_ prefix
//
// # Policy Configuration
//
//	policies:
//	  WAREHOUSE_AUTO_SUSPEND:
//	    severity: MEDIUM
//	    allowlist:
//	      - "Warehouse WH_BIG auto_suspend exceeds 300s"
//	  PII_MASKING:
//	    enabled: false
//
//	custom_rules:
//	  - id: SMALL_DEV_WAREHOUSES
//	    kind: warehouse
//	    severity: LOW
//	    expr: "!key.startsWith('DEV_') || resource.size in ['XSMALL', 'SMALL']"
//	    message: "Dev warehouse {key} is oversized"
//
//	rego:
//	  - policies/
//
// Custom rules are CEL expressions with resource, key and account bound. A
// resource for which the expression is false yields one result.
//
// Rego modules are written in Rego v1 syntax and queried for
// data.<package>.deny with input {"config": ..., "plan": [...]}. The
// "import rego.v1" line is accepted but not required. Each element of the set
// is either a message string or an object with message and severity:
//
//	package wareform.grants
//
//	deny contains msg if {
//	    some g in input.config.grants
//	    g.privilege == "OWNERSHIP"
//	    msg := sprintf("Role %s must not receive OWNERSHIP", [g.role])
//	}
//
// The policy ID of a Rego module is its upper-cased file name.
package policy
