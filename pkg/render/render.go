// Package render turns plan actions into warehouse administration statements.
//
// Rendering is a pure function of one action. Identifiers are emitted as they
// appear in the plan; string literals are single-quoted with embedded quotes
// doubled.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wareform/wareform/pkg/engine"
)

// NoChanges is the output of Plan for an empty plan.
const NoChanges = "-- No changes.\n"

// Plan renders every action in input order, one statement per line, with a
// trailing newline. Callers pass an already sorted plan.
func Plan(plan []engine.PlanAction) (string, error) {
	if len(plan) == 0 {
		return NoChanges, nil
	}

	lines := make([]string, 0, len(plan))
	for i, a := range plan {
		stmt, err := Action(a)
		if err != nil {
			return "", fmt.Errorf("plan action %d (%s): %w", i, a.ID(), err)
		}
		lines = append(lines, stmt)
	}
	return strings.Join(lines, "\n") + "\n", nil
}

// Action renders a single plan action as one statement.
func Action(a engine.PlanAction) (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	drop := a.Action.IsDropLike()
	verb := string(a.Action)
	if a.Action != engine.ActionCreate && a.Action != engine.ActionAlter {
		verb = string(engine.ActionCreate)
	}
	d := a.Details

	switch a.Kind {
	case engine.KindWarehouse:
		if drop {
			return fmt.Sprintf("DROP WAREHOUSE %s;", a.Key), nil
		}
		if err := requireDetails(a, "size", "auto_suspend", "scaling_policy", "max_cluster_count"); err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"%s WAREHOUSE %s WITH WAREHOUSE_SIZE = %s AUTO_SUSPEND = %s AUTO_RESUME = %s SCALING_POLICY = %s MAX_CLUSTER_COUNT = %s;",
			verb, a.Key,
			scalar(d["size"]),
			scalar(d["auto_suspend"]),
			boolKeyword(d["auto_resume"]),
			scalar(d["scaling_policy"]),
			scalar(d["max_cluster_count"]),
		), nil

	case engine.KindDatabase:
		return simple(verb, drop, "DATABASE", a.Key), nil

	case engine.KindSchema:
		db, schema, ok := strings.Cut(a.Key, ".")
		if !ok {
			return "", invalid(a, "schema key must be <database>.<schema>")
		}
		return simple(verb, drop, "SCHEMA", db+"."+schema), nil

	case engine.KindRole:
		return simple(verb, drop, "ROLE", a.Key), nil

	case engine.KindGrant:
		if err := requireDetails(a, "privilege", "on_type", "on_name", "role"); err != nil {
			return "", err
		}
		if drop {
			return fmt.Sprintf("REVOKE %s ON %s %s FROM ROLE %s;",
				scalar(d["privilege"]), scalar(d["on_type"]), scalar(d["on_name"]), scalar(d["role"])), nil
		}
		return fmt.Sprintf("GRANT %s ON %s %s TO ROLE %s;",
			scalar(d["privilege"]), scalar(d["on_type"]), scalar(d["on_name"]), scalar(d["role"])), nil

	case engine.KindResourceMonitor:
		if drop {
			return fmt.Sprintf("DROP RESOURCE MONITOR %s;", a.Key), nil
		}
		if err := requireDetails(a, "credit_quota", "frequency"); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s RESOURCE MONITOR %s WITH CREDIT_QUOTA = %s FREQUENCY = %s;",
			verb, a.Key, scalar(d["credit_quota"]), scalar(d["frequency"])), nil

	case engine.KindTag:
		return simple(verb, drop, "TAG", a.Key), nil

	case engine.KindMaskingPolicy:
		if drop {
			return fmt.Sprintf("DROP MASKING POLICY %s;", a.Key), nil
		}
		if err := requireDetails(a, "expression"); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s MASKING POLICY %s AS (val string) RETURN %s;",
			verb, a.Key, scalar(d["expression"])), nil

	case engine.KindTagAttachment:
		if err := requireDetails(a, "tag", "object_type", "object_name"); err != nil {
			return "", err
		}
		if drop {
			return fmt.Sprintf("UNSET TAG %s ON %s %s;",
				scalar(d["tag"]), scalar(d["object_type"]), scalar(d["object_name"])), nil
		}
		return fmt.Sprintf("SET TAG %s = %s ON %s %s;",
			scalar(d["tag"]), QuoteLiteral(scalar(d["value"])), scalar(d["object_type"]), scalar(d["object_name"])), nil

	case engine.KindMaskingAttachment:
		if err := requireDetails(a, "policy", "object_type", "object_name"); err != nil {
			return "", err
		}
		if drop {
			return fmt.Sprintf("UNSET MASKING POLICY %s ON %s %s;",
				scalar(d["policy"]), scalar(d["object_type"]), scalar(d["object_name"])), nil
		}
		return fmt.Sprintf("SET MASKING POLICY %s ON %s %s;",
			scalar(d["policy"]), scalar(d["object_type"]), scalar(d["object_name"])), nil

	case engine.KindShare:
		if drop {
			return fmt.Sprintf("DROP SHARE %s;", a.Key), nil
		}
		accounts, err := list(a, "accounts")
		if err != nil {
			return "", err
		}
		views, err := list(a, "secure_views")
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s SHARE %s WITH ACCOUNTS = (%s) SECURE_VIEWS = (%s);",
			verb, a.Key, strings.Join(accounts, ", "), strings.Join(views, ", ")), nil
	}

	return "", engine.NewUnsupportedKindError(a.Kind)
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func simple(verb string, drop bool, keyword, name string) string {
	if drop {
		return fmt.Sprintf("DROP %s %s;", keyword, name)
	}
	return fmt.Sprintf("%s %s %s;", verb, keyword, name)
}

func requireDetails(a engine.PlanAction, fields ...string) error {
	for _, f := range fields {
		if v, ok := a.Details[f]; !ok || v == nil {
			return invalid(a, fmt.Sprintf("missing detail %q", f))
		}
	}
	return nil
}

func list(a engine.PlanAction, field string) ([]string, error) {
	raw, ok := a.Details[field]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, scalar(item))
		}
		return out, nil
	default:
		return nil, invalid(a, fmt.Sprintf("detail %q must be a list, got %T", field, raw))
	}
}

func invalid(a engine.PlanAction, msg string) error {
	return engine.NewPermanentError(msg, nil).
		WithCode(engine.ErrCodeInvalidPayload).
		WithResource(a.ID()).
		WithOperation("render")
}

// scalar formats a detail value. Whole numbers print without a fraction so
// values decoded from JSON render the same as in-memory integers.
func scalar(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return boolKeyword(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func boolKeyword(v interface{}) string {
	if b, ok := v.(bool); ok && b {
		return "TRUE"
	}
	return "FALSE"
}
