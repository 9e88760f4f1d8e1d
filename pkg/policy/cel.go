package policy

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

// celPolicy evaluates a CEL expression against every resource of one kind.
// A resource for which the expression is false produces one result.
type celPolicy struct {
	spec RuleSpec
	kind engine.ResourceKind
	prg  cel.Program
}

func newCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("key", cel.StringType),
		cel.Variable("account", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compileCELRule compiles rule into a Policy. The expression must be boolean.
func compileCELRule(env *cel.Env, rule RuleSpec) (*celPolicy, error) {
	kind, err := engine.ParseResourceKind(rule.Kind)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("custom rule %s", rule.ID), err)
	}

	ast, issues := env.Compile(rule.Expr)
	if issues != nil && issues.Err() != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("custom rule %s: CEL compile error", rule.ID), issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, engine.NewConfigError(
			fmt.Sprintf("custom rule %s: expression must return bool, got %s", rule.ID, out), nil)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("custom rule %s: CEL program error", rule.ID), err)
	}

	return &celPolicy{spec: rule, kind: kind, prg: prg}, nil
}

func (p *celPolicy) ID() string                { return p.spec.ID }
func (p *celPolicy) DefaultSeverity() Severity { return p.spec.Severity }

func (p *celPolicy) Description() string {
	if p.spec.Description != "" {
		return p.spec.Description
	}
	return fmt.Sprintf("CEL rule on %s: %s", p.kind, p.spec.Expr)
}

// Evaluate checks each resource of the rule's kind in key order. Evaluation
// errors are reported as results so a broken rule never passes silently.
func (p *celPolicy) Evaluate(desired *config.DesiredConfig, _ []engine.PlanAction) []Result {
	if desired == nil {
		return nil
	}

	resources := desired.Canonical()
	var results []Result
	for _, key := range resources.Keys(p.kind) {
		details := resources[p.kind][key]

		out, _, err := p.prg.Eval(map[string]interface{}{
			"resource": map[string]interface{}(details),
			"key":      key,
			"account":  desired.AccountName,
		})
		if err != nil {
			results = append(results, newResult(p, fmt.Sprintf("rule %s failed on %s %s: %v", p.spec.ID, p.kind, key, err)))
			continue
		}

		passed, ok := out.Value().(bool)
		if !ok {
			results = append(results, newResult(p,
				fmt.Sprintf("rule %s on %s %s returned %T, want bool", p.spec.ID, p.kind, key, out.Value())))
			continue
		}
		if !passed {
			results = append(results, newResult(p, strings.ReplaceAll(p.spec.Message, "{key}", key)))
		}
	}
	return results
}
