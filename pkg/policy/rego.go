package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

// DefaultRegoTimeout bounds a single Rego evaluation.
const DefaultRegoTimeout = 10 * time.Second

// regoPolicy queries the deny set of a Rego module. Elements of the set are
// either message strings or objects with message and optional severity.
type regoPolicy struct {
	module  RegoModule
	query   rego.PreparedEvalQuery
	timeout time.Duration
}

// compileRegoModule parses m and prepares data.<package>.deny for evaluation.
func compileRegoModule(ctx context.Context, m RegoModule, timeout time.Duration) (*regoPolicy, error) {
	parsed, err := ast.ParseModule(m.Path, m.Source)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("failed to parse rego module %s", m.ID), err).
			WithResource(m.Path)
	}

	query := parsed.Package.Path.String() + ".deny"

	r := rego.New(
		rego.Module(m.Path, m.Source),
		rego.Query(query),
	)

	prepared, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("failed to compile rego module %s", m.ID), err).
			WithResource(m.Path)
	}

	if timeout <= 0 {
		timeout = DefaultRegoTimeout
	}

	return &regoPolicy{module: m, query: prepared, timeout: timeout}, nil
}

func (p *regoPolicy) ID() string                { return p.module.ID }
func (p *regoPolicy) DefaultSeverity() Severity { return SeverityMedium }

func (p *regoPolicy) Description() string {
	if p.module.Description != "" {
		return p.module.Description
	}
	return "Rego policy " + p.module.Path
}

// Evaluate runs the deny query with input {config, plan}. Failures are
// reported as a single result.
func (p *regoPolicy) Evaluate(desired *config.DesiredConfig, plan []engine.PlanAction) []Result {
	if desired == nil {
		return nil
	}

	input, err := regoInput(desired, plan)
	if err != nil {
		return []Result{newResult(p, fmt.Sprintf("policy %s input error: %v", p.module.ID, err))}
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return []Result{newResult(p, fmt.Sprintf("policy %s evaluation failed: %v", p.module.ID, err))}
	}

	var results []Result
	for _, result := range rs {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			results = append(results, p.createResult(d))
		}
	}
	return results
}

// createResult converts one deny element into a Result.
func (p *regoPolicy) createResult(value interface{}) Result {
	r := newResult(p, "")

	switch v := value.(type) {
	case string:
		r.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			r.Message = msg
		} else {
			r.Message = fmt.Sprintf("%v", v)
		}
		if sev, ok := v["severity"].(string); ok {
			if parsed, err := ParseSeverity(sev); err == nil {
				r.Severity = parsed
			}
		}
	default:
		r.Message = fmt.Sprintf("%v", v)
	}

	return r
}

// regoInput builds the evaluation input as plain JSON values.
func regoInput(desired *config.DesiredConfig, plan []engine.PlanAction) (map[string]interface{}, error) {
	if plan == nil {
		plan = []engine.PlanAction{}
	}
	raw, err := json.Marshal(map[string]interface{}{
		"config": desired,
		"plan":   plan,
	})
	if err != nil {
		return nil, err
	}
	var input map[string]interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, err
	}
	return input, nil
}
