package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

// Engine holds the policy registry and overrides for one run.
type Engine struct {
	policies  []Policy
	overrides Overrides
	logger    zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	regoTimeout time.Duration
}

// WithRegoTimeout bounds each Rego evaluation.
func WithRegoTimeout(d time.Duration) EngineOption {
	return func(o *engineOptions) { o.regoTimeout = d }
}

// NewEngine builds the registry: built-ins first, then CEL rules, then Rego
// modules, each in configuration order. A nil cfg yields the built-ins with
// no overrides. Compile errors and duplicate IDs are CONFIG_ERRORs.
func NewEngine(ctx context.Context, logger zerolog.Logger, cfg *Config, opts ...EngineOption) (*Engine, error) {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		policies:  Builtins(),
		overrides: Overrides{},
		logger:    logger.With().Str("component", "policy-engine").Logger(),
	}
	if cfg == nil {
		return e, nil
	}

	if len(cfg.CustomRules) > 0 {
		env, err := newCELEnv()
		if err != nil {
			return nil, err
		}
		for _, rule := range cfg.CustomRules {
			p, err := compileCELRule(env, rule)
			if err != nil {
				return nil, err
			}
			e.policies = append(e.policies, p)
		}
	}

	for _, m := range cfg.RegoModules {
		p, err := compileRegoModule(ctx, m, o.regoTimeout)
		if err != nil {
			return nil, err
		}
		e.policies = append(e.policies, p)
	}

	seen := make(map[string]bool, len(e.policies))
	for _, p := range e.policies {
		if seen[p.ID()] {
			return nil, engine.NewConfigError(fmt.Sprintf("duplicate policy id %s", p.ID()), nil)
		}
		seen[p.ID()] = true
	}

	for id := range cfg.Policies {
		if !seen[id] {
			e.logger.Warn().Str("policy", id).Msg("Override for unknown policy ignored")
		}
	}
	for id, ov := range cfg.Policies {
		e.overrides[id] = ov
	}

	e.logger.Debug().
		Int("policies", len(e.policies)).
		Int("custom_rules", len(cfg.CustomRules)).
		Int("rego_modules", len(cfg.RegoModules)).
		Msg("Policy registry built")

	return e, nil
}

// Evaluate runs every registered policy with overrides applied.
func (e *Engine) Evaluate(desired *config.DesiredConfig, plan []engine.PlanAction) []Result {
	start := time.Now()
	results := Evaluate(desired, plan, e.policies, e.overrides)

	e.logger.Debug().
		Int("actions", len(plan)).
		Int("violations", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Policy evaluation completed")

	return results
}

// Policies describes the registry in evaluation order.
func (e *Engine) Policies() []Info {
	infos := make([]Info, 0, len(e.policies))
	for _, p := range e.policies {
		o := e.overrides[p.ID()]
		sev := p.DefaultSeverity()
		if o.Severity != "" {
			sev = o.Severity
		}
		infos = append(infos, Info{
			ID:              p.ID(),
			Description:     p.Description(),
			DefaultSeverity: p.DefaultSeverity(),
			Severity:        sev,
			Enabled:         o.IsEnabled(),
			Source:          policySource(p),
		})
	}
	return infos
}

func policySource(p Policy) string {
	switch v := p.(type) {
	case *celPolicy:
		return "cel"
	case *regoPolicy:
		return v.module.Path
	default:
		return "builtin"
	}
}
