package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityLow is for findings worth reviewing.
	SeverityLow Severity = "LOW"

	// SeverityMedium is the default for governance gaps such as missing masking.
	SeverityMedium Severity = "MEDIUM"

	// SeverityHigh is for findings that expose data or spend.
	SeverityHigh Severity = "HIGH"

	// SeverityCritical is for findings that must be addressed immediately.
	SeverityCritical Severity = "CRITICAL"
)

// AllSeverities returns every severity from lowest to highest.
func AllSeverities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	for _, known := range AllSeverities() {
		if s == known {
			return true
		}
	}
	return false
}

// ParseSeverity parses a severity case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return sev, nil
}

// UnmarshalYAML accepts severities in any case. Unknown values are kept
// upper-cased so validation can report them against the field.
func (s *Severity) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*s = Severity(strings.ToUpper(strings.TrimSpace(raw)))
	return nil
}

// Result is a single policy violation. Results are data, not errors: the
// caller decides whether a non-empty list is fatal.
type Result struct {
	PolicyID string   `json:"policy_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// String formats the result the way the CLI prints it.
func (r Result) String() string {
	return fmt.Sprintf("[%s] %s: %s", r.Severity, r.PolicyID, r.Message)
}

// Policy is a named governance rule. Evaluate must be free of side effects
// and must not modify its arguments.
type Policy interface {
	ID() string
	Description() string
	DefaultSeverity() Severity
	Evaluate(desired *config.DesiredConfig, plan []engine.PlanAction) []Result
}

// Override adjusts one policy without changing the Policy value itself.
type Override struct {
	// Enabled disables the policy when explicitly false.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled"`

	// Severity replaces the severity of every surviving result.
	Severity Severity `json:"severity,omitempty" yaml:"severity" validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`

	// Allowlist holds exact messages to suppress.
	Allowlist []string `json:"allowlist,omitempty" yaml:"allowlist"`
}

// IsEnabled reports whether the policy should run. Unset means enabled.
func (o Override) IsEnabled() bool {
	return o.Enabled == nil || *o.Enabled
}

// Allows reports whether message is suppressed by the allowlist.
func (o Override) Allows(message string) bool {
	for _, m := range o.Allowlist {
		if m == message {
			return true
		}
	}
	return false
}

// Overrides maps policy IDs to their override settings.
type Overrides map[string]Override

// Info describes a registered policy for listings.
type Info struct {
	ID              string   `json:"id"`
	Description     string   `json:"description"`
	DefaultSeverity Severity `json:"default_severity"`
	Severity        Severity `json:"severity"`
	Enabled         bool     `json:"enabled"`
	Source          string   `json:"source"`
}

func newResult(p Policy, message string) Result {
	return Result{
		PolicyID: p.ID(),
		Severity: p.DefaultSeverity(),
		Message:  message,
	}
}
