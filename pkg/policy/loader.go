package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/wareform/wareform/pkg/config"
	"github.com/wareform/wareform/pkg/engine"
)

// DefaultConfigFile is the conventional policy configuration file name.
const DefaultConfigFile = "policies.yaml"

// Config is the parsed policy configuration document.
type Config struct {
	// Policies holds per-policy overrides keyed by policy ID.
	Policies Overrides `json:"policies,omitempty" yaml:"policies" validate:"dive"`

	// CustomRules are CEL rules appended after the built-ins.
	CustomRules []RuleSpec `json:"custom_rules,omitempty" yaml:"custom_rules" validate:"dive"`

	// Rego lists .rego files or directories, relative to the config file.
	Rego []string `json:"rego,omitempty" yaml:"rego" validate:"dive,required"`

	// RegoModules are the modules read from Rego, in load order.
	RegoModules []RegoModule `json:"-" yaml:"-"`
}

// RuleSpec declares a CEL rule evaluated once per resource of Kind.
type RuleSpec struct {
	ID          string   `json:"id" yaml:"id" validate:"required"`
	Description string   `json:"description" yaml:"description"`
	Severity    Severity `json:"severity" yaml:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL"`
	Kind        string   `json:"kind" yaml:"kind" validate:"required"`
	Expr        string   `json:"expr" yaml:"expr" validate:"required"`
	Message     string   `json:"message" yaml:"message" validate:"required"`
}

// RegoModule is one Rego source file.
type RegoModule struct {
	ID          string
	Path        string
	Source      string
	Description string
}

// Loader reads policy configuration files and the Rego modules they reference.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
	}
}

// LoadFile reads and validates a policy configuration file. A missing file
// is a CONFIG_ERROR.
func (l *Loader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, engine.NewConfigError(fmt.Sprintf("policy config not found: %s", path), err).
				WithResource(path)
		}
		return nil, engine.NewConfigError("failed to read policy config", err).WithResource(path)
	}
	return l.Parse(data, path, filepath.Dir(path))
}

// Parse decodes policy configuration YAML. Rego paths resolve against baseDir.
func (l *Loader) Parse(data []byte, filename, baseDir string) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, engine.NewConfigError("policy config must be a mapping of policies, custom_rules and rego", err).
			WithResource(filename)
	}

	problems, err := config.StructProblems(&cfg)
	if err != nil {
		return nil, engine.NewConfigError("invalid policy configuration", err).WithResource(filename)
	}
	if len(problems) > 0 {
		for i := range problems {
			problems[i].File = filename
		}
		return nil, engine.NewConfigError("invalid policy configuration", problems).WithResource(filename)
	}

	for i, rule := range cfg.CustomRules {
		if _, err := engine.ParseResourceKind(rule.Kind); err != nil {
			return nil, engine.NewConfigError(fmt.Sprintf("custom rule %s", rule.ID), err).
				WithResource(filename).
				WithDetail("index", i)
		}
	}

	modules, err := l.loadRego(cfg.Rego, baseDir)
	if err != nil {
		return nil, err
	}
	cfg.RegoModules = modules

	l.logger.Debug().
		Str("file", filename).
		Int("overrides", len(cfg.Policies)).
		Int("custom_rules", len(cfg.CustomRules)).
		Int("rego_modules", len(modules)).
		Msg("Policy configuration loaded")

	return &cfg, nil
}

// Files returns the policy config file plus every Rego file it loaded, for
// change watching.
func (c *Config) Files(configPath string) []string {
	files := []string{configPath}
	for _, m := range c.RegoModules {
		files = append(files, m.Path)
	}
	return files
}

func (l *Loader) loadRego(paths []string, baseDir string) ([]RegoModule, error) {
	var modules []RegoModule
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}

		info, err := os.Stat(p)
		if err != nil {
			return nil, engine.NewConfigError("failed to stat rego path", err).WithResource(p)
		}

		if !info.IsDir() {
			m, err := l.loadRegoFile(p)
			if err != nil {
				return nil, err
			}
			modules = append(modules, m)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".rego") || strings.HasSuffix(path, "_test.rego") {
				return nil
			}
			m, err := l.loadRegoFile(path)
			if err != nil {
				return err
			}
			modules = append(modules, m)
			return nil
		})
		if err != nil {
			if engine.IsConfigError(err) {
				return nil, err
			}
			return nil, engine.NewConfigError("failed to walk rego directory", err).WithResource(p)
		}
	}
	return modules, nil
}

func (l *Loader) loadRegoFile(path string) (RegoModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RegoModule{}, engine.NewConfigError("failed to read rego module", err).WithResource(path)
	}

	m := RegoModule{
		ID:          regoPolicyID(path),
		Path:        path,
		Source:      string(data),
		Description: extractDescription(string(data)),
	}

	l.logger.Debug().
		Str("path", path).
		Str("policy", m.ID).
		Msg("Rego module loaded")

	return m, nil
}

// regoPolicyID derives a policy ID from a file name: "no-admin.rego" -> "NO_ADMIN".
func regoPolicyID(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name = strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
	return strings.ToUpper(name)
}

// extractDescription joins the leading comment block of a Rego module.
func extractDescription(content string) string {
	var description strings.Builder

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment == "" || strings.HasPrefix(comment, "METADATA") {
				continue
			}
			if description.Len() > 0 {
				description.WriteString(" ")
			}
			description.WriteString(comment)
		} else if trimmed != "" {
			break
		}
	}

	return description.String()
}
