package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wareform/wareform/pkg/engine"
)

// Format is the syntax of a desired configuration file.
type Format string

const (
	FormatYAML     Format = "yaml"
	FormatJSON     Format = "json"
	FormatCUE      Format = "cue"
	FormatStarlark Format = "starlark"
)

// StarlarkConfigGlobal is the global a Starlark configuration script must bind.
const StarlarkConfigGlobal = "config"

// FormatFromPath selects a format by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	case ".star", ".starlark":
		return FormatStarlark, nil
	default:
		return "", engine.NewConfigError(fmt.Sprintf("unsupported configuration file extension %q", filepath.Ext(path)), nil).
			WithResource(path)
	}
}

// Loader reads desired configurations from disk. Whatever the format, the
// result has defaults applied and has passed validation; any failure is a
// CONFIG_ERROR.
type Loader struct {
	cue      *CUEParser
	starlark *StarlarkEvaluator
}

// NewLoader creates a loader. starlarkTimeout bounds .star script execution;
// zero selects the evaluator default.
func NewLoader(starlarkTimeout time.Duration) *Loader {
	return &Loader{
		cue:      NewCUEParser(),
		starlark: NewStarlarkEvaluator(starlarkTimeout),
	}
}

// LoadFile loads the desired configuration at path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*DesiredConfig, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewConfigError("failed to read configuration", err).WithResource(path)
	}

	return l.Parse(ctx, data, format, path)
}

// Parse decodes data in the given format, applies defaults and validates.
// filename is used for error positions only.
func (l *Loader) Parse(ctx context.Context, data []byte, format Format, filename string) (*DesiredConfig, error) {
	var (
		cfg *DesiredConfig
		err error
	)

	switch format {
	case FormatYAML:
		cfg, err = parseYAML(data)
	case FormatJSON:
		cfg, err = parseJSON(bytes.NewReader(data))
	case FormatCUE:
		cfg, err = l.cue.Parse(data, filename)
	case FormatStarlark:
		cfg, err = l.parseStarlark(ctx, data, filename)
	default:
		return nil, engine.NewConfigError(fmt.Sprintf("unsupported configuration format %q", format), nil)
	}
	if err != nil {
		if engine.IsConfigError(err) {
			return nil, err
		}
		return nil, engine.NewConfigError(fmt.Sprintf("failed to parse %s configuration", format), err).
			WithResource(filename)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) && ee.Resource == "" {
			ee.WithResource(filename)
		}
		return nil, err
	}
	return cfg, nil
}

func parseYAML(data []byte) (*DesiredConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg DesiredConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("configuration is empty")
		}
		return nil, err
	}
	return &cfg, nil
}

func parseJSON(r io.Reader) (*DesiredConfig, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var cfg DesiredConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) parseStarlark(ctx context.Context, data []byte, filename string) (*DesiredConfig, error) {
	result, err := l.starlark.Evaluate(ctx, filepath.Base(filename), string(data), nil)
	if err != nil {
		return nil, err
	}

	raw, ok := result.Output[StarlarkConfigGlobal]
	if !ok {
		return nil, fmt.Errorf("script does not define a global %q", StarlarkConfigGlobal)
	}
	if _, ok := raw.(map[string]interface{}); !ok {
		return nil, fmt.Errorf("global %q must be a dict or struct, got %T", StarlarkConfigGlobal, raw)
	}

	if err := l.cue.SchemaRegistry().ValidateAgainstSchema(DesiredConfigSchema, raw); err != nil {
		return nil, engine.NewConfigError("Starlark configuration does not match schema", err).
			WithResource(filename)
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return parseJSON(bytes.NewReader(encoded))
}
