package config

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/wareform/wareform/pkg/engine"
)

// CUEParser parses desired configurations written in CUE. The document is
// unified with the built-in #DesiredConfig definition before decoding, so
// unknown fields, out-of-range values and missing required fields are reported
// with source positions.
type CUEParser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	return &CUEParser{
		ctx:            ctx,
		schemaRegistry: NewSchemaRegistry(ctx),
	}
}

// Parse compiles content, validates it against #DesiredConfig and decodes it.
// The returned document has not had defaults applied or been validated by the
// struct validator; Loader does both.
func (cp *CUEParser) Parse(content []byte, filename string) (*DesiredConfig, error) {
	val := cp.ctx.CompileBytes(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, engine.NewConfigError("failed to compile CUE configuration", ValidationErrors(cp.convertCUEErrors(err))).
			WithResource(filename)
	}

	unified, err := cp.schemaRegistry.Unify(DesiredConfigSchema, val)
	if err != nil {
		return nil, engine.NewConfigError("CUE configuration does not match schema", ValidationErrors(cp.convertCUEErrors(err))).
			WithResource(filename)
	}

	var cfg DesiredConfig
	if err := unified.Decode(&cfg); err != nil {
		return nil, engine.NewConfigError("failed to decode CUE configuration", err).
			WithResource(filename)
	}

	return &cfg, nil
}

// SchemaRegistry returns the schema registry.
func (cp *CUEParser) SchemaRegistry() *SchemaRegistry {
	return cp.schemaRegistry
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func (cp *CUEParser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:    file,
			Line:    line,
			Column:  column,
			Path:    strings.Join(e.Path(), "."),
			Message: strings.TrimSpace(errors.Details(e, nil)),
		})
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{
			Message: fmt.Sprintf("%v", err),
		})
	}

	return validationErrors
}
