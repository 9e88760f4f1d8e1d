package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// DesiredConfigSchema is the name of the built-in desired configuration schema.
const DesiredConfigSchema = "desired_config"

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	if ctx == nil {
		ctx = cuecontext.New()
	}
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(DesiredConfigSchema, "#DesiredConfig", builtinDesiredConfigSchema); err != nil {
		panic(err)
	}

	return sr
}

// RegisterSchema compiles source and registers the definition def under name.
func (sr *SchemaRegistry) RegisterSchema(name, def, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(source, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	defVal := val.LookupPath(cue.ParsePath(def))
	if !defVal.Exists() {
		return fmt.Errorf("schema %s does not define %s", name, def)
	}

	sr.schemas[name] = defVal
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify unifies val with the named schema and validates that the result is concrete.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, err
	}
	return unified, nil
}

// ValidateAgainstSchema validates arbitrary Go data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(schemaName string, data interface{}) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	if _, err := sr.Unify(schemaName, dataVal); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// Built-in schema definitions

const builtinDesiredConfigSchema = `
#Name: string & !=""

#Warehouse: {
	name:              #Name
	size:              "XSMALL" | "SMALL" | "MEDIUM" | "LARGE" | "XLARGE" | "XXLARGE"
	auto_suspend:      int & >=0
	auto_resume?:      bool
	scaling_policy:    *"STANDARD" | "ECONOMY"
	max_cluster_count: int & >=1 & <=10
	resource_monitor?: #Name | null
}

#Database: {
	name: #Name
}

#Schema: {
	name:     #Name
	database: #Name
}

#Role: {
	name:     #Name
	comment?: string | null
}

#Grant: {
	role:      #Name
	privilege: #Name
	on_type:   #Name
	on_name:   #Name
}

#ResourceMonitor: {
	name:               #Name
	credit_quota:       int & >=1
	frequency:          "DAILY" | "WEEKLY" | "MONTHLY"
	notify_at_percent?: [...(int & >=1 & <=100)]
}

#Tag: {
	name:            #Name
	allowed_values?: [...string]
}

#MaskingPolicy: {
	name:       #Name
	expression: #Name
}

#TagAttachment: {
	tag:         #Name
	object_type: #Name
	object_name: #Name
	value?:      string
}

#MaskingAttachment: {
	policy:      #Name
	object_type: #Name
	object_name: #Name
}

#Share: {
	name:          #Name
	accounts?:     [...#Name]
	secure_views?: [...#Name]
}

#DesiredConfig: {
	account_name:         #Name
	warehouses?:          [...#Warehouse]
	databases?:           [...#Database]
	schemas?:             [...#Schema]
	roles?:               [...#Role]
	grants?:              [...#Grant]
	resource_monitors?:   [...#ResourceMonitor]
	tags?:                [...#Tag]
	masking_policies?:    [...#MaskingPolicy]
	tag_attachments?:     [...#TagAttachment]
	masking_attachments?: [...#MaskingAttachment]
	shares?:              [...#Share]
}
`
