// Package config defines the wareform resource model and loads desired
// configurations from disk.
//
// # Overview
//
// A DesiredConfig is the user-authored target state of one warehouse account:
// an account name plus ordered lists of eleven resource spec kinds. Each spec
// knows its resource kind and canonical key, and Canonical maps the whole
// document to the kind -> key -> attributes form consumed by engine.Diff.
//
// # Canonical Keys
//
//	warehouse, database, role, resource_monitor, tag, masking_policy, share   name
//	schema                                                                    database.name
//	grant                                   role:privilege:on_type:on_name
//	tag_attachment                          tag:object_type:object_name
//	masking_attachment                      policy:object_type:object_name
//
// # Formats
//
// Loader selects a parser by file extension:
//
//   - .yaml / .yml: gopkg.in/yaml.v3, unknown fields rejected
//   - .json: encoding/json, unknown fields rejected
//   - .cue: unified with the built-in #DesiredConfig CUE definition
//   - .star: a Starlark script that binds a global named config
//
// After decoding, ApplyDefaults fills optional fields and Validate checks
// every spec with go-playground/validator. Any failure is returned as an
// engine CONFIG_ERROR wrapping ValidationErrors.
//
// # Usage Example
//
//	loader := config.NewLoader(0)
//	desired, err := loader.LoadFile(ctx, "wareform.yaml")
//	if err != nil {
//	    return err
//	}
//	plan := engine.Diff(current, desired)
package config
