package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wareform/wareform/pkg/engine"
)

// ValidationErrors is a list of validation problems.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve))
	for _, e := range ve {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}

// newValidator returns a validator that reports field paths by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var defaultValidator = newValidator()

// Validate checks field ranges and enumerations of every spec, and that specs
// sharing a canonical key are identical. It returns a CONFIG_ERROR wrapping
// ValidationErrors.
func (c *DesiredConfig) Validate() error {
	return validateWith(defaultValidator, c)
}

func validateWith(v *validator.Validate, c *DesiredConfig) error {
	problems, err := structProblems(v, c)
	if err != nil {
		return engine.NewConfigError("invalid desired configuration", err)
	}

	problems = append(problems, duplicateKeys(c)...)

	if len(problems) > 0 {
		return engine.NewConfigError("invalid desired configuration", problems).
			WithDetail("problems", len(problems))
	}
	return nil
}

// StructProblems validates any struct carrying validate tags and converts
// field failures to ValidationErrors with json-named paths. A non-nil error
// means the value could not be validated at all.
func StructProblems(v interface{}) (ValidationErrors, error) {
	return structProblems(defaultValidator, v)
}

func structProblems(v *validator.Validate, s interface{}) (ValidationErrors, error) {
	err := v.Struct(s)
	if err == nil {
		return nil, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	problems := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, ValidationError{
			Path:    fieldPath(fe),
			Message: fieldMessage(fe),
		})
	}
	return problems, nil
}

// duplicateKeys reports specs whose canonical key collides with an earlier
// spec of the same kind but whose attributes differ.
func duplicateKeys(c *DesiredConfig) ValidationErrors {
	var problems ValidationErrors
	seen := make(map[engine.ResourceKind]map[string]engine.Details)
	for _, spec := range c.Specs() {
		byKey, ok := seen[spec.Kind()]
		if !ok {
			byKey = make(map[string]engine.Details)
			seen[spec.Kind()] = byKey
		}
		attrs := Attributes(spec)
		if prev, ok := byKey[spec.Key()]; ok {
			if !engine.DetailsEqual(prev, attrs) {
				problems = append(problems, ValidationError{
					Path:    string(spec.Kind()),
					Message: fmt.Sprintf("conflicting definitions for %q", spec.Key()),
				})
			}
			continue
		}
		byKey[spec.Key()] = attrs
	}
	return problems
}

// fieldPath strips the root struct name from the validator namespace,
// e.g. "DesiredConfig.warehouses[0].size" -> "warehouses[0].size".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of %s, got %v", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "gte", "min":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "lte", "max":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "excludes":
		return fmt.Sprintf("must not contain %q", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
