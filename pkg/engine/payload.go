package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EncodePlan writes plan as an indented JSON array of payload records.
func EncodePlan(w io.Writer, plan []PlanAction) error {
	if plan == nil {
		plan = []PlanAction{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plan); err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	return nil
}

// DecodePlan reads a JSON array of payload records and validates every record.
// The order of records is preserved.
func DecodePlan(r io.Reader) ([]PlanAction, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var plan []PlanAction
	if err := dec.Decode(&plan); err != nil {
		return nil, NewPermanentError("failed to decode plan payload", err).
			WithCode(ErrCodeInvalidPayload)
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, err
	}
	if plan == nil {
		plan = []PlanAction{}
	}
	return plan, nil
}

// ValidatePlan validates each action, reporting the index of the first bad one.
func ValidatePlan(plan []PlanAction) error {
	for i, a := range plan {
		if err := a.Validate(); err != nil {
			var ee *EngineError
			if errors.As(err, &ee) {
				ee.WithDetail("index", i)
				return ee
			}
			return fmt.Errorf("plan action %d: %w", i, err)
		}
	}
	return nil
}
