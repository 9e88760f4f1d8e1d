package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error.
type ErrorClass string

const (
	// ErrorClassPermanent indicates a non-recoverable error. Every error raised
	// by the reconciliation core is permanent: all inputs are local and every
	// step is deterministic, so repeating an operation yields the same failure.
	ErrorClassPermanent ErrorClass = "permanent"

	// ErrorClassIO indicates a failure of the local filesystem or database
	// backing a store. Retrying is left to the caller.
	ErrorClassIO ErrorClass = "io"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource identifies the resource (kind/key) that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Resource != "" && e.Operation != "" {
		msg = fmt.Sprintf("%s (resource=%s, operation=%s)", msg, e.Resource, e.Operation)
	} else if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource=%s)", msg, e.Resource)
	} else if e.Operation != "" {
		msg = fmt.Sprintf("%s (operation=%s)", msg, e.Operation)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// Two engine errors match when both class and code match.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// NewIOError creates a new I/O error.
func NewIOError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassIO,
		Message: message,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// HasCode reports whether err carries an EngineError with the given code.
func HasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfigError returns true for malformed or schema-invalid configuration.
func IsConfigError(err error) bool {
	return HasCode(err, ErrCodeConfig)
}

// IsStateVersionError returns true when persisted state has an unsupported version.
func IsStateVersionError(err error) bool {
	return HasCode(err, ErrCodeStateVersion)
}

// IsUnsupportedResourceKind returns true when a resource kind outside the
// closed set reached the renderer or the payload decoder.
func IsUnsupportedResourceKind(err error) bool {
	return HasCode(err, ErrCodeUnsupportedKind)
}

// Error codes.
const (
	ErrCodeConfig          = "CONFIG_ERROR"
	ErrCodeStateVersion    = "STATE_VERSION"
	ErrCodeUnsupportedKind = "UNSUPPORTED_RESOURCE_KIND"
	ErrCodeInvalidPayload  = "INVALID_PAYLOAD"
	ErrCodeStateIO         = "STATE_IO"
	ErrCodeLedger          = "LEDGER_ERROR"
)

// NewConfigError returns a permanent CONFIG_ERROR.
func NewConfigError(message string, err error) *EngineError {
	return NewPermanentError(message, err).WithCode(ErrCodeConfig)
}

// NewUnsupportedKindError returns a permanent UNSUPPORTED_RESOURCE_KIND error for kind.
func NewUnsupportedKindError(kind ResourceKind) *EngineError {
	return NewPermanentError(fmt.Sprintf("unsupported resource kind %q", string(kind)), nil).
		WithCode(ErrCodeUnsupportedKind).
		WithDetail("resource_kind", string(kind))
}
