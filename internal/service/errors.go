package service

import "fmt"

// ErrorKind classifies facade errors for callers that branch on failure
// mode rather than message text.
type ErrorKind string

const (
	ErrInputInvalid       ErrorKind = "INPUT_INVALID"
	ErrTaxonomyLoadFailed ErrorKind = "TAXONOMY_LOAD_FAILED"
	ErrRulesLoadFailed    ErrorKind = "RULES_LOAD_FAILED"
	ErrLayerFailed        ErrorKind = "LAYER_FAILED"
	ErrLLMUnavailable     ErrorKind = "LLM_UNAVAILABLE"
	ErrCancelled          ErrorKind = "CANCELLED"
	ErrTimeout            ErrorKind = "TIMEOUT"
	ErrCoverageBelowMin   ErrorKind = "COVERAGE_BELOW_MIN"
)

// Error is a classified facade error. Layer is set for LAYER_FAILED.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Layer   string    `json:"layer,omitempty"`
	Message string    `json:"message"`
	cause   error
}

// NewError creates a classified error.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// LayerError creates a LAYER_FAILED error for one layer.
func LayerError(layer string, cause error) *Error {
	return &Error{
		Kind:    ErrLayerFailed,
		Layer:   layer,
		Message: fmt.Sprintf("layer %s failed: %v", layer, cause),
		cause:   cause,
	}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Layer != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Layer, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }
