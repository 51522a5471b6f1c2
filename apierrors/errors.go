// Package apierrors provides the error taxonomy for apiguard.
//
// Every error type matches a sentinel through errors.Is, so callers can
// branch on the category without a type assertion:
//
//	res, err := op.Execute(ctx, exec, opts, vopts)
//	if errors.Is(err, apierrors.ErrUnmatchedResponse) {
//	    // the server answered with a status nobody declared
//	}
//
// Use errors.As to reach the structured fields:
//
//	var ve *apierrors.ValidationError
//	if errors.As(err, &ve) {
//	    log.Printf("%s failed at %s", ve.Model, ve.Path)
//	}
package apierrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrValidation indicates a value did not decode against its schema.
	ErrValidation = errors.New("validation error")

	// ErrExtraFields indicates strict mode found fields the schema does not declare.
	ErrExtraFields = errors.New("extra fields detected")

	// ErrUnmatchedResponse indicates no declared or global response matched a status.
	ErrUnmatchedResponse = errors.New("unmatched response")

	// ErrTransport indicates the transport failed with an embedded response.
	ErrTransport = errors.New("transport error")
)

// ValidationError reports the first structured decode failure of a model.
type ValidationError struct {
	// Model is the diagnostic name of the model that failed.
	Model string
	// Operation is the owning operation, empty when the model is unattached.
	Operation string
	// Path is the dotted path of the offending value ("" for the root).
	Path string
	// Expected names the schema expected at Path.
	Expected string
	// Actual is the value found at Path.
	Actual any
	// Message is the full human-readable message, including the serialized target.
	Message string
}

// Error returns the human-readable message.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed for %s at %q: expected %s", e.Model, e.Path, e.Expected)
}

// Is reports whether target matches this error type.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ExtraFieldsError reports fields present in a value but absent from its schema.
type ExtraFieldsError struct {
	Model     string
	Operation string
	// Diff holds the undeclared fields and their values.
	Diff    map[string]any
	Message string
}

// Error returns the human-readable message.
func (e *ExtraFieldsError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("extra properties detected in model %s", e.Model)
}

// Is reports whether target matches this error type.
func (e *ExtraFieldsError) Is(target error) bool {
	return target == ErrExtraFields
}

// UnmatchedResponseError is returned when a received status has no declaration.
// It is never suppressed by non-throwing validation options.
type UnmatchedResponseError struct {
	Operation string
	Status    int
	// Body is the received response body.
	Body any
	// BodyJSON is Body serialized for diagnostics.
	BodyJSON string
}

// Error returns a human-readable error message.
func (e *UnmatchedResponseError) Error() string {
	msg := "unexpected response without declaration"
	if e.Operation != "" {
		msg = fmt.Sprintf("[%s] %s", e.Operation, msg)
	}
	return fmt.Sprintf("%s. Status: %d, data: %s", msg, e.Status, e.BodyJSON)
}

// Is reports whether target matches this error type.
func (e *UnmatchedResponseError) Is(target error) bool {
	return target == ErrUnmatchedResponse
}

// TransportError wraps a transport failure that carried a response.
// Message is rewritten to name the operation and the embedded response.
type TransportError struct {
	Operation string
	Status    int
	Body      any
	Message   string
	// Cause is the original transport error.
	Cause error
}

// Error returns the rewritten message.
func (e *TransportError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return "transport error"
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error type.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}
