package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure raised while resolving or installing artifacts.
type ErrorClass string

const (
	// ErrorClassMalformedSpecification marks caller input that does not follow the spec grammar.
	// These are never retried.
	ErrorClassMalformedSpecification ErrorClass = "malformed_specification"

	// ErrorClassUnsupportedScheme marks a scheme with no registered resolver.
	ErrorClassUnsupportedScheme ErrorClass = "unsupported_scheme"

	// ErrorClassScanner marks I/O or downstream resolution failures.
	ErrorClassScanner ErrorClass = "scanner"

	// ErrorClassListing marks an unreadable directory root.
	ErrorClassListing ErrorClass = "listing"

	// ErrorClassInstallation marks a lifecycle transition rejected by the runtime.
	ErrorClassInstallation ErrorClass = "installation"
)

// Error is a classified error carrying the spec or location it concerns.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Spec is the raw specification being processed, if any.
	Spec string `json:"spec,omitempty"`

	// Location is the artifact or manifest location involved, if any.
	Location string `json:"location,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Spec != "" && e.Location != "":
		msg += fmt.Sprintf(" (spec=%s, location=%s)", e.Spec, e.Location)
	case e.Spec != "":
		msg += fmt.Sprintf(" (spec=%s)", e.Spec)
	case e.Location != "":
		msg += fmt.Sprintf(" (location=%s)", e.Location)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports class and code equality so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewMalformedSpecificationError creates a new malformed specification error.
func NewMalformedSpecificationError(message string, err error) *Error {
	return &Error{Class: ErrorClassMalformedSpecification, Message: message, Err: err}
}

// NewUnsupportedSchemeError creates an error for a scheme with no resolver.
func NewUnsupportedSchemeError(scheme string) *Error {
	return &Error{
		Class:   ErrorClassUnsupportedScheme,
		Message: fmt.Sprintf("no resolver registered for scheme %q", scheme),
	}
}

// NewScannerError creates a new scanner error.
func NewScannerError(message string, err error) *Error {
	return &Error{Class: ErrorClassScanner, Message: message, Err: err}
}

// NewListingError creates a new listing error.
func NewListingError(message string, err error) *Error {
	return &Error{Class: ErrorClassListing, Message: message, Err: err}
}

// NewInstallationError creates a new installation error.
func NewInstallationError(message string, err error) *Error {
	return &Error{Class: ErrorClassInstallation, Message: message, Err: err}
}

// WithSpec records the raw specification.
func (e *Error) WithSpec(spec string) *Error {
	e.Spec = spec
	return e
}

// WithLocation records the location involved.
func (e *Error) WithLocation(location string) *Error {
	e.Location = location
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of the first *Error in the chain, or "" if none.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// CodeOf returns the code of the first *Error in the chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsMalformedSpecification returns true if the error is a malformed specification.
func IsMalformedSpecification(err error) bool {
	return ClassOf(err) == ErrorClassMalformedSpecification
}

// IsUnsupportedScheme returns true if no resolver was registered for the scheme.
func IsUnsupportedScheme(err error) bool {
	return ClassOf(err) == ErrorClassUnsupportedScheme
}

// IsScanner returns true if the error is a scanner failure.
func IsScanner(err error) bool {
	return ClassOf(err) == ErrorClassScanner
}

// IsListing returns true if the error is a listing failure.
func IsListing(err error) bool {
	return ClassOf(err) == ErrorClassListing
}

// IsInstallation returns true if the error is an installation failure.
func IsInstallation(err error) bool {
	return ClassOf(err) == ErrorClassInstallation
}

// Common error codes.
const (
	ErrCodeCycleDetected   = "CYCLE_DETECTED"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInvalidProperty = "INVALID_PROPERTY"
	ErrCodeIOFailure       = "IO_FAILURE"
	ErrCodePolicyDenied    = "POLICY_DENIED"
	ErrCodeNoHandle        = "NO_HANDLE"
)
