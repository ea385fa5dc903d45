package orcherr

import (
	"errors"
	"fmt"
)

// Request-level codes reject a whole dispatch before any executor call.
const (
	CodeInvalidMode        = "invalid_mode"
	CodeNoEnvironments     = "no_environments"
	CodeUnknownEnvironment = "unknown_environment"
	CodeBadRequest         = "bad_request"
)

// Executor-level codes are reported by adapters and captured per environment.
const (
	CodeTimeout           = "timeout"
	CodeAuthFailure       = "auth_failure"
	CodeBackendError      = "backend_error"
	CodeMalformedResponse = "malformed_response"
)

// OpsOrchError provides a typed error that can be surfaced to API clients without leaking provider-specific details.
type OpsOrchError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e OpsOrchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is/As.
func (e OpsOrchError) Unwrap() error {
	return e.Err
}

// New constructs a new typed OpsOrchError.
func New(code, message string, err error) OpsOrchError {
	return OpsOrchError{Code: code, Message: message, Err: err}
}

// As extracts an OpsOrchError from err, accepting both value and pointer forms.
func As(err error) (OpsOrchError, bool) {
	var oe OpsOrchError
	if errors.As(err, &oe) {
		return oe, true
	}
	var oePtr *OpsOrchError
	if errors.As(err, &oePtr) && oePtr != nil {
		return *oePtr, true
	}
	return OpsOrchError{}, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	oe, ok := As(err)
	return ok && oe.Code == code
}
