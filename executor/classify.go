package executor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/opsorch/opsorch-multiquery/orcherr"
	"github.com/opsorch/opsorch-multiquery/schema"
)

// Classify maps an executor error onto the per-environment error taxonomy.
func Classify(err error) (schema.ErrorKind, string) {
	if err == nil {
		return "", ""
	}
	if oe, ok := orcherr.As(err); ok {
		switch oe.Code {
		case orcherr.CodeTimeout:
			return schema.ErrorTimeout, err.Error()
		case orcherr.CodeAuthFailure:
			return schema.ErrorAuthFailure, err.Error()
		case orcherr.CodeMalformedResponse:
			return schema.ErrorMalformedResponse, err.Error()
		case orcherr.CodeBackendError:
			return schema.ErrorBackend, err.Error()
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return schema.ErrorTimeout, err.Error()
	case errors.Is(err, context.Canceled):
		return schema.ErrorCanceled, err.Error()
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return schema.ErrorMalformedResponse, err.Error()
	}
	return schema.ErrorBackend, err.Error()
}
