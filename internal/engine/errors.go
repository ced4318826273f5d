package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/pyrewind/internal/ir"
)

// RequestError reports a navigation request the engine cannot run. The
// target is not moved.
type RequestError struct {
	// Code identifies the error category.
	Code RequestErrorCode

	// Message is a human-readable description.
	Message string

	// Operation is the requested operation.
	Operation ir.Operation
}

// RequestErrorCode categorizes request errors.
type RequestErrorCode string

const (
	// ErrCodeUnknownOpcode means the opcode filter is not in the schema.
	ErrCodeUnknownOpcode RequestErrorCode = "UNKNOWN_OPCODE"

	// ErrCodeNoObjectSelected means an attribute search has no object.
	ErrCodeNoObjectSelected RequestErrorCode = "NO_OBJECT_SELECTED"

	// ErrCodeInvalidDirection means the direction is not forward or backward.
	ErrCodeInvalidDirection RequestErrorCode = "INVALID_DIRECTION"

	// ErrCodeInvalidOperation means the operation is unknown.
	ErrCodeInvalidOperation RequestErrorCode = "INVALID_OPERATION"

	// ErrCodeUnknownSymbol means a breakpoint symbol does not resolve.
	ErrCodeUnknownSymbol RequestErrorCode = "UNKNOWN_SYMBOL"
)

func (e *RequestError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s: %s (op=%s)", e.Code, e.Message, e.Operation)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsRequestError reports whether err is a RequestError with the given code.
// An empty code matches any RequestError.
func IsRequestError(err error, code RequestErrorCode) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return code == "" || re.Code == code
	}
	return false
}

func requestError(op ir.Operation, code RequestErrorCode, format string, args ...any) *RequestError {
	return &RequestError{Code: code, Message: fmt.Sprintf(format, args...), Operation: op}
}
