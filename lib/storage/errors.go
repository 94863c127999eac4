package storage

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by all storage operations. It wraps a
// return code (of type RetCode), a message and optionally the cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying error, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("StorageError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("StorageError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// wrapError creates a new Error with the given code and message wrapping err.
func wrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// IsCode reports whether err is (or wraps) an *Error with the given code.
func IsCode(err error, code RetCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess       RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                // 1: Operation failed due to an internal error.
	RetCInvalidConfig                // 2: The instance configuration is invalid.
	RetCInvalidTarget                // 3: A path write hit a value that is not a mapping.
	RetCMissingPath                  // 4: The operation requires a path.
	RetCBackendError                 // 5: The backend failed to read or write.
	RetCNotFound                     // 6: Nothing is stored at the requested path.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidConfig:
		return "InvalidConfig"
	case RetCInvalidTarget:
		return "InvalidTarget"
	case RetCMissingPath:
		return "MissingPath"
	case RetCBackendError:
		return "BackendError"
	case RetCNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
