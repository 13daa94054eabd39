// Package errors provides the structured error taxonomy for lobcore.
//
// The hot matching path never returns one of these: workers surface
// outcomes via plain return values (bool/nil) as required by the
// no-panic, no-unwind contract of the matcher. LOBError exists for the
// façade boundary (submit/cancel/register) and for diagnostics logged
// around resource exhaustion and invariant violations.
package errors

import (
	"fmt"
	"runtime"
	"time"
)

// ErrorCode classifies a lobcore error.
type ErrorCode string

const (
	// Validation failures (spec §7.1).
	ErrInvalidQuantity ErrorCode = "INVALID_QUANTITY"
	ErrInvalidPrice    ErrorCode = "INVALID_PRICE"
	ErrSymbolNotFound  ErrorCode = "SYMBOL_NOT_FOUND"
	ErrOrderNotResting ErrorCode = "ORDER_NOT_RESTING"

	// Resource exhaustion (spec §7.2).
	ErrArenaExhausted    ErrorCode = "ARENA_EXHAUSTED"
	ErrRingFull          ErrorCode = "RING_FULL"
	ErrHazardRowExhausted ErrorCode = "HAZARD_ROW_EXHAUSTED"
	ErrTooManySymbols    ErrorCode = "TOO_MANY_SYMBOLS"
	ErrSymbolExists      ErrorCode = "SYMBOL_EXISTS"

	// Invariant violations (spec §7.4) - programmer error, never expected
	// in correct operation; surfaced for logging/debug assertions only.
	ErrDuplicateInstall  ErrorCode = "DUPLICATE_INSTALL"
	ErrRetireCorruption  ErrorCode = "RETIRE_CORRUPTION"
)

// LOBError is a structured error carrying a stable code plus context.
type LOBError struct {
	Code      ErrorCode
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	File      string
	Line      int
	Cause     error
}

func (e *LOBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LOBError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches a key/value to the error for structured logging.
func (e *LOBError) WithDetail(key string, value interface{}) *LOBError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a LOBError, capturing the caller's file/line.
func New(code ErrorCode, message string) *LOBError {
	_, file, line, _ := runtime.Caller(1)
	return &LOBError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
	}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *LOBError {
	_, file, line, _ := runtime.Caller(1)
	return &LOBError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
	}
}

// Wrap attaches a code/message to an existing error.
func Wrap(err error, code ErrorCode, message string) *LOBError {
	if err == nil {
		return nil
	}
	_, file, line, _ := runtime.Caller(1)
	return &LOBError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		File:      file,
		Line:      line,
		Cause:     err,
	}
}

// Is reports whether err is a LOBError carrying the given code.
func Is(err error, code ErrorCode) bool {
	var lobErr *LOBError
	if As(err, &lobErr) {
		return lobErr.Code == code
	}
	return false
}

// As walks err's Unwrap chain looking for a *LOBError.
func As(err error, target **LOBError) bool {
	for err != nil {
		if lobErr, ok := err.(*LOBError); ok {
			*target = lobErr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Code extracts the ErrorCode from err, or "" if err is not a LOBError.
func Code(err error) ErrorCode {
	var lobErr *LOBError
	if As(err, &lobErr) {
		return lobErr.Code
	}
	return ""
}
