// Package errors provides structured error handling for the extractor
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors, such as an unsupported resource name
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeClient represents API failures that survived the client's retry loop
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeAuthentication represents rejected credentials
	ErrorTypeAuthentication ErrorType = "authentication"
	// ErrorTypeData represents malformed payloads or state
	ErrorTypeData ErrorType = "data"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
)

// Exit codes used by the CLI.
const (
	ExitUser       = 1
	ExitUnexpected = 2
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if endpoint, ok := e.Details["endpoint"]; ok {
		msg = fmt.Sprintf("%s (endpoint %v)", msg, endpoint)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// NewConfigError reports an invalid or unsupported configuration value.
func NewConfigError(format string, args ...interface{}) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// NewClientError wraps a failed API call, recording the endpoint that failed.
func NewClientError(endpoint string, cause error) *Error {
	e := &Error{
		Type:    ErrorTypeClient,
		Message: "request failed",
		Cause:   cause,
		Stack:   captureStack(2),
	}
	return e.WithDetail("endpoint", endpoint)
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// Endpoint returns the endpoint detail of the outermost structured error carrying one.
func Endpoint(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if endpoint, ok := e.Details["endpoint"].(string); ok {
			return endpoint
		}
		err = e.Cause
	}
	return ""
}

// IsUserError reports whether the failure was caused by the user's setup
// (configuration, credentials, API access) rather than a defect.
func IsUserError(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeConfig, ErrorTypeClient, ErrorTypeAuthentication:
		return true
	default:
		return false
	}
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if IsUserError(err) {
		return ExitUser
	}
	return ExitUnexpected
}

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
