// Package errors provides examples of structured error handling in the extractor.
package errors_test

import (
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/ajitpratap0/hibob-extractor/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.NewConfigError("unsupported resource %q", "bonus_history")

	fmt.Println(err.Error())

	// Output:
	// config: unsupported resource "bonus_history"
}

// ExampleNewClientError shows how API failures carry their endpoint.
func ExampleNewClientError() {
	err := errors.NewClientError("people/42/work", io.ErrUnexpectedEOF)

	fmt.Println(err.Error())
	fmt.Println(errors.Endpoint(err))
	fmt.Println(errors.ExitCode(err))

	// Output:
	// client: request failed (endpoint people/42/work): unexpected EOF
	// people/42/work
	// 1
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeFile, "failed to read state file").
		WithDetail("path", "in/state.json")

	if errors.IsType(err, errors.ErrorTypeFile) {
		fmt.Println("This is a file error")
	}
	if stderrors.Is(err, io.EOF) {
		fmt.Println("Original error was EOF")
	}

	// Output:
	// This is a file error
	// Original error was EOF
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "config", err: errors.NewConfigError("bad"), want: errors.ExitUser},
		{name: "client", err: errors.NewClientError("people/search", io.EOF), want: errors.ExitUser},
		{name: "auth", err: errors.New(errors.ErrorTypeAuthentication, "denied"), want: errors.ExitUser},
		{name: "file", err: errors.New(errors.ErrorTypeFile, "disk full"), want: errors.ExitUnexpected},
		{name: "plain", err: io.EOF, want: errors.ExitUnexpected},
		{name: "wrapped client", err: fmt.Errorf("resource: %w", errors.NewClientError("x", io.EOF)), want: errors.ExitUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.ExitCode(tt.err))
		})
	}
}

func TestWrapPreservesStack(t *testing.T) {
	inner := errors.New(errors.ErrorTypeData, "bad payload")
	outer := errors.Wrap(inner, errors.ErrorTypeClient, "list employees")

	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, errors.IsType(outer, errors.ErrorTypeClient))
	assert.Nil(t, errors.Wrap(nil, errors.ErrorTypeClient, "nothing"))
}

func TestEndpointFromNestedError(t *testing.T) {
	inner := errors.NewClientError("people/7/lifecycle", io.EOF)
	outer := errors.Wrap(inner, errors.ErrorTypeClient, "fetch employee_lifecycle")

	assert.Equal(t, "people/7/lifecycle", errors.Endpoint(outer))
	assert.Equal(t, "", errors.Endpoint(io.EOF))
}

func TestConstructorStackStartsAtCaller(t *testing.T) {
	for _, err := range []*errors.Error{
		errors.New(errors.ErrorTypeData, "bad payload"),
		errors.NewConfigError("unsupported endpoint %q", "bonus_history"),
		errors.NewClientError("people/search", io.EOF),
	} {
		if assert.NotEmpty(t, err.Stack) {
			assert.True(t, strings.HasSuffix(err.Stack[0].Function, ".TestConstructorStackStartsAtCaller"),
				"top frame %s", err.Stack[0].Function)
		}
	}
}
