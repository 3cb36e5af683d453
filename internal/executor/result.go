package executor

import "fmt"

// GraphQLError represents an error that occurred during execution
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

// ExecutionResult represents the result of executing a GraphQL query
type ExecutionResult struct {
	Data       any            `json:"data"`
	Errors     []GraphQLError `json:"errors,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// ExecutionError is the error resolvers return for problems the client
// should see. The field becomes null, the error is reported with its path
// and execution continues. Any other error goes through the rescue
// registry and is fatal when no handler claims it.
type ExecutionError struct {
	Message    string
	Extensions map[string]any
	Err        error
}

// NewExecutionError formats an ExecutionError. A %w verb is kept as the
// wrapped error.
func NewExecutionError(format string, args ...any) *ExecutionError {
	err := fmt.Errorf(format, args...)
	e := &ExecutionError{Message: err.Error()}
	if w, ok := err.(interface{ Unwrap() error }); ok {
		e.Err = w.Unwrap()
	}
	return e
}

func (e *ExecutionError) Error() string { return e.Message }
func (e *ExecutionError) Unwrap() error { return e.Err }

// WithExtension returns e with key set in its extensions.
func (e *ExecutionError) WithExtension(key string, value any) *ExecutionError {
	if e.Extensions == nil {
		e.Extensions = make(map[string]any)
	}
	e.Extensions[key] = value
	return e
}
