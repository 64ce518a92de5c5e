package tools

import (
	"fmt"
	"strings"
)

// UnknownToolError is returned by [Registry.Execute] when the model asks for a
// tool that is not registered.
type UnknownToolError struct {
	// Name is the tool name as requested by the model.
	Name string

	// Suggestion is the closest registered name, or empty when nothing is
	// similar enough.
	Suggestion string
}

func (e *UnknownToolError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("tools: unknown tool %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("tools: unknown tool %q", e.Name)
}

// InvalidArgumentsError is returned when the call arguments are not a JSON
// object or do not satisfy the tool's parameter schema. The handler is never
// invoked in that case.
type InvalidArgumentsError struct {
	Tool     string
	Problems []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("tools: invalid arguments for %q: %s", e.Tool, strings.Join(e.Problems, "; "))
}

// ToolExecutionError wraps a failure raised by a tool handler, including a
// handler that exceeded its timeout.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tools: %q (call %s) failed: %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
