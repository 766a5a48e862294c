// Package tool implements the function / tool calling subsystem that lets the
// graph invoke structured capabilities (APIs, computations, lookups) with
// schema validated arguments and consistent error handling.
package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/structgraph/internal/util"
)

// Tool defines the interface for extending the agent with external functions.
//
// Tools are registered with a Registry to enable function calling. Each tool
// is a pure function from validated arguments to a JSON-serializable result;
// tools never touch orchestration state.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions (snake_case names recommended)
//   - Define proper JSON schema for parameters
//   - Be safe for concurrent use; calls within one turn may run in parallel
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]any

	// Call executes the tool with structured arguments. Arguments are parsed
	// from JSON and validated against the tool's schema before invocation.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used to categorize tool failures. The graph propagates them
// unchanged to the caller; no retry or fallback happens internally.
const (
	// CodeUnknownTool marks a call naming a tool absent from the registry.
	CodeUnknownTool = "UNKNOWN_TOOL"
	// CodeValidation marks arguments that do not satisfy the parameter schema.
	CodeValidation = "VALIDATION_ERROR"
	// CodeExecution marks a failure (or recovered panic) inside the tool itself.
	CodeExecution = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool lookup or execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// AsToolError unwraps err into a *ToolError if one is present in its chain.
func AsToolError(err error) (*ToolError, bool) {
	var te *ToolError
	ok := errors.As(err, &te)
	return te, ok
}
