package model

import (
	"context"

	"github.com/hupe1980/structgraph/core"
)

// ToolChoice selects how strongly tool use is bound on a model turn.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model choose freely between plain text and
	// zero or more tool calls.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceAny requires the model to emit at least one tool call from
	// the advertised set on this turn.
	ToolChoiceAny ToolChoice = "any"
)

// ToolDefinition declaratively exposes a callable function to the model.
// OutputSchema marks a declaration that is really the structured-output
// schema disguised as a tool; the router branches on this flag rather than
// on name comparison.
type ToolDefinition struct {
	Type         string             `json:"type"` // "function"
	Function     FunctionDefinition `json:"function"`
	OutputSchema bool               `json:"-"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ResponseFormat constrains a model turn to emit JSON conforming to Schema
// directly, with no tool-call indirection. Used by the dual-model finalizer.
type ResponseFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

// Request captures the normalized model input produced by the graph.
type Request struct {
	Instructions   string           `json:"instructions"` // System prompt for the model
	Contents       []core.Content   `json:"contents"`     // Full message log in order
	Tools          []ToolDefinition `json:"tools,omitempty"`
	ToolChoice     ToolChoice       `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is exactly one assistant turn produced by a model call.
type Response struct {
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the graph to drive generation.
// Generate performs a single blocking chat completion; implementations must
// respect ctx cancellation and return errors unwrapped (the graph surfaces
// them as backend failures, no retry happens below the caller).
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}
