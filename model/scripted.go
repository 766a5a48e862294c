package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/structgraph/core"
)

// ScriptedTurn configures one model turn in a scripted sequence.
type ScriptedTurn struct {
	Content core.Content
	Err     error
}

// ScriptedModel is a deterministic in-memory Model useful for tests and
// examples. Turns are replayed in registration order; generating past the
// end of the script is an error. Every received Request is recorded for
// later inspection.
type ScriptedModel struct {
	mu       sync.Mutex
	index    int
	turns    []ScriptedTurn
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel replaying the given turns.
func NewScriptedModel(turns ...ScriptedTurn) *ScriptedModel {
	cloned := make([]ScriptedTurn, len(turns))
	copy(cloned, turns)
	return &ScriptedModel{turns: cloned}
}

// AssistantTurn is a convenience constructing a plain text scripted turn.
func AssistantTurn(text string) ScriptedTurn {
	return ScriptedTurn{Content: core.NewAssistantContent(text)}
}

// ToolCallTurn is a convenience constructing a scripted turn requesting the
// given function calls.
func ToolCallTurn(calls ...core.FunctionCall) ScriptedTurn {
	parts := make([]core.Part, 0, len(calls))
	for _, fc := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}
	return ScriptedTurn{Content: core.Content{Role: core.RoleAssistant, Parts: parts}}
}

// Generate implements Model by replaying the next scripted turn.
func (m *ScriptedModel) Generate(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.index >= len(m.turns) {
		return nil, fmt.Errorf("script exhausted at turn %d", m.index+1)
	}
	turn := m.turns[m.index]
	m.index++

	if turn.Err != nil {
		return nil, turn.Err
	}

	content := turn.Content
	if content.Role == "" {
		content.Role = core.RoleAssistant
	}

	finishReason := "stop"
	if len(content.FunctionCalls()) > 0 {
		finishReason = "tool_calls"
	}

	return &Response{Content: content, FinishReason: finishReason}, nil
}

// Requests returns a copy of all requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Info implements Model.
func (m *ScriptedModel) Info() Info {
	return Info{Name: "scripted", Provider: "scripted", SupportsTools: true}
}
