package graph

import (
	"context"
	"fmt"

	"github.com/hupe1980/structgraph/core"
	"github.com/hupe1980/structgraph/model"
	"github.com/hupe1980/structgraph/schema"
)

// responseToolStrategy implements the schema-as-tool termination strategy:
// the record schema is advertised as one more callable tool and tool choice
// is forced, so the model can only ever answer by eventually invoking it.
type responseToolStrategy[T any] struct {
	extractor *schema.Extractor[T]

	// advertised maps tool name to declaration for the current binding so
	// routing branches on the OutputSchema flag, not on name comparison.
	advertised map[string]model.ToolDefinition
}

func newResponseToolStrategy[T any](extractor *schema.Extractor[T]) *responseToolStrategy[T] {
	return &responseToolStrategy[T]{
		extractor:  extractor,
		advertised: make(map[string]model.ToolDefinition),
	}
}

// responseToolDefinition builds the disguised declaration for the record schema.
func (s *responseToolStrategy[T]) responseToolDefinition() model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        s.extractor.Name(),
			Description: "Record your final answer. Call this once all required information has been gathered.",
			Parameters:  s.extractor.Definition(),
		},
		OutputSchema: true,
	}
}

func (s *responseToolStrategy[T]) bindTools(defs []model.ToolDefinition) ([]model.ToolDefinition, model.ToolChoice) {
	bound := make([]model.ToolDefinition, 0, len(defs)+1)
	bound = append(bound, defs...)
	bound = append(bound, s.responseToolDefinition())

	for _, def := range bound {
		s.advertised[def.Function.Name] = def
	}

	return bound, model.ToolChoiceAny
}

// isOutputSchemaCall reports whether the call targets the declaration
// flagged as the disguised output schema.
func (s *responseToolStrategy[T]) isOutputSchemaCall(call core.FunctionCall) bool {
	def, ok := s.advertised[call.Name]
	return ok && def.OutputSchema
}

// route finalizes only when the response tool is the sole, exclusive request
// on the turn. A mix of the response tool and ordinary tools continues, so a
// structured answer is never emitted before all requested side information
// has been gathered.
func (s *responseToolStrategy[T]) route(last core.Content) (Decision, error) {
	calls := last.FunctionCalls()
	if len(calls) == 0 {
		return DecisionContinue, &BackendError{
			Err: fmt.Errorf("model returned no tool calls despite forced tool choice"),
		}
	}
	if len(calls) == 1 && s.isOutputSchemaCall(calls[0]) {
		return DecisionRespond, nil
	}
	return DecisionContinue, nil
}

// intercept answers a response-tool call that arrived alongside ordinary
// tool calls. The call is never executed; a synthesized result keeps the
// call/response pairing intact while the loop continues.
func (s *responseToolStrategy[T]) intercept(call core.FunctionCall) (core.Content, bool) {
	if !s.isOutputSchemaCall(call) {
		return core.Content{}, false
	}
	return core.NewToolResultContent(
		call.ID,
		call.Name,
		"Final answer not accepted yet: other tool calls are still pending on this turn.",
		nil,
	), true
}

// finalize decodes the sole response-tool call's arguments into the record
// and synthesizes the acknowledging tool result the pairing invariant
// demands, even though the call is never executed as a function.
func (s *responseToolStrategy[T]) finalize(_ context.Context, st *State) (T, []core.Content, error) {
	var zero T

	last, ok := st.LastAssistant()
	if !ok {
		return zero, nil, &StructuredOutputError{Err: fmt.Errorf("no assistant turn to finalize")}
	}
	calls := last.FunctionCalls()
	if len(calls) != 1 {
		return zero, nil, &StructuredOutputError{
			Err: fmt.Errorf("expected exactly one response tool call, got %d", len(calls)),
		}
	}
	call := calls[0]

	record, err := s.extractor.Decode([]byte(call.Arguments))
	if err != nil {
		return zero, nil, &StructuredOutputError{Raw: call.Arguments, Err: err}
	}

	ack := core.NewToolResultContent(call.ID, call.Name, "Final response recorded.", nil)
	return record, []core.Content{ack}, nil
}
