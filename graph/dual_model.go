package graph

import (
	"context"
	"fmt"

	"github.com/hupe1980/structgraph/core"
	"github.com/hupe1980/structgraph/internal/util"
	"github.com/hupe1980/structgraph/model"
	"github.com/hupe1980/structgraph/schema"
)

// DefaultEvidencePrompt frames the replayed evidence for the schema-constrained
// finalizer call. Only the latest tool result is replayed, not the full log,
// which keeps the second call cheap.
const DefaultEvidencePrompt = "Answer the user's question using only the following information:\n\n{{.Evidence}}"

// dualModelStrategy implements the two-phase termination strategy: the agent
// model calls tools freely until it stops on its own, then a second,
// schema-constrained model call converts the gathered evidence into the record.
type dualModelStrategy[T any] struct {
	extractor      *schema.Extractor[T]
	finalizer      model.Model
	evidencePrompt string
	instructions   string
}

func newDualModelStrategy[T any](
	extractor *schema.Extractor[T],
	finalizer model.Model,
	evidencePrompt, instructions string,
) *dualModelStrategy[T] {
	if evidencePrompt == "" {
		evidencePrompt = DefaultEvidencePrompt
	}
	return &dualModelStrategy[T]{
		extractor:      extractor,
		finalizer:      finalizer,
		evidencePrompt: evidencePrompt,
		instructions:   instructions,
	}
}

// bindTools advertises the registry unchanged; termination is driven purely
// by the model's own choice to stop calling tools.
func (s *dualModelStrategy[T]) bindTools(defs []model.ToolDefinition) ([]model.ToolDefinition, model.ToolChoice) {
	return defs, model.ToolChoiceAuto
}

func (s *dualModelStrategy[T]) route(last core.Content) (Decision, error) {
	if len(last.FunctionCalls()) > 0 {
		return DecisionContinue, nil
	}
	return DecisionRespond, nil
}

// intercept never handles calls; every advertised tool is a real registry entry.
func (s *dualModelStrategy[T]) intercept(core.FunctionCall) (core.Content, bool) {
	return core.Content{}, false
}

// finalize replays the most recent tool result as a fresh user turn to the
// schema-constrained finalizer model and decodes the reply as the record. If
// the agent never called a tool, the last assistant text is the evidence.
func (s *dualModelStrategy[T]) finalize(ctx context.Context, st *State) (T, []core.Content, error) {
	var zero T

	var evidence string
	if fr, ok := st.LatestToolResult(); ok {
		evidence = evidenceText(fr)
	} else if last, ok := st.LastAssistant(); ok {
		evidence = last.Text()
	}
	if evidence == "" {
		return zero, nil, &StructuredOutputError{Err: fmt.Errorf("no evidence available to finalize")}
	}

	prompt, err := util.RenderTemplate(s.evidencePrompt, map[string]any{"Evidence": evidence})
	if err != nil {
		return zero, nil, &StructuredOutputError{Err: fmt.Errorf("evidence prompt template: %w", err)}
	}

	resp, err := s.finalizer.Generate(ctx, model.Request{
		Instructions: s.instructions,
		Contents:     []core.Content{core.NewUserContent(prompt)},
		ResponseFormat: &model.ResponseFormat{
			Name:   s.extractor.Name(),
			Schema: s.extractor.Definition(),
		},
	})
	if err != nil {
		return zero, nil, &BackendError{Err: err}
	}

	raw := resp.Content.Text()
	record, decodeErr := s.extractor.Decode([]byte(raw))
	if decodeErr != nil {
		return zero, nil, &StructuredOutputError{Raw: raw, Err: decodeErr}
	}
	return record, nil, nil
}
