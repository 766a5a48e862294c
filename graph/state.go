package graph

import (
	"encoding/json"

	"github.com/hupe1980/structgraph/core"
)

// State is the conversation state owned by exactly one in-flight invocation.
// Messages is append-only; Final is set exactly once, at termination. A
// State is created fresh per Invoke and discarded afterwards; it is never
// shared across invocations.
type State struct {
	Messages []core.Content  `json:"messages"`
	Final    json.RawMessage `json:"final,omitempty"`
}

// newState seeds a fresh conversation with a single user turn.
func newState(seedText string) *State {
	return &State{Messages: []core.Content{core.NewUserContent(seedText)}}
}

// Append adds turns to the message log.
func (s *State) Append(turns ...core.Content) {
	s.Messages = append(s.Messages, turns...)
}

// LastAssistant returns the most recent assistant turn.
func (s *State) LastAssistant() (core.Content, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == core.RoleAssistant {
			return s.Messages[i], true
		}
	}
	return core.Content{}, false
}

// LatestToolResult returns the most recent function response in the log.
func (s *State) LatestToolResult() (core.FunctionResponse, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role != core.RoleTool {
			continue
		}
		if responses := s.Messages[i].FunctionResponses(); len(responses) > 0 {
			return responses[len(responses)-1], true
		}
	}
	return core.FunctionResponse{}, false
}

// setFinal records the terminal structured record. It is called exactly once
// per invocation, on the respond node.
func (s *State) setFinal(record any) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.Final = raw
	return nil
}
