package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/structgraph/core"
	"github.com/hupe1980/structgraph/model"
)

// Decision is the router's verdict over the last assistant turn.
type Decision int

const (
	// DecisionContinue routes to the tools node, then back to the agent node.
	DecisionContinue Decision = iota
	// DecisionRespond routes to the respond node, then to the terminal state.
	DecisionRespond
)

// String returns the transition label for logging.
func (d Decision) String() string {
	if d == DecisionRespond {
		return "respond"
	}
	return "continue"
}

// StrategyKind selects a termination strategy at graph construction time.
type StrategyKind string

const (
	// StrategyResponseTool advertises the record schema as a callable tool
	// with forced tool choice; the graph finalizes when the model's sole
	// tool call on a turn is that tool.
	StrategyResponseTool StrategyKind = "response_tool"
	// StrategyDualModel lets the model call tools freely until it stops,
	// then hands the latest evidence to a second, schema-constrained model
	// call that emits the record directly.
	StrategyDualModel StrategyKind = "dual_model"
)

// strategy is the internal contract shared by the two termination
// strategies. The state machine itself is strategy-agnostic: it binds tools,
// routes, intercepts out-of-band calls and finalizes exclusively through
// this interface.
type strategy[T any] interface {
	// bindTools returns the declarations and tool choice for an agent turn.
	bindTools(defs []model.ToolDefinition) ([]model.ToolDefinition, model.ToolChoice)

	// route inspects the last assistant turn and selects the next node.
	route(last core.Content) (Decision, error)

	// intercept lets the strategy answer a function call out-of-band (the
	// disguised response tool is never a real registry entry). It returns a
	// synthesized tool result turn and true when the call is handled.
	intercept(call core.FunctionCall) (core.Content, bool)

	// finalize converts the gathered evidence into the record plus any
	// trailing turns the log needs to stay well-formed.
	finalize(ctx context.Context, st *State) (T, []core.Content, error)
}

// evidenceText renders a function response as the plain text replayed to the
// finalizer model.
func evidenceText(fr core.FunctionResponse) string {
	switch v := fr.Response.(type) {
	case string:
		return v
	case nil:
		return fr.Error
	default:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", v)
	}
}
