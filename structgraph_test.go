package structgraph

import (
	"context"
	"testing"

	"github.com/hupe1980/structgraph/core"
	"github.com/hupe1980/structgraph/graph"
	"github.com/hupe1980/structgraph/model"
	"github.com/hupe1980/structgraph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherRecord struct {
	Temperature   float64 `json:"temperature"`
	WindDirection string  `json:"wind_direction"`
	WindSpeed     float64 `json:"wind_speed"`
}

func weatherTool(t *testing.T) tool.Tool {
	t.Helper()
	return tool.NewFunctionTool(
		"get_weather",
		"Get the weather for a city",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []string{"city"},
		},
		func(_ context.Context, _ map[string]any) (any, error) {
			return "Temperature: 65°F, Wind: SE at 3 mph", nil
		},
	)
}

func TestAgent_EndToEnd(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-1", Name: "get_weather", Arguments: `{"city":"Lille"}`,
		}),
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-2", Name: "final_response",
			Arguments: `{"temperature":65,"wind_direction":"SE","wind_speed":3}`,
		}),
	)

	agent, err := New[weatherRecord](m, []tool.Tool{weatherTool(t)}, func(o *Options) {
		o.Instructions = "You are a weather assistant."
	})
	require.NoError(t, err)

	record, err := agent.Invoke(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)
	assert.Equal(t, 65.0, record.Temperature)
	assert.Equal(t, "SE", record.WindDirection)
	assert.Equal(t, 3.0, record.WindSpeed)

	reqs := m.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "You are a weather assistant.", reqs[0].Instructions)
}

func TestAgent_DefaultsAndAccessors(t *testing.T) {
	agent, err := New[weatherRecord](model.NewScriptedModel(), []tool.Tool{weatherTool(t)})
	require.NoError(t, err)

	assert.NotNil(t, agent.Graph())
	assert.Equal(t, []string{"get_weather"}, agent.Registry().Names())
}

func TestAgent_RejectsDuplicateTools(t *testing.T) {
	_, err := New[weatherRecord](model.NewScriptedModel(), []tool.Tool{weatherTool(t), weatherTool(t)})
	assert.Error(t, err)
}

func TestAgent_DualModelStrategy(t *testing.T) {
	agent := model.NewScriptedModel(
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-1", Name: "get_weather", Arguments: `{"city":"Lille"}`,
		}),
		model.AssistantTurn("All gathered."),
	)
	finalizer := model.NewScriptedModel(
		model.AssistantTurn(`{"temperature":65,"wind_direction":"SE","wind_speed":3}`),
	)

	a, err := New[weatherRecord](agent, []tool.Tool{weatherTool(t)}, func(o *Options) {
		o.Strategy = graph.StrategyDualModel
		o.FinalizerModel = finalizer
	})
	require.NoError(t, err)

	record, err := a.Invoke(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)
	assert.Equal(t, "SE", record.WindDirection)
}
