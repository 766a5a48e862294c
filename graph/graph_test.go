package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hupe1980/structgraph/core"
	"github.com/hupe1980/structgraph/model"
	"github.com/hupe1980/structgraph/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -------------------- Fixtures --------------------

type weatherRecord struct {
	Temperature   float64 `json:"temperature" description:"Temperature in degrees Fahrenheit"`
	WindDirection string  `json:"wind_direction" description:"Compass direction of the wind"`
	WindSpeed     float64 `json:"wind_speed" description:"Wind speed in mph"`
}

// weatherRegistry builds the two deterministic lookup tools used across the
// graph tests: a geocoder and a coordinate based weather lookup.
func weatherRegistry(t *testing.T) *tool.Registry {
	t.Helper()

	latLng := tool.NewFunctionTool(
		"get_lat_lng",
		"Get the latitude and longitude of a location",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location_description": map[string]any{"type": "string"},
			},
			"required": []string{"location_description"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			if args["location_description"] == "Lille" {
				return map[string]any{"lat": 50.63, "lng": 3.06}, nil
			}
			return nil, fmt.Errorf("unknown location %q", args["location_description"])
		},
	)

	weather := tool.NewFunctionTool(
		"get_weather",
		"Get the weather at a location",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"lat": map[string]any{"type": "number"},
				"lng": map[string]any{"type": "number"},
			},
			"required": []string{"lat", "lng"},
		},
		func(_ context.Context, _ map[string]any) (any, error) {
			return "Temperature: 65°F, Wind: SE at 3 mph", nil
		},
	)

	registry, err := tool.NewRegistry(latLng, weather)
	require.NoError(t, err)
	return registry
}

const finalArgs = `{"temperature":65,"wind_direction":"SE","wind_speed":3}`

// responseToolScript is the canonical happy path for the response tool
// strategy: geocode, look up the weather, then record the final answer.
func responseToolScript() []model.ScriptedTurn {
	return []model.ScriptedTurn{
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-1", Name: "get_lat_lng", Arguments: `{"location_description":"Lille"}`,
		}),
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-2", Name: "get_weather", Arguments: `{"lat":50.63,"lng":3.06}`,
		}),
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-3", Name: "final_response", Arguments: finalArgs,
		}),
	}
}

// assertPairing verifies that every function call of every assistant turn is
// answered by exactly one function response with the same id before the next
// assistant turn.
func assertPairing(t *testing.T, messages []core.Content) {
	t.Helper()

	pending := map[string]int{}
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleAssistant:
			for id, n := range pending {
				assert.Zerof(t, n, "call %s unanswered before next assistant turn", id)
			}
			pending = map[string]int{}
			for _, fc := range msg.FunctionCalls() {
				pending[fc.ID]++
			}
		case core.RoleTool:
			for _, fr := range msg.FunctionResponses() {
				n, known := pending[fr.ID]
				assert.Truef(t, known, "response %s answers no pending call", fr.ID)
				assert.Equalf(t, 1, n, "call %s answered more than once", fr.ID)
				pending[fr.ID] = n - 1
			}
		}
	}
	for id, n := range pending {
		assert.Zerof(t, n, "call %s unanswered at end of conversation", id)
	}
}

// -------------------- Response Tool Strategy --------------------

func TestGraph_ResponseTool_WeatherScenario(t *testing.T) {
	m := model.NewScriptedModel(responseToolScript()...)
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	record, st, err := g.InvokeWithTranscript(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)

	assert.Equal(t, 65.0, record.Temperature)
	assert.Equal(t, "SE", record.WindDirection)
	assert.Equal(t, 3.0, record.WindSpeed)

	assertPairing(t, st.Messages)
	assert.JSONEq(t, finalArgs, string(st.Final))

	// The terminating call is acknowledged so the log stays well-formed.
	lastTurn := st.Messages[len(st.Messages)-1]
	assert.Equal(t, core.RoleTool, lastTurn.Role)
	responses := lastTurn.FunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "call-3", responses[0].ID)
}

func TestGraph_ResponseTool_AdvertisesSchemaWithForcedChoice(t *testing.T) {
	m := model.NewScriptedModel(responseToolScript()...)
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)

	reqs := m.Requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, model.ToolChoiceAny, reqs[0].ToolChoice)

	names := make([]string, 0, len(reqs[0].Tools))
	sawSchemaTool := false
	for _, def := range reqs[0].Tools {
		names = append(names, def.Function.Name)
		if def.OutputSchema {
			sawSchemaTool = true
			assert.Equal(t, "final_response", def.Function.Name)
		}
	}
	assert.Contains(t, names, "get_lat_lng")
	assert.Contains(t, names, "get_weather")
	assert.True(t, sawSchemaTool)
}

func TestGraph_ResponseTool_MixedTurnContinues(t *testing.T) {
	// First turn mixes the response tool with an ordinary call; only the
	// second, exclusive call may terminate.
	m := model.NewScriptedModel(
		model.ToolCallTurn(
			core.FunctionCall{ID: "call-1", Name: "final_response", Arguments: finalArgs},
			core.FunctionCall{ID: "call-2", Name: "get_weather", Arguments: `{"lat":50.63,"lng":3.06}`},
		),
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-3", Name: "final_response", Arguments: finalArgs,
		}),
	)
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	record, st, err := g.InvokeWithTranscript(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)
	assert.Equal(t, "SE", record.WindDirection)
	assert.Len(t, m.Requests(), 2)

	assertPairing(t, st.Messages)

	// The premature response tool call got a synthesized result, not a decode.
	var premature core.FunctionResponse
	found := false
	for _, msg := range st.Messages {
		for _, fr := range msg.FunctionResponses() {
			if fr.ID == "call-1" {
				premature = fr
				found = true
			}
		}
	}
	require.True(t, found)
	assert.Contains(t, premature.Response, "not accepted yet")
}

func TestGraph_ResponseTool_NoToolCallsIsBackendError(t *testing.T) {
	m := model.NewScriptedModel(model.AssistantTurn("The weather is nice."))
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
}

func TestGraph_ResponseTool_InvalidRecordRejected(t *testing.T) {
	m := model.NewScriptedModel(model.ToolCallTurn(core.FunctionCall{
		ID: "call-1", Name: "final_response", Arguments: `{"temperature":65}`,
	}))
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	var outputErr *StructuredOutputError
	require.ErrorAs(t, err, &outputErr)
	assert.Equal(t, `{"temperature":65}`, outputErr.Raw)
}

// -------------------- Tool Failure Propagation --------------------

func TestGraph_ToolExecutionErrorPropagates(t *testing.T) {
	m := model.NewScriptedModel(model.ToolCallTurn(core.FunctionCall{
		ID: "call-1", Name: "get_lat_lng", Arguments: `{"location_description":"Atlantis"}`,
	}))
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Atlantis?")
	toolErr, ok := tool.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, tool.CodeExecution, toolErr.Code)
	assert.Equal(t, "get_lat_lng", toolErr.Tool)
}

func TestGraph_UnknownToolErrorPropagates(t *testing.T) {
	m := model.NewScriptedModel(model.ToolCallTurn(core.FunctionCall{
		ID: "call-1", Name: "get_tides", Arguments: `{}`,
	}))
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	toolErr, ok := tool.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, tool.CodeUnknownTool, toolErr.Code)
}

func TestGraph_ToolArgumentErrorPropagates(t *testing.T) {
	m := model.NewScriptedModel(model.ToolCallTurn(core.FunctionCall{
		ID: "call-1", Name: "get_weather", Arguments: `{"lat":"north"}`,
	}))
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	toolErr, ok := tool.AsToolError(err)
	require.True(t, ok)
	assert.Equal(t, tool.CodeValidation, toolErr.Code)
}

func TestGraph_AgentModelErrorWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	m := model.NewScriptedModel(model.ScriptedTurn{Err: cause})
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.ErrorIs(t, err, cause)
}

// -------------------- Loop Guard & Cancellation --------------------

func TestGraph_LoopLimit(t *testing.T) {
	// The script keeps asking for tools beyond the budget.
	turns := make([]model.ScriptedTurn, 0, 5)
	for i := 0; i < 5; i++ {
		turns = append(turns, model.ToolCallTurn(core.FunctionCall{
			ID: fmt.Sprintf("call-%d", i), Name: "get_weather", Arguments: `{"lat":1,"lng":2}`,
		}))
	}
	m := model.NewScriptedModel(turns...)
	g, err := New[weatherRecord](m, weatherRegistry(t), func(o *Options) {
		o.MaxIterations = 2
	})
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	var limitErr *LoopLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Limit)
	assert.Len(t, m.Requests(), 2)
}

func TestGraph_ContextCancellation(t *testing.T) {
	m := model.NewScriptedModel(responseToolScript()...)
	g, err := New[weatherRecord](m, weatherRegistry(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = g.Invoke(ctx, "What is the weather like in Lille?")
	assert.ErrorIs(t, err, context.Canceled)
}

// -------------------- Parallel Tool Execution --------------------

func TestGraph_ParallelResultsKeepCallOrder(t *testing.T) {
	m := model.NewScriptedModel(
		model.ToolCallTurn(
			core.FunctionCall{ID: "call-1", Name: "get_lat_lng", Arguments: `{"location_description":"Lille"}`},
			core.FunctionCall{ID: "call-2", Name: "get_weather", Arguments: `{"lat":50.63,"lng":3.06}`},
		),
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-3", Name: "final_response", Arguments: finalArgs,
		}),
	)
	g, err := New[weatherRecord](m, weatherRegistry(t), func(o *Options) {
		o.MaxParallel = 4
	})
	require.NoError(t, err)

	_, st, err := g.InvokeWithTranscript(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)
	assertPairing(t, st.Messages)

	var ids []string
	for _, msg := range st.Messages {
		if msg.Role != core.RoleTool {
			continue
		}
		for _, fr := range msg.FunctionResponses() {
			ids = append(ids, fr.ID)
		}
	}
	assert.Equal(t, []string{"call-1", "call-2", "call-3"}, ids)
}

// -------------------- Dual Model Strategy --------------------

func TestGraph_DualModel_WeatherScenario(t *testing.T) {
	agent := model.NewScriptedModel(
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-1", Name: "get_lat_lng", Arguments: `{"location_description":"Lille"}`,
		}),
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-2", Name: "get_weather", Arguments: `{"lat":50.63,"lng":3.06}`,
		}),
		model.AssistantTurn("It is 65°F in Lille with a gentle south-easterly wind."),
	)
	finalizer := model.NewScriptedModel(model.AssistantTurn(finalArgs))

	g, err := New[weatherRecord](agent, weatherRegistry(t), func(o *Options) {
		o.Strategy = StrategyDualModel
		o.FinalizerModel = finalizer
	})
	require.NoError(t, err)

	record, st, err := g.InvokeWithTranscript(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)
	assert.Equal(t, 65.0, record.Temperature)
	assert.Equal(t, "SE", record.WindDirection)
	assertPairing(t, st.Messages)

	// The agent sees the registry unchanged, with free tool choice.
	agentReqs := agent.Requests()
	require.NotEmpty(t, agentReqs)
	assert.Equal(t, model.ToolChoiceAuto, agentReqs[0].ToolChoice)
	assert.Len(t, agentReqs[0].Tools, 2)

	// The finalizer gets exactly one fresh turn replaying only the latest
	// tool result, constrained by the record schema.
	finalReqs := finalizer.Requests()
	require.Len(t, finalReqs, 1)
	require.NotNil(t, finalReqs[0].ResponseFormat)
	assert.Equal(t, "final_response", finalReqs[0].ResponseFormat.Name)
	assert.Empty(t, finalReqs[0].Tools)
	require.Len(t, finalReqs[0].Contents, 1)
	assert.Contains(t, finalReqs[0].Contents[0].Text(), "Temperature: 65°F, Wind: SE at 3 mph")
}

func TestGraph_DualModel_FinalizerOutputRejected(t *testing.T) {
	agent := model.NewScriptedModel(
		model.ToolCallTurn(core.FunctionCall{
			ID: "call-1", Name: "get_weather", Arguments: `{"lat":50.63,"lng":3.06}`,
		}),
		model.AssistantTurn("done"),
	)
	finalizer := model.NewScriptedModel(model.AssistantTurn(`{"temperature":"warm"}`))

	g, err := New[weatherRecord](agent, weatherRegistry(t), func(o *Options) {
		o.Strategy = StrategyDualModel
		o.FinalizerModel = finalizer
	})
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	var outputErr *StructuredOutputError
	require.ErrorAs(t, err, &outputErr)
	assert.Equal(t, `{"temperature":"warm"}`, outputErr.Raw)
}

func TestGraph_DualModel_FallsBackToAssistantText(t *testing.T) {
	// No tool was ever called; the last assistant text is the evidence.
	agent := model.NewScriptedModel(model.AssistantTurn("It is 65°F, wind SE at 3 mph."))
	finalizer := model.NewScriptedModel(model.AssistantTurn(finalArgs))

	g, err := New[weatherRecord](agent, weatherRegistry(t), func(o *Options) {
		o.Strategy = StrategyDualModel
		o.FinalizerModel = finalizer
	})
	require.NoError(t, err)

	record, err := g.Invoke(context.Background(), "What is the weather like in Lille?")
	require.NoError(t, err)
	assert.Equal(t, "SE", record.WindDirection)

	finalReqs := finalizer.Requests()
	require.Len(t, finalReqs, 1)
	assert.Contains(t, finalReqs[0].Contents[0].Text(), "wind SE at 3 mph")
}

func TestGraph_DualModel_FinalizerErrorWrapped(t *testing.T) {
	agent := model.NewScriptedModel(model.AssistantTurn("It is 65°F."))
	cause := errors.New("rate limited")
	finalizer := model.NewScriptedModel(model.ScriptedTurn{Err: cause})

	g, err := New[weatherRecord](agent, weatherRegistry(t), func(o *Options) {
		o.Strategy = StrategyDualModel
		o.FinalizerModel = finalizer
	})
	require.NoError(t, err)

	_, err = g.Invoke(context.Background(), "What is the weather like in Lille?")
	var backendErr *BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.ErrorIs(t, err, cause)
}

// -------------------- Determinism --------------------

func TestGraph_IdempotentUnderIdenticalScripts(t *testing.T) {
	run := func() ([]byte, error) {
		m := model.NewScriptedModel(responseToolScript()...)
		g, err := New[weatherRecord](m, weatherRegistry(t))
		if err != nil {
			return nil, err
		}
		record, err := g.Invoke(context.Background(), "What is the weather like in Lille?")
		if err != nil {
			return nil, err
		}
		return json.Marshal(record)
	}

	first, err := run()
	require.NoError(t, err)
	second, err := run()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// -------------------- Construction --------------------

func TestGraph_NewValidation(t *testing.T) {
	registry := weatherRegistry(t)

	_, err := New[weatherRecord](nil, registry)
	assert.Error(t, err)

	_, err = New[weatherRecord](model.NewScriptedModel(), nil)
	assert.Error(t, err)

	_, err = New[weatherRecord](model.NewScriptedModel(), registry, func(o *Options) {
		o.Strategy = StrategyKind("majority_vote")
	})
	assert.Error(t, err)
}
