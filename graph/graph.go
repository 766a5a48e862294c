package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/structgraph/core"
	"github.com/hupe1980/structgraph/logging"
	"github.com/hupe1980/structgraph/model"
	"github.com/hupe1980/structgraph/schema"
	"github.com/hupe1980/structgraph/tool"
)

// DefaultMaxIterations bounds the agent loop. The underlying design has no
// natural bound: an agent that never stops requesting ordinary tools would
// never terminate, so the graph enforces an explicit budget. Raise it via
// WithMaxIterations for long tool chains; 0 disables the guard entirely.
const DefaultMaxIterations = 25

// DefaultSchemaName is the name under which the record schema is advertised
// to models (as the disguised response tool or as the response format).
const DefaultSchemaName = "final_response"

// Options configures a Graph instance.
type Options struct {
	// Strategy selects the termination strategy (default StrategyResponseTool).
	Strategy StrategyKind

	// Instructions is the system prompt for the agent model.
	Instructions string

	// SchemaName names the record schema advertised to models.
	SchemaName string

	// MaxIterations bounds the number of agent turns per invocation.
	// 0 disables the bound (not recommended).
	MaxIterations int

	// MaxParallel bounds concurrent tool execution within one turn.
	// <=1 executes sequentially. Result ordering is deterministic either way.
	MaxParallel int

	// FinalizerModel is the schema-constrained model used by
	// StrategyDualModel. Defaults to the agent model.
	FinalizerModel model.Model

	// FinalizerInstructions is the system prompt for the finalizer call
	// (StrategyDualModel only).
	FinalizerInstructions string

	// EvidencePrompt is a text/template rendered with {{.Evidence}} to frame
	// the replayed tool result for the finalizer call (StrategyDualModel
	// only). Defaults to DefaultEvidencePrompt.
	EvidencePrompt string

	// Logger receives structured events (defaults to NoOpLogger).
	Logger logging.Logger
}

// Graph is the orchestration state machine driving one model and one tool
// registry toward a validated record of type T. A Graph is immutable after
// construction and safe for concurrent Invokes; each invocation owns a fresh
// State.
type Graph[T any] struct {
	model         model.Model
	registry      *tool.Registry
	strategy      strategy[T]
	executor      *executor
	boundDefs     []model.ToolDefinition
	toolChoice    model.ToolChoice
	instructions  string
	maxIterations int
	logger        logging.Logger
}

// New constructs a Graph for record type T. The record schema is derived
// from T by reflection, strict: all fields required, no additional fields.
func New[T any](m model.Model, registry *tool.Registry, optFns ...func(o *Options)) (*Graph[T], error) {
	if m == nil {
		return nil, fmt.Errorf("model must not be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry must not be nil")
	}

	opts := Options{
		Strategy:      StrategyResponseTool,
		SchemaName:    DefaultSchemaName,
		MaxIterations: DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	extractor, err := schema.NewExtractor[T](opts.SchemaName)
	if err != nil {
		return nil, err
	}

	var strat strategy[T]
	switch opts.Strategy {
	case StrategyResponseTool:
		strat = newResponseToolStrategy[T](extractor)
	case StrategyDualModel:
		finalizer := opts.FinalizerModel
		if finalizer == nil {
			finalizer = m
		}
		strat = newDualModelStrategy[T](extractor, finalizer, opts.EvidencePrompt, opts.FinalizerInstructions)
	default:
		return nil, fmt.Errorf("unknown strategy %q", opts.Strategy)
	}

	// Tool binding is computed once: the advertised set is fixed for the
	// lifetime of the graph and Invoke must stay safe for concurrent use.
	boundDefs, toolChoice := strat.bindTools(registry.Definitions())

	return &Graph[T]{
		model:         m,
		registry:      registry,
		strategy:      strat,
		executor:      newExecutor(registry, opts.MaxParallel, opts.Logger),
		boundDefs:     boundDefs,
		toolChoice:    toolChoice,
		instructions:  opts.Instructions,
		maxIterations: opts.MaxIterations,
		logger:        opts.Logger,
	}, nil
}

// Invoke runs the graph to completion for one seed user message and returns
// the validated record. Every failure aborts the invocation and is
// propagated untranslated: *BackendError, *tool.ToolError,
// *StructuredOutputError or *LoopLimitError.
func (g *Graph[T]) Invoke(ctx context.Context, seedText string) (T, error) {
	record, _, err := g.run(ctx, seedText)
	return record, err
}

// InvokeWithTranscript runs the graph and additionally returns the terminal
// conversation state for inspection or debugging.
func (g *Graph[T]) InvokeWithTranscript(ctx context.Context, seedText string) (T, *State, error) {
	return g.run(ctx, seedText)
}

// run walks the state machine: agent -> router -> {tools -> agent | respond -> end}.
func (g *Graph[T]) run(ctx context.Context, seedText string) (T, *State, error) {
	var zero T

	invocationID := core.NewID()
	st := newState(seedText)

	g.logger.Debug(
		"graph.invoke.start",
		"invocation_id", invocationID,
		"tools", len(g.boundDefs),
		"tool_choice", string(g.toolChoice),
	)

	for iteration := 1; ; iteration++ {
		if g.maxIterations > 0 && iteration > g.maxIterations {
			return zero, st, &LoopLimitError{Limit: g.maxIterations}
		}
		if err := ctx.Err(); err != nil {
			return zero, st, err
		}

		assistant, err := g.agentTurn(ctx, st, invocationID, iteration)
		if err != nil {
			return zero, st, err
		}

		decision, err := g.strategy.route(assistant)
		if err != nil {
			return zero, st, err
		}

		g.logger.Debug(
			"graph.route",
			"invocation_id", invocationID,
			"iteration", iteration,
			"decision", decision.String(),
			"fn_calls", len(assistant.FunctionCalls()),
		)

		if decision == DecisionContinue {
			results, err := g.executor.execute(ctx, assistant.FunctionCalls(), g.strategy.intercept)
			if err != nil {
				return zero, st, err
			}
			st.Append(results...)
			continue
		}

		record, trailing, err := g.strategy.finalize(ctx, st)
		if err != nil {
			return zero, st, err
		}
		st.Append(trailing...)
		if err := st.setFinal(record); err != nil {
			return zero, st, &StructuredOutputError{Err: err}
		}

		g.logger.Info(
			"graph.invoke.complete",
			"invocation_id", invocationID,
			"iterations", iteration,
		)
		return record, st, nil
	}
}

// agentTurn performs one model call and appends the resulting assistant turn.
func (g *Graph[T]) agentTurn(
	ctx context.Context,
	st *State,
	invocationID string,
	iteration int,
) (core.Content, error) {
	start := time.Now()

	resp, err := g.model.Generate(ctx, model.Request{
		Instructions: g.instructions,
		Contents:     st.Messages,
		Tools:        g.boundDefs,
		ToolChoice:   g.toolChoice,
	})

	g.logger.Debug(
		"graph.node.agent",
		"invocation_id", invocationID,
		"iteration", iteration,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		return core.Content{}, &BackendError{Err: err}
	}

	assistant := resp.Content
	if assistant.Role == "" {
		assistant.Role = core.RoleAssistant
	}
	st.Append(assistant)
	return assistant, nil
}
