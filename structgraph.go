// Package structgraph provides a high-level façade over the orchestration
// graph for the common case: one model, a handful of tools and a record type.
// Most applications interact with this package by:
//  1. Defining a record struct with json tags (the structured output schema)
//  2. Creating an agent via New() with a model and tools
//  3. Calling Invoke with the user's question
//
// The façade delegates orchestration to graph.Graph while keeping setup and
// usage ergonomics concise. Defaults are safe for local development and
// testing; production deployments typically supply a structured logger.
package structgraph

import (
	"context"

	"github.com/hupe1980/structgraph/graph"
	"github.com/hupe1980/structgraph/logging"
	"github.com/hupe1980/structgraph/model"
	"github.com/hupe1980/structgraph/tool"
)

// Options configures an Agent instance.
type Options struct {
	// Strategy selects how the loop terminates and the record is produced
	// (default graph.StrategyResponseTool).
	Strategy graph.StrategyKind

	// Instructions is the system prompt for the agent model.
	Instructions string

	// MaxIterations bounds the number of agent turns per invocation.
	MaxIterations int

	// FinalizerModel is the schema-constrained model used by the dual-model
	// strategy. Defaults to the agent model.
	FinalizerModel model.Model

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Agent is the high-level façade aggregating the graph and its tool registry.
type Agent[T any] struct {
	graph    *graph.Graph[T]
	registry *tool.Registry
}

// New creates an Agent producing records of type T with optional overrides.
func New[T any](m model.Model, tools []tool.Tool, optFns ...func(o *Options)) (*Agent[T], error) {
	opts := Options{
		Strategy:      graph.StrategyResponseTool,
		MaxIterations: graph.DefaultMaxIterations,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, err
	}

	g, err := graph.New[T](m, registry, func(o *graph.Options) {
		o.Strategy = opts.Strategy
		o.Instructions = opts.Instructions
		o.MaxIterations = opts.MaxIterations
		o.FinalizerModel = opts.FinalizerModel
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return &Agent[T]{graph: g, registry: registry}, nil
}

// Invoke runs one conversation from the seed user message to a validated
// record of type T.
func (a *Agent[T]) Invoke(ctx context.Context, seedText string) (T, error) {
	return a.graph.Invoke(ctx, seedText)
}

// Graph exposes the underlying orchestration graph for advanced use.
func (a *Agent[T]) Graph() *graph.Graph[T] { return a.graph }

// Registry exposes the underlying tool registry.
func (a *Agent[T]) Registry() *tool.Registry { return a.registry }
