package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/structgraph/core"
	"github.com/hupe1980/structgraph/logging"
	"github.com/hupe1980/structgraph/tool"
)

// executor runs the tools node: every function call of the routed assistant
// turn is executed (optionally in parallel) and exactly one tool result turn
// per call is produced, in call order, before control returns to the agent
// node. Implementations never panic; recovered panics surface as
// EXECUTION_ERROR tool errors.
type executor struct {
	registry    *tool.Registry
	maxParallel int // <=1 => sequential
	logger      logging.Logger
}

func newExecutor(registry *tool.Registry, maxParallel int, logger logging.Logger) *executor {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &executor{registry: registry, maxParallel: maxParallel, logger: logger}
}

// execute runs all calls and returns their result turns in call order.
// Ordering is deterministic regardless of parallelism: results are buffered
// by index and appended together. The first failing call (by call order)
// aborts the invocation.
func (e *executor) execute(
	ctx context.Context,
	calls []core.FunctionCall,
	intercept func(core.FunctionCall) (core.Content, bool),
) ([]core.Content, error) {
	n := len(calls)
	if n == 0 {
		return nil, nil
	}

	results := make([]core.Content, n)
	errs := make([]error, n)

	runOne := func(idx int, fc core.FunctionCall) {
		if turn, handled := intercept(fc); handled {
			results[idx] = turn
			return
		}
		results[idx], errs[idx] = e.executeSingle(ctx, fc)
	}

	if n == 1 || e.maxParallel <= 1 {
		for i, fc := range calls {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			runOne(i, fc)
		}
	} else {
		maxPar := e.maxParallel
		if maxPar > n {
			maxPar = n
		}

		var wg sync.WaitGroup
		sem := make(chan struct{}, maxPar)

		for i, fc := range calls {
			if ctx.Err() != nil { // pre-check cancellation
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, fc core.FunctionCall) {
				defer wg.Done()
				defer func() { <-sem }()
				runOne(idx, fc)
			}(i, fc)
		}
		wg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			return nil, errs[i]
		}
	}
	return results, nil
}

// executeSingle runs one call against the registry with panic safety and
// serializes the return value to text for the tool result turn.
func (e *executor) executeSingle(ctx context.Context, fc core.FunctionCall) (core.Content, error) {
	start := time.Now()

	var (
		result any
		err    error
	)
	func() { // panic safety
		defer func() {
			if r := recover(); r != nil {
				err = tool.NewToolError(fc.Name, fmt.Sprintf("panic: %v", r), tool.CodeExecution)
				e.logger.Error("graph.tool.panic", "tool", fc.Name, "recover", r)
			}
		}()
		result, err = e.registry.Execute(ctx, fc.Name, fc.Arguments)
	}()

	e.logger.Info(
		"graph.tool.executed",
		"tool", fc.Name,
		"function_call_id", fc.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		return core.Content{}, err
	}
	return core.NewToolResultContent(fc.ID, fc.Name, serializeResult(result), nil), nil
}

// serializeResult renders a tool return value as text for the message log.
func serializeResult(result any) string {
	switch v := result.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return fmt.Sprintf("%v", v)
	}
}
