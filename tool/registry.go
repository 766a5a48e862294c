package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/structgraph/model"
)

// Registry maps tool names to implementations. It is used both to advertise
// capabilities to the model (Definitions) and to execute requested calls
// (Execute). A Registry is safe for concurrent use after construction.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a Registry holding the given tools. Duplicate names
// are rejected.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a tool. Registering a nil tool, an empty name or a name that
// is already taken is an error.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("cannot register nil tool")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("cannot register tool with empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns the tool declarations advertised to the model, in
// sorted name order for reproducible requests.
func (r *Registry) Definitions() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]model.ToolDefinition, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute looks up the named tool, deserializes its JSON arguments and
// invokes it. Failures are reported as *ToolError:
//
//	unknown tool            -> UNKNOWN_TOOL
//	unparseable arguments   -> VALIDATION_ERROR
//	tool failure            -> EXECUTION_ERROR (via the tool implementation)
func (r *Registry) Execute(ctx context.Context, name, args string) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, NewToolError(name, "tool not found in registry", CodeUnknownTool)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, &ToolError{
				Tool:    name,
				Message: fmt.Sprintf("failed to unmarshal arguments: %v", err),
				Code:    CodeValidation,
			}
		}
	}

	return t.Call(ctx, argMap)
}
