// Package tools defines the tool interface and the per-request registry the
// router selects from. Each tool describes its arguments in natural language;
// those descriptions are what the selection model matches queries against, so
// they are part of the routing contract, not documentation.
package tools

import (
	"context"
	"sync"

	"github.com/jkaninda/rubani/internal/llm"
)

// Tool is the interface all rubani tools implement.
type Tool interface {
	// Name returns the tool's unique identifier (e.g. "answer_general_query").
	Name() string

	// Description returns the natural-language description the selection
	// model uses to match queries to this tool.
	Description() string

	// Parameters returns the tool's argument schema in declaration order.
	Parameters() []Parameter

	// Execute runs the tool with the extracted arguments and returns the
	// response text for the user.
	Execute(ctx context.Context, args Args) (string, error)
}

// Parameter describes one named tool argument.
type Parameter struct {
	Name        string
	Type        string // JSON Schema type: "string", "array", ...
	Description string
	Required    bool
}

// Args holds the raw arguments the selection model extracted. Extraction is
// inconsistent over time: keys appear that no tool declared, and declared
// keys arrive mistyped or missing. Accessors therefore default instead of
// failing, and unknown keys are simply never read.
type Args map[string]any

// String returns the argument as a string, or "" when absent or mistyped.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// StringOr returns the argument as a string, or fallback when absent or empty.
func (a Args) StringOr(key, fallback string) string {
	if s := a.String(key); s != "" {
		return s
	}
	return fallback
}

// StringList returns the argument as a list of strings. A scalar string
// becomes a single-element list; absent or mistyped values become nil.
func (a Args) StringList(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	}
	return nil
}

// Value returns the raw argument value, which may be nil.
func (a Args) Value(key string) any {
	return a[key]
}

// Bool returns the argument as a bool, or false when absent or mistyped.
func (a Args) Bool(key string) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return false
}

// Registry holds the tools available to a single request. Registries are
// assembled fresh per query and discarded afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on duplicate names (assembly bug, not runtime).
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic("duplicate tool registration: " + t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
}

// Get returns the tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all registered tool names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns all registered tools in registration order.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// SchemaProvider lets a tool supply its own JSON Schema instead of deriving
// one from Parameters. Bridged tools carry schemas they did not author here.
type SchemaProvider interface {
	InputSchema() map[string]any
}

// Definitions converts all registered tools into LLM tool definitions for
// function selection.
func (r *Registry) Definitions() []llm.ToolDefinition {
	all := r.All()
	defs := make([]llm.ToolDefinition, len(all))
	for i, t := range all {
		schema := InputSchema(t.Parameters())
		if sp, ok := t.(SchemaProvider); ok {
			schema = sp.InputSchema()
		}
		defs[i] = llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: schema,
		}
	}
	return defs
}

// InputSchema builds a JSON Schema object from a parameter list.
func InputSchema(params []Parameter) map[string]any {
	properties := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Type == "array" {
			prop["items"] = map[string]any{"type": "string"}
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
