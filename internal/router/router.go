// Package router maps a free-text query to at most one callable tool.
// Selection is delegated to a language model configured for function calling;
// the model's choice is non-deterministic, so the router guarantees only a
// syntactically valid action, never a stable mapping from query to tool.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkaninda/rubani/internal/llm"
	"github.com/jkaninda/rubani/internal/tools"
)

// NoMatchResponse is returned when the model selects no tool, or selects a
// name the registry does not know. This is the designed fallback, not an
// error: the action invokes successfully and produces this text.
const NoMatchResponse = "Sorry, I did not understand that request."

// ErrInvalidArgument is returned for malformed router input: an empty or
// whitespace-only query, or a missing tool provider. Raised before any
// collaborator call.
var ErrInvalidArgument = errors.New("invalid argument")

// ToolProvider assembles the tool registry for one request.
type ToolProvider func() *tools.Registry

// Selection is the tool the selector picked along with the raw arguments it
// extracted from the query.
type Selection struct {
	Tool      string
	Arguments map[string]any
}

// Selector picks at most one tool for a query. A nil Selection means no tool
// matched. Implementations are expected to be backed by a generative model;
// tests substitute deterministic stubs.
type Selector interface {
	Select(ctx context.Context, query string, defs []llm.ToolDefinition) (*Selection, error)
}

// MatchedAction binds a selected tool to its handler. Created once per query
// and invoked at most once.
type MatchedAction struct {
	// Tool is the selected tool name, or "" when nothing matched.
	Tool string
	// Arguments holds the raw extracted arguments. Keys the tool never
	// declared may be present; sanitization belongs to the handler.
	Arguments tools.Args

	invoke func(ctx context.Context) (string, error)
}

// Invoke runs the matched handler and returns its response text.
func (a *MatchedAction) Invoke(ctx context.Context) (string, error) {
	return a.invoke(ctx)
}

// Matched reports whether a registered tool was selected.
func (a *MatchedAction) Matched() bool {
	return a.Tool != ""
}

// Router routes queries to tools via a Selector.
type Router struct {
	selector Selector
	logger   *slog.Logger
}

// New creates a Router.
func New(selector Selector, logger *slog.Logger) *Router {
	return &Router{selector: selector, logger: logger}
}

// Route submits the query and the provider's tool definitions to the
// selector and binds the result. Selector transport failures propagate;
// a no-match or unknown tool name yields the canned fallback action.
func (r *Router) Route(ctx context.Context, query string, provider ToolProvider) (*MatchedAction, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must be a non-empty string", ErrInvalidArgument)
	}
	if provider == nil {
		return nil, fmt.Errorf("%w: tool provider is required", ErrInvalidArgument)
	}

	registry := provider()
	selection, err := r.selector.Select(ctx, query, registry.Definitions())
	if err != nil {
		return nil, fmt.Errorf("selecting tool: %w", err)
	}

	if selection == nil {
		r.logger.DebugContext(ctx, "no tool selected", slog.String("query", query))
		return noMatchAction(), nil
	}

	tool := registry.Get(selection.Tool)
	if tool == nil {
		r.logger.WarnContext(ctx, "selector returned unregistered tool",
			slog.String("tool", selection.Tool),
		)
		return noMatchAction(), nil
	}

	args := tools.Args(selection.Arguments)
	if args == nil {
		args = tools.Args{}
	}

	r.logger.DebugContext(ctx, "tool matched",
		slog.String("tool", tool.Name()),
		slog.Int("argument_count", len(args)),
	)

	return &MatchedAction{
		Tool:      tool.Name(),
		Arguments: args,
		invoke: func(ctx context.Context) (string, error) {
			return tool.Execute(ctx, args)
		},
	}, nil
}

func noMatchAction() *MatchedAction {
	return &MatchedAction{
		Arguments: tools.Args{},
		invoke: func(context.Context) (string, error) {
			return NoMatchResponse, nil
		},
	}
}
