package router

import (
	"context"

	"github.com/jkaninda/rubani/internal/llm"
)

// LLMSelector implements Selector by asking a chat-completion provider to
// pick a function call for the query.
type LLMSelector struct {
	provider llm.Provider
}

// NewLLMSelector creates a selector backed by the given provider.
func NewLLMSelector(provider llm.Provider) *LLMSelector {
	return &LLMSelector{provider: provider}
}

// Select submits the query with the tool definitions and returns the first
// tool call the model produced, or nil when the model answered with plain
// text instead of a call.
func (s *LLMSelector) Select(ctx context.Context, query string, defs []llm.ToolDefinition) (*Selection, error) {
	temperature := 0.0
	resp, err := s.provider.SendMessage(ctx, &llm.Request{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: query}},
		Temperature: &temperature,
		Tools:       defs,
	})
	if err != nil {
		return nil, err
	}

	blocks := resp.ToolUseBlocks()
	if len(blocks) == 0 {
		return nil, nil
	}

	return &Selection{
		Tool:      blocks[0].Name,
		Arguments: blocks[0].Input,
	}, nil
}
