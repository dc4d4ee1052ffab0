// Package docs implements the how_to_usage tool for documentation and
// how-to questions that need no configuration context.
package docs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkaninda/rubani/internal/llm"
	"github.com/jkaninda/rubani/internal/tools"
)

// Name is the tool identifier the selection model matches against.
const Name = "how_to_usage"

const docsPersona = "You are a helpful agent who answers questions about how to use Octopus Deploy. " +
	"Answer from general Octopus Deploy knowledge and its public documentation. " +
	"Do not invent features that do not exist."

// Tool answers usage and how-to questions about Octopus Deploy itself,
// rather than about the caller's configuration.
type Tool struct {
	query    string
	provider llm.Provider
	logger   *slog.Logger
}

// New creates the docs tool for one request.
func New(query string, provider llm.Provider, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{query: query, provider: provider, logger: logger}
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return "Answers questions about how to use Octopus Deploy, its features, and its documentation, " +
		"when the question is not about the caller's own projects or configuration."
}

func (t *Tool) Parameters() []tools.Parameter {
	return []tools.Parameter{
		{Name: "keywords", Type: "array", Description: "The keywords that describe the topic of the question."},
	}
}

func (t *Tool) Execute(ctx context.Context, args tools.Args) (string, error) {
	keywords := args.StringList("keywords")
	t.logger.Debug("answering docs query", slog.Any("keywords", keywords))

	content := t.query
	if len(keywords) > 0 {
		content += "\nTopic keywords: " + strings.Join(keywords, ", ")
	}

	resp, err := t.provider.SendMessage(ctx, &llm.Request{
		SystemPrompt: docsPersona,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: content}},
	})
	if err != nil {
		return "", fmt.Errorf("answering docs query: %w", err)
	}
	return resp.Content, nil
}
