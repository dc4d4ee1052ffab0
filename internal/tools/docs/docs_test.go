package docs

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jkaninda/rubani/internal/llm"
	"github.com/jkaninda/rubani/internal/tools"
)

type fakeProvider struct {
	lastReq *llm.Request
	answer  string
}

func (f *fakeProvider) SendMessage(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.lastReq = req
	return &llm.Response{Content: f.answer, StopReason: "end_turn"}, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExecuteForwardsKeywords(t *testing.T) {
	provider := &fakeProvider{answer: "Use a lifecycle."}
	tool := New("How do I promote a release?", provider, discardLogger())

	answer, err := tool.Execute(context.Background(), tools.Args{
		"keywords": []any{"release", "promote", "lifecycle"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "Use a lifecycle." {
		t.Errorf("unexpected answer %q", answer)
	}
	if !strings.Contains(provider.lastReq.SystemPrompt, "Octopus Deploy") {
		t.Errorf("expected a docs persona, got %q", provider.lastReq.SystemPrompt)
	}
	msg := provider.lastReq.Messages[0].Content
	if !strings.Contains(msg, "How do I promote a release?") {
		t.Errorf("query missing from the message: %q", msg)
	}
	if !strings.Contains(msg, "release, promote, lifecycle") {
		t.Errorf("keywords missing from the message: %q", msg)
	}
}

func TestExecuteNoKeywords(t *testing.T) {
	provider := &fakeProvider{answer: "ok"}
	tool := New("What is a tenant?", provider, discardLogger())

	if _, err := tool.Execute(context.Background(), tools.Args{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.lastReq.Messages[0].Content != "What is a tenant?" {
		t.Errorf("unexpected message %q", provider.lastReq.Messages[0].Content)
	}
}
