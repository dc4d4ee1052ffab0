package router

import (
	"context"
	"errors"
	"testing"

	"github.com/jkaninda/rubani/internal/llm"
)

// fakeProvider returns a canned llm.Response.
type fakeProvider struct {
	resp *llm.Response
	err  error
	got  *llm.Request
}

func (f *fakeProvider) SendMessage(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.got = req
	return f.resp, f.err
}

func (f *fakeProvider) Name() string { return "fake" }

func TestLLMSelector_ToolCall(t *testing.T) {
	p := &fakeProvider{resp: &llm.Response{
		StopReason: "tool_use",
		ContentBlocks: []llm.ContentBlock{
			llm.ToolUseBlock("call_1", "answer_general_query", map[string]any{"space_name": "Default"}),
		},
	}}
	sel := NewLLMSelector(p)

	defs := []llm.ToolDefinition{{Name: "answer_general_query"}}
	got, err := sel.Select(context.Background(), "what does the project do?", defs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Tool != "answer_general_query" {
		t.Fatalf("unexpected selection %+v", got)
	}
	if got.Arguments["space_name"] != "Default" {
		t.Errorf("unexpected arguments %v", got.Arguments)
	}
	if len(p.got.Tools) != 1 {
		t.Errorf("expected definitions forwarded, got %v", p.got.Tools)
	}
	if p.got.Temperature == nil || *p.got.Temperature != 0 {
		t.Error("expected temperature pinned to zero for selection")
	}
}

func TestLLMSelector_PlainTextMeansNoMatch(t *testing.T) {
	p := &fakeProvider{resp: &llm.Response{
		StopReason:    "end_turn",
		Content:       "I cannot help with that.",
		ContentBlocks: []llm.ContentBlock{llm.TextBlock("I cannot help with that.")},
	}}
	got, err := NewLLMSelector(p).Select(context.Background(), "what is the size of the earth?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil selection, got %+v", got)
	}
}

func TestLLMSelector_TransportError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := NewLLMSelector(&fakeProvider{err: boom}).Select(context.Background(), "q", nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected transport error, got %v", err)
	}
}
