package prompt

import (
	"strings"
	"testing"
)

func TestBuildHCLPrompt_Concise(t *testing.T) {
	msgs := BuildHCLPrompt(false)
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleSystem || !strings.Contains(msgs[0].Content, "concise") {
		t.Errorf("expected concise persona first, got %+v", msgs[0])
	}
	if !strings.Contains(msgs[1].Content, "Terraform modules defining Octopus Deploy resources") {
		t.Errorf("expected HCL framing second, got %+v", msgs[1])
	}
	if msgs[2].Content != "{input}" {
		t.Errorf("expected query placeholder third, got %+v", msgs[2])
	}
	if msgs[4].Content != "HCL: ###\n{context}\n###" {
		t.Errorf("expected fenced context last, got %+v", msgs[4])
	}
	for _, m := range msgs {
		if strings.Contains(m.Content, "step by step") || strings.Contains(m.Content, "verbose") {
			t.Errorf("concise build must not carry reasoning cues: %+v", m)
		}
	}
}

func TestBuildHCLPrompt_StepByStep(t *testing.T) {
	msgs := BuildHCLPrompt(true)
	if len(msgs) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "verbose") {
		t.Errorf("expected verbose persona, got %+v", msgs[0])
	}
	last := msgs[len(msgs)-1]
	if last.Role != RoleUser || last.Content != "Let's think step by step." {
		t.Errorf("expected reasoning cue appended, got %+v", last)
	}
	for _, m := range msgs {
		if strings.Contains(m.Content, "concise") {
			t.Errorf("personas must be mutually exclusive: %+v", m)
		}
	}
}

func TestRender(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "{input}"},
		{Role: RoleUser, Content: "HCL: ###\n{context}\n###"},
	}
	rendered := Render(msgs, map[string]string{
		InputVar:   "What does the project do?",
		ContextVar: "resource \"x\" {}",
	})
	if rendered[0].Content != "What does the project do?" {
		t.Errorf("unexpected input render: %q", rendered[0].Content)
	}
	if rendered[1].Content != "HCL: ###\nresource \"x\" {}\n###" {
		t.Errorf("unexpected context render: %q", rendered[1].Content)
	}
	// Source templates are untouched.
	if msgs[0].Content != "{input}" {
		t.Error("Render must not mutate its input")
	}
}
