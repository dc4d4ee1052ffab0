// Package prompt assembles the fixed message skeleton for answering a
// configuration question from exported HCL context.
package prompt

import "strings"

// Message roles. The model invocation layer maps these onto its own wire roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Placeholders substituted by Render.
const (
	InputVar   = "input"
	ContextVar = "context"
)

// Message is a single (role, template) pair. Content may contain {input} and
// {context} placeholders until rendered.
type Message struct {
	Role    string
	Content string
}

// The HCL framing instructions. The model must treat the exported Terraform
// as the live system, never reveal the underlying format, and recognize the
// Octopus variable reference syntaxes.
const hclSystemPrompt = "You understand Terraform modules defining Octopus Deploy resources." +
	"You must assume the Terraform is an accurate representation of the live project. " +
	"Do not mention Terraform in the response. Do not show any Terraform snippets in the response. " +
	"Do not mention that you referenced the Terraform to provide your answer. " +
	"You must assume questions about variables refer to Octopus variables. " +
	"Variables are referenced using the syntax #{Variable Name}, $OctopusParameters[\"Variable Name\"], " +
	"Octopus.Parameters[\"Variable Name\"], get_octopusvariable \"Variable Name\", " +
	"or get_octopusvariable(\"Variable Name\"). " +
	"The values of secret variables are not defined in the Terraform configuration. " +
	"Do not mention the fact that the values of secret variables are not defined."

const (
	concisePersona = "You are a concise and helpful agent. Respond only with the answer to the question."
	verbosePersona = "You are a verbose and helpful agent."
)

// BuildHCLPrompt returns the ordered message skeleton for an HCL-grounded
// answer. When stepByStep is true the verbose persona is used and a
// chain-of-thought cue is appended; otherwise the concise persona applies.
// The two personas are mutually exclusive.
func BuildHCLPrompt(stepByStep bool) []Message {
	persona := concisePersona
	if stepByStep {
		persona = verbosePersona
	}

	messages := []Message{
		{Role: RoleSystem, Content: persona},
		{Role: RoleSystem, Content: hclSystemPrompt},
		{Role: RoleUser, Content: "{input}"},
		{Role: RoleUser, Content: "Answer the question using the HCL below."},
		// Instructions first, context fenced with ### per the prompt
		// engineering guidance the upstream API documents.
		{Role: RoleUser, Content: "HCL: ###\n{context}\n###"},
	}

	if stepByStep {
		messages = append(messages, Message{Role: RoleUser, Content: "Let's think step by step."})
	}
	return messages
}

// Render substitutes {name} placeholders in every message template.
// Unknown placeholders are left in place.
func Render(messages []Message, vars map[string]string) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		content := m.Content
		for name, value := range vars {
			content = strings.ReplaceAll(content, "{"+name+"}", value)
		}
		out[i] = Message{Role: m.Role, Content: content}
	}
	return out
}
