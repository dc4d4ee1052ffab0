// Package general implements the answer_general_query tool: the catch-all
// that answers configuration questions from the exported space HCL.
package general

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkaninda/rubani/internal/llm"
	"github.com/jkaninda/rubani/internal/octoterra"
	"github.com/jkaninda/rubani/internal/prompt"
	"github.com/jkaninda/rubani/internal/reducer"
	"github.com/jkaninda/rubani/internal/sanitize"
	"github.com/jkaninda/rubani/internal/tools"
)

// Name is the tool identifier the selection model matches against.
const Name = "answer_general_query"

const defaultContextBudget = 13500 * 4

// QueryLogger receives progress notes at the fixed observation points of a
// query: before the configuration fetch, on truncation, and after the model
// responds. Callers use it to stream status back to an interactive client.
type QueryLogger func(message string)

// Deps carries everything a single query needs. A Tool is built per request
// because the query text and the caller's Octopus credentials vary per call.
type Deps struct {
	Query         string
	Exporter      *octoterra.Client
	Provider      llm.Provider
	OctopusURL    string
	OctopusAPIKey string
	ContextBudget int // characters; <=0 selects the default
	StepByStep    bool
	Logger        *slog.Logger
	QueryLog      QueryLogger           // optional
	OnTruncation  func(percent float64) // optional; observed once per answered query
}

// Tool answers general questions about the state or configuration of an
// Octopus space.
type Tool struct {
	deps Deps
}

// New creates the general query tool for one request.
func New(deps Deps) *Tool {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Tool{deps: deps}
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return "Answers a general question about the state, contents, or configuration of an Octopus Deploy space, " +
		"such as projects, runbooks, targets, tenants, environments, variables, or deployment processes."
}

func (t *Tool) Parameters() []tools.Parameter {
	return []tools.Parameter{
		{Name: "space_name", Type: "string", Description: "The name of the Octopus space mentioned in the query."},
		{Name: "project_names", Type: "array", Description: "The names of the projects mentioned in the query."},
		{Name: "runbook_names", Type: "array", Description: "The names of the runbooks mentioned in the query."},
		{Name: "target_names", Type: "array", Description: "The names of the deployment targets or machines mentioned in the query."},
		{Name: "tenant_names", Type: "array", Description: "The names of the tenants mentioned in the query."},
		{Name: "environment_names", Type: "array", Description: "The names of the environments mentioned in the query."},
		{Name: "library_variable_sets", Type: "array", Description: "The names of the library variable sets mentioned in the query."},
	}
}

// Execute fetches the space configuration scoped to the extracted entity
// names, sizes it against the context budget, and asks the model to answer
// from the result. Any truncation refuses the query instead of answering
// from partial configuration.
func (t *Tool) Execute(ctx context.Context, args tools.Args) (string, error) {
	space := strings.TrimSpace(args.String("space_name"))
	projects := sanitize.Projects(args.Value("project_names"))
	runbooks := sanitize.Runbooks(args.Value("runbook_names"))
	targets := sanitize.Targets(args.Value("target_names"))
	tenants := sanitize.Tenants(args.Value("tenant_names"))
	environments := sanitize.Environments(args.Value("environment_names"))
	varSets := sanitize.LibraryVariableSets(args.Value("library_variable_sets"))

	t.deps.Logger.Debug("answering general query",
		slog.String("space", space),
		slog.Any("projects", projects),
		slog.Any("runbooks", runbooks))
	t.log("Fetching the space configuration")

	hcl, err := t.deps.Exporter.SpaceHCL(ctx, octoterra.SpaceRequest{
		Query:               t.deps.Query,
		Space:               space,
		Projects:            projects,
		Runbooks:            runbooks,
		Targets:             targets,
		Tenants:             tenants,
		Environments:        environments,
		LibraryVariableSets: varSets,
		OctopusURL:          t.deps.OctopusURL,
		APIKey:              t.deps.OctopusAPIKey,
	})
	if err != nil {
		return "", fmt.Errorf("fetching space configuration: %w", err)
	}

	budget := t.deps.ContextBudget
	if budget <= 0 {
		budget = defaultContextBudget
	}
	result := reducer.Reduce(hcl, budget)
	if t.deps.OnTruncation != nil {
		t.deps.OnTruncation(result.TruncatedPercent)
	}
	if result.Refused {
		t.log(fmt.Sprintf("Configuration truncated by %.2f%%", result.TruncatedPercent))
		t.deps.Logger.Info("refusing over-broad query",
			slog.Float64("truncated_percent", result.TruncatedPercent))
		return reducer.RefusalResponse, nil
	}

	messages := prompt.Render(prompt.BuildHCLPrompt(t.deps.StepByStep), map[string]string{
		prompt.InputVar:   t.deps.Query,
		prompt.ContextVar: result.Text,
	})

	resp, err := t.deps.Provider.SendMessage(ctx, toRequest(messages))
	if err != nil {
		return "", fmt.Errorf("answering query: %w", err)
	}
	t.log("Answer ready")
	return resp.Content, nil
}

func (t *Tool) log(message string) {
	if t.deps.QueryLog != nil {
		t.deps.QueryLog(message)
	}
}

// toRequest folds the prompt skeleton into a provider request: system
// messages join into the system prompt, the rest become the conversation.
func toRequest(messages []prompt.Message) *llm.Request {
	var system []string
	var conversation []llm.Message
	for _, m := range messages {
		if m.Role == prompt.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		conversation = append(conversation, llm.Message{Role: llm.RoleUser, Content: m.Content})
	}
	return &llm.Request{
		SystemPrompt: strings.Join(system, "\n"),
		Messages:     conversation,
	}
}
