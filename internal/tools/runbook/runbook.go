// Package runbook implements the show_runbook_dashboard tool: a markdown
// dashboard of the recent runs of a named runbook.
package runbook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jkaninda/rubani/internal/octopus"
	"github.com/jkaninda/rubani/internal/tools"
)

// Name is the tool identifier the selection model matches against.
const Name = "show_runbook_dashboard"

const recentRunCount = 10

// Tool renders a dashboard of recent runbook runs from the Octopus API.
type Tool struct {
	client *octopus.Client
	creds  octopus.Credentials
	logger *slog.Logger
}

// New creates the runbook dashboard tool for one request.
func New(client *octopus.Client, creds octopus.Credentials, logger *slog.Logger) *Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{client: client, creds: creds, logger: logger}
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return "Shows the dashboard of a runbook: the status of its most recent runs per environment."
}

func (t *Tool) Parameters() []tools.Parameter {
	return []tools.Parameter{
		{Name: "space_name", Type: "string", Description: "The name of the Octopus space.", Required: true},
		{Name: "project_name", Type: "string", Description: "The name of the project the runbook belongs to.", Required: true},
		{Name: "runbook_name", Type: "string", Description: "The name of the runbook.", Required: true},
	}
}

func (t *Tool) Execute(ctx context.Context, args tools.Args) (string, error) {
	spaceName := strings.TrimSpace(args.String("space_name"))
	projectName := strings.TrimSpace(args.String("project_name"))
	runbookName := strings.TrimSpace(args.String("runbook_name"))
	if spaceName == "" || projectName == "" || runbookName == "" {
		return "Please specify the space, project, and runbook names.", nil
	}

	space, err := t.client.SpaceByName(ctx, t.creds, spaceName)
	if err != nil {
		return "", fmt.Errorf("resolving space: %w", err)
	}
	project, err := t.client.ProjectByName(ctx, t.creds, space.ID, projectName)
	if err != nil {
		return "", fmt.Errorf("resolving project: %w", err)
	}
	runbook, err := t.client.RunbookByName(ctx, t.creds, space.ID, project.ID, runbookName)
	if err != nil {
		return "", fmt.Errorf("resolving runbook: %w", err)
	}
	runs, err := t.client.RecentRuns(ctx, t.creds, space.ID, runbook.ID, recentRunCount)
	if err != nil {
		return "", fmt.Errorf("listing runbook runs: %w", err)
	}

	t.logger.Debug("rendering runbook dashboard",
		slog.String("runbook", runbook.ID),
		slog.Int("runs", len(runs)))

	return dashboard(projectName, runbookName, runs), nil
}

// dashboard renders the runs as a markdown table, newest first.
func dashboard(project, runbook string, runs []octopus.RunbookRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Runbook %q in project %q\n\n", runbook, project)
	if len(runs) == 0 {
		b.WriteString("No runs found.\n")
		return b.String()
	}
	b.WriteString("| Environment | Tenant | State | Started |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, run := range runs {
		tenant := run.TenantName
		if tenant == "" {
			tenant = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			run.EnvironmentName, tenant, run.State, run.Created.Format("2006-01-02 15:04"))
	}
	return b.String()
}
