// Package factory assembles the tool registry for a single query. Registries
// are per-request because the query text and the caller's Octopus credentials
// are baked into the tools at construction time.
package factory

import (
	"log/slog"

	"github.com/jkaninda/rubani/internal/llm"
	"github.com/jkaninda/rubani/internal/octopus"
	"github.com/jkaninda/rubani/internal/octoterra"
	"github.com/jkaninda/rubani/internal/tools"
	"github.com/jkaninda/rubani/internal/tools/docs"
	"github.com/jkaninda/rubani/internal/tools/general"
	"github.com/jkaninda/rubani/internal/tools/runbook"
)

// Factory builds per-request tool registries from long-lived components.
type Factory struct {
	Provider      llm.Provider
	Exporter      *octoterra.Client
	Octopus       *octopus.Client
	ContextBudget int
	StepByStep    bool
	Logger        *slog.Logger

	// Extensions are long-lived tools registered into every registry,
	// typically bridged from MCP servers.
	Extensions []tools.Tool
}

// Request carries the per-query inputs.
type Request struct {
	Query         string
	OctopusURL    string
	OctopusAPIKey string
	QueryLog      general.QueryLogger   // optional
	OnTruncation  func(percent float64) // optional
}

// Registry assembles a fresh registry for one query.
func (f *Factory) Registry(req Request) *tools.Registry {
	registry := tools.NewRegistry()

	registry.Register(general.New(general.Deps{
		Query:         req.Query,
		Exporter:      f.Exporter,
		Provider:      f.Provider,
		OctopusURL:    req.OctopusURL,
		OctopusAPIKey: req.OctopusAPIKey,
		ContextBudget: f.ContextBudget,
		StepByStep:    f.StepByStep,
		Logger:        f.Logger,
		QueryLog:      req.QueryLog,
		OnTruncation:  req.OnTruncation,
	}))
	registry.Register(docs.New(req.Query, f.Provider, f.Logger))
	registry.Register(runbook.New(f.Octopus, octopus.Credentials{
		ServerURL: req.OctopusURL,
		APIKey:    req.OctopusAPIKey,
	}, f.Logger))

	for _, ext := range f.Extensions {
		registry.Register(ext)
	}
	return registry
}
