// Package sanitize cleans entity name lists extracted by the LLM before they
// reach any Octopus lookup. Extraction is noisy: the model invents placeholder
// names ("Project A", "MyProject"), returns a bare "*" for empty lists, and
// sometimes hands back scalars where lists are expected. Each entity kind
// binds an ignore pattern tuned to its known placeholder vocabulary.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	projectIgnore     = regexp.MustCompile(`\*|Project [0-9A-Z]|MyProject`)
	tenantIgnore      = regexp.MustCompile(`\*|Tenant [0-9A-Z]|MyTenant`)
	environmentIgnore = regexp.MustCompile(`\*|Environment [0-9A-Z]|MyEnvironment`)
	targetIgnore      = regexp.MustCompile(`\*|Machine [0-9A-Z]|Target [0-9A-Z]|MyMachine|MyTarget`)
	runbookIgnore     = regexp.MustCompile(`\*|Runbook [0-9A-Z]|MyRunbook`)
	varSetIgnore      = regexp.MustCompile(`\*|(Library )?Variable Set [0-9A-Z]|MyVariableSet|Variables`)
)

// List normalizes a raw extracted value into a clean, ordered list of names.
// Accepts a scalar string, []string, or []any of strings; anything else
// degrades to an empty list. Entries are trimmed; empty entries and entries
// whose trimmed form matches ignore at the start are dropped. A nil ignore
// pattern means trim-and-drop-empty only. Never returns an error.
func List(raw any, ignore *regexp.Regexp) []string {
	switch v := raw.(type) {
	case string:
		return appendClean([]string{}, v, ignore)
	case []string:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			out = appendClean(out, entry, ignore)
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				continue
			}
			out = appendClean(out, s, ignore)
		}
		return out
	default:
		return []string{}
	}
}

// appendClean appends the trimmed entry unless it is empty or ignored.
// Matching runs against the trimmed entry so that sanitizing an already
// sanitized list is a no-op.
func appendClean(out []string, entry string, ignore *regexp.Regexp) []string {
	trimmed := strings.TrimSpace(entry)
	if trimmed == "" {
		return out
	}
	if ignore != nil {
		if loc := ignore.FindStringIndex(trimmed); loc != nil && loc[0] == 0 {
			return out
		}
	}
	return append(out, trimmed)
}

// Projects cleans a list of project names.
func Projects(raw any) []string { return List(raw, projectIgnore) }

// Tenants cleans a list of tenant names.
func Tenants(raw any) []string { return List(raw, tenantIgnore) }

// Environments cleans a list of environment names.
func Environments(raw any) []string { return List(raw, environmentIgnore) }

// Targets cleans a list of deployment target names.
func Targets(raw any) []string { return List(raw, targetIgnore) }

// Runbooks cleans a list of runbook names.
func Runbooks(raw any) []string { return List(raw, runbookIgnore) }

// LibraryVariableSets cleans a list of library variable set names.
func LibraryVariableSets(raw any) []string { return List(raw, varSetIgnore) }
