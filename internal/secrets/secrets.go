// Package secrets resolves credential references found in rubani
// configuration. Operators can put an Octopus API key or a model provider
// key directly in the config file, or point at where the key lives:
//
//	api_key: env://OCTOPUS_API_KEY
//	api_key: vault://secret/data/rubani/octopus#api_key
//
// References are resolved once at startup. Resolved values never appear in
// logs or in model prompts.
package secrets

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when a reference points at a credential the
// backing store does not hold.
var ErrNotFound = errors.New("credential not found")

// Provider resolves a credential reference into the raw key material.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Resolve returns the credential the reference points at, or an error
	// wrapping ErrNotFound when the backend has no such entry.
	Resolve(ctx context.Context, ref string) (string, error)

	// Source identifies the backend for logging. It never carries secrets.
	Source() string
}

// IsRef reports whether a config value is a credential reference rather
// than a literal key.
func IsRef(value string) bool {
	return strings.HasPrefix(value, "env://") || strings.HasPrefix(value, "vault://")
}

// ResolveValue resolves value through p when it is a reference, and returns
// it unchanged when it is a literal key or empty.
func ResolveValue(ctx context.Context, p Provider, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	return p.Resolve(ctx, value)
}
