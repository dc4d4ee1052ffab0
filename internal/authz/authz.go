// Package authz gates privileged actions behind an externally sourced admin
// allow-list. The list is re-fetched on every check so permission revocations
// take effect immediately; nothing is cached here.
package authz

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
)

// ErrNotAuthorized is the single failure mode of the gate. Fetch failures,
// parse failures, and membership misses all collapse into it so callers never
// learn why authorization failed.
var ErrNotAuthorized = errors.New("not authorized")

// PrincipalFunc returns the identity of the current caller.
type PrincipalFunc func() (string, error)

// AllowListFunc returns the raw admin allow-list as a JSON array of strings.
// It is invoked once per check.
type AllowListFunc func() (string, error)

// decision is the internal, tagged authorization outcome. The reason is
// logged but never surfaced to the caller.
type decision struct {
	authorized bool
	reason     string
}

func check(principal PrincipalFunc, allowList AllowListFunc) decision {
	who, err := principal()
	if err != nil {
		return decision{reason: "resolving principal: " + err.Error()}
	}

	raw, err := allowList()
	if err != nil {
		return decision{reason: "fetching allow-list: " + err.Error()}
	}

	var admins []string
	if err := json.Unmarshal([]byte(raw), &admins); err != nil {
		return decision{reason: "parsing allow-list: " + err.Error()}
	}

	if !slices.Contains(admins, who) {
		return decision{reason: "principal " + who + " not in allow-list"}
	}
	return decision{authorized: true}
}

// GuardedCall runs action only when the current principal appears in the
// admin allow-list. Any failure to establish membership returns
// ErrNotAuthorized; on success the action's result and error pass through
// unchanged. The logger may be nil.
func GuardedCall[T any](principal PrincipalFunc, allowList AllowListFunc, logger *slog.Logger, action func() (T, error)) (T, error) {
	d := check(principal, allowList)
	if !d.authorized {
		if logger != nil {
			logger.Warn("admin check denied", slog.String("reason", d.reason))
		}
		var zero T
		return zero, ErrNotAuthorized
	}
	return action()
}
