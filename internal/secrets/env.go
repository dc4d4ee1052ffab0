package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Env resolves env:// references against the process environment.
type Env struct{}

func (Env) Source() string { return "env" }

func (Env) Resolve(_ context.Context, ref string) (string, error) {
	name, ok := strings.CutPrefix(ref, "env://")
	if !ok {
		return "", fmt.Errorf("%w: not an env:// reference: %q", ErrNotFound, ref)
	}
	if name == "" {
		return "", fmt.Errorf("%w: env reference has no variable name", ErrNotFound)
	}
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("%w: %s is unset or empty", ErrNotFound, name)
	}
	return value, nil
}
