package secrets

import (
	"context"
	"fmt"
)

// Chain tries each provider in order and returns the first resolution.
type Chain []Provider

func (c Chain) Source() string { return "chain" }

func (c Chain) Resolve(ctx context.Context, ref string) (string, error) {
	var lastErr error
	for _, p := range c {
		value, err := p.Resolve(ctx, ref)
		if err == nil {
			return value, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no provider for %q", ErrNotFound, ref)
	}
	return "", lastErr
}
