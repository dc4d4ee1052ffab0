package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// FallbackProvider chains providers so a failing backend does not take the
// whole service with it: when the primary errors, the next provider gets
// the same request. Both tool selection and answer generation go through
// the chain, so a fallback backend must support function calling too.
type FallbackProvider struct {
	chain  []Provider
	logger *slog.Logger
}

// NewFallbackProvider builds a chain from the given providers, tried in
// order. Panics when the chain is empty.
func NewFallbackProvider(chain []Provider, logger *slog.Logger) *FallbackProvider {
	if len(chain) == 0 {
		panic("fallback chain needs at least one provider")
	}
	return &FallbackProvider{chain: chain, logger: logger}
}

// Name identifies the chain by its primary provider.
func (f *FallbackProvider) Name() string {
	return f.chain[0].Name() + "+fallback"
}

// SendMessage forwards the request to each provider until one answers.
func (f *FallbackProvider) SendMessage(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for i, p := range f.chain {
		resp, err := p.SendMessage(ctx, req)
		if err != nil {
			lastErr = err
			f.logger.WarnContext(ctx, "provider failed",
				slog.String("provider", p.Name()),
				slog.Int("position", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		if i > 0 {
			f.logger.InfoContext(ctx, "answered by fallback provider",
				slog.String("provider", p.Name()),
				slog.Int("position", i),
			)
		}
		return resp, nil
	}
	return nil, fmt.Errorf("all %d providers failed: %w", len(f.chain), lastErr)
}
