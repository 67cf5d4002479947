// Package search adapts web search backends to the plain-text contract the
// resolvers consume: a query in, the visible result text out.
package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/resilience"
)

// Provider runs one web search and returns the result text (titles, URLs and
// snippets). An empty string with a nil error means no results.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) (string, error)
}

// Guarded wraps a provider with a rate limit, circuit breaker and timeout.
func Guarded(p Provider, g *resilience.Guard) Provider {
	if g == nil {
		return p
	}
	return &guarded{p: p, g: g}
}

type guarded struct {
	p Provider
	g *resilience.Guard
}

func (s *guarded) Name() string { return s.p.Name() }

func (s *guarded) Search(ctx context.Context, query string) (string, error) {
	return resilience.Call(ctx, s.g, func(ctx context.Context) (string, error) {
		return s.p.Search(ctx, query)
	})
}

// Chain queries providers in order and returns the first non-empty result.
// A failing provider falls through to the next one; the error is returned
// only when no provider produced results.
type Chain struct {
	providers []Provider
}

// NewChain builds a fallback chain. The first provider is the primary.
func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// Name reports the primary provider's name.
func (c *Chain) Name() string {
	if len(c.providers) == 0 {
		return "chain"
	}
	return c.providers[0].Name()
}

// Search implements Provider.
func (c *Chain) Search(ctx context.Context, query string) (string, error) {
	if len(c.providers) == 0 {
		return "", eris.New("search: no providers configured")
	}

	var firstErr error
	for _, p := range c.providers {
		text, err := p.Search(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return "", eris.Wrap(ctx.Err(), "search: context done")
			}
			zap.L().Warn("search: provider failed, trying next",
				zap.String("provider", p.Name()),
				zap.String("query", query),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "search: %s", p.Name())
			}
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}

	if firstErr != nil {
		return "", firstErr
	}
	return "", nil
}
