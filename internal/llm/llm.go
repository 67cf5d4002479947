// Package llm adapts language-model APIs to a single short-completion call.
package llm

import (
	"context"

	"github.com/sells-group/lead-enricher/internal/resilience"
)

// Completer returns a short text completion for a system + user prompt.
type Completer interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Guarded wraps a completer with a rate limit, circuit breaker and timeout.
func Guarded(c Completer, g *resilience.Guard) Completer {
	if g == nil {
		return c
	}
	return &guarded{c: c, g: g}
}

type guarded struct {
	c Completer
	g *resilience.Guard
}

func (l *guarded) Name() string { return l.c.Name() }

func (l *guarded) Complete(ctx context.Context, system, prompt string) (string, error) {
	return resilience.Call(ctx, l.g, func(ctx context.Context) (string, error) {
		return l.c.Complete(ctx, system, prompt)
	})
}

// maxAnswerTokens bounds every completion; answers are a name or NOT_FOUND.
const maxAnswerTokens = 64
