package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/pkg/perplexity"
)

// Perplexity completes prompts with a sonar model.
type Perplexity struct {
	client perplexity.Client
}

// NewPerplexity creates a Perplexity-backed completer.
func NewPerplexity(client perplexity.Client) *Perplexity {
	return &Perplexity{client: client}
}

// Name implements Completer.
func (p *Perplexity) Name() string { return "perplexity" }

// Complete implements Completer.
func (p *Perplexity) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := 0.0
	maxTokens := maxAnswerTokens
	msgs := make([]perplexity.Message, 0, 2)
	if system != "" {
		msgs = append(msgs, perplexity.Message{Role: "system", Content: system})
	}
	msgs = append(msgs, perplexity.Message{Role: "user", Content: prompt})

	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages:    msgs,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: perplexity complete")
	}
	return resp.Text(), nil
}
