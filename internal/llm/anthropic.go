package llm

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/pkg/anthropic"
)

// Anthropic completes prompts with a Claude model.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates an Anthropic-backed completer.
func NewAnthropic(client anthropic.Client, model string) *Anthropic {
	return &Anthropic{client: client, model: model}
}

// Name implements Completer.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete implements Completer.
func (a *Anthropic) Complete(ctx context.Context, system, prompt string) (string, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       a.model,
		MaxTokens:   maxAnswerTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic complete")
	}
	resp.Usage.LogCost(a.model, "executive")
	return resp.Text(), nil
}
