package search

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/pkg/perplexity"
)

const perplexitySearchPrompt = "You are a web search engine. List the most relevant web results for the query. " +
	"For each result give the page title, its full URL and one sentence of visible page text."

// Perplexity uses the sonar answer engine as a search backend. The answer
// text is followed by the pages it was grounded on.
type Perplexity struct {
	client perplexity.Client
}

// NewPerplexity creates a Perplexity-backed provider.
func NewPerplexity(client perplexity.Client) *Perplexity {
	return &Perplexity{client: client}
}

// Name implements Provider.
func (p *Perplexity) Name() string { return "perplexity" }

// Search implements Provider.
func (p *Perplexity) Search(ctx context.Context, query string) (string, error) {
	temp := 0.0
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: perplexitySearchPrompt},
			{Role: "user", Content: query},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrap(err, "perplexity: search")
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(resp.Text()))
	if sources := resp.Sources(); len(sources) > 0 {
		b.WriteString("\n\n")
		for _, src := range sources {
			if src.Title != "" {
				b.WriteString(src.Title)
				b.WriteByte('\n')
			}
			b.WriteString(src.URL)
			b.WriteByte('\n')
			if src.Snippet != "" {
				b.WriteString(src.Snippet)
				b.WriteByte('\n')
			}
		}
	}
	return b.String(), nil
}
