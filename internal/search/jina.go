package search

import (
	"context"
	"strings"

	"github.com/sells-group/lead-enricher/pkg/jina"
)

// Jina searches through the Jina AI search API.
type Jina struct {
	client jina.Client
}

// NewJina creates a Jina-backed provider.
func NewJina(client jina.Client) *Jina {
	return &Jina{client: client}
}

// Name implements Provider.
func (j *Jina) Name() string { return "jina" }

// Search implements Provider.
func (j *Jina) Search(ctx context.Context, query string) (string, error) {
	resp, err := j.client.Search(ctx, query)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range resp.Data {
		writeResult(&b, r.Title, r.URL, firstNonEmpty(r.Description, truncate(r.Content, 500)))
	}
	return b.String(), nil
}

func writeResult(b *strings.Builder, title, url, snippet string) {
	for _, s := range []string{title, url, snippet} {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
