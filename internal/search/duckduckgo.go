package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/resilience"
)

const duckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the keyless DuckDuckGo HTML results page.
type DuckDuckGo struct {
	baseURL string
	http    *http.Client
}

// DuckDuckGoOption configures the DuckDuckGo provider.
type DuckDuckGoOption func(*DuckDuckGo)

// WithDuckDuckGoURL overrides the results page URL (for testing).
func WithDuckDuckGoURL(u string) DuckDuckGoOption {
	return func(d *DuckDuckGo) { d.baseURL = u }
}

// WithDuckDuckGoHTTPClient overrides the HTTP client.
func WithDuckDuckGoHTTPClient(hc *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) { d.http = hc }
}

// NewDuckDuckGo creates a DuckDuckGo provider.
func NewDuckDuckGo(opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		baseURL: duckDuckGoURL,
		http:    &http.Client{Timeout: 12 * time.Second},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Name implements Provider.
func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search implements Provider.
func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return "", eris.Wrap(err, "duckduckgo: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := d.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "duckduckgo: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resilience.FromHTTPStatus("duckduckgo", resp.StatusCode, nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "duckduckgo: parse results")
	}

	var b strings.Builder
	doc.Find(".result").Each(func(_ int, s *goquery.Selection) {
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		writeResult(&b,
			strings.TrimSpace(a.Text()),
			decodeDDGRedirect(href),
			strings.TrimSpace(s.Find(".result__snippet").Text()),
		)
	})
	return b.String(), nil
}

// decodeDDGRedirect unwraps DuckDuckGo's /l/?uddg=<target> redirect links.
func decodeDDGRedirect(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if uddg := u.Query().Get("uddg"); uddg != "" {
		return uddg
	}
	return href
}
