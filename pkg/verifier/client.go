// Package verifier provides a client for an email deliverability
// verification API.
package verifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-enricher/internal/resilience"
)

const defaultBaseURL = "https://api.emailverify.example/v1"

// Status is the verifier's verdict for one address.
type Status string

// Verifier statuses. Only StatusValid confirms a deliverable mailbox;
// accept-all domains answer yes for every address and prove nothing.
const (
	StatusValid     Status = "valid"
	StatusInvalid   Status = "invalid"
	StatusAcceptAll Status = "accept_all"
	StatusUnknown   Status = "unknown"
)

// Client verifies a single email address.
type Client interface {
	Verify(ctx context.Context, email string) (*Result, error)
}

// Result is the response from GET /verify.
type Result struct {
	Email     string  `json:"email"`
	Status    Status  `json:"status"`
	SubStatus string  `json:"sub_status"`
	Score     float64 `json:"score"`
}

// Deliverable reports whether the address was confirmed valid.
func (r *Result) Deliverable() bool {
	return r != nil && r.Status == StatusValid
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a verification API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Verify(ctx context.Context, email string) (*Result, error) {
	reqURL := c.baseURL + "/verify?email=" + url.QueryEscape(email)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "verifier: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.FromHTTPStatus("verifier", resp.StatusCode, body)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "verifier: unmarshal response")
	}
	if result.Email == "" {
		result.Email = email
	}
	result.Status = Status(strings.ToLower(string(result.Status)))

	return &result, nil
}
