package resolver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/model"
	"github.com/sells-group/lead-enricher/internal/resilience"
	"github.com/sells-group/lead-enricher/pkg/verifier"
)

// EmailResult is the outcome of an email lookup.
type EmailResult struct {
	model.EmailResult
	Found    bool
	Attempts int
}

// EmailResolver guesses and verifies a personal business address.
type EmailResolver struct {
	verifier verifier.Client
	guard    *resilience.Guard
	delay    time.Duration
	patterns []Pattern
}

// EmailOption configures an EmailResolver.
type EmailOption func(*EmailResolver)

// WithVerifyDelay sets the pause between successive verification calls.
func WithVerifyDelay(d time.Duration) EmailOption {
	return func(r *EmailResolver) { r.delay = d }
}

// WithVerifyGuard applies rate limiting, circuit breaking and a timeout to
// every verification call.
func WithVerifyGuard(g *resilience.Guard) EmailOption {
	return func(r *EmailResolver) { r.guard = g }
}

// NewEmailResolver creates an email resolver over the built-in pattern list.
func NewEmailResolver(v verifier.Client, opts ...EmailOption) *EmailResolver {
	r := &EmailResolver{verifier: v, patterns: Patterns}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve tries each pattern in frequency order and returns the first
// address the verifier reports valid. Only a per-address 4xx rejection
// skips a candidate; any other verifier failure aborts the scan.
func (r *EmailResolver) Resolve(ctx context.Context, firstName, lastName, domain string) (EmailResult, error) {
	first := normalizeNamePart(firstName)
	last := normalizeNamePart(lastName)
	domain = strings.ToLower(strings.TrimSpace(domain))
	if first == "" || last == "" || domain == "" {
		return EmailResult{}, nil
	}

	log := zap.L().With(zap.String("domain", domain))
	tried := make(map[string]bool, len(r.patterns))
	attempts := 0

	for _, p := range r.patterns {
		local := p.Build(first, last)
		if local == "" || tried[local] {
			continue
		}
		tried[local] = true
		addr := local + "@" + domain

		if attempts > 0 && r.delay > 0 {
			select {
			case <-ctx.Done():
				return EmailResult{Attempts: attempts}, eris.Wrap(ctx.Err(), "resolver: email scan interrupted")
			case <-time.After(r.delay):
			}
		}
		attempts++

		res, err := resilience.Call(ctx, r.guard, func(ctx context.Context) (*verifier.Result, error) {
			return r.verifier.Verify(ctx, addr)
		})
		if err != nil {
			if !rejectsCandidate(err) {
				return EmailResult{Attempts: attempts}, scanError(err, addr)
			}
			log.Warn("resolver: verifier rejected candidate, skipping pattern",
				zap.String("pattern", p.Name),
				zap.Error(err),
			)
			continue
		}

		if res.Deliverable() {
			confidence := res.Score
			if confidence <= 0 {
				confidence = p.Frequency / 100
			}
			return EmailResult{
				EmailResult: model.EmailResult{
					Email:      addr,
					Pattern:    p.Name,
					Status:     string(res.Status),
					Confidence: confidence,
				},
				Found:    true,
				Attempts: attempts,
			}, nil
		}
	}

	return EmailResult{Attempts: attempts}, nil
}

// rejectsCandidate reports whether err is the verifier refusing this one
// address (a 4xx other than auth, billing, timeout or rate limiting). Any
// other failure says nothing about the address, so the scan stops.
func rejectsCandidate(err error) bool {
	var se *resilience.StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden,
		http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}

// scanError wraps an aborting verifier error. Credential and billing
// rejections keep their StatusError; anything else that is not already
// transient is marked transient so the stage is retried.
func scanError(err error, addr string) error {
	wrapped := eris.Wrapf(err, "resolver: verify %s", addr)
	var se *resilience.StatusError
	if resilience.IsTransient(err) || errors.Is(err, context.Canceled) || errors.As(err, &se) {
		return wrapped
	}
	return resilience.NewTransientError(wrapped, 0)
}
