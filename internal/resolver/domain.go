// Package resolver maps sparse lead fields to enriched ones through external
// lookups: company → domain, company+domain → executive, name+domain → email.
package resolver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/sells-group/lead-enricher/internal/cache"
	"github.com/sells-group/lead-enricher/internal/search"
)

// DomainResult is the outcome of a domain lookup. Found=false is a
// successful "no domain" answer.
type DomainResult struct {
	Domain    string
	Found     bool
	FromCache bool
}

// DomainResolver finds a company's registered website domain.
type DomainResolver struct {
	search search.Provider
	cache  cache.Cache
	ttl    time.Duration

	denylist map[string]bool
	stop     map[string]bool
}

// NewDomainResolver creates a domain resolver. A nil cache disables caching.
func NewDomainResolver(sp search.Provider, c cache.Cache, ttl time.Duration, rules *Rules) *DomainResolver {
	if c == nil {
		c = cache.New(cache.Noop{})
	}
	if rules == nil {
		rules = DefaultRules()
	}
	if ttl <= 0 {
		ttl = cache.DefaultDomainTTL
	}
	return &DomainResolver{
		search:   sp,
		cache:    c,
		ttl:      ttl,
		denylist: toSet(rules.Denylist),
		stop:     toSet(rules.LegalSuffixes),
	}
}

// hostPattern finds hostnames in URLs and bare www. links.
var hostPattern = regexp.MustCompile(`(?i)(?:https?://|\bwww\.)([a-z0-9](?:[a-z0-9-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9-]*[a-z0-9])?)+)`)

// Resolve returns the company's domain. Only a search failure is an error.
func (r *DomainResolver) Resolve(ctx context.Context, company string) (DomainResult, error) {
	company = strings.TrimSpace(company)
	if company == "" {
		return DomainResult{}, nil
	}

	key := cache.DomainKey(company)
	if v, ok := r.cache.Get(ctx, key); ok {
		return DomainResult{Domain: v.Data, Found: v.Found, FromCache: true}, nil
	}

	text, err := r.search.Search(ctx, fmt.Sprintf("%q website", company))
	if err != nil {
		return DomainResult{}, eris.Wrapf(err, "resolver: domain search for %q", company)
	}

	domain := r.pick(company, text)
	if domain == "" {
		zap.L().Debug("resolver: no relevant domain", zap.String("company", company))
		r.cache.Set(ctx, key, cache.NotFound(), r.ttl)
		return DomainResult{}, nil
	}

	r.cache.Set(ctx, key, cache.Hit(domain), r.ttl)
	return DomainResult{Domain: domain, Found: true}, nil
}

// pick returns the first non-denylisted candidate that shares a token with
// the company name.
func (r *DomainResolver) pick(company, text string) string {
	tokens := r.companyTokens(company)
	if len(tokens) == 0 {
		return ""
	}

	seen := make(map[string]bool)
	for _, m := range hostPattern.FindAllStringSubmatch(text, -1) {
		domain := registeredDomain(m[1])
		if domain == "" || seen[domain] {
			continue
		}
		seen[domain] = true

		if r.denied(domain) {
			continue
		}
		if relevant(domain, tokens) {
			return domain
		}
	}
	return ""
}

// companyTokens splits a company name on whitespace and punctuation and
// drops short tokens and legal suffixes.
func (r *DomainResolver) companyTokens(company string) []string {
	fields := strings.FieldsFunc(fold(company), func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) <= 2 || r.stop[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (r *DomainResolver) denied(domain string) bool {
	for d := domain; d != ""; {
		if r.denylist[d] {
			return true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}
	return false
}

// relevant reports whether a company token appears in the domain's label.
func relevant(domain string, tokens []string) bool {
	label := domain
	if suffix, _ := publicsuffix.PublicSuffix(domain); suffix != "" {
		label = strings.TrimSuffix(domain, "."+suffix)
	}
	label = strings.ReplaceAll(label, "-", "")
	for _, t := range tokens {
		if strings.Contains(label, t) {
			return true
		}
	}
	return false
}

// registeredDomain reduces a hostname to its eTLD+1, lowercased.
func registeredDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return d
}

func toSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, v := range list {
		m[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return m
}
