package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/cache"
	"github.com/sells-group/lead-enricher/internal/llm"
	"github.com/sells-group/lead-enricher/internal/search"
)

// ExecutiveResult is the outcome of an executive lookup.
type ExecutiveResult struct {
	Name      string
	Found     bool
	FromCache bool
}

// NotFoundToken is the literal the model is told to answer with.
const NotFoundToken = "NOT_FOUND"

const executiveSystemPrompt = `You extract the name of a company's current chief executive from web search results.
Answer with exactly one full personal name (first and last name) and nothing else.
If the results name a CEO, answer with the CEO. Otherwise use the founder, owner or president.
Ignore executives of other companies with similar names, former executives, and board members.
If the results do not name one, answer exactly ` + NotFoundToken + `.`

// maxContextChars bounds the search text sent to the model.
const maxContextChars = 6000

// ExecutiveResolver finds the senior executive of a company.
type ExecutiveResolver struct {
	search search.Provider
	llm    llm.Completer
	cache  cache.Cache
	ttl    time.Duration
	titles []string
}

// NewExecutiveResolver creates an executive resolver. A nil cache disables caching.
func NewExecutiveResolver(sp search.Provider, c llm.Completer, kv cache.Cache, ttl time.Duration, rules *Rules) *ExecutiveResolver {
	if kv == nil {
		kv = cache.New(cache.Noop{})
	}
	if rules == nil {
		rules = DefaultRules()
	}
	if ttl <= 0 {
		ttl = cache.DefaultExecutiveTTL
	}
	return &ExecutiveResolver{
		search: sp,
		llm:    c,
		cache:  kv,
		ttl:    ttl,
		titles: rules.ExecutiveTitles,
	}
}

// Resolve returns the executive's validated full name. A search or model
// failure is an error; every other miss is a not-found result.
func (r *ExecutiveResolver) Resolve(ctx context.Context, company, domain string) (ExecutiveResult, error) {
	company = strings.TrimSpace(company)
	domain = strings.TrimSpace(domain)
	if company == "" || domain == "" {
		return ExecutiveResult{}, nil
	}

	key := cache.ExecutiveKey(domain)
	if v, ok := r.cache.Get(ctx, key); ok {
		return ExecutiveResult{Name: v.Data, Found: v.Found, FromCache: true}, nil
	}

	text, err := r.search.Search(ctx, r.query(company))
	if err != nil {
		return ExecutiveResult{}, eris.Wrapf(err, "resolver: executive search for %q", company)
	}
	if strings.TrimSpace(text) == "" {
		r.cache.Set(ctx, key, cache.NotFound(), r.ttl)
		return ExecutiveResult{}, nil
	}

	answer, err := r.llm.Complete(ctx, executiveSystemPrompt, buildExecutivePrompt(company, domain, text))
	if err != nil {
		return ExecutiveResult{}, eris.Wrapf(err, "resolver: executive extraction for %q", company)
	}

	name := ValidateName(answer)
	if name == "" {
		zap.L().Debug("resolver: executive answer rejected",
			zap.String("company", company),
			zap.String("answer", answer),
		)
		r.cache.Set(ctx, key, cache.NotFound(), r.ttl)
		return ExecutiveResult{}, nil
	}

	r.cache.Set(ctx, key, cache.Hit(name), r.ttl)
	return ExecutiveResult{Name: name, Found: true}, nil
}

func (r *ExecutiveResolver) query(company string) string {
	return fmt.Sprintf("%q %s", company, strings.Join(r.titles, " OR "))
}

func buildExecutivePrompt(company, domain, text string) string {
	text = truncateUTF8(text, maxContextChars)
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\nWebsite: %s\n\nSearch results:\n", company, domain)
	b.WriteString(text)
	b.WriteString("\n\nWho is the current CEO of this company?")
	return b.String()
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
