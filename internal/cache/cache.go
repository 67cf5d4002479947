// Package cache memoizes resolver results with a TTL. The cache is advisory:
// backend failures are logged and read as misses, never returned to callers.
package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-enricher/internal/metrics"
)

// Value is a cached resolver result. Found=false is the negative sentinel
// ("looked up, nothing exists"), distinct from a cache miss.
type Value struct {
	Data  string
	Found bool
}

// Hit wraps a resolved string.
func Hit(data string) Value {
	return Value{Data: data, Found: true}
}

// NotFound is the cached negative result.
func NotFound() Value {
	return Value{}
}

// Cache is the capability every resolver depends on. Implementations never
// fail: an error inside the backend surfaces as ok=false on Get and is
// dropped on Set.
type Cache interface {
	Get(ctx context.Context, key string) (Value, bool)
	Set(ctx context.Context, key string, v Value, ttl time.Duration)
}

// Backend is a storage engine for Cache. Get returns ok=false for a miss or
// an expired entry.
type Backend interface {
	Get(ctx context.Context, key string) (Value, bool, error)
	Set(ctx context.Context, key string, v Value, ttl time.Duration) error
}

// Option configures a Cache built by New.
type Option func(*safeCache)

// WithMetrics records lookups on the given collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *safeCache) { c.metrics = m }
}

// New wraps a backend so that its errors never reach the caller.
func New(b Backend, opts ...Option) Cache {
	c := &safeCache{backend: b}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type safeCache struct {
	backend Backend
	metrics *metrics.Collector
}

func (c *safeCache) Get(ctx context.Context, key string) (Value, bool) {
	v, ok, err := c.backend.Get(ctx, key)
	kind := keyKind(key)
	switch {
	case err != nil:
		zap.L().Warn("cache: get failed, treating as miss", zap.String("key", key), zap.Error(err))
		c.metrics.RecordCacheLookup(kind, "error")
		return Value{}, false
	case !ok:
		c.metrics.RecordCacheLookup(kind, "miss")
		return Value{}, false
	case !v.Found:
		c.metrics.RecordCacheLookup(kind, "negative")
	default:
		c.metrics.RecordCacheLookup(kind, "hit")
	}
	return v, true
}

func (c *safeCache) Set(ctx context.Context, key string, v Value, ttl time.Duration) {
	if err := c.backend.Set(ctx, key, v, ttl); err != nil {
		zap.L().Warn("cache: set failed", zap.String("key", key), zap.Error(err))
	}
}

const (
	domainPrefix    = "domain:"
	executivePrefix = "executive:"
)

// Default TTLs. Executive names churn faster than domain ownership.
const (
	DefaultDomainTTL    = 7 * 24 * time.Hour
	DefaultExecutiveTTL = 24 * time.Hour
)

// DomainKey is the cache key for a company's domain lookup.
func DomainKey(company string) string {
	return domainPrefix + normalize(company)
}

// ExecutiveKey is the cache key for a domain's executive lookup.
func ExecutiveKey(domain string) string {
	return executivePrefix + normalize(domain)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func keyKind(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}
