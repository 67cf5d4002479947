package cache

import (
	"context"
	"time"

	"github.com/sells-group/lead-enricher/internal/store"
)

// EntryStore is the slice of store.Store used for cache rows.
type EntryStore interface {
	GetCache(ctx context.Context, key string) (*store.CacheEntry, error)
	SetCache(ctx context.Context, key, value string, found bool, ttl time.Duration) error
}

// StoreBackend keeps cache entries in the resolver_cache table.
type StoreBackend struct {
	st EntryStore
}

// NewStoreBackend creates a backend over the given store.
func NewStoreBackend(st EntryStore) *StoreBackend {
	return &StoreBackend{st: st}
}

func (b *StoreBackend) Get(ctx context.Context, key string) (Value, bool, error) {
	e, err := b.st.GetCache(ctx, key)
	if err != nil {
		return Value{}, false, err
	}
	if e == nil {
		return Value{}, false, nil
	}
	return Value{Data: e.Value, Found: e.Found}, true, nil
}

func (b *StoreBackend) Set(ctx context.Context, key string, v Value, ttl time.Duration) error {
	return b.st.SetCache(ctx, key, v.Data, v.Found, ttl)
}
